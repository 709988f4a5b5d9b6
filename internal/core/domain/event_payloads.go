package domain

import "time"

// CommentSnapshot matches the API response shape for comments.
type CommentSnapshot struct {
	ID         string `json:"id"`
	TicketID   string `json:"ticketId"`
	UserID     string `json:"userId"`
	Content    string `json:"content"`
	IsInternal bool   `json:"isInternal"`
	CreatedAt  string `json:"createdAt"`
}

// TicketSnapshot matches the API response shape for tickets.
type TicketSnapshot struct {
	ID          string  `json:"id"`
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssignedTo  *string `json:"assignedTo"`
	CreatedBy   string  `json:"createdBy"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// NewCommentSnapshot builds a comment snapshot from a domain comment.
func NewCommentSnapshot(comment *Comment) CommentSnapshot {
	return CommentSnapshot{
		ID:         comment.ID.String(),
		TicketID:   comment.TicketID.String(),
		UserID:     comment.UserID.String(),
		Content:    comment.Content,
		IsInternal: comment.IsInternal,
		CreatedAt:  comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewTicketSnapshot builds a ticket snapshot from a domain ticket.
func NewTicketSnapshot(ticket *Ticket) TicketSnapshot {
	var assignedTo *string
	if ticket.AssignedTo != nil {
		value := ticket.AssignedTo.String()
		assignedTo = &value
	}

	return TicketSnapshot{
		ID:          ticket.ID.String(),
		Subject:     ticket.Subject,
		Description: ticket.Description,
		Status:      string(ticket.Status),
		Priority:    string(ticket.Priority),
		AssignedTo:  assignedTo,
		CreatedBy:   ticket.CreatedBy.String(),
		CreatedAt:   ticket.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   ticket.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
