package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

const (
	MaxSubjectLength     = 255
	MaxDescriptionLength = 10000
	MaxCommentBodyLength = 5000
)

// TicketStatus represents the possible states of a ticket.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "OPEN"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusResolved   TicketStatus = "RESOLVED"
	StatusClosed     TicketStatus = "CLOSED"
)

func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// TicketPriority represents the urgency of a ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

func (p TicketPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is the record whose mutations are announced over the event hub.
type Ticket struct {
	ID          uuid.UUID
	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	AssignedTo  *uuid.UUID
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TicketParams holds the caller-supplied fields for a new ticket.
type TicketParams struct {
	Subject     string
	Description string
	Priority    TicketPriority
	CreatedBy   uuid.UUID
}

// NewTicket builds an OPEN ticket from validated params.
func NewTicket(params TicketParams) (*Ticket, error) {
	if params.Subject == "" {
		return nil, apperrors.ErrSubjectRequired
	}
	if len(params.Subject) > MaxSubjectLength {
		return nil, apperrors.ErrSubjectTooLong
	}
	if len(params.Description) > MaxDescriptionLength {
		return nil, apperrors.ErrDescriptionTooLong
	}
	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		return nil, apperrors.ErrInvalidPriority
	}

	now := time.Now().UTC()
	return &Ticket{
		ID:          uuid.New(),
		Subject:     params.Subject,
		Description: params.Description,
		Status:      StatusOpen,
		Priority:    priority,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// TicketPatch carries optional field updates. Nil fields are left unchanged.
type TicketPatch struct {
	Subject     *string
	Description *string
	Status      *TicketStatus
	Priority    *TicketPriority
	AssignedTo  *uuid.UUID
}

// Apply validates and applies the patch, bumping UpdatedAt.
func (t *Ticket) Apply(p TicketPatch) error {
	if p.Subject != nil {
		if *p.Subject == "" {
			return apperrors.ErrSubjectRequired
		}
		if len(*p.Subject) > MaxSubjectLength {
			return apperrors.ErrSubjectTooLong
		}
		t.Subject = *p.Subject
	}
	if p.Description != nil {
		if len(*p.Description) > MaxDescriptionLength {
			return apperrors.ErrDescriptionTooLong
		}
		t.Description = *p.Description
	}
	if p.Status != nil {
		if !p.Status.IsValid() {
			return apperrors.ErrInvalidStatus
		}
		t.Status = *p.Status
	}
	if p.Priority != nil {
		if !p.Priority.IsValid() {
			return apperrors.ErrInvalidPriority
		}
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		assignee := *p.AssignedTo
		t.AssignedTo = &assignee
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Comment is a note attached to a ticket.
type Comment struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	UserID     uuid.UUID
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}

// NewTicketComment validates and builds a comment.
func NewTicketComment(ticketID, userID uuid.UUID, content string, isInternal bool) (*Comment, error) {
	if content == "" {
		return nil, apperrors.ErrCommentBodyRequired
	}
	if len(content) > MaxCommentBodyLength {
		return nil, apperrors.ErrCommentBodyTooLong
	}
	return &Comment{
		ID:         uuid.New(),
		TicketID:   ticketID,
		UserID:     userID,
		Content:    content,
		IsInternal: isInternal,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
