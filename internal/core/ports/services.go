package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID   uuid.UUID
	Role domain.Role
}

// EventPublisher fans a real-time event out to connected clients. It never blocks.
type EventPublisher interface {
	Publish(ev domain.Event)
}

// AuthService defines the port for authentication business logic.
type AuthService interface {
	Register(ctx context.Context, params domain.UserRegistrationParams) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	// RevokeTokens invalidates every token issued to the user so far and
	// returns the user with the new epoch.
	RevokeTokens(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// AuthorizationService defines the port for checking role permissions.
type AuthorizationService interface {
	Can(role domain.Role, permission string) bool
	Permissions(role domain.Role) []string
}

// CreateTicketParams defines the required input for creating a new ticket.
type CreateTicketParams struct {
	Actor       Actor
	Subject     string
	Description string
	Priority    domain.TicketPriority
}

// UpdateTicketParams defines the input for patching a ticket.
type UpdateTicketParams struct {
	Actor    Actor
	TicketID uuid.UUID
	Patch    domain.TicketPatch
}

// CreateCommentParams defines the input for creating a comment.
type CreateCommentParams struct {
	Actor      Actor
	TicketID   uuid.UUID
	Content    string
	IsInternal bool
}

// GetCommentsParams defines the input for retrieving comments.
type GetCommentsParams struct {
	Actor    Actor
	TicketID uuid.UUID
}

// TicketService defines the core business operations for managing tickets.
type TicketService interface {
	CreateTicket(ctx context.Context, params CreateTicketParams) (*domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID uuid.UUID, actor Actor) (*domain.Ticket, error)
	UpdateTicket(ctx context.Context, params UpdateTicketParams) (*domain.Ticket, error)
}

// CommentService defines the port for comment-related business logic.
type CommentService interface {
	CreateComment(ctx context.Context, params CreateCommentParams) (*domain.Comment, error)
	GetCommentsForTicket(ctx context.Context, params GetCommentsParams) ([]*domain.Comment, error)
}
