package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// CommentService implements the business logic for comments.
type CommentService struct {
	commentRepo ports.CommentRepository
	ticketSvc   ports.TicketService
	authzSvc    ports.AuthorizationService
	publisher   ports.EventPublisher
	logger      *slog.Logger
}

// Ensure implementation matches the interface.
var _ ports.CommentService = (*CommentService)(nil)

// NewCommentService creates a new service for comment logic.
func NewCommentService(
	commentRepo ports.CommentRepository,
	ticketSvc ports.TicketService,
	authzSvc ports.AuthorizationService,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) ports.CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		ticketSvc:   ticketSvc,
		authzSvc:    authzSvc,
		publisher:   publisher,
		logger:      logger.With("component", "comment_service"),
	}
}

// CreateComment adds a comment to a ticket the actor can see and announces
// it to connected clients. Internal notes are stored but never broadcast.
func (s *CommentService) CreateComment(ctx context.Context, params ports.CreateCommentParams) (*domain.Comment, error) {
	if !s.authzSvc.Can(params.Actor.Role, PermCommentsCreate) {
		return nil, apperrors.ErrForbidden
	}
	if params.IsInternal && !s.authzSvc.Can(params.Actor.Role, PermCommentsInternal) {
		return nil, apperrors.ErrForbidden
	}

	// GetTicket applies the visibility rules
	if _, err := s.ticketSvc.GetTicket(ctx, params.TicketID, params.Actor); err != nil {
		return nil, err
	}

	comment, err := domain.NewTicketComment(params.TicketID, params.Actor.ID, params.Content, params.IsInternal)
	if err != nil {
		return nil, err
	}

	created, err := s.commentRepo.Create(ctx, comment)
	if err != nil {
		return nil, err
	}

	if !created.IsInternal {
		s.publishComment(ctx, created)
	}
	return created, nil
}

// GetCommentsForTicket retrieves the comments of a ticket. Internal notes are
// only returned to roles allowed to write them.
func (s *CommentService) GetCommentsForTicket(ctx context.Context, params ports.GetCommentsParams) ([]*domain.Comment, error) {
	if _, err := s.ticketSvc.GetTicket(ctx, params.TicketID, params.Actor); err != nil {
		return nil, err
	}

	includeInternal := s.authzSvc.Can(params.Actor.Role, PermCommentsInternal)
	return s.commentRepo.ListByTicketID(ctx, params.TicketID, includeInternal)
}

func (s *CommentService) publishComment(ctx context.Context, comment *domain.Comment) {
	ev, err := domain.NewCommentEvent(comment.TicketID, domain.NewCommentSnapshot(comment))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build comment event", "comment_id", comment.ID, "error", err)
		return
	}
	s.publisher.Publish(ev)
}
