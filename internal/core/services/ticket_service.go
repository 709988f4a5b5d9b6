package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// TicketService implements business logic for ticket management
type TicketService struct {
	ticketRepo ports.TicketRepository
	txManager  ports.TransactionManager
	authzSvc   ports.AuthorizationService
	publisher  ports.EventPublisher
	logger     *slog.Logger
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a new ticket service
func NewTicketService(
	ticketRepo ports.TicketRepository,
	txManager ports.TransactionManager,
	authzSvc ports.AuthorizationService,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) ports.TicketService {
	return &TicketService{
		ticketRepo: ticketRepo,
		txManager:  txManager,
		authzSvc:   authzSvc,
		publisher:  publisher,
		logger:     logger.With("component", "ticket_service"),
	}
}

// CreateTicket handles the use case for submitting a new ticket
func (s *TicketService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	if !s.authzSvc.Can(params.Actor.Role, PermTicketsCreate) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := domain.NewTicket(domain.TicketParams{
		Subject:     params.Subject,
		Description: params.Description,
		Priority:    params.Priority,
		CreatedBy:   params.Actor.ID,
	})
	if err != nil {
		return nil, err
	}

	return s.ticketRepo.Create(ctx, ticket)
}

// GetTicket retrieves a ticket the actor is allowed to see
func (s *TicketService) GetTicket(ctx context.Context, ticketID uuid.UUID, actor ports.Actor) (*domain.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ticket, actor); err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateTicket applies a patch under a row lock and announces the new state
// to connected clients once committed.
func (s *TicketService) UpdateTicket(ctx context.Context, params ports.UpdateTicketParams) (*domain.Ticket, error) {
	if !s.authzSvc.Can(params.Actor.Role, PermTicketsUpdate) {
		return nil, apperrors.ErrForbidden
	}
	triage := params.Patch.Status != nil || params.Patch.Priority != nil || params.Patch.AssignedTo != nil
	if triage && !s.authzSvc.Can(params.Actor.Role, PermTicketsTriage) {
		return nil, apperrors.ErrForbidden
	}

	var updated *domain.Ticket
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.ticketRepo.GetByIDForUpdate(ctx, params.TicketID)
		if err != nil {
			return err
		}
		if err := s.checkVisible(ticket, params.Actor); err != nil {
			return err
		}
		if err := ticket.Apply(params.Patch); err != nil {
			return err
		}
		updated, err = s.ticketRepo.Update(ctx, ticket)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, updated)
	return updated, nil
}

// checkVisible hides other people's tickets from customers as not found.
func (s *TicketService) checkVisible(ticket *domain.Ticket, actor ports.Actor) error {
	if ticket.CreatedBy == actor.ID || s.authzSvc.Can(actor.Role, PermTicketsReadAll) {
		return nil
	}
	return apperrors.ErrTicketNotFound
}

func (s *TicketService) publishUpdate(ctx context.Context, ticket *domain.Ticket) {
	ev, err := domain.NewTicketUpdate(ticket.ID, domain.NewTicketSnapshot(ticket))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build ticket update event", "ticket_id", ticket.ID, "error", err)
		return
	}
	s.publisher.Publish(ev)
}
