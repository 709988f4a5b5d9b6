package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const ticketColumns = `id, subject, description, status, priority, assigned_to, created_by, created_at, updated_at`

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// scanTicket converts a database row to a core domain model.
func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t                domain.Ticket
		description      pgtype.Text
		status, priority string
		assignedTo       pgtype.UUID
	)
	err := row.Scan(&t.ID, &t.Subject, &description, &status, &priority, &assignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}

	t.Description = description.String
	t.Status = domain.TicketStatus(status)
	t.Priority = domain.TicketPriority(priority)
	if assignedTo.Valid {
		assignee := uuid.UUID(assignedTo.Bytes)
		t.AssignedTo = &assignee
	}
	return &t, nil
}

func nullableUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// Create persists a new ticket entity.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	query := `
		INSERT INTO tickets (id, subject, description, status, priority, assigned_to, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + ticketColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		ticket.Subject,
		pgtype.Text{String: ticket.Description, Valid: ticket.Description != ""},
		string(ticket.Status),
		string(ticket.Priority),
		nullableUUID(ticket.AssignedTo),
		ticket.CreatedBy,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return scanTicket(row)
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByIDForUpdate retrieves a ticket and locks its row until the surrounding
// transaction ends.
func (r *TicketRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	return scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
}

// Update persists changes to an existing ticket entity.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	query := `
		UPDATE tickets
		SET subject = $2, description = $3, status = $4, priority = $5, assigned_to = $6, updated_at = $7
		WHERE id = $1
		RETURNING ` + ticketColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		ticket.Subject,
		pgtype.Text{String: ticket.Description, Valid: ticket.Description != ""},
		string(ticket.Status),
		string(ticket.Priority),
		nullableUUID(ticket.AssignedTo),
		ticket.UpdatedAt,
	)
	return scanTicket(row)
}
