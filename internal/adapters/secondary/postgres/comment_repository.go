package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const commentColumns = `id, ticket_id, user_id, content, is_internal, created_at`

// CommentRepository handles database operations for comments.
type CommentRepository struct {
	pool *pgxpool.Pool
}

// Ensure implementation matches the interface.
var _ ports.CommentRepository = (*CommentRepository)(nil)

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.TicketID, &c.UserID, &c.Content, &c.IsInternal, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create persists a new comment to the database.
func (r *CommentRepository) Create(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	query := `
		INSERT INTO comments (id, ticket_id, user_id, content, is_internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + commentColumns

	return scanComment(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		comment.ID, comment.TicketID, comment.UserID, comment.Content, comment.IsInternal, comment.CreatedAt))
}

// ListByTicketID retrieves the comments of a ticket, oldest first. Internal
// notes are skipped unless includeInternal is set.
func (r *CommentRepository) ListByTicketID(ctx context.Context, ticketID uuid.UUID, includeInternal bool) ([]*domain.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE ticket_id = $1 AND ($2 OR NOT is_internal)
		ORDER BY created_at ASC, id ASC`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketID, includeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]*domain.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}
