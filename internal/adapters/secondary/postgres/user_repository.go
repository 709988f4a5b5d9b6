package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

const uniqueViolation = "23505"

const userColumns = `id, full_name, email, password_hash, role, is_active, token_epoch, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.TokenEpoch, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, full_name, email, password_hash, role, is_active, token_epoch)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		user.ID, user.FullName, user.Email, user.PasswordHash, string(user.Role), user.IsActive, user.TokenEpoch)

	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperrors.ErrUserExists
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(GetDBTX(ctx, r.pool).QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
}

// BumpTokenEpoch increments the user's token epoch, invalidating every token
// issued under the previous value, and returns the new epoch.
func (r *UserRepository) BumpTokenEpoch(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `UPDATE users SET token_epoch = token_epoch + 1 WHERE id = $1 RETURNING token_epoch`

	var epoch int64
	if err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, id).Scan(&epoch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrUserNotFound
		}
		return 0, err
	}
	return epoch, nil
}
