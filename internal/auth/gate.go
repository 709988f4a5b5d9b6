package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

var (
	// ErrUnauthenticated covers every credential failure. Callers see one
	// outcome regardless of which check failed.
	ErrUnauthenticated = fmt.Errorf("%w: unauthenticated", apperrors.ErrUnauthorized)

	// ErrLookupUnavailable means the user directory could not be consulted.
	ErrLookupUnavailable = fmt.Errorf("%w: user lookup unavailable", apperrors.ErrServiceUnavailable)
)

// Rejection reasons reported to the reject hook.
const (
	ReasonMissingCredential = "missing_credential"
	ReasonMalformed         = "malformed"
	ReasonBadSignature      = "bad_signature"
	ReasonExpired           = "expired"
	ReasonUnknownUser       = "unknown_user"
	ReasonInactiveUser      = "inactive_user"
	ReasonRevoked           = "revoked"
	ReasonLookupFailed      = "lookup_failed"
)

// TokenVerifier verifies a compact token string.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// UserLookup resolves the current state of a user. It returns
// apperrors.ErrUserNotFound for unknown ids.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Gate authenticates requests and connection upgrades.
type Gate struct {
	tokens   TokenVerifier
	users    UserLookup
	logger   *slog.Logger
	onReject func(reason string)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithRejectHook registers a callback invoked with the reason of each rejection.
func WithRejectHook(fn func(reason string)) GateOption {
	return func(g *Gate) { g.onReject = fn }
}

// WithGateLogger sets the logger used for rejection diagnostics.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

func NewGate(tokens TokenVerifier, users UserLookup, opts ...GateOption) *Gate {
	g := &Gate{
		tokens: tokens,
		users:  users,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate validates an Authorization header value.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (*Claims, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, g.reject(ctx, ReasonMissingCredential, nil)
	}
	return g.AuthenticateToken(ctx, token)
}

// AuthenticateToken validates a bare token and checks that its subject is
// still an active user whose token epoch matches the claim.
func (g *Gate) AuthenticateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, g.reject(ctx, ReasonMissingCredential, nil)
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			return nil, g.reject(ctx, ReasonExpired, err)
		case errors.Is(err, ErrInvalidSignature):
			return nil, g.reject(ctx, ReasonBadSignature, err)
		default:
			return nil, g.reject(ctx, ReasonMalformed, err)
		}
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, g.reject(ctx, ReasonMalformed, err)
	}

	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, g.reject(ctx, ReasonUnknownUser, nil)
		}
		g.record(ReasonLookupFailed)
		g.logger.ErrorContext(ctx, "user lookup failed during authentication",
			"user_id", userID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}

	if !user.IsActive {
		return nil, g.reject(ctx, ReasonInactiveUser, nil)
	}
	if user.TokenEpoch != claims.Epoch {
		return nil, g.reject(ctx, ReasonRevoked, nil)
	}

	return claims, nil
}

func (g *Gate) reject(ctx context.Context, reason string, cause error) error {
	g.record(reason)
	attrs := []any{"reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	g.logger.DebugContext(ctx, "authentication rejected", attrs...)
	return ErrUnauthenticated
}

func (g *Gate) record(reason string) {
	if g.onReject != nil {
		g.onReject(reason)
	}
}
