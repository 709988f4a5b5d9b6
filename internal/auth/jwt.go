package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// DefaultTokenTTL is the lifetime of an issued token when none is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrMissingSecret    = errors.New("token secret is not configured")
	ErrSigning          = errors.New("failed to sign token")
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Claims defines the identity data carried by an access token.
// Subject holds the user id; Epoch must match the user's current token epoch.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	Epoch int64       `json:"epoch"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrMalformed)
	}
	return id, nil
}

// TokenManager issues and verifies HS256 identity tokens.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
	leeway    time.Duration
	now       func() time.Time
	parser    *jwt.Parser
}

// Option configures a TokenManager.
type Option func(*TokenManager)

// WithLeeway tolerates clock skew when checking expiry. Defaults to zero.
func WithLeeway(d time.Duration) Option {
	return func(tm *TokenManager) { tm.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) { tm.now = now }
}

// NewTokenManager builds a token manager. An empty secret is a startup error.
func NewTokenManager(secret string, ttl time.Duration, opts ...Option) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	tm := &TokenManager{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}

	tm.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(tm.leeway),
		jwt.WithTimeFunc(tm.now),
		jwt.WithStrictDecoding(),
	)
	return tm, nil
}

// TTL returns the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a token for the given user, valid from now until now+TTL.
func (tm *TokenManager) Issue(userID uuid.UUID, email string, role domain.Role, epoch int64) (string, *Claims, error) {
	now := tm.now()
	claims := &Claims{
		Email: email,
		Role:  role,
		Epoch: epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, claims, nil
}

// Verify checks the signature first and only then the claims, so any change to
// the signed bytes reports ErrInvalidSignature rather than a parse error.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}

	sig, err := tm.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, tm.secretKey); err != nil {
		return nil, ErrInvalidSignature
	}

	claims := &Claims{}
	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secretKey, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, ErrInvalidSignature
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !token.Valid {
		return nil, ErrMalformed
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
