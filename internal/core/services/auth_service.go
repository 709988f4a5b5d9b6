package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// EpochListener is told when a user's token epoch changes, so caches can drop
// their copy of the user.
type EpochListener interface {
	Invalidate(userID uuid.UUID)
}

// AuthService implements authentication business logic
type AuthService struct {
	userRepo  ports.UserRepository
	listeners []EpochListener
}

var _ ports.AuthService = (*AuthService)(nil)

// NewAuthService creates a new authentication service
func NewAuthService(userRepo ports.UserRepository, listeners ...EpochListener) ports.AuthService {
	return &AuthService{
		userRepo:  userRepo,
		listeners: listeners,
	}
}

// Register creates a new user account with validated credentials
func (s *AuthService) Register(ctx context.Context, params domain.UserRegistrationParams) (*domain.User, error) {
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.FullName = strings.TrimSpace(params.FullName)

	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Check if user already exists
	_, err := s.userRepo.GetByEmail(ctx, params.Email)
	if err == nil {
		return nil, apperrors.ErrUserExists
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}

	user, err := domain.NewUser(params)
	if err != nil {
		return nil, err
	}

	return s.userRepo.Create(ctx, user)
}

// Login authenticates a user with email and password
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.ErrEmailRequired
	}
	if password == "" {
		return nil, apperrors.ErrPasswordRequired
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			// Don't reveal whether email exists
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.CheckPassword(password) || !user.IsActive {
		return nil, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

// RevokeTokens bumps the user's token epoch. Tokens carrying an older epoch
// fail the identity gate from then on.
func (s *AuthService) RevokeTokens(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	epoch, err := s.userRepo.BumpTokenEpoch(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, l := range s.listeners {
		l.Invalidate(userID)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.TokenEpoch = epoch
	return user, nil
}
