package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
)

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(id uuid.UUID) {
	r.ids = append(r.ids, id)
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		// User doesn't exist yet
		mockUserRepo.On("GetByEmail", ctx, "newuser@example.com").
			Return(nil, apperrors.ErrUserNotFound)

		mockUserRepo.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
			return u.Email == "newuser@example.com" && u.Role == domain.RoleCustomer && u.IsActive
		})).Return(&domain.User{
			ID:        uuid.New(),
			FullName:  "New User",
			Email:     "newuser@example.com",
			Role:      domain.RoleCustomer,
			IsActive:  true,
			CreatedAt: time.Now(),
		}, nil)

		user, err := svc.Register(ctx, domain.UserRegistrationParams{
			FullName: " New User ",
			Email:    "NewUser@Example.com",
			Password: "Password123",
		})

		require.NoError(t, err)
		assert.Equal(t, "New User", user.FullName)
		assert.Equal(t, "newuser@example.com", user.Email)
		mockUserRepo.AssertExpectations(t)
	})

	t.Run("user already exists", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		mockUserRepo.On("GetByEmail", ctx, "existing@example.com").
			Return(&domain.User{ID: uuid.New(), Email: "existing@example.com"}, nil)

		user, err := svc.Register(ctx, domain.UserRegistrationParams{
			FullName: "User",
			Email:    "existing@example.com",
			Password: "Password123",
		})

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrUserExists)
		mockUserRepo.AssertNotCalled(t, "Create")
	})

	t.Run("repository failure is passed through", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)
		dbErr := errors.New("connection reset")

		mockUserRepo.On("GetByEmail", ctx, "user@example.com").Return(nil, dbErr)

		_, err := svc.Register(ctx, domain.UserRegistrationParams{
			FullName: "User",
			Email:    "user@example.com",
			Password: "Password123",
		})

		assert.ErrorIs(t, err, dbErr)
		mockUserRepo.AssertNotCalled(t, "Create")
	})

	invalid := []struct {
		name   string
		params domain.UserRegistrationParams
	}{
		{"weak password", domain.UserRegistrationParams{FullName: "User", Email: "user@example.com", Password: "weak"}},
		{"invalid email", domain.UserRegistrationParams{FullName: "User", Email: "invalid-email", Password: "Password123"}},
		{"empty full name", domain.UserRegistrationParams{Email: "user@example.com", Password: "Password123"}},
		{"unknown role", domain.UserRegistrationParams{FullName: "User", Email: "user@example.com", Password: "Password123", Role: "root"}},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := mocks.NewMockUserRepository()
			svc := services.NewAuthService(mockUserRepo)

			user, err := svc.Register(ctx, tt.params)

			assert.Nil(t, user)
			var validationErr *apperrors.ValidationErrors
			assert.ErrorAs(t, err, &validationErr)
			mockUserRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
			mockUserRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	hash, err := domain.HashPassword("Password123")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		existingUser := &domain.User{
			ID:           uuid.New(),
			Email:        "user@example.com",
			FullName:     "Test User",
			PasswordHash: hash,
			IsActive:     true,
		}
		mockUserRepo.On("GetByEmail", ctx, "user@example.com").Return(existingUser, nil)

		user, err := svc.Login(ctx, "User@Example.com", "Password123")

		require.NoError(t, err)
		assert.Equal(t, existingUser.ID, user.ID)
	})

	t.Run("user not found", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		mockUserRepo.On("GetByEmail", ctx, "unknown@example.com").
			Return(nil, apperrors.ErrUserNotFound)

		user, err := svc.Login(ctx, "unknown@example.com", "Password123")

		assert.Nil(t, user)
		// Should return generic invalid credentials, not reveal user doesn't exist
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		mockUserRepo.On("GetByEmail", ctx, "user@example.com").
			Return(&domain.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: hash, IsActive: true}, nil)

		user, err := svc.Login(ctx, "user@example.com", "WrongPassword123")

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		mockUserRepo.On("GetByEmail", ctx, "user@example.com").
			Return(&domain.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: hash}, nil)

		user, err := svc.Login(ctx, "user@example.com", "Password123")

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("empty email", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		user, err := svc.Login(ctx, "", "Password123")

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrEmailRequired)
		mockUserRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})

	t.Run("empty password", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		svc := services.NewAuthService(mockUserRepo)

		user, err := svc.Login(ctx, "user@example.com", "")

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrPasswordRequired)
		mockUserRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
	})
}

func TestAuthService_RevokeTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps epoch and invalidates caches", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		cache := &recordingInvalidator{}
		svc := services.NewAuthService(mockUserRepo, cache)

		userID := uuid.New()
		mockUserRepo.On("BumpTokenEpoch", ctx, userID).Return(int64(4), nil)
		mockUserRepo.On("GetByID", ctx, userID).
			Return(&domain.User{ID: userID, Email: "user@example.com", TokenEpoch: 3, IsActive: true}, nil)

		user, err := svc.RevokeTokens(ctx, userID)

		require.NoError(t, err)
		assert.Equal(t, int64(4), user.TokenEpoch)
		assert.Equal(t, []uuid.UUID{userID}, cache.ids)
		mockUserRepo.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		mockUserRepo := mocks.NewMockUserRepository()
		cache := &recordingInvalidator{}
		svc := services.NewAuthService(mockUserRepo, cache)

		userID := uuid.New()
		mockUserRepo.On("BumpTokenEpoch", ctx, userID).Return(int64(0), apperrors.ErrUserNotFound)

		user, err := svc.RevokeTokens(ctx, userID)

		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		assert.Empty(t, cache.ids)
	})
}
