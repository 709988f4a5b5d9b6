package domain_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name        string
		password    string
		expectValid bool
	}{
		// Valid passwords
		{"valid password", "Password1", true},
		{"valid with special char", "Password1!", true},
		{"valid longer password", "MySecurePassword123", true},

		// Too short
		{"too short", "Pass1", false},
		{"7 chars", "Passwo1", false},

		// Missing uppercase
		{"no uppercase", "password1", false},

		// Missing lowercase
		{"no lowercase", "PASSWORD1", false},

		// Missing number
		{"no number", "Password", false},

		// Too long
		{"too long", strings.Repeat("P", 70) + "abc", false},

		// Edge cases
		{"exactly 8 chars valid", "Passwor1", true},
		{"exactly 72 chars valid", strings.Repeat("P", 35) + strings.Repeat("a", 35) + "12", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := domain.ValidatePassword(tt.password)
			if tt.expectValid {
				assert.Empty(t, errors, "expected password to be valid, got errors: %v", errors)
			} else {
				assert.NotEmpty(t, errors, "expected password to be invalid")
			}
		})
	}
}

func TestRole_IsValid(t *testing.T) {
	assert.True(t, domain.RoleCustomer.IsValid())
	assert.True(t, domain.RoleAgent.IsValid())
	assert.True(t, domain.RoleAdmin.IsValid())
	assert.False(t, domain.Role("").IsValid())
	assert.False(t, domain.Role("root").IsValid())
}

func TestHashPassword(t *testing.T) {
	t.Run("valid password", func(t *testing.T) {
		hash, err := domain.HashPassword("Password1")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "Password1", hash) // Should be hashed
	})

	t.Run("weak password fails", func(t *testing.T) {
		hash, err := domain.HashPassword("weak")
		assert.Error(t, err)
		assert.Equal(t, apperrors.ErrPasswordTooWeak, err)
		assert.Empty(t, hash)
	})
}

func TestUser_CheckPassword(t *testing.T) {
	password := "Password1"
	hash, err := domain.HashPassword(password)
	require.NoError(t, err)

	user := &domain.User{
		ID:           uuid.New(),
		PasswordHash: hash,
	}

	t.Run("correct password", func(t *testing.T) {
		assert.True(t, user.CheckPassword(password))
	})

	t.Run("incorrect password", func(t *testing.T) {
		assert.False(t, user.CheckPassword("WrongPassword1"))
	})

	t.Run("empty password", func(t *testing.T) {
		assert.False(t, user.CheckPassword(""))
	})
}

func TestUserRegistrationParams_Validate(t *testing.T) {
	tests := []struct {
		name        string
		params      domain.UserRegistrationParams
		expectError bool
		errorFields []string
	}{
		{
			name: "valid params",
			params: domain.UserRegistrationParams{
				FullName: "John Doe",
				Email:    "john@example.com",
				Password: "Password1",
			},
			expectError: false,
		},
		{
			name: "empty full name",
			params: domain.UserRegistrationParams{
				FullName: "",
				Email:    "john@example.com",
				Password: "Password1",
			},
			expectError: true,
			errorFields: []string{"fullName"},
		},
		{
			name: "full name too long",
			params: domain.UserRegistrationParams{
				FullName: strings.Repeat("a", 256),
				Email:    "john@example.com",
				Password: "Password1",
			},
			expectError: true,
			errorFields: []string{"fullName"},
		},
		{
			name: "empty email",
			params: domain.UserRegistrationParams{
				FullName: "John Doe",
				Email:    "",
				Password: "Password1",
			},
			expectError: true,
			errorFields: []string{"email"},
		},
		{
			name: "invalid email format",
			params: domain.UserRegistrationParams{
				FullName: "John Doe",
				Email:    "not-an-email",
				Password: "Password1",
			},
			expectError: true,
			errorFields: []string{"email"},
		},
		{
			name: "weak password",
			params: domain.UserRegistrationParams{
				FullName: "John Doe",
				Email:    "john@example.com",
				Password: "weak",
			},
			expectError: true,
			errorFields: []string{"password"},
		},
		{
			name: "multiple errors",
			params: domain.UserRegistrationParams{
				FullName: "",
				Email:    "invalid",
				Password: "weak",
			},
			expectError: true,
			errorFields: []string{"fullName", "email", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()

			if tt.expectError {
				require.Error(t, err)

				var validationErr *apperrors.ValidationErrors
				if assert.ErrorAs(t, err, &validationErr) {
					for _, field := range tt.errorFields {
						assert.Contains(t, validationErr.Errors, field,
							"expected error for field %q", field)
					}
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewUser(t *testing.T) {
	t.Run("valid user creation defaults to customer", func(t *testing.T) {
		params := domain.UserRegistrationParams{
			FullName: "John Doe",
			Email:    "john@example.com",
			Password: "Password1",
		}

		user, err := domain.NewUser(params)
		require.NoError(t, err)
		require.NotNil(t, user)

		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, params.FullName, user.FullName)
		assert.Equal(t, params.Email, user.Email)
		assert.Equal(t, domain.RoleCustomer, user.Role)
		assert.True(t, user.IsActive)
		assert.Zero(t, user.TokenEpoch)
		assert.NotEmpty(t, user.PasswordHash)
		assert.NotEqual(t, params.Password, user.PasswordHash)
		assert.False(t, user.CreatedAt.IsZero())
	})

	t.Run("explicit role is kept", func(t *testing.T) {
		user, err := domain.NewUser(domain.UserRegistrationParams{
			FullName: "Agent Smith",
			Email:    "agent@example.com",
			Password: "Password1",
			Role:     domain.RoleAgent,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAgent, user.Role)
	})

	t.Run("invalid params", func(t *testing.T) {
		params := domain.UserRegistrationParams{
			FullName: "",
			Email:    "invalid",
			Password: "weak",
			Role:     "superuser",
		}

		user, err := domain.NewUser(params)
		require.Error(t, err)
		assert.Nil(t, user)

		var validationErr *apperrors.ValidationErrors
		require.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Errors, "role")
	})
}
