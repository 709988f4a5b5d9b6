package http

import (
	"time"

	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// UserSummaryDTO represents a lightweight user reference in responses.
type UserSummaryDTO struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func toUserSummaryDTO(user *domain.User) UserSummaryDTO {
	return UserSummaryDTO{
		ID:       user.ID.String(),
		FullName: user.FullName,
		Email:    user.Email,
		Role:     string(user.Role),
	}
}

// TokenResponse is returned by every endpoint that mints a token.
type TokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expiresAt"`
	User      UserSummaryDTO `json:"user"`
}

func toTokenResponse(token string, claims *auth.Claims, user *domain.User) TokenResponse {
	return TokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserSummaryDTO(user),
	}
}
