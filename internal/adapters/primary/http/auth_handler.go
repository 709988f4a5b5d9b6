package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// TokenIssuer mints identity tokens. Satisfied by *auth.TokenManager.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string, role domain.Role, epoch int64) (string, *auth.Claims, error)
}

// AuthHandler handles registration, login and token revocation.
type AuthHandler struct {
	authService  ports.AuthService
	tokens       TokenIssuer
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService ports.AuthService,
	tokens TokenIssuer,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokens:       tokens,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "auth"),
	}
}

// RegisterRoutes registers the public auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
}

// RegisterProtectedRoutes registers endpoints that need an authenticated caller.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/revoke", h.HandleRevoke)
}

// --- Request DTOs ---

// RegisterRequest defines the expected JSON body for registration
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the register request
func (r *RegisterRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("fullName", r.FullName).
		MaxLength("fullName", r.FullName, domain.MaxFullNameLength)
	v.Required("email", r.Email).
		Email("email", r.Email)
	v.Required("password", r.Password)

	return v.Err()
}

// LoginRequest defines the expected JSON body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the login request
func (r *LoginRequest) Validate() error {
	v := validation.NewValidator()
	v.Required("email", r.Email)
	v.Required("password", r.Password)
	return v.Err()
}

// --- Handlers ---

// HandleRegister handles POST /auth/register. Self-registration always
// creates a customer account.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[RegisterRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	user, err := h.authService.Register(r.Context(), domain.UserRegistrationParams{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.RoleCustomer,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	h.writeToken(w, r, http.StatusCreated, user)
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[LoginRequest](w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.writeToken(w, r, http.StatusOK, user)
}

// HandleRevoke handles POST /auth/revoke. Every token the caller holds stops
// working, and a fresh token under the new epoch is returned.
func (h *AuthHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(w, r)
	if !ok {
		return
	}

	user, err := h.authService.RevokeTokens(r.Context(), actor.ID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "tokens revoked", "user_id", user.ID, "epoch", user.TokenEpoch)
	h.writeToken(w, r, http.StatusOK, user)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, r *http.Request, status int, user *domain.User) {
	token, claims, err := h.tokens.Issue(user.ID, user.Email, user.Role, user.TokenEpoch)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, status, toTokenResponse(token, claims, user))
}
