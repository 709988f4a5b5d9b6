package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
)

// testEnv wires the REST handlers behind the real identity gate. The gate
// resolves users through a mocked repository.
type testEnv struct {
	router   *chi.Mux
	tokens   *auth.TokenManager
	users    *mocks.MockUserRepository
	authSvc  *mocks.MockAuthService
	tickets  *mocks.MockTicketService
	comments *mocks.MockCommentService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		tokens:   tokens,
		users:    mocks.NewMockUserRepository(),
		authSvc:  mocks.NewMockAuthService(),
		tickets:  mocks.NewMockTicketService(),
		comments: mocks.NewMockCommentService(),
	}

	logger := discardLogger()
	errorHandler := NewErrorHandler(logger)
	gate := auth.NewGate(tokens, env.users, auth.WithGateLogger(logger))
	authenticate := mw.Authenticate(gate, false)

	authHandler := NewAuthHandler(env.authSvc, tokens, errorHandler, logger)
	commentHandler := NewCommentHandler(env.comments, errorHandler, logger)
	ticketHandler := NewTicketHandler(env.tickets, commentHandler, errorHandler, logger)
	meHandler := NewMeHandler(services.NewAuthorizationService(), errorHandler, logger)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		authHandler.RegisterRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			authHandler.RegisterProtectedRoutes(r)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Route("/tickets", ticketHandler.RegisterRoutes)
		r.Route("/me", meHandler.RegisterRoutes)
	})
	env.router = r

	return env
}

// signIn registers an active user with the gate's lookup and returns a
// token for it.
func (e *testEnv) signIn(t *testing.T, role domain.Role) (*domain.User, string) {
	t.Helper()
	user := &domain.User{
		ID:       uuid.New(),
		FullName: "Test User",
		Email:    uuid.NewString() + "@example.com",
		Role:     role,
		IsActive: true,
	}
	e.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	token, _, err := e.tokens.Issue(user.ID, user.Email, user.Role, user.TokenEpoch)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
}
