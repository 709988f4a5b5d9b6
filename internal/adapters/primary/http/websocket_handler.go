package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	wsAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/websocket"
)

// SessionServer runs a WebSocket session until it ends. Satisfied by
// *websocket.Manager.
type SessionServer interface {
	Serve(ctx context.Context, conn *websocket.Conn, userID uuid.UUID) error
}

// WebSocketHandler upgrades authenticated requests and hands the connection
// to the session manager. It must be mounted behind the Authenticate
// middleware so the identity gate runs before the upgrade.
type WebSocketHandler struct {
	sessions SessionServer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	IsDevelopment   bool
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessions SessionServer, cfg WebSocketConfig, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		sessions: sessions,
		logger:   logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg WebSocketConfig) func(r *http.Request) bool {
	allowedOrigins := cfg.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:]
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP handles GET /ws. The session runs on the request goroutine and
// the call returns once the session has closed.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	h.logger.InfoContext(r.Context(), "websocket connection established",
		"remote_addr", r.RemoteAddr,
		"role", actor.Role,
	)

	err = h.sessions.Serve(r.Context(), conn, actor.ID)
	switch {
	case err == nil:
	case errors.Is(err, wsAdapter.ErrManagerClosed):
		h.logger.InfoContext(r.Context(), "websocket connection refused during shutdown")
	default:
		h.logger.WarnContext(r.Context(), "websocket session ended with error", "error", err)
	}
}
