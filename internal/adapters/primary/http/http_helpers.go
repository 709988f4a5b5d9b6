package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// getClaims extracts the gate's claims from the request context, writing a
// 401 when the route was mounted without the Authenticate middleware.
func getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}

// getActor resolves the authenticated caller as a use-case actor.
func getActor(w http.ResponseWriter, r *http.Request) (ports.Actor, bool) {
	claims, ok := getClaims(w, r)
	if !ok {
		return ports.Actor{}, false
	}
	userID, err := claims.UserID()
	if err != nil {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return ports.Actor{}, false
	}
	return ports.Actor{ID: userID, Role: claims.Role}, true
}

// parseUUIDParam reads a UUID chi URL parameter.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequestError(err, "Invalid "+name)
	}
	return id, nil
}
