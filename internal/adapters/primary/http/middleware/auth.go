package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// UserClaimsKey is the key used to store user claims in the request context.
const UserClaimsKey contextKey = "userClaims"

// QueryTokenParam is the query parameter accepted as a token fallback for
// clients that cannot set headers on a WebSocket handshake.
const QueryTokenParam = "access_token"

// Authenticator is satisfied by *auth.Gate.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*auth.Claims, error)
	AuthenticateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// Authenticate runs the identity gate on every request. When allowQueryToken
// is set, a request without an Authorization header may carry the token in
// the access_token query parameter.
func Authenticate(gate Authenticator, allowQueryToken bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticateRequest(r, gate, allowQueryToken)
			if err != nil {
				if errors.Is(err, auth.ErrLookupUnavailable) {
					w.Header().Set("Retry-After", "5")
					writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable", "SERVICE_UNAVAILABLE")
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="service-desk"`)
				writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}

			// Add the claims to the context for downstream handlers to use.
			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = logging.WithUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticateRequest(r *http.Request, gate Authenticator, allowQueryToken bool) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" && allowQueryToken {
		if token := r.URL.Query().Get(QueryTokenParam); token != "" {
			return gate.AuthenticateToken(r.Context(), token)
		}
	}
	return gate.Authenticate(r.Context(), header)
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}
