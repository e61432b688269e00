package handler

import (
	"context"
	"net/http"
	"strings"

	"campus-auth-service/internal/session"
)

type contextKey string

const sessionContextKey contextKey = "session_claims"

// RequireSession validates the bearer session token and, when roles are
// given, requires one of them.
func RequireSession(sessions *session.Issuer, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse("authentication required"))
				return
			}

			claims, err := sessions.Parse(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse("invalid or expired session"))
				return
			}

			if len(allowed) > 0 && !allowed[claims.Role] {
				writeJSON(w, http.StatusForbidden, errorResponse("insufficient privileges"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the claims stored by RequireSession.
func SessionFromContext(ctx context.Context) *session.Claims {
	claims, _ := ctx.Value(sessionContextKey).(*session.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
