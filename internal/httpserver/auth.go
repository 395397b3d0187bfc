package httpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// End-user authentication (sessions, passwords, SSO) lives in a collaborator
// service and is out of scope here. RequireUser trusts an upstream gateway
// to have already authenticated the caller and to forward the resolved
// identity in X-User-ID, the same "terminate auth at the edge, forward a
// trusted header" shape the teacher falls back to for its dev/API-key path.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID header")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid X-User-ID header")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type userIDContextKey string

const userIDKey userIDContextKey = "user_id"

// UserFromContext returns the authenticated user ID set by RequireUser.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
