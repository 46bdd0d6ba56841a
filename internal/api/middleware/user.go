// internal/api/middleware/user.go
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/core"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns middleware that requires a valid X-User-ID header and
// stores the parsed UUID on the request context. The gateway in front of
// this service authenticates the user; this service only scopes by id.
func UserID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User-ID")
			if raw == "" {
				response.Error(w, http.StatusUnauthorized, core.ErrUserRequired)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, core.WrapError(core.ErrUserRequired, err))
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user id stored by the UserID middleware.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
