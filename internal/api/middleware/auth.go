// internal/api/middleware/auth.go

// Package middleware carries the request guards applied to the API surface:
// API key auth and user scoping.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/newthinker/brokerhub/internal/api/response"
	"github.com/newthinker/brokerhub/internal/core"
)

// APIKeyAuth returns middleware that requires a matching X-API-Key header.
// An empty configured key disables the check, for local development only.
// The comparison is constant-time.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, core.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
