// Package middleware provides the gateway's API key and CORS middleware.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
)

type contextKey struct{}

// Auth requires a valid API key on every request that can change state.
// Reads stay open so search needs no credentials. An empty keyring
// disables the check.
func Auth(ring *apikey.Keyring) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if ring.Empty() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := ring.Validate(key)
			if err != nil {
				logger.FromContext(r.Context()).Warn("rejected api key", "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the key validated for this request, if any.
func GetKeyInfo(ctx context.Context) (apikey.KeyInfo, bool) {
	info, ok := ctx.Value(contextKey{}).(apikey.KeyInfo)
	return info, ok
}

// extractAPIKey reads the key from Authorization: Bearer, then X-API-Key.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "unauthorized"})
}
