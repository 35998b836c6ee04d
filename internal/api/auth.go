package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/FocuswithJustin/jatspkg/internal/logging"
)

// MinAPIKeyLength is the shortest accepted API key.
const MinAPIKeyLength = 16

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// AuthMiddleware requires a matching X-API-Key header on every request
// except health checks and content-addressed blob reads. An empty key
// disables authentication.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || strings.HasPrefix(r.URL.Path, blobPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			logging.SecurityEvent("unauthorized_request", "auth", "path", r.URL.Path, "reason", "missing API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing X-API-Key header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			logging.SecurityEvent("unauthorized_request", "auth", "path", r.URL.Path, "reason", "invalid API key")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateAPIKey rejects keys too short to be safe. An empty key is valid
// and means authentication is off.
func ValidateAPIKey(key string) error {
	if key != "" && len(key) < MinAPIKeyLength {
		return fmt.Errorf("API key must be at least %d characters (got %d)", MinAPIKeyLength, len(key))
	}
	return nil
}
