package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// AdminAuth guards the admin settings routes with a static bearer token.
type AdminAuth struct {
	token  string
	logger zerolog.Logger
}

// NewAdminAuth creates admin auth middleware for token.
func NewAdminAuth(token string, logger zerolog.Logger) *AdminAuth {
	return &AdminAuth{token: token, logger: logger}
}

// RequireToken rejects requests without a matching Authorization header.
func (m *AdminAuth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if m.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "admin_auth_failed").
				Str("ip", ClientIP(r)).
				Msg("invalid admin token")
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
