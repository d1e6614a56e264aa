package middleware

import (
	"net/http"
	"strings"

	"github.com/openclaw/userbot-server-go/internal/audit"
	"github.com/openclaw/userbot-server-go/internal/model"
	"github.com/openclaw/userbot-server-go/internal/util"
)

// AdminAuthMiddleware admits requests whose bearer token matches the bcrypt
// hash of the admin API key.
type AdminAuthMiddleware struct {
	keyHash string
}

func NewAdminAuthMiddleware(keyHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{keyHash: keyHash}
}

func (m *AdminAuthMiddleware) Enabled() bool {
	return m.keyHash != ""
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin API is not configured",
			})
			return
		}

		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		if !util.CheckPasswordHash(token, m.keyHash) {
			audit.LogFromRequest(r, audit.Event{Type: model.AuthEventAdminAuthFailed})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
