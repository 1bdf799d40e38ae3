package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/btouchard/beacon/internal/auth"
)

// BearerToken returns middleware that requires the local secret, either as
// an "Authorization: Bearer" header or, for browser WebSocket clients that
// cannot set headers, a "token" query parameter.
func BearerToken(secret auth.Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				challengeAuth(w, "missing or malformed credentials")
				return
			}
			if !auth.Equal(secret.Current(), token) {
				slog.Debug("rejected request with invalid token", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				invalidToken(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// challengeAuth sends a 401 with a Bearer challenge for unauthenticated requests.
func challengeAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="beacon"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

// invalidToken sends a 401 for requests with a wrong Bearer token.
func invalidToken(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
