package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// AuthConfig holds the credentials the API accepts.
type AuthConfig struct {
	Users  map[string]string // username -> password
	Tokens map[string]bool   // bearer / API key tokens
}

type ctxKey int

const userKey ctxKey = iota

// userFrom returns the authenticated user recorded by the middleware,
// "api" when authentication is disabled.
func userFrom(r *http.Request) string {
	if u, ok := r.Context().Value(userKey).(string); ok && u != "" {
		return u
	}
	return "api"
}

// authMiddleware guards every endpoint except /health and /metrics.
// Accepted credentials: Basic auth against Users, a Bearer token or an
// X-API-Key header against Tokens. The authenticated username travels
// in the request context so commits carry attribution.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if user, ok := authenticate(r, cfg); ok {
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="netcli API"`)
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "authentication required",
		})
	})
}

// authenticate checks the request credentials and names the caller.
// Token callers are all attributed as "token"; the token value itself
// never leaves the middleware.
func authenticate(r *http.Request, cfg AuthConfig) (string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" && cfg.Tokens[key] {
		return "token", true
	}

	auth := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Bearer "):
		if cfg.Tokens[strings.TrimPrefix(auth, "Bearer ")] {
			return "token", true
		}
	case strings.HasPrefix(auth, "Basic "):
		payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
		if err != nil {
			return "", false
		}
		user, pass, ok := strings.Cut(string(payload), ":")
		if !ok {
			return "", false
		}
		expected, exists := cfg.Users[user]
		if exists && subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1 {
			return user, true
		}
	}
	return "", false
}
