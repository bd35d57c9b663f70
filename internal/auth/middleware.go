// Package auth guards the HTTP transport of the MCP server.
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sha1n/docfetcher/internal/config"
)

// APIKeyHeader carries the API key. A bearer token in the Authorization
// header is accepted as well.
const APIKeyHeader = "X-API-Key"

// publicPaths bypass authentication
var publicPaths = map[string]bool{
	"/health": true,
}

// NewMiddleware creates the authentication middleware for the settings
func NewMiddleware(settings config.AuthSettings) (func(http.Handler) http.Handler, error) {
	var check func(*http.Request) bool
	var challenge string

	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		check = basicAuth(settings.Basic)
		challenge = `Basic realm="docfetcher"`
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		check = apiKey(settings.APIKeys)
		challenge = `Bearer realm="docfetcher"`
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}

	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || check(r) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debug("Rejected request", "path", r.URL.Path, "remote", r.RemoteAddr, "auth_type", settings.Type)
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}, nil
}

func basicAuth(settings config.BasicAuthSettings) func(*http.Request) bool {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(settings.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(settings.Password)) == 1
		return ok && userMatch && passMatch
	}
}

func apiKey(keys []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		key := requestKey(r)
		if key == "" {
			return false
		}
		valid := false
		// No early exit: every key is compared
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
				valid = true
			}
		}
		return valid
	}
}

// requestKey extracts the API key from the request headers.
func requestKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
