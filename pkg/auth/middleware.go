// Package auth resolves the authenticated caller of a request from its session
// token and carries the caller and the effective subject in the context.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/api"
)

// SessionCookieName is the cookie holding the session token for browser
// navigations.
const SessionCookieName = "session"

// TokenFromRequest returns the bearer token, falling back to the session
// cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// NewMiddleware attaches the caller of every request carrying a valid session
// token. Requests without one continue anonymously so the access guard can
// route them to the login screen; invalid tokens are treated the same way.
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := validator.Validate(tokenStr)
			if err != nil {
				logger.DebugContext(r.Context(), "ignoring invalid session token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithPrincipal(r.Context(), PrincipalFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects anonymous requests with 401.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := GetPrincipal(r.Context()); err != nil {
			api.WriteUnauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
