// Package server exposes navigation decisions, impersonation control, paywall
// checks and cache invalidation over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/api"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/guard"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/impersonation"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/paywall"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// SessionHeader identifies a browsing session for navigation sequencing.
const SessionHeader = guard.SessionHeader

// SnapshotCollector builds the snapshot used by paywall checks.
type SnapshotCollector interface {
	Snapshot(ctx context.Context, subject signals.Subject) userstate.Snapshot
}

// CacheInvalidator drops completion results.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, subjectID string)
	InvalidateAll(ctx context.Context)
}

// Deps wires a Server. Every member except Limiter and Validator is required.
type Deps struct {
	Guard      *guard.Guard
	Overlay    *impersonation.Overlay
	Collector  SnapshotCollector
	Completion CacheInvalidator
	Admins     signals.AdminRoleSource
	Gate       *paywall.Gate
	// Validator resolves session tokens; nil serves every request anonymously.
	Validator     *auth.JWTValidator
	Limiter       *api.IPLimiter
	SecureCookies bool
}

// Server holds the handlers.
type Server struct {
	guard         *guard.Guard
	overlay       *impersonation.Overlay
	collector     SnapshotCollector
	completion    CacheInvalidator
	admins        signals.AdminRoleSource
	gate          *paywall.Gate
	validator     *auth.JWTValidator
	limiter       *api.IPLimiter
	secureCookies bool
	logger        *slog.Logger
}

// New validates deps.
func New(d Deps) (*Server, error) {
	switch {
	case d.Guard == nil:
		return nil, errors.New("server: guard is required")
	case d.Overlay == nil:
		return nil, errors.New("server: impersonation overlay is required")
	case d.Collector == nil:
		return nil, errors.New("server: collector is required")
	case d.Completion == nil:
		return nil, errors.New("server: completion cache is required")
	case d.Admins == nil:
		return nil, errors.New("server: admin role source is required")
	}
	gate := d.Gate
	if gate == nil {
		gate = paywall.NewGate()
	}
	return &Server{
		guard:         d.Guard,
		overlay:       d.Overlay,
		collector:     d.Collector,
		completion:    d.Completion,
		admins:        d.Admins,
		gate:          gate,
		validator:     d.Validator,
		limiter:       d.Limiter,
		secureCookies: d.SecureCookies,
		logger:        slog.Default().With("component", "server"),
	}, nil
}

// Handler returns the full middleware chain: request id, session resolution,
// then per-IP rate limiting on /api/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/navigation/decide", s.handleDecide)

	mux.HandleFunc("GET /api/impersonation", s.handleImpersonationBanner)
	mux.HandleFunc("POST /api/impersonation", s.handleImpersonationStart)
	mux.HandleFunc("DELETE /api/impersonation", s.handleImpersonationExit)

	mux.HandleFunc("GET /api/paywall/check", s.handlePaywallCheck)
	mux.HandleFunc("POST /api/profile/changed", s.handleProfileChanged)
	mux.HandleFunc("POST /api/admin/cache/reset", s.handleCacheReset)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	app := s.guard.Middleware(guard.MiddlewareConfig{Prefix: "/app", SecureCookies: s.secureCookies})
	mux.Handle("/app/", app(http.HandlerFunc(s.handleAppRender)))

	var h http.Handler = mux
	if s.limiter != nil {
		h = limitAPI(s.limiter, h)
	}
	if s.validator != nil {
		h = auth.NewMiddleware(s.validator)(h)
	}
	return auth.RequestIDMiddleware(h)
}

func limitAPI(rl *api.IPLimiter, next http.Handler) http.Handler {
	limited := rl.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"routes_version": s.guard.Table().Version().String(),
	})
}

// caller returns the authenticated caller as an impersonation identity.
func caller(r *http.Request) (impersonation.Identity, bool) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		return impersonation.Identity{}, false
	}
	return impersonation.Identity{ID: p.GetID(), Email: p.GetEmail(), DisplayName: p.GetDisplayName()}, true
}

func (s *Server) scope(w http.ResponseWriter, r *http.Request) impersonation.Scope {
	return impersonation.NewCookieScope(w, r, s.secureCookies)
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return auth.Logger(r.Context(), s.logger)
}
