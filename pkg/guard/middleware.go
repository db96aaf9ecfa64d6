package guard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/api"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/impersonation"
)

const (
	// SessionHeader identifies a browsing session for navigation sequencing.
	SessionHeader = "X-Navigation-Session"
	// NavigationHeader carries the client's navigation sequence number.
	NavigationHeader = "X-Navigation-Seq"
)

// MiddlewareConfig configures the HTTP adapter.
type MiddlewareConfig struct {
	// Prefix is stripped from the request path before evaluation and
	// prepended to redirect targets, e.g. "/app".
	Prefix string
	// SecureCookies marks the impersonation cookie Secure.
	SecureCookies bool
}

// Middleware applies verdicts to requests: redirects answer 303 See Other,
// allowed requests reach next with the effective subject in the context.
// A navigation superseded by a newer one of the same session answers 409.
func (g *Guard) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	prefix := strings.TrimRight(cfg.Prefix, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, prefix)

			nav := Navigation{
				Path:  path,
				Scope: impersonation.NewCookieScope(w, r, cfg.SecureCookies),
			}
			if p, err := auth.GetPrincipal(r.Context()); err == nil {
				nav.Caller = p
			}
			if err := g.Sequence(&nav, r.Header.Get(SessionHeader), r.Header.Get(NavigationHeader)); err != nil {
				writeSequenceError(w, err)
				return
			}

			out := g.Evaluate(r.Context(), nav)
			if out.Stale {
				api.WriteConflict(w, ErrSuperseded.Error())
				return
			}
			switch out.State {
			case StateRedirecting:
				http.Redirect(w, r, prefix+out.Verdict.Path, http.StatusSeeOther)
			case StateAllowed:
				ctx := r.Context()
				if nav.Caller != nil {
					ctx = auth.WithEffectiveSubject(ctx, out.Resolution.Subject())
				}
				next.ServeHTTP(w, r.WithContext(ctx))
			default:
				api.WriteUnavailable(w, 1, "authentication is still resolving")
			}
		})
	}
}

func writeSequenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSuperseded) {
		api.WriteConflict(w, err.Error())
		return
	}
	api.WriteBadRequest(w, err.Error())
}
