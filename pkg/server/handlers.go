package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/api"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/guard"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/impersonation"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
)

// DecisionResponse is the body of GET /api/navigation/decide.
type DecisionResponse struct {
	Verdict          string                `json:"verdict"`
	Path             string                `json:"path,omitempty"`
	Rule             string                `json:"rule"`
	State            string                `json:"state"`
	EffectiveSubject string                `json:"effective_subject,omitempty"`
	Impersonating    bool                  `json:"impersonating"`
	Banner           *impersonation.Banner `json:"banner,omitempty"`
	NextBestActions  []string              `json:"next_best_actions"`
	DecisionHash     string                `json:"decision_hash"`
	Nav              uint64                `json:"nav,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		api.WriteBadRequest(w, "path is required")
		return
	}

	nav := guard.Navigation{Path: path, Scope: s.scope(w, r)}
	if p, err := auth.GetPrincipal(r.Context()); err == nil {
		nav.Caller = p
	}

	if err := s.guard.Sequence(&nav, r.Header.Get(SessionHeader), q.Get("nav")); err != nil {
		if errors.Is(err, guard.ErrSuperseded) {
			api.WriteConflict(w, "navigation superseded by a newer one")
		} else {
			api.WriteBadRequest(w, "nav must be a positive integer")
		}
		return
	}

	out := s.guard.Evaluate(r.Context(), nav)
	if out.Stale {
		api.WriteConflict(w, "navigation superseded by a newer one")
		return
	}

	resp := DecisionResponse{
		Verdict:         string(out.Verdict.Kind),
		Path:            out.Verdict.Path,
		Rule:            out.Verdict.Rule,
		State:           string(out.State),
		Impersonating:   out.Resolution.IsImpersonating,
		Banner:          out.Resolution.Banner,
		NextBestActions: out.NextBestActions,
		DecisionHash:    out.DecisionHash,
		Nav:             nav.Seq,
	}
	if nav.Caller != nil {
		resp.EffectiveSubject = out.Resolution.EffectiveID
	}
	if resp.NextBestActions == nil {
		resp.NextBestActions = []string{}
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// handleAppRender stands in for the protected page: it is reached only when
// the guard allowed the navigation.
func (s *Server) handleAppRender(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"path": strings.TrimPrefix(r.URL.Path, "/app"),
	}
	if subject, ok := auth.EffectiveSubject(r.Context()); ok {
		body["subject"] = subject
	}
	api.WriteJSON(w, http.StatusOK, body)
}

type startImpersonationRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleImpersonationStart(w http.ResponseWriter, r *http.Request) {
	original, ok := caller(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}
	// Admin membership is read from the role store, never from token claims.
	admin, err := s.admins.IsAdmin(r.Context(), original.ID)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if !admin {
		api.WriteForbidden(w, "impersonation requires the admin role")
		return
	}

	var req startImpersonationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		api.WriteBadRequest(w, "user_id is required")
		return
	}

	target := impersonation.Identity{ID: req.UserID, Email: req.Email, DisplayName: req.DisplayName}
	sess, err := s.overlay.Start(r.Context(), s.scope(w, r), original, target)
	switch {
	case errors.Is(err, impersonation.ErrSelfTarget), errors.Is(err, impersonation.ErrMissingIdentity):
		api.WriteBadRequest(w, err.Error())
		return
	case err != nil:
		api.WriteInternal(w, err)
		return
	}

	s.log(r).InfoContext(r.Context(), "impersonation session issued", "effective", sess.EffectiveIdentity)
	api.WriteJSON(w, http.StatusCreated, map[string]any{
		"effective_identity": sess.EffectiveIdentity,
		"started_at":         sess.StartedAt,
	})
}

func (s *Server) handleImpersonationExit(w http.ResponseWriter, r *http.Request) {
	s.overlay.Exit(r.Context(), s.scope(w, r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImpersonationBanner(w http.ResponseWriter, r *http.Request) {
	original, ok := caller(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}
	banner := s.overlay.Banner(r.Context(), s.scope(w, r), original)
	if banner == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	api.WriteJSON(w, http.StatusOK, banner)
}

func (s *Server) handlePaywallCheck(w http.ResponseWriter, r *http.Request) {
	original, ok := caller(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}
	feature := r.URL.Query().Get("feature")
	if feature == "" {
		api.WriteBadRequest(w, "feature is required")
		return
	}

	res := s.overlay.Resolve(r.Context(), s.scope(w, r), original)
	snap := s.collector.Snapshot(r.Context(), signals.Subject{ID: res.EffectiveID, CallerID: original.ID})
	api.WriteJSON(w, http.StatusOK, s.gate.Check(snap.SubscriptionStatus, snap.TrialDaysRemaining, feature))
}

func (s *Server) handleProfileChanged(w http.ResponseWriter, r *http.Request) {
	original, ok := caller(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}
	res := s.overlay.Resolve(r.Context(), s.scope(w, r), original)
	s.completion.Invalidate(r.Context(), res.EffectiveID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheReset(w http.ResponseWriter, r *http.Request) {
	original, ok := caller(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}
	admin, err := s.admins.IsAdmin(r.Context(), original.ID)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if !admin {
		api.WriteForbidden(w, "cache reset requires the admin role")
		return
	}
	s.completion.InvalidateAll(r.Context())
	s.log(r).InfoContext(r.Context(), "completion cache reset")
	w.WriteHeader(http.StatusNoContent)
}

// handleLogout ends impersonation and forgets the completion results of both
// identities the session touched.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	scope := s.scope(w, r)
	if original, ok := caller(r); ok {
		res := s.overlay.Resolve(r.Context(), scope, original)
		s.completion.Invalidate(r.Context(), original.ID)
		if res.EffectiveID != original.ID {
			s.completion.Invalidate(r.Context(), res.EffectiveID)
		}
	}
	s.overlay.Exit(r.Context(), scope)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
