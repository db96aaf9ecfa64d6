package routing

import (
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// Recommendation ids.
const (
	RecClarity         = "crisis_triage"
	RecFeed            = "connected_power_user"
	RecRecommendations = "growth_focus"
	RecHealth          = "general_health"
	RecDashboard       = "default"
)

// DefaultRecommendations is the best-route priority list: crisis management,
// then power-user shortcuts, then growth focus, then general health, then the
// dashboard.
func DefaultRecommendations() []Recommendation {
	return []Recommendation{
		{
			ID: RecClarity,
			Match: func(s userstate.Snapshot) bool {
				return s.ChaosScore > ChaosCrisisScore && s.ProfileCompleteness < PowerUserThreshold
			},
			Path: PathClarity,
		},
		{
			ID: RecFeed,
			Match: func(s userstate.Snapshot) bool {
				return s.SetupPreference == userstate.SetupConnect &&
					s.HasActiveIntegrations &&
					s.ProfileCompleteness >= PowerUserThreshold
			},
			Path: PathFeed,
		},
		{
			ID: RecRecommendations,
			Match: func(s userstate.Snapshot) bool {
				return s.SetupPreference == userstate.SetupGrow && s.ProfileCompleteness >= CompleteThreshold
			},
			Path: PathRecommendations,
		},
		{
			ID:    RecHealth,
			Match: func(s userstate.Snapshot) bool { return s.ProfileCompleteness >= HealthThreshold },
			Path:  PathHealth,
		},
		{
			ID:    RecDashboard,
			Match: func(userstate.Snapshot) bool { return true },
			Path:  PathDashboard,
		},
	}
}

// BestRoute returns the first matching recommendation. It is total: with no
// match it falls back to the dashboard.
func (e *Engine) BestRoute(s userstate.Snapshot) string {
	s = s.Normalize()
	for _, r := range e.recommendations {
		if r.Match(s) {
			return r.Path
		}
	}
	return PathDashboard
}

// NextBestActions ranks every matching destination in priority order. The
// list is de-duplicated and always ends with the dashboard.
func (e *Engine) NextBestActions(s userstate.Snapshot) []string {
	s = s.Normalize()
	seen := make(map[string]bool, len(e.recommendations))
	var out []string
	for _, r := range e.recommendations {
		if r.Path == PathDashboard || seen[r.Path] || !r.Match(s) {
			continue
		}
		seen[r.Path] = true
		out = append(out, r.Path)
	}
	return append(out, PathDashboard)
}

// BestRoute evaluates s against the standard engine.
func BestRoute(s userstate.Snapshot) string {
	return standard.BestRoute(s)
}

// NextBestActions evaluates s against the standard engine.
func NextBestActions(s userstate.Snapshot) []string {
	return standard.NextBestActions(s)
}
