package routing

import (
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// Canonical destinations.
const (
	PathAuth            = "/auth"
	PathOnboarding      = "/onboarding"
	PathDashboard       = "/dashboard"
	PathClarity         = "/clarity"
	PathFeed            = "/feed"
	PathRecommendations = "/recommendations"
	PathHealth          = "/health"
)

// Completeness thresholds shared by the rules and recommendations.
const (
	HardFloorCompleteness = 40
	CompleteThreshold     = 60
	HealthThreshold       = 50
	PowerUserThreshold    = 70
	ChaosCrisisScore      = 80
)

// VerdictKind is the outcome class of a decision.
type VerdictKind string

const (
	KindLoading  VerdictKind = "loading"
	KindRedirect VerdictKind = "redirect"
	KindAllow    VerdictKind = "allow"
)

// Verdict is the result of Decide. Path is set only for redirects. Rule is the
// id of the rule that matched.
type Verdict struct {
	Kind VerdictKind `json:"kind"`
	Path string      `json:"path,omitempty"`
	Rule string      `json:"rule"`
}

func (v Verdict) IsAllow() bool    { return v.Kind == KindAllow }
func (v Verdict) IsRedirect() bool { return v.Kind == KindRedirect }
func (v Verdict) IsLoading() bool  { return v.Kind == KindLoading }

// Loading, Allow and RedirectTo build verdicts attributed to rule.
func Loading(rule string) Verdict { return Verdict{Kind: KindLoading, Rule: rule} }

func Allow(rule string) Verdict { return Verdict{Kind: KindAllow, Rule: rule} }

func RedirectTo(path, rule string) Verdict {
	return Verdict{Kind: KindRedirect, Path: path, Rule: rule}
}

// Input is everything a decision depends on.
type Input struct {
	Snapshot        userstate.Snapshot `json:"snapshot"`
	Path            string             `json:"path"`
	Route           RouteSpec          `json:"route"`
	IsAuthenticated bool               `json:"is_authenticated"`
	AuthLoading     bool               `json:"auth_loading"`
	// Complete is the completion cache result, true for bypass-listed
	// identities.
	Complete bool `json:"complete"`
}
