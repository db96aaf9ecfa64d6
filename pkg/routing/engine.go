// Package routing is the pure decision core: given a user state snapshot and
// the requested route it returns exactly one verdict.
//
// Precedence is data. Rules and recommendations are ordered slices and the
// first match wins; there is no scoring and no combination of rules. Nothing
// in this package performs I/O, so identical inputs always produce identical
// verdicts.
package routing

import (
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// Rule ids, in evaluation order.
const (
	RuleAuthLoading     = "auth_loading"
	RuleRequireAuth     = "require_auth"
	RuleAuthPage        = "authenticated_on_auth_page"
	RuleAdminOnly       = "admin_only"
	RuleOnboardingFloor = "onboarding_hard_floor"
	RuleOnboardingDone  = "onboarding_already_satisfied"
	RuleRequireComplete = "require_complete"
	RuleDefaultAllow    = "default_allow"
)

// Rule is one (predicate, result) pair.
type Rule struct {
	ID     string
	Match  func(in Input) bool
	Result func(e *Engine, in Input) Verdict
}

// Recommendation is one entry of the best-route priority list.
type Recommendation struct {
	ID    string
	Match func(s userstate.Snapshot) bool
	Path  string
}

// Engine evaluates an ordered rule list.
type Engine struct {
	rules           []Rule
	recommendations []Recommendation
}

// NewEngine returns an engine with the standard rules and recommendations.
func NewEngine() *Engine {
	return &Engine{rules: DefaultRules(), recommendations: DefaultRecommendations()}
}

// NewCustomEngine evaluates the given lists in order. Empty lists select the
// defaults.
func NewCustomEngine(rules []Rule, recommendations []Recommendation) *Engine {
	e := NewEngine()
	if len(rules) > 0 {
		e.rules = append([]Rule(nil), rules...)
	}
	if len(recommendations) > 0 {
		e.recommendations = append([]Recommendation(nil), recommendations...)
	}
	return e
}

// Rules returns a copy of the rule list.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// DefaultRules is the canonical navigation policy.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:     RuleAuthLoading,
			Match:  func(in Input) bool { return in.AuthLoading },
			Result: func(_ *Engine, _ Input) Verdict { return Loading(RuleAuthLoading) },
		},
		{
			ID:     RuleRequireAuth,
			Match:  func(in Input) bool { return !in.IsAuthenticated && in.Route.RequireAuth },
			Result: redirect(PathAuth, RuleRequireAuth),
		},
		{
			ID:    RuleAuthPage,
			Match: func(in Input) bool { return in.IsAuthenticated && in.Path == PathAuth },
			Result: func(e *Engine, in Input) Verdict {
				return RedirectTo(e.BestRoute(in.Snapshot), RuleAuthPage)
			},
		},
		{
			ID: RuleAdminOnly,
			Match: func(in Input) bool {
				return in.IsAuthenticated && in.Route.AdminOnly && !in.Snapshot.IsAdminCaller
			},
			Result: redirect(PathDashboard, RuleAdminOnly),
		},
		{
			// Hard floor: nothing after this rule can override it.
			ID: RuleOnboardingFloor,
			Match: func(in Input) bool {
				return in.IsAuthenticated &&
					(in.Snapshot.ProfileCompleteness < HardFloorCompleteness ||
						in.Snapshot.OnboardingStep == userstate.OnboardingNotStarted)
			},
			Result: redirect(PathOnboarding, RuleOnboardingFloor),
		},
		{
			ID: RuleOnboardingDone,
			Match: func(in Input) bool {
				return in.IsAuthenticated && in.Path == PathOnboarding &&
					(in.Snapshot.ProfileCompleteness >= CompleteThreshold || in.Complete)
			},
			Result: func(e *Engine, in Input) Verdict {
				return RedirectTo(e.BestRoute(in.Snapshot), RuleOnboardingDone)
			},
		},
		{
			ID: RuleRequireComplete,
			Match: func(in Input) bool {
				return in.IsAuthenticated && in.Route.RequireComplete &&
					in.Snapshot.ProfileCompleteness < CompleteThreshold && !in.Complete
			},
			Result: redirect(PathOnboarding, RuleRequireComplete),
		},
		{
			ID:     RuleDefaultAllow,
			Match:  func(Input) bool { return true },
			Result: func(_ *Engine, _ Input) Verdict { return Allow(RuleDefaultAllow) },
		},
	}
}

func redirect(path, rule string) func(*Engine, Input) Verdict {
	return func(_ *Engine, _ Input) Verdict { return RedirectTo(path, rule) }
}

// Decide returns the verdict of the first matching rule. A redirect to the
// path already being requested is returned as Allow attributed to the same
// rule, so a verdict can never loop on itself.
func (e *Engine) Decide(in Input) Verdict {
	in.Path = CleanPath(in.Path)
	in.Snapshot = in.Snapshot.Normalize()

	for _, r := range e.rules {
		if !r.Match(in) {
			continue
		}
		v := r.Result(e, in)
		if v.Kind == KindRedirect && CleanPath(v.Path) == in.Path {
			return Allow(r.ID)
		}
		return v
	}
	// The rule list always ends in a catch-all; this covers custom lists.
	return Allow(RuleDefaultAllow)
}

// Decide evaluates in against the standard engine.
func Decide(in Input) Verdict {
	return standard.Decide(in)
}

var standard = NewEngine()
