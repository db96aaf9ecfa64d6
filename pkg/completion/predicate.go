package completion

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// DefaultPredicate is the completeness rule used when none is configured.
const DefaultPredicate = `profile_completeness >= 60 && onboarding_step != "not_started"`

// Predicate decides whether a snapshot counts as onboarding-complete.
type Predicate struct {
	expr string
	prg  cel.Program
}

// NewPredicate compiles expr. An empty expr selects DefaultPredicate.
func NewPredicate(expr string) (*Predicate, error) {
	if expr == "" {
		expr = DefaultPredicate
	}

	env, err := cel.NewEnv(
		cel.Variable("profile_completeness", cel.IntType),
		cel.Variable("onboarding_step", cel.StringType),
		cel.Variable("setup_preference", cel.StringType),
		cel.Variable("chaos_score", cel.IntType),
		cel.Variable("has_active_integrations", cel.BoolType),
		cel.Variable("subscription_status", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile completeness predicate: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("completeness predicate must return bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	return &Predicate{expr: expr, prg: prg}, nil
}

// Expression returns the source of the compiled rule.
func (p *Predicate) Expression() string { return p.expr }

// Evaluate applies the predicate to snap.
func (p *Predicate) Evaluate(snap userstate.Snapshot) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"profile_completeness":    int64(snap.ProfileCompleteness),
		"onboarding_step":         string(snap.OnboardingStep),
		"setup_preference":        string(snap.SetupPreference),
		"chaos_score":             int64(snap.ChaosScore),
		"has_active_integrations": snap.HasActiveIntegrations,
		"subscription_status":     string(snap.SubscriptionStatus),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate returned %T, want bool", out.Value())
	}
	return v, nil
}
