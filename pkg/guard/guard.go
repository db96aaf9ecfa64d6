// Package guard runs one navigation check end to end: resolve the caller and
// the effective subject, gather state, ask the routing engine, and report the
// verdict.
//
// An evaluation is a small state machine. It starts in Loading, moves to
// Unauthenticated or Evaluating, and always ends in Allowed or Redirecting
// unless authentication itself is still unresolved. Signal failures never halt
// it; they only substitute defaults.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/completion"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/impersonation"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/observability"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/routing"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// DefaultSignalTimeout bounds state gathering for one evaluation.
const DefaultSignalTimeout = 3 * time.Second

// State is a step of the evaluation state machine.
type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateEvaluating      State = "evaluating"
	StateAllowed         State = "allowed"
	StateRedirecting     State = "redirecting"
)

// Collector gathers the snapshot of a subject.
type Collector interface {
	Collect(ctx context.Context, subject signals.Subject) (userstate.Snapshot, signals.Report)
}

// CompletionChecker answers the cached onboarding-complete question.
type CompletionChecker interface {
	IsComplete(ctx context.Context, subject completion.Subject) bool
}

// Navigation is one request to reach Path.
type Navigation struct {
	Path string
	// Caller is nil for anonymous requests.
	Caller      auth.Principal
	AuthLoading bool
	// Scope holds the impersonation session; nil means none.
	Scope impersonation.Scope
	// Session and Seq identify the navigation for staleness checks. A zero
	// Seq is never stale.
	Session string
	Seq     uint64
}

// Outcome is the result of one evaluation.
type Outcome struct {
	State           State
	Visited         []State
	Verdict         routing.Verdict
	Route           routing.RouteSpec
	Resolution      impersonation.Resolution
	Snapshot        userstate.Snapshot
	Complete        bool
	NextBestActions []string
	DecisionHash    string
	FailedSignals   []signals.Signal
	// Stale is set when a newer navigation of the same session started while
	// this one was evaluating. A stale outcome must not be applied.
	Stale bool
}

// Deps wires a Guard. Collector, Completion and Overlay are required.
type Deps struct {
	Engine        *routing.Engine
	Table         *routing.Table
	Collector     Collector
	Completion    CompletionChecker
	Overlay       *impersonation.Overlay
	Tracker       *Tracker
	Metrics       *observability.Provider
	SignalTimeout time.Duration
}

// Guard is safe for concurrent use.
type Guard struct {
	engine     *routing.Engine
	table      *routing.Table
	collector  Collector
	completion CompletionChecker
	overlay    *impersonation.Overlay
	tracker    *Tracker
	metrics    *observability.Provider
	timeout    time.Duration
	logger     *slog.Logger
}

// New validates deps and fills defaults.
func New(d Deps) (*Guard, error) {
	if d.Collector == nil {
		return nil, errors.New("guard: collector is required")
	}
	if d.Completion == nil {
		return nil, errors.New("guard: completion checker is required")
	}
	if d.Overlay == nil {
		return nil, errors.New("guard: impersonation overlay is required")
	}
	g := &Guard{
		engine:     d.Engine,
		table:      d.Table,
		collector:  d.Collector,
		completion: d.Completion,
		overlay:    d.Overlay,
		tracker:    d.Tracker,
		metrics:    d.Metrics,
		timeout:    d.SignalTimeout,
		logger:     slog.Default().With("component", "guard"),
	}
	if g.engine == nil {
		g.engine = routing.NewEngine()
	}
	if g.table == nil {
		g.table = routing.DefaultTable()
	}
	if g.tracker == nil {
		g.tracker = NewTracker()
	}
	if g.timeout <= 0 {
		g.timeout = DefaultSignalTimeout
	}
	return g, nil
}

// Tracker returns the navigation tracker.
func (g *Guard) Tracker() *Tracker { return g.tracker }

// Table returns the route table.
func (g *Guard) Table() *routing.Table { return g.table }

// Evaluate runs the state machine for nav.
func (g *Guard) Evaluate(ctx context.Context, nav Navigation) Outcome {
	if g.metrics != nil {
		var done func(error)
		ctx, done = g.metrics.TrackOperation(ctx, "navigation.evaluate",
			attribute.Bool("authenticated", nav.Caller != nil))
		defer done(nil)
	}

	path := routing.CleanPath(nav.Path)
	out := Outcome{
		State:   StateLoading,
		Visited: []State{StateLoading},
		Route:   g.table.Lookup(path),
	}
	in := routing.Input{Path: path, Route: out.Route, AuthLoading: nav.AuthLoading}

	switch {
	case nav.AuthLoading:
		in.Snapshot = userstate.Default("")
		out.Snapshot = in.Snapshot
		out.Verdict = g.engine.Decide(in)
		g.finish(ctx, &out, in, nav)
		return out

	case nav.Caller == nil:
		out.move(StateUnauthenticated)
		in.Snapshot = userstate.Default("")

	default:
		out.move(StateEvaluating)
		caller := impersonation.Identity{
			ID:          nav.Caller.GetID(),
			Email:       nav.Caller.GetEmail(),
			DisplayName: nav.Caller.GetDisplayName(),
		}
		out.Resolution = g.overlay.Resolve(ctx, nav.Scope, caller)
		in.IsAuthenticated = true
		in.Snapshot, in.Complete, out.FailedSignals = g.gather(ctx, caller.ID, out.Resolution)
	}

	out.Snapshot = in.Snapshot
	out.Complete = in.Complete
	out.Verdict = g.engine.Decide(in)
	g.finish(ctx, &out, in, nav)
	return out
}

// gather runs the completion cache and the collector concurrently under the
// signal timeout.
func (g *Guard) gather(ctx context.Context, callerID string, res impersonation.Resolution) (userstate.Snapshot, bool, []signals.Signal) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var (
		snap     userstate.Snapshot
		report   signals.Report
		complete bool
		eg       errgroup.Group
	)
	eg.Go(func() error {
		complete = g.completion.IsComplete(ctx, completion.Subject{ID: res.EffectiveID, Email: res.Effective.Email})
		return nil
	})
	eg.Go(func() error {
		snap, report = g.collector.Collect(ctx, signals.Subject{ID: res.EffectiveID, CallerID: callerID})
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = eg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// A source ignored cancellation. Its late result is never read.
		g.logger.WarnContext(ctx, "state gathering abandoned", "subject", res.EffectiveID, "error", ctx.Err())
		failed := allSignals()
		if g.metrics != nil {
			for _, sig := range failed {
				g.metrics.RecordSignalFailure(ctx, string(sig))
			}
		}
		return userstate.Default(res.EffectiveID), false, failed
	}

	failed := make([]signals.Signal, 0, len(report.Failures))
	for _, f := range report.Failures {
		failed = append(failed, f.Signal)
		if g.metrics != nil {
			g.metrics.RecordSignalFailure(ctx, string(f.Signal))
		}
	}
	if snap.SubjectID == "" {
		snap.SubjectID = res.EffectiveID
	}
	return snap, complete, failed
}

func allSignals() []signals.Signal {
	return []signals.Signal{
		signals.SignalProfile, signals.SignalBusinessProfile, signals.SignalIntegrations,
		signals.SignalEngagement, signals.SignalSubscription, signals.SignalAdminRole,
	}
}

func (g *Guard) finish(ctx context.Context, out *Outcome, in routing.Input, nav Navigation) {
	switch out.Verdict.Kind {
	case routing.KindAllow:
		out.move(StateAllowed)
	case routing.KindRedirect:
		out.move(StateRedirecting)
	}

	if in.IsAuthenticated {
		out.NextBestActions = g.engine.NextBestActions(in.Snapshot)
	}
	hash, err := routing.DecisionHash(in, out.Verdict)
	if err != nil {
		g.logger.WarnContext(ctx, "decision hash failed", "error", err)
	}
	out.DecisionHash = hash

	if nav.Seq != 0 && nav.Session != "" && !g.tracker.IsCurrent(nav.Session, nav.Seq) {
		out.Stale = true
	}
	if g.metrics != nil {
		g.metrics.RecordDecision(ctx, string(out.Verdict.Kind), out.Verdict.Rule, out.Resolution.IsImpersonating)
	}

	g.logger.DebugContext(ctx, "navigation evaluated",
		"path", in.Path,
		"state", string(out.State),
		"verdict", string(out.Verdict.Kind),
		"target", out.Verdict.Path,
		"rule", out.Verdict.Rule,
		"subject", out.Resolution.EffectiveID,
		"impersonating", out.Resolution.IsImpersonating,
		"stale", out.Stale,
	)
}

func (o *Outcome) move(s State) {
	o.State = s
	o.Visited = append(o.Visited, s)
}
