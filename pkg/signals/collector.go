// Package signals gathers the raw account signals a routing decision is made
// on and folds them into a userstate.Snapshot.
//
// Every signal is fetched concurrently and independently. A failed or missing
// source never fails the snapshot: the affected field takes its fail-safe
// default and the failure is recorded in the returned Report.
package signals

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

const (
	// DefaultTimeout bounds each individual signal fetch.
	DefaultTimeout = 2 * time.Second
	// DefaultEngagementWindow is how far back engagement events are counted.
	DefaultEngagementWindow = 14 * 24 * time.Hour
)

// Subject identifies who a snapshot is built for and who is asking.
type Subject struct {
	// ID is the effective subject.
	ID string
	// CallerID is the authenticated caller. Admin membership is checked for
	// the caller, never for the subject.
	CallerID string
}

// Collector fans out to the configured sources.
type Collector struct {
	sources          Sources
	timeout          time.Duration
	engagementWindow time.Duration
	clock            func() time.Time
	logger           *slog.Logger
}

// NewCollector creates a collector over sources.
func NewCollector(sources Sources) *Collector {
	return &Collector{
		sources:          sources,
		timeout:          DefaultTimeout,
		engagementWindow: DefaultEngagementWindow,
		clock:            time.Now,
		logger:           slog.Default().With("component", "signals"),
	}
}

// WithClock overrides clock for testing.
func (c *Collector) WithClock(clock func() time.Time) *Collector {
	c.clock = clock
	return c
}

// WithTimeout sets the per-signal fetch timeout. Non-positive values are ignored.
func (c *Collector) WithTimeout(d time.Duration) *Collector {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithLogger replaces the component logger.
func (c *Collector) WithLogger(l *slog.Logger) *Collector {
	if l != nil {
		c.logger = l.With("component", "signals")
	}
	return c
}

// Snapshot collects a snapshot and discards the report.
func (c *Collector) Snapshot(ctx context.Context, subject Subject) userstate.Snapshot {
	snap, _ := c.Collect(ctx, subject)
	return snap
}

// Collect fetches every signal concurrently and waits for all of them to
// resolve or fail. It never returns an error: failures are substituted with
// defaults and listed in the report.
func (c *Collector) Collect(ctx context.Context, subject Subject) (userstate.Snapshot, Report) {
	snap := userstate.Default(subject.ID)
	now := c.clock()

	var (
		mu     sync.Mutex
		report Report
	)
	fail := func(sig Signal, err error) {
		mu.Lock()
		report.Failures = append(report.Failures, &SignalFetchError{Signal: sig, SubjectID: subject.ID, Err: err})
		mu.Unlock()
	}

	var (
		profile      *ProfileRecord
		completeness *int
		integrations int
		engagement   int
		subscription *SubscriptionRecord
		isAdmin      bool
	)

	// Each fetch reports its own failure and returns nil so one slow or broken
	// source never cancels the others.
	var g errgroup.Group
	fetch := func(sig Signal, configured bool, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if !configured {
				fail(sig, ErrSourceMissing)
				return nil
			}
			fctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if err := fn(fctx); err != nil {
				fail(sig, err)
			}
			return nil
		})
	}

	src := c.sources
	fetch(SignalProfile, src.Profiles != nil, func(ctx context.Context) error {
		rec, err := src.Profiles.Profile(ctx, subject.ID)
		if err == nil {
			profile = rec
		}
		return err
	})
	fetch(SignalBusinessProfile, src.BusinessProfiles != nil, func(ctx context.Context) error {
		v, err := src.BusinessProfiles.ProfileCompleteness(ctx, subject.ID)
		if err == nil {
			completeness = v
		}
		return err
	})
	fetch(SignalIntegrations, src.Integrations != nil, func(ctx context.Context) error {
		n, err := src.Integrations.ActiveIntegrationCount(ctx, subject.ID)
		if err == nil {
			integrations = n
		}
		return err
	})
	fetch(SignalEngagement, src.Engagement != nil, func(ctx context.Context) error {
		n, err := src.Engagement.RecentEngagementCount(ctx, subject.ID, now.Add(-c.engagementWindow))
		if err == nil {
			engagement = n
		}
		return err
	})
	fetch(SignalSubscription, src.Subscriptions != nil, func(ctx context.Context) error {
		rec, err := src.Subscriptions.Subscription(ctx, subject.ID)
		if err == nil {
			subscription = rec
		}
		return err
	})
	// Admin membership belongs to the caller and is skipped for anonymous
	// lookups.
	if subject.CallerID != "" {
		fetch(SignalAdminRole, src.AdminRoles != nil, func(ctx context.Context) error {
			ok, err := src.AdminRoles.IsAdmin(ctx, subject.CallerID)
			if err == nil {
				isAdmin = ok
			}
			return err
		})
	}

	_ = g.Wait()

	if profile != nil {
		snap.OnboardingStep = userstate.OnboardingStep(profile.OnboardingStep)
		snap.SetupPreference = userstate.SetupPreference(profile.SetupPreference)
		if profile.ChaosScore != nil {
			snap.ChaosScore = *profile.ChaosScore
		}
	}
	if completeness != nil {
		snap.ProfileCompleteness = *completeness
	}
	snap.HasActiveIntegrations = integrations > 0
	snap.RecentEngagementEvents = engagement
	if subscription != nil {
		snap.SubscriptionStatus = userstate.SubscriptionStatus(subscription.Status)
		if subscription.TrialEndDate != nil {
			snap.TrialDaysRemaining = DaysUntil(now, *subscription.TrialEndDate)
		}
	}
	snap.IsAdminCaller = isAdmin

	for _, f := range report.Failures {
		c.logger.WarnContext(ctx, "signal fell back to default",
			"signal", string(f.Signal),
			"subject", f.SubjectID,
			"error", f.Err,
		)
	}

	return snap.Normalize(), report
}

// DaysUntil returns the whole days from now until end, rounded up. The result
// is negative once end has passed by at least a full day.
func DaysUntil(now, end time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}
