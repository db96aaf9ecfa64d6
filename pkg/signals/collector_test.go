package signals_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func seededStore() *signals.MemoryStore {
	st := signals.NewMemoryStore()
	st.SetProfile("user-1", signals.ProfileRecord{
		OnboardingStep:  "completed",
		SetupPreference: "connect",
		ChaosScore:      intPtr(35),
	})
	st.SetCompleteness("user-1", 85)
	st.SetActiveIntegrations("user-1", 2)
	st.AddEngagement("user-1", fixedNow.Add(-24*time.Hour))
	st.AddEngagement("user-1", fixedNow.Add(-30*24*time.Hour))
	end := fixedNow.Add(5 * 24 * time.Hour)
	st.SetSubscription("user-1", signals.SubscriptionRecord{Status: "trial", TrialEndDate: &end})
	st.SetAdmin("admin-1", true)
	return st
}

func TestCollect_AllSignals(t *testing.T) {
	c := signals.NewCollector(signals.FromStore(seededStore())).WithClock(func() time.Time { return fixedNow })

	snap, report := c.Collect(context.Background(), signals.Subject{ID: "user-1", CallerID: "admin-1"})

	require.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Equal(t, userstate.Snapshot{
		SubjectID:              "user-1",
		ProfileCompleteness:    85,
		OnboardingStep:         userstate.OnboardingCompleted,
		SetupPreference:        userstate.SetupConnect,
		ChaosScore:             35,
		HasActiveIntegrations:  true,
		RecentEngagementEvents: 1,
		SubscriptionStatus:     userstate.SubscriptionTrial,
		TrialDaysRemaining:     5,
		IsAdminCaller:          true,
	}, snap)
}

func TestCollect_IntegrationFailureDefaultsToFalse(t *testing.T) {
	st := seededStore()
	st.Fail(signals.SignalIntegrations, errors.New("connection reset"))
	c := signals.NewCollector(signals.FromStore(st)).WithClock(func() time.Time { return fixedNow })

	snap, report := c.Collect(context.Background(), signals.Subject{ID: "user-1"})

	assert.False(t, snap.HasActiveIntegrations)
	assert.Equal(t, 85, snap.ProfileCompleteness)
	assert.Equal(t, userstate.SetupConnect, snap.SetupPreference)
	assert.True(t, report.Failed(signals.SignalIntegrations))
	assert.False(t, report.Failed(signals.SignalProfile))
	require.Len(t, report.Failures, 1)

	var fetchErr *signals.SignalFetchError
	require.ErrorAs(t, report.Err(), &fetchErr)
	assert.Equal(t, "user-1", fetchErr.SubjectID)
}

func TestCollect_EverySourceFailing(t *testing.T) {
	st := seededStore()
	boom := errors.New("boom")
	for _, sig := range []signals.Signal{
		signals.SignalProfile, signals.SignalBusinessProfile, signals.SignalIntegrations,
		signals.SignalEngagement, signals.SignalSubscription, signals.SignalAdminRole,
	} {
		st.Fail(sig, boom)
	}
	c := signals.NewCollector(signals.FromStore(st))

	snap, report := c.Collect(context.Background(), signals.Subject{ID: "user-1", CallerID: "admin-1"})

	assert.Equal(t, userstate.Default("user-1"), snap)
	assert.Len(t, report.Failures, 6)
	assert.ErrorIs(t, report.Err(), boom)
}

func TestCollect_NilSourcesAreFailures(t *testing.T) {
	c := signals.NewCollector(signals.Sources{})

	snap, report := c.Collect(context.Background(), signals.Subject{ID: "user-9", CallerID: "caller"})

	assert.Equal(t, userstate.Default("user-9"), snap)
	assert.True(t, report.Failed(signals.SignalAdminRole))
	assert.ErrorIs(t, report.Err(), signals.ErrSourceMissing)
}

func TestCollect_MissingRecordsUseDefaultsWithoutFailure(t *testing.T) {
	c := signals.NewCollector(signals.FromStore(signals.NewMemoryStore()))

	snap, report := c.Collect(context.Background(), signals.Subject{ID: "new-user"})

	assert.True(t, report.OK())
	assert.Equal(t, userstate.Default("new-user"), snap)
}

type slowProfiles struct{}

func (slowProfiles) Profile(ctx context.Context, subjectID string) (*signals.ProfileRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCollect_SlowSourceTimesOut(t *testing.T) {
	sources := signals.FromStore(seededStore())
	sources.Profiles = slowProfiles{}
	c := signals.NewCollector(sources).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	snap, report := c.Collect(context.Background(), signals.Subject{ID: "user-1"})

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, report.Failed(signals.SignalProfile))
	assert.ErrorIs(t, report.Err(), context.DeadlineExceeded)
	assert.Equal(t, 100, snap.ChaosScore)
	assert.Equal(t, userstate.OnboardingNotStarted, snap.OnboardingStep)
	assert.Equal(t, 85, snap.ProfileCompleteness)
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 1, signals.DaysUntil(fixedNow, fixedNow.Add(2*time.Hour)))
	assert.Equal(t, 7, signals.DaysUntil(fixedNow, fixedNow.Add(7*24*time.Hour)))
	assert.Equal(t, 0, signals.DaysUntil(fixedNow, fixedNow.Add(-2*time.Hour)))
	assert.Equal(t, -3, signals.DaysUntil(fixedNow, fixedNow.Add(-3*24*time.Hour)))
}
