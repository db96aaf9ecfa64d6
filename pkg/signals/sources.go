package signals

import (
	"context"
	"time"
)

// ProfileRecord is the raw profile row of a subject.
type ProfileRecord struct {
	OnboardingStep  string
	SetupPreference string
	// ChaosScore is nil when the score was never computed.
	ChaosScore *int
}

// SubscriptionRecord is the raw billing row of a subject.
type SubscriptionRecord struct {
	Status       string
	TrialEndDate *time.Time
}

// ProfileSource reads profile records. A nil record with a nil error means
// the subject has no profile yet.
type ProfileSource interface {
	Profile(ctx context.Context, subjectID string) (*ProfileRecord, error)
}

// BusinessProfileSource reads the unified business profile completeness score.
// A nil score with a nil error means no business profile exists.
type BusinessProfileSource interface {
	ProfileCompleteness(ctx context.Context, subjectID string) (*int, error)
}

// IntegrationSource counts active integrations.
type IntegrationSource interface {
	ActiveIntegrationCount(ctx context.Context, subjectID string) (int, error)
}

// EngagementSource counts engagement events recorded at or after since.
type EngagementSource interface {
	RecentEngagementCount(ctx context.Context, subjectID string, since time.Time) (int, error)
}

// SubscriptionSource reads subscription records. A nil record with a nil
// error means the subject never subscribed.
type SubscriptionSource interface {
	Subscription(ctx context.Context, subjectID string) (*SubscriptionRecord, error)
}

// AdminRoleSource checks admin membership of an authenticated caller.
type AdminRoleSource interface {
	IsAdmin(ctx context.Context, callerID string) (bool, error)
}

// Sources bundles the read models a Collector fans out to. Nil members are
// treated as failed signals.
type Sources struct {
	Profiles         ProfileSource
	BusinessProfiles BusinessProfileSource
	Integrations     IntegrationSource
	Engagement       EngagementSource
	Subscriptions    SubscriptionSource
	AdminRoles       AdminRoleSource
}

// Store is implemented by read-model backends that serve every signal.
type Store interface {
	ProfileSource
	BusinessProfileSource
	IntegrationSource
	EngagementSource
	SubscriptionSource
	AdminRoleSource
}

// FromStore wires every source to the same backend.
func FromStore(s Store) Sources {
	return Sources{
		Profiles:         s,
		BusinessProfiles: s,
		Integrations:     s,
		Engagement:       s,
		Subscriptions:    s,
		AdminRoles:       s,
	}
}
