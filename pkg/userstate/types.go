// Package userstate defines the per-evaluation view of an account that routing
// decisions are made on.
//
// A Snapshot is rebuilt for every evaluation and never persisted. Every field
// has a fail-safe default that is used when its source signal is missing or
// could not be fetched; the defaults bias toward the more restrictive outcome.
package userstate

import "strings"

// OnboardingStep is the normalised onboarding progress of a subject.
type OnboardingStep string

const (
	OnboardingNotStarted OnboardingStep = "not_started"
	OnboardingInProgress OnboardingStep = "in_progress"
	OnboardingCompleted  OnboardingStep = "completed"
)

// SetupPreference is the setup path a subject chose during onboarding.
type SetupPreference string

const (
	SetupMinimal SetupPreference = "minimal"
	SetupBuiltin SetupPreference = "builtin"
	SetupConnect SetupPreference = "connect"
	SetupGrow    SetupPreference = "grow"
)

// SubscriptionStatus is the billing state of a subject.
type SubscriptionStatus string

const (
	SubscriptionNone    SubscriptionStatus = "none"
	SubscriptionTrial   SubscriptionStatus = "trial"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Fail-safe defaults substituted when a signal is missing or failed.
const (
	DefaultProfileCompleteness = 0
	DefaultChaosScore          = 100
	DefaultOnboardingStep      = OnboardingNotStarted
	DefaultSetupPreference     = SetupMinimal
	DefaultSubscriptionStatus  = SubscriptionNone
)

// Snapshot is the partially-observed state of one subject.
type Snapshot struct {
	SubjectID              string             `json:"subject_id"`
	ProfileCompleteness    int                `json:"profile_completeness"`
	OnboardingStep         OnboardingStep     `json:"onboarding_step"`
	SetupPreference        SetupPreference    `json:"setup_preference"`
	ChaosScore             int                `json:"chaos_score"`
	HasActiveIntegrations  bool               `json:"has_active_integrations"`
	RecentEngagementEvents int                `json:"recent_engagement_events"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status"`
	TrialDaysRemaining     int                `json:"trial_days_remaining"`
	// IsAdminCaller describes the authenticated caller, not the subject.
	IsAdminCaller bool `json:"is_admin_caller"`
}

// Default returns the all-fail-safe snapshot for subjectID.
func Default(subjectID string) Snapshot {
	return Snapshot{
		SubjectID:           subjectID,
		ProfileCompleteness: DefaultProfileCompleteness,
		OnboardingStep:      DefaultOnboardingStep,
		SetupPreference:     DefaultSetupPreference,
		ChaosScore:          DefaultChaosScore,
		SubscriptionStatus:  DefaultSubscriptionStatus,
	}
}

// Normalize clamps scores and replaces unknown enum values with their defaults.
func (s Snapshot) Normalize() Snapshot {
	s.ProfileCompleteness = ClampScore(s.ProfileCompleteness)
	s.ChaosScore = ClampScore(s.ChaosScore)
	s.OnboardingStep = ParseOnboardingStep(string(s.OnboardingStep))
	s.SetupPreference = ParseSetupPreference(string(s.SetupPreference))
	s.SubscriptionStatus = ParseSubscriptionStatus(string(s.SubscriptionStatus))
	if s.RecentEngagementEvents < 0 {
		s.RecentEngagementEvents = 0
	}
	return s
}

// ClampScore bounds a 0-100 score.
func ClampScore(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// ParseOnboardingStep maps a stored value onto the enum. Unknown or empty
// values become not_started.
func ParseOnboardingStep(raw string) OnboardingStep {
	switch OnboardingStep(canonical(raw)) {
	case OnboardingInProgress:
		return OnboardingInProgress
	case OnboardingCompleted:
		return OnboardingCompleted
	default:
		return OnboardingNotStarted
	}
}

// ParseSetupPreference maps a stored value onto the enum. Unknown or empty
// values become minimal.
func ParseSetupPreference(raw string) SetupPreference {
	switch p := SetupPreference(canonical(raw)); p {
	case SetupBuiltin, SetupConnect, SetupGrow:
		return p
	default:
		return SetupMinimal
	}
}

// ParseSubscriptionStatus maps a stored value onto the enum. Unknown or empty
// values become none.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch s := SubscriptionStatus(canonical(raw)); s {
	case SubscriptionTrial, SubscriptionActive, SubscriptionExpired:
		return s
	default:
		return SubscriptionNone
	}
}

func canonical(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
