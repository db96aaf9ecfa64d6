package signals

import (
	"errors"
	"fmt"
)

// Signal names one independently fetched input of a snapshot.
type Signal string

const (
	SignalProfile         Signal = "profile"
	SignalBusinessProfile Signal = "business_profile"
	SignalIntegrations    Signal = "integrations"
	SignalEngagement      Signal = "engagement"
	SignalSubscription    Signal = "subscription"
	SignalAdminRole       Signal = "admin_role"
)

// ErrSourceMissing is reported when no source is configured for a signal.
var ErrSourceMissing = errors.New("signal source not configured")

// SignalFetchError records one failed signal. It is recovered by the
// collector with the field's fail-safe default and never returned to callers
// of a routing decision.
type SignalFetchError struct {
	Signal    Signal
	SubjectID string
	Err       error
}

func (e *SignalFetchError) Error() string {
	return fmt.Sprintf("signals: fetch %s for %s: %v", e.Signal, e.SubjectID, e.Err)
}

func (e *SignalFetchError) Unwrap() error { return e.Err }

// Report describes which signals fell back to defaults during one collection.
type Report struct {
	Failures []*SignalFetchError
}

// OK reports whether every signal was fetched.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Failed reports whether the given signal fell back to its default.
func (r Report) Failed(sig Signal) bool {
	for _, f := range r.Failures {
		if f.Signal == sig {
			return true
		}
	}
	return false
}

// Err joins the failures, or returns nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
