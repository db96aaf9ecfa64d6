package impersonation

import (
	"errors"
	"fmt"
	"time"
)

// Identity describes one side of an impersonation mapping.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session maps the admin who started impersonating to the identity they act
// as.
type Session struct {
	OriginalIdentity     string    `json:"original_identity"`
	EffectiveIdentity    string    `json:"effective_identity"`
	EffectiveDisplayName string    `json:"effective_display_name,omitempty"`
	EffectiveEmail       string    `json:"effective_email,omitempty"`
	StartedAt            time.Time `json:"started_at"`
}

// Banner is the descriptor the UI chrome shows while impersonating.
type Banner struct {
	EffectiveDisplayName string `json:"effective_display_name"`
	EffectiveEmail       string `json:"effective_email"`
	ExitPath             string `json:"exit_path"`
}

// ErrInvalidState marks a stored session that cannot be trusted.
var ErrInvalidState = errors.New("invalid impersonation state")

// InvalidStateError describes why a stored session was discarded.
type InvalidStateError struct {
	Reason string
	Err    error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid impersonation state: %s: %v", e.Reason, e.Err)
	}
	return "invalid impersonation state: " + e.Reason
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
