// Package impersonation resolves whose identity a request acts on.
//
// An admin may act as another user. The mapping lives in the browsing session
// as a signed token and is only ever read through Overlay.Resolve. The overlay
// stores and surfaces the mapping; it never grants privilege, so callers must
// verify admin membership before calling Start.
package impersonation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

const (
	// DefaultMaxAge bounds a session even if the browser session outlives it.
	DefaultMaxAge = 12 * time.Hour
	// DefaultExitPath is the endpoint that ends impersonation.
	DefaultExitPath = "/api/impersonation"
)

var (
	ErrMissingIdentity = errors.New("impersonation: original and target identities are required")
	ErrSelfTarget      = errors.New("impersonation: cannot impersonate yourself")
)

// Resolution is the outcome of resolving the effective identity.
type Resolution struct {
	EffectiveID     string
	Effective       Identity
	IsImpersonating bool
	// Banner is set only while impersonating.
	Banner *Banner
}

// Subject converts the resolution into the request-scoped subject.
func (r Resolution) Subject() auth.Subject {
	return auth.Subject{
		ID:            r.EffectiveID,
		Email:         r.Effective.Email,
		DisplayName:   r.Effective.DisplayName,
		Impersonating: r.IsImpersonating,
	}
}

// Overlay is safe for concurrent use; per-session state lives in the Scope.
type Overlay struct {
	codec    *codec
	exitPath string
	clock    func() time.Time
	logger   *slog.Logger
}

// NewOverlay signs sessions with keys.
func NewOverlay(keys identity.KeySet) *Overlay {
	o := &Overlay{
		exitPath: DefaultExitPath,
		clock:    time.Now,
		logger:   slog.Default().With("component", "impersonation"),
	}
	o.codec = &codec{keys: keys, ttl: DefaultMaxAge, clock: o.now}
	return o
}

func (o *Overlay) now() time.Time { return o.clock() }

// WithClock overrides clock for testing.
func (o *Overlay) WithClock(clock func() time.Time) *Overlay {
	o.clock = clock
	return o
}

// WithMaxAge sets how long a started session stays valid.
func (o *Overlay) WithMaxAge(d time.Duration) *Overlay {
	if d > 0 {
		o.codec.ttl = d
	}
	return o
}

// WithLogger replaces the component logger.
func (o *Overlay) WithLogger(l *slog.Logger) *Overlay {
	if l != nil {
		o.logger = l.With("component", "impersonation")
	}
	return o
}

// Start stores a mapping from original to target in scope, replacing any
// active session. Admin privilege must already have been verified.
func (o *Overlay) Start(ctx context.Context, scope Scope, original, target Identity) (Session, error) {
	if original.ID == "" || target.ID == "" {
		return Session{}, ErrMissingIdentity
	}
	if original.ID == target.ID {
		return Session{}, ErrSelfTarget
	}

	s := Session{
		OriginalIdentity:     original.ID,
		EffectiveIdentity:    target.ID,
		EffectiveDisplayName: target.DisplayName,
		EffectiveEmail:       target.Email,
		StartedAt:            o.clock().UTC().Truncate(time.Second),
	}
	token, err := o.codec.encode(ctx, s)
	if err != nil {
		return Session{}, err
	}
	if err := scope.Store(ctx, token); err != nil {
		return Session{}, err
	}
	o.logger.InfoContext(ctx, "impersonation started", "original", original.ID, "effective", target.ID)
	return s, nil
}

// Resolve returns the identity the request acts on. It never fails: a session
// that is malformed, unsigned, expired or started by someone else is discarded
// and the caller acts as themselves.
func (o *Overlay) Resolve(ctx context.Context, scope Scope, authenticated Identity) Resolution {
	self := Resolution{EffectiveID: authenticated.ID, Effective: authenticated}
	if scope == nil || authenticated.ID == "" {
		return self
	}
	token, ok := scope.Load(ctx)
	if !ok {
		return self
	}

	s, err := o.codec.decode(token)
	if err == nil && s.OriginalIdentity != authenticated.ID {
		err = &InvalidStateError{Reason: "session belongs to another identity"}
	}
	if err != nil {
		o.logger.WarnContext(ctx, "discarding impersonation session", "caller", authenticated.ID, "error", err)
		scope.Clear(ctx)
		return self
	}

	return Resolution{
		EffectiveID: s.EffectiveIdentity,
		Effective: Identity{
			ID:          s.EffectiveIdentity,
			Email:       s.EffectiveEmail,
			DisplayName: s.EffectiveDisplayName,
		},
		IsImpersonating: true,
		Banner:          o.banner(s),
	}
}

// Banner returns the banner for the active session, or nil.
func (o *Overlay) Banner(ctx context.Context, scope Scope, authenticated Identity) *Banner {
	return o.Resolve(ctx, scope, authenticated).Banner
}

func (o *Overlay) banner(s Session) *Banner {
	name := s.EffectiveDisplayName
	if name == "" {
		name = s.EffectiveIdentity
	}
	return &Banner{
		EffectiveDisplayName: name,
		EffectiveEmail:       s.EffectiveEmail,
		ExitPath:             o.exitPath,
	}
}

// Exit ends the active session. Exiting with no session is a no-op.
func (o *Overlay) Exit(ctx context.Context, scope Scope) {
	if scope == nil {
		return
	}
	if _, ok := scope.Load(ctx); !ok {
		return
	}
	scope.Clear(ctx)
	o.logger.InfoContext(ctx, "impersonation ended")
}
