package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	subjectKey   contextKey = "effective_subject"
)

// ErrNoPrincipal is returned when a request carries no authenticated caller.
var ErrNoPrincipal = errors.New("no principal in context")

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the authenticated caller. Code acting on a user's
// data reads EffectiveSubject instead.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// WithEffectiveSubject attaches the resolved subject. Only the access guard
// and the impersonation resolver set it.
func WithEffectiveSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// EffectiveSubject returns the subject resolved for this request.
func EffectiveSubject(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey).(Subject)
	return s, ok
}
