package impersonation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

// TokenIssuer is the iss claim of impersonation tokens.
const TokenIssuer = "navguard/impersonation"

type sessionClaims struct {
	jwt.RegisteredClaims
	Target      string `json:"target"`
	TargetName  string `json:"target_name,omitempty"`
	TargetEmail string `json:"target_email,omitempty"`
}

// codec is the only code that reads or writes the stored session format.
type codec struct {
	keys  identity.KeySet
	ttl   time.Duration
	clock func() time.Time
}

func (c *codec) encode(ctx context.Context, s Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   s.OriginalIdentity,
			IssuedAt:  jwt.NewNumericDate(s.StartedAt),
			ExpiresAt: jwt.NewNumericDate(s.StartedAt.Add(c.ttl)),
		},
		Target:      s.EffectiveIdentity,
		TargetName:  s.EffectiveDisplayName,
		TargetEmail: s.EffectiveEmail,
	}
	token, err := c.keys.Sign(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("sign impersonation session: %w", err)
	}
	return token, nil
}

func (c *codec) decode(token string) (Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, c.keys.KeyFunc(),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.clock),
	)
	if err != nil {
		return Session{}, &InvalidStateError{Reason: "unverifiable token", Err: err}
	}
	if !parsed.Valid {
		return Session{}, &InvalidStateError{Reason: "invalid token"}
	}
	if claims.Subject == "" || claims.Target == "" {
		return Session{}, &InvalidStateError{Reason: "incomplete mapping", Err: errors.New("missing identity")}
	}

	var started time.Time
	if claims.IssuedAt != nil {
		started = claims.IssuedAt.Time
	}
	return Session{
		OriginalIdentity:     claims.Subject,
		EffectiveIdentity:    claims.Target,
		EffectiveDisplayName: claims.TargetName,
		EffectiveEmail:       claims.TargetEmail,
		StartedAt:            started,
	}, nil
}
