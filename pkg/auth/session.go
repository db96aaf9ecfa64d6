package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

// SessionIssuer is the iss claim of session tokens.
const SessionIssuer = "navguard/session"

// SessionClaims are the JWT claims of a login session.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// JWTValidator validates session tokens.
type JWTValidator struct {
	KeySet identity.KeySet
}

// NewJWTValidator returns nil for a nil key set; a nil validator rejects
// every token.
func NewJWTValidator(ks identity.KeySet) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks}
}

// Validate parses and validates a session token string.
func (v *JWTValidator) Validate(tokenStr string) (*SessionClaims, error) {
	if v == nil || v.KeySet == nil {
		return nil, errors.New("validator uninitialized")
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc(),
		jwt.WithIssuer(SessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is required")
	}
	return claims, nil
}

// IssueSession signs a session token for p valid for ttl.
func IssueSession(ctx context.Context, ks identity.KeySet, p Principal, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.GetID(),
			Issuer:    SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: p.GetEmail(),
		Name:  p.GetDisplayName(),
		Roles: p.GetRoles(),
	}
	token, err := ks.Sign(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// PrincipalFromClaims builds the caller described by a validated token.
func PrincipalFromClaims(c *SessionClaims) *BasePrincipal {
	return &BasePrincipal{
		ID:          c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
		Roles:       c.Roles,
	}
}
