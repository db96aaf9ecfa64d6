// Package identity manages the keys that sign session and impersonation
// tokens.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// maxRetainedKeys bounds how many retired keys still verify.
const maxRetainedKeys = 10

// KeySet signs with its active key and verifies with any retained key, so
// keys can rotate without invalidating live sessions.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc returns the key for verification based on the token header.
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds Ed25519 keys in memory. Tokens do not survive a
// process restart.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	order      []string
	keys       map[string]ed25519.PrivateKey
}

func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]ed25519.PrivateKey)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active key. The oldest key is evicted once more
// than maxRetainedKeys are held.
func (ks *InMemoryKeySet) Rotate() error {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	kid := "ed-" + uuid.NewString()
	ks.keys[kid] = privateKey
	ks.order = append(ks.order, kid)
	ks.currentKID = kid

	for len(ks.order) > maxRetainedKeys {
		delete(ks.keys, ks.order[0])
		ks.order = ks.order[1:]
	}
	return nil
}

// CurrentKID returns the id of the active key.
func (ks *InMemoryKeySet) CurrentKID() string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.currentKID
}

func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", errors.New("no active key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return key.Public(), nil
	}
}

// HMACKeySet signs with a shared secret (HS256). Every replica configured
// with the same secret verifies every other replica's tokens.
type HMACKeySet struct {
	kid    string
	secret []byte
}

// NewHMACKeySet derives a key set from secret.
func NewHMACKeySet(secret []byte) (*HMACKeySet, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	sum := sha256.Sum256(secret)
	return &HMACKeySet{
		kid:    "hs-" + hex.EncodeToString(sum[:6]),
		secret: append([]byte(nil), secret...),
	}, nil
}

// Key derivation labels. Session and impersonation tokens are signed with
// different subkeys of the same secret so one can never be replayed as the
// other.
const (
	PurposeSession       = "navguard-session"
	PurposeImpersonation = "navguard-impersonation"
)

// DeriveHMACKeySet derives a purpose-bound key set from secret with
// HKDF-SHA256.
func DeriveHMACKeySet(secret []byte, purpose string) (*HMACKeySet, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	r := hkdf.New(sha256.New, secret, []byte("navguard-kdf"), []byte(purpose))
	sub := make([]byte, MinSecretLength)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return NewHMACKeySet(sub)
}

func (ks *HMACKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = ks.kid
	return token.SignedString(ks.secret)
}

func (ks *HMACKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if kid, _ := token.Header["kid"].(string); kid != ks.kid {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return ks.secret, nil
	}
}
