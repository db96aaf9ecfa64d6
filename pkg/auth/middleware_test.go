package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

func newKeySet(t *testing.T) identity.KeySet {
	t.Helper()
	ks, err := identity.NewHMACKeySet([]byte(strings.Repeat("k", identity.MinSecretLength)))
	require.NoError(t, err)
	return ks
}

func captureHandler(got *Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := GetPrincipal(r.Context()); err == nil {
			*got = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_BearerToken(t *testing.T) {
	ks := newKeySet(t)
	token, err := IssueSession(context.Background(), ks, &BasePrincipal{ID: "user-1", Email: "a@b.co", DisplayName: "Ada"}, time.Hour)
	require.NoError(t, err)

	var got Principal
	h := NewMiddleware(NewJWTValidator(ks))(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.GetID())
	assert.Equal(t, "a@b.co", got.GetEmail())
	assert.Equal(t, "Ada", got.GetDisplayName())
}

func TestMiddleware_SessionCookie(t *testing.T) {
	ks := newKeySet(t)
	token, err := IssueSession(context.Background(), ks, &BasePrincipal{ID: "user-2"}, time.Hour)
	require.NoError(t, err)

	var got Principal
	h := NewMiddleware(NewJWTValidator(ks))(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "user-2", got.GetID())
}

func TestMiddleware_InvalidTokensContinueAnonymously(t *testing.T) {
	ks := newKeySet(t)
	expired, err := ks.Sign(context.Background(), SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    SessionIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)
	wrongIssuer, err := ks.Sign(context.Background(), SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	for name, header := range map[string]string{
		"garbage":      "Bearer not-a-token",
		"expired":      "Bearer " + expired,
		"wrong issuer": "Bearer " + wrongIssuer,
		"basic scheme": "Basic dXNlcjpwYXNz",
	} {
		t.Run(name, func(t *testing.T) {
			var got Principal
			h := NewMiddleware(NewJWTValidator(ks))(captureHandler(&got))
			req := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Nil(t, got)
		})
	}
}

func TestMiddleware_NilValidator(t *testing.T) {
	var got Principal
	h := NewMiddleware(nil)(captureHandler(&got))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x.y.z")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, got)
}

func TestRequirePrincipal(t *testing.T) {
	h := RequirePrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/profile/changed", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPost, "/api/profile/changed", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &BasePrincipal{ID: "u"}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEffectiveSubject(t *testing.T) {
	_, ok := EffectiveSubject(context.Background())
	assert.False(t, ok)

	ctx := WithEffectiveSubject(context.Background(), Subject{ID: "target", Impersonating: true})
	s, ok := EffectiveSubject(ctx)
	require.True(t, ok)
	assert.Equal(t, "target", s.ID)
	assert.True(t, s.Impersonating)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		assert.NotNil(t, Logger(r.Context(), slog.Default()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}
