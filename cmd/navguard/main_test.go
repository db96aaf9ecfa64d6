package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

// isolate points every environment-driven setting at a throwaway lite-mode
// database.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_ADDR", "ROUTES_FILE", "SESSION_SECRET", "BYPASS_EMAILS",
		"COMPLETION_TTL", "COMPLETION_PREDICATE", "SIGNAL_TIMEOUT", "OTEL_ENABLED",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REDIS_DB", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "navguard.db"))
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"navguard"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	for _, c := range []string{"serve", "decide", "routes", "token", "health"} {
		assert.Contains(t, out, c)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run("launch")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: launch")
}

func TestRun_DefaultsToServer(t *testing.T) {
	calls := 0
	orig := startServer
	startServer = func(io.Writer, io.Writer) int { calls++; return 0 }
	t.Cleanup(func() { startServer = orig })

	code, _, _ := run()
	assert.Equal(t, 0, code)
	code, _, _ = run("serve")
	assert.Equal(t, 0, code)
	assert.Equal(t, 2, calls)
}

func TestRoutesCmd(t *testing.T) {
	isolate(t)

	code, out, _ := run("routes")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "route table v1.0.0")
	assert.Regexp(t, `/admin\s+auth,admin`, out)
	assert.Regexp(t, `/pricing\s+public`, out)

	code, out, _ = run("routes", "--json")
	require.Equal(t, 0, code)
	var body struct {
		Version string `json:"version"`
		Routes  []struct {
			Path string `json:"path"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "1.0.0", body.Version)
	assert.NotEmpty(t, body.Routes)
}

func TestRoutesCmd_File(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1.2.0\nroutes:\n  - path: /reports\n    require_auth: true\n    require_complete: true\n"), 0o600))

	code, out, _ := run("routes", "--file", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "route table v1.2.0")
	assert.Regexp(t, `/reports\s+auth,complete`, out)

	require.NoError(t, os.WriteFile(path, []byte("version: 2.0.0\nroutes: []\n"), 0o600))
	code, _, errOut := run("routes", "--file", path)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "not supported")
}

func TestRoutesCmd_FileRejectsCompleteWithoutAuth(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1.2.0\nroutes:\n  - path: /reports\n    require_complete: true\n"), 0o600))

	code, out, errOut := run("routes", "--file", path)
	assert.Equal(t, 2, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "imply require_auth")
}

func TestTokenCmd(t *testing.T) {
	isolate(t)

	code, _, errOut := run("token", "--user", "user-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "SESSION_SECRET")

	code, _, _ = run("token")
	assert.Equal(t, 2, code)

	secret := strings.Repeat("x", identity.MinSecretLength)
	t.Setenv("SESSION_SECRET", secret)
	code, out, _ := run("token", "--user", "user-1", "--email", "one@example.com", "--roles", "admin, ops")
	require.Equal(t, 0, code)

	keys, err := identity.DeriveHMACKeySet([]byte(secret), identity.PurposeSession)
	require.NoError(t, err)
	claims, err := auth.NewJWTValidator(keys).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "one@example.com", claims.Email)
	assert.Equal(t, []string{"admin", "ops"}, claims.Roles)
}

func TestDecideCmd(t *testing.T) {
	isolate(t)

	code, out, errOut := run("decide", "--user", "user-1", "--path", "/dashboard", "--json")
	require.Equal(t, 0, code, errOut)
	var report decideReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "redirect", report.Verdict)
	assert.Equal(t, "/onboarding", report.Target)
	assert.Equal(t, "onboarding_hard_floor", report.Rule)
	assert.Equal(t, []string{"loading", "evaluating", "redirecting"}, report.States)
	assert.Equal(t, "user-1", report.Subject)
	assert.Empty(t, report.FailedSignals)

	code, out, _ = run("decide", "--path", "/pricing")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "/pricing -> allow (rule default_allow)")

	code, _, _ = run("decide", "--user", "user-1")
	assert.Equal(t, 2, code)
}

func TestDecideCmd_BypassEmail(t *testing.T) {
	isolate(t)
	t.Setenv("BYPASS_EMAILS", "demo@example.com")

	code, out, errOut := run("decide", "--user", "demo", "--email", "Demo@Example.com", "--path", "/onboarding", "--json")
	require.Equal(t, 0, code, errOut)
	var report decideReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Complete)
}

func TestHealthCmd(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	code, out, _ := run("health", "--addr", ok.URL)
	assert.Equal(t, 0, code)
	assert.Equal(t, "OK\n", out)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	code, _, errOut := run("health", "--addr", failing.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "status 503")
}
