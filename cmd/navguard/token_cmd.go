package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/config"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
)

// runTokenCmd issues a session token signed with SESSION_SECRET, for local
// testing against a running server.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		user  string
		email string
		name  string
		roles string
		ttl   time.Duration
	)
	cmd.StringVar(&user, "user", "", "Subject id (REQUIRED)")
	cmd.StringVar(&email, "email", "", "Email claim")
	cmd.StringVar(&name, "name", "", "Display name claim")
	cmd.StringVar(&roles, "roles", "", "Comma-separated role claims (informational only)")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if user == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --user is required")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: config: %v\n", err)
		return 2
	}
	if cfg.SessionSecret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: SESSION_SECRET must be set; an ephemeral key would not match the server's")
		return 1
	}
	keys, err := identity.DeriveHMACKeySet([]byte(cfg.SessionSecret), identity.PurposeSession)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	p := &auth.BasePrincipal{ID: user, Email: email, DisplayName: name}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			p.Roles = append(p.Roles, r)
		}
	}
	token, err := auth.IssueSession(context.Background(), keys, p, ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
