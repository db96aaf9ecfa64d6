package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/config"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/guard"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

type decideReport struct {
	Path            string             `json:"path"`
	Subject         string             `json:"subject,omitempty"`
	Verdict         string             `json:"verdict"`
	Target          string             `json:"target,omitempty"`
	Rule            string             `json:"rule"`
	States          []string           `json:"states"`
	Complete        bool               `json:"complete"`
	Snapshot        userstate.Snapshot `json:"snapshot"`
	FailedSignals   []string           `json:"failed_signals,omitempty"`
	NextBestActions []string           `json:"next_best_actions,omitempty"`
	DecisionHash    string             `json:"decision_hash"`
}

// runDecideCmd implements `navguard decide`.
//
// Evaluates one navigation against the configured read models without
// starting the server.
//
// Exit codes:
//
//	0 = evaluated
//	2 = usage or runtime error
func runDecideCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("decide", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		user       string
		email      string
		path       string
		jsonOutput bool
	)
	cmd.StringVar(&user, "user", "", "Subject id to evaluate as; empty evaluates anonymously")
	cmd.StringVar(&email, "email", "", "Subject email (bypass list lookup)")
	cmd.StringVar(&path, "path", "", "Requested route (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the evaluation as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --path is required")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: config: %v\n", err)
		return 2
	}
	slog.SetDefault(newLogger(cfg, stderr))

	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = a.Close(ctx) }()

	nav := guard.Navigation{Path: path}
	if user != "" {
		nav.Caller = &auth.BasePrincipal{ID: user, Email: email}
	}
	out := a.guard.Evaluate(ctx, nav)

	report := decideReport{
		Path:            path,
		Subject:         out.Resolution.EffectiveID,
		Verdict:         string(out.Verdict.Kind),
		Target:          out.Verdict.Path,
		Rule:            out.Verdict.Rule,
		Complete:        out.Complete,
		Snapshot:        out.Snapshot,
		NextBestActions: out.NextBestActions,
		DecisionHash:    out.DecisionHash,
	}
	for _, s := range out.Visited {
		report.States = append(report.States, string(s))
	}
	for _, s := range out.FailedSignals {
		report.FailedSignals = append(report.FailedSignals, string(s))
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return 2
		}
		return 0
	}

	verdict := report.Verdict
	if report.Target != "" {
		verdict += " " + report.Target
	}
	fmt.Fprintf(stdout, "%s -> %s (rule %s)\n", report.Path, verdict, report.Rule)
	fmt.Fprintf(stdout, "  states:   %s\n", strings.Join(report.States, " > "))
	if user != "" {
		fmt.Fprintf(stdout, "  complete: %t\n", report.Complete)
		fmt.Fprintf(stdout, "  next:     %s\n", strings.Join(report.NextBestActions, ", "))
	}
	if len(report.FailedSignals) > 0 {
		fmt.Fprintf(stdout, "  failed:   %s\n", strings.Join(report.FailedSignals, ", "))
	}
	fmt.Fprintf(stdout, "  hash:     %s\n", report.DecisionHash)
	return 0
}
