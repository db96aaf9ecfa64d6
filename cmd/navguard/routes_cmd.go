package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

func runRoutesCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("routes", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file       string
		jsonOutput bool
	)
	cmd.StringVar(&file, "file", os.Getenv("ROUTES_FILE"), "Route table YAML; defaults to the built-in table")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the table as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	table, err := loadTable(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"version": table.Version().String(),
			"routes":  table.Routes(),
		})
		return 0
	}

	fmt.Fprintf(stdout, "route table v%s\n", table.Version())
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tGUARDS")
	for _, r := range table.Routes() {
		var guards []string
		if r.RequireAuth {
			guards = append(guards, "auth")
		}
		if r.RequireComplete {
			guards = append(guards, "complete")
		}
		if r.AdminOnly {
			guards = append(guards, "admin")
		}
		if len(guards) == 0 {
			guards = []string{"public"}
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.Path, strings.Join(guards, ","))
	}
	_ = tw.Flush()
	return 0
}
