// GantryGuard - gantry collision check for radiotherapy treatment plans
//
// Predicts gantry collisions with the patient and the treatment couch for
// every beam of a plan and runs the accompanying plan setup checks.
//
// Build:
//   go build -o gantryguard ./cmd/gantryguard
//
// Usage:
//   gantryguard check --plan plan.json --pdf report.pdf
//   gantryguard check --beams beams.csv --couch "Exact Couch with Flat panel" --couch-center-y 163.8

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/piwi3910/GantryGuard/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx, cli.Options{}, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, cli.ErrCollision) {
		os.Exit(2)
	}
	os.Exit(1)
}
