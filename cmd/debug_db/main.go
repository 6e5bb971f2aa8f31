package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vitos/opening_playbook/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "playbook.db", "path to the audit database")
	date := flag.String("date", "", "session date (YYYY-MM-DD), empty for all")
	limit := flag.Int("limit", 20, "rows per table")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	plans, err := store.ListTradePlans(ctx, *date)
	if err != nil {
		fmt.Printf("Failed to list plans: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d plans:\n", len(plans))
	for _, p := range plans {
		fmt.Printf("- %s %-6s %-12s %-4s qty=%d stop=%.2f%% targets=%v\n",
			p.SessionDate, p.Symbol, p.State, p.Side, p.MaxQuantity, p.StopDistancePct*100, p.PartialTargetsR)
	}

	decisions, err := store.ListGuardrailDecisions(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list guardrail decisions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLatest %d guardrail decisions:\n", len(decisions))
	for _, d := range decisions {
		fmt.Printf("- %s %-8s x%.2f entries=%t %s\n",
			d.EvaluatedAt.Format("2006-01-02 15:04:05"), d.Level, d.RiskMultiplier, d.AllowedNewEntries, strings.Join(d.Reasons, "; "))
	}

	actions, err := store.ListPositionActions(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list position actions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLatest %d position actions:\n", len(actions))
	for _, a := range actions {
		fmt.Printf("- %s %-6s %-12s qty=%d left=%d @%.2f R=%.2f %s\n",
			a.At.Format("15:04:05"), a.Symbol, a.Kind, a.Quantity, a.Remaining, a.Price, a.R, a.Reason)
	}
}
