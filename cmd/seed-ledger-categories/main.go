// seed-ledger-categories creates the revenue categories projected inflow lines are keyed by.
// Existing names are left alone.
//
// Usage:
//
//	go run ./cmd/seed-ledger-categories -names "Rooms,F&B,Spa"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
)

const defaultCategories = "Rooms,F&B,Banquet,Other Revenue"

func main() {
	names := flag.String("names", defaultCategories, "Comma separated category names")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	store := workflow.NewGormStore(db, config.DatabaseDriver())
	svc := workflow.NewCashflowService(store, config.GetLogger())
	ctx := workflow.SystemContext(context.Background(), "")

	existing, err := store.ListLedgerCategories(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list categories: %v\n", err)
		os.Exit(1)
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[strings.ToLower(c.Name)] = true
	}

	for _, name := range strings.Split(*names, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		c, err := svc.CreateLedgerCategory(ctx, models.NewLedgerCategory{Name: name})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create %q: %v\n", name, err)
			os.Exit(1)
		}
		seen[strings.ToLower(name)] = true
		fmt.Printf("Created ledger category id=%d name=%s\n", c.ID, c.Name)
	}
}
