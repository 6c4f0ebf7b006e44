// generate-month creates the ledger days, projected inflow entries and actual inflow rows of
// a month and recomputes balances. Safe to rerun.
//
// Usage:
//
//	go run ./cmd/generate-month -month 2024-03
//	go run ./cmd/generate-month -month 2024-03 -count 3
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models/reports"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
	"github.com/google/uuid"
)

func main() {
	monthStr := flag.String("month", "", "Optional: first month to generate (YYYY-MM). Defaults to the current month.")
	count := flag.Int("count", 1, "Number of consecutive months to generate")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing months and continue with the rest")
	flag.Parse()

	if *count <= 0 {
		fmt.Fprintln(os.Stderr, "--count must be positive")
		os.Exit(1)
	}
	year, month := utils.Today().Year(), utils.Today().Month()
	if strings.TrimSpace(*monthStr) != "" {
		y, m, err := utils.ParseMonth(*monthStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid month: %v\n", err)
			os.Exit(1)
		}
		year, month = y, m
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	svc := workflow.NewCashflowService(workflow.NewGormStore(db, config.DatabaseDriver()), logger)
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
		svc.OnLedgerChanged = func(ctx context.Context, change workflow.LedgerChange) {
			if err := reports.BumpLedgerVersion(ctx); err != nil {
				config.LogError(logger, "generate-month", "main", "BumpLedgerVersion", change, err)
			}
		}
	}

	ctx := workflow.SystemContext(context.Background(), "generate-month-"+uuid.NewString())
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *count; i++ {
		m := first.AddDate(0, i, 0)
		res, err := svc.GenerateMonth(ctx, m.Year(), m.Month())
		if err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "generate %s failed (skipping): %v\n", m.Format(utils.MonthLayout), err)
				continue
			}
			fmt.Fprintf(os.Stderr, "generate %s failed: %v\n", m.Format(utils.MonthLayout), err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s days=%d projected=%d lines=%d actual=%d\n",
			res.Month, res.DaysCreated, res.ProjectedCreated, res.LinesAdded, res.ActualCreated)
	}
}
