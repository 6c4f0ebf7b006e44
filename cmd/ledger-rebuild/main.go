// ledger-rebuild recomputes every ledger day from a date through the last known day.
//
// Usage:
//
//	DB_DRIVER=mysql DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/ledger-rebuild -from 2024-03-01
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
	fromDateStr := flag.String("from", "", "Optional: rebuild from date (YYYY-MM-DD). Defaults to the first ledger day.")
	flag.Parse()

	var from time.Time
	if strings.TrimSpace(*fromDateStr) != "" {
		d, err := utils.ParseDate(*fromDateStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid from date: %v\n", err)
			os.Exit(1)
		}
		from = d
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
				config.LogError(logger, "ledger-rebuild", "main", "BumpLedgerVersion", change, err)
			}
		}
	}

	ctx := workflow.SystemContext(context.Background(), "ledger-rebuild-"+uuid.NewString())
	res, err := svc.RecomputeLedger(ctx, from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt %s..%s days=%d changed=%d synthesized=%d\n",
		utils.FormatDate(res.From), utils.FormatDate(res.Through), res.Days, res.Changed, res.Synthesized)
}
