package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

type LedgerRange struct {
	StartDate      time.Time           `json:"start_date"`
	EndDate        time.Time           `json:"end_date"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
	Days           []*models.LedgerDay `json:"days"`
}

// GetLedgerRange returns the stored ledger days in [start, end] in date order.
func GetLedgerRange(ctx context.Context, src Source, start, end time.Time) (*LedgerRange, error) {
	start, end, err := validateRange(start, end)
	if err != nil {
		return nil, err
	}
	params := utils.FormatDate(start) + ":" + utils.FormatDate(end)
	return cachedReport(ctx, "ledger-range", params, func() (*LedgerRange, error) {
		started := time.Now()
		defer logSlowReport(ctx, "ledger-range", started, map[string]any{"start": start, "end": end})

		opening, err := openingBefore(ctx, src, start)
		if err != nil {
			return nil, utils.AsAppError(err)
		}
		days, err := src.ListRange(ctx, start, end)
		if err != nil {
			return nil, utils.AsAppError(err)
		}
		if days == nil {
			days = []*models.LedgerDay{}
		}
		closing := opening
		if len(days) > 0 {
			closing = days[len(days)-1].ClosingBalance
		}
		return &LedgerRange{
			StartDate:      start,
			EndDate:        end,
			OpeningBalance: opening,
			ClosingBalance: closing,
			Days:           days,
		}, nil
	})
}
