package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// RecomputeResult describes one cascade run.
type RecomputeResult struct {
	From        time.Time `json:"from"`
	Through     time.Time `json:"through"`
	Days        int       `json:"days"`
	Changed     int       `json:"changed"`
	Synthesized int       `json:"synthesized"`
}

// LoadObligations returns every obligation that may pay out in [from, to].
func LoadObligations(ctx context.Context, tx ObligationStore, from, to time.Time) ([]models.Obligation, error) {
	var out []models.Obligation
	requests, err := tx.ListCompletedPaymentRequests(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		out = append(out, *r)
	}
	monthly, err := tx.ListMonthlyPayments(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, m := range monthly {
		out = append(out, *m)
	}
	scheduled, err := tx.ListScheduledPayments(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, p := range scheduled {
		out = append(out, *p)
	}
	return out, nil
}

// RecomputeFrom walks the ledger forward from `from` and rewrites total_payments and
// closing_balance for every day up to the later of `through` and the last known day.
// Missing days inside the walk are created with zero activity so no day is skipped.
// It is the only writer of closing balances and is idempotent: a second run with no
// intervening writes changes nothing.
func RecomputeFrom(ctx context.Context, tx Store, from, through time.Time) (*RecomputeResult, error) {
	from = utils.NormalizeDate(from)
	through = utils.NormalizeDate(through)
	if through.Before(from) {
		through = from
	}

	opening := decimal.Zero
	start := from
	prior, err := tx.GetLastKnownBeforeOrOn(ctx, from.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	if prior != nil {
		opening = prior.ClosingBalance
		// fill the gap between the last known day and from
		start = prior.Date.AddDate(0, 0, 1)
	} else {
		ob, err := tx.GetOpeningBalance(ctx)
		if err != nil {
			return nil, err
		}
		if ob != nil {
			opening = ob.Amount
		}
	}

	end := through
	last, err := tx.GetLastDay(ctx)
	if err != nil {
		return nil, err
	}
	if last != nil && last.Date.After(end) {
		end = last.Date
	}

	rows, err := tx.ListRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]*models.LedgerDay, len(rows))
	for _, row := range rows {
		byDate[utils.FormatDate(row.Date)] = row
	}
	obligations, err := LoadObligations(ctx, tx, start, end)
	if err != nil {
		return nil, err
	}
	payments := models.PaymentsByDate(obligations, start, end)

	result := &RecomputeResult{From: start, Through: end}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := utils.FormatDate(d)
		row, ok := byDate[key]
		if !ok {
			row, _, err = tx.UpsertDay(ctx, d, models.LedgerDayPatch{})
			if err != nil {
				return nil, err
			}
			result.Synthesized++
		}
		total := payments[key]
		closing := opening.Add(row.ActualInflow).Sub(total)
		if !row.TotalPayments.Equal(total) || !row.ClosingBalance.Equal(closing) {
			row.TotalPayments = total
			row.ClosingBalance = closing
			if err := tx.SaveBalances(ctx, row); err != nil {
				return nil, err
			}
			result.Changed++
		}
		result.Days++
		opening = closing
	}
	return result, nil
}
