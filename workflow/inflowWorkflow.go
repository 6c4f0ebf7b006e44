package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// RecordActualInflow replaces the actual inflow of date and cascades from it.
func (s *CashflowService) RecordActualInflow(ctx context.Context, date time.Time, input models.NewActualInflow) (*models.LedgerDay, error) {
	date = utils.NormalizeDate(date)
	if input.Amount.IsNegative() {
		return nil, utils.NewValidationError("actual inflow must not be negative")
	}
	var day *models.LedgerDay
	err := s.write(ctx, "RecordActualInflow", func(ctx context.Context, w *ledgerWrite) error {
		if err := requireAfterOpening(ctx, w.tx, date); err != nil {
			return err
		}
		inflow, err := w.tx.GetActualInflow(ctx, date)
		if err != nil {
			return err
		}
		var before *models.ActualInflow
		if inflow == nil {
			inflow = &models.ActualInflow{Date: date}
		} else {
			prev := *inflow
			before = &prev
		}
		inflow.Amount = input.Amount
		inflow.UpdatedBy = actorId(ctx)
		if err := w.tx.SaveActualInflow(ctx, inflow); err != nil {
			return err
		}
		amount := input.Amount
		if _, _, err := w.tx.UpsertDay(ctx, date, models.LedgerDayPatch{ActualInflow: &amount}); err != nil {
			return err
		}
		res, err := w.cascade(ctx, date, date)
		if err != nil {
			return err
		}
		if day, err = w.tx.GetDay(ctx, date); err != nil {
			return err
		}
		action := models.HistoryActionUpdate
		if before == nil {
			action = models.HistoryActionCreate
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeActualInflow,
			ReferenceId:   inflow.ID,
			Action:        action,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, before, inflow,
			models.DescribeAmount("Actual inflow", "recorded", date, input.Amount))
	})
	if err != nil {
		return nil, err
	}
	return day, nil
}

// UpdateProjectedInflow replaces every category line of date. Projected inflow is
// informational, so no cascade runs unless the ledger day had to be created.
func (s *CashflowService) UpdateProjectedInflow(ctx context.Context, date time.Time, input models.NewProjectedInflow) (*models.ProjectedInflow, error) {
	date = utils.NormalizeDate(date)
	var entry *models.ProjectedInflow
	err := s.write(ctx, "UpdateProjectedInflow", func(ctx context.Context, w *ledgerWrite) error {
		if err := requireAfterOpening(ctx, w.tx, date); err != nil {
			return err
		}
		ids := input.LedgerIds()
		categories, err := w.tx.GetLedgerCategoriesByIds(ctx, ids)
		if err != nil {
			return err
		}
		if len(categories) != len(ids) {
			found := make(map[int]bool, len(categories))
			for _, c := range categories {
				found[c.ID] = true
			}
			for _, id := range ids {
				if !found[id] {
					return utils.NewNotFoundError("ledger category", id)
				}
			}
		}

		if entry, err = w.tx.GetProjectedInflow(ctx, date); err != nil {
			return err
		}
		var before *models.ProjectedInflow
		if entry == nil {
			entry = &models.ProjectedInflow{Date: date}
		} else {
			before = cloneProjected(entry)
		}
		if err := entry.ReplaceLines(input); err != nil {
			return err
		}
		if err := w.tx.SaveProjectedInflow(ctx, entry); err != nil {
			return err
		}
		total := entry.TotalAmount
		_, created, err := w.tx.UpsertDay(ctx, date, models.LedgerDayPatch{ProjectedInflow: &total})
		if err != nil {
			return err
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeProjectedInflow,
			ReferenceId:   entry.ID,
			Action:        models.HistoryActionUpdate,
		}
		if created {
			res, err := w.cascade(ctx, date, date)
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
		}
		return w.record(ctx, change, before, entry,
			models.DescribeAmount("Projected inflow", "updated", date, entry.TotalAmount))
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *CashflowService) GetProjectedInflow(ctx context.Context, date time.Time) (*models.ProjectedInflow, error) {
	entry, err := s.Store.GetProjectedInflow(ctx, date)
	if err != nil {
		return nil, utils.AsAppError(err)
	}
	if entry == nil {
		return nil, utils.NewNotFoundError("projected inflow for", utils.FormatDate(date))
	}
	return entry, nil
}

// GenerateMonthResult counts what a bulk generation actually added.
type GenerateMonthResult struct {
	Month            string           `json:"month"`
	DaysCreated      int              `json:"days_created"`
	ProjectedCreated int              `json:"projected_created"`
	LinesAdded       int              `json:"lines_added"`
	ActualCreated    int              `json:"actual_created"`
	Recompute        *RecomputeResult `json:"recompute"`
}

// GenerateMonth makes sure every day of the month has a projected inflow with one line per
// active ledger category, an actual inflow and a ledger row seeded with the obligations
// already landing on it. Rows are upserted by date, so running it again only fills gaps.
// Days on or before the opening balance date are skipped.
func (s *CashflowService) GenerateMonth(ctx context.Context, year int, month time.Month) (*GenerateMonthResult, error) {
	first, last := utils.MonthRange(year, month)
	result := &GenerateMonthResult{Month: first.Format(utils.MonthLayout)}
	err := s.write(ctx, "GenerateMonth", func(ctx context.Context, w *ledgerWrite) error {
		categories, err := w.tx.ListLedgerCategories(ctx)
		if err != nil {
			return err
		}
		var ledgerIds []int
		for _, c := range categories {
			if c.Active() {
				ledgerIds = append(ledgerIds, c.ID)
			}
		}

		start := first
		ob, err := w.tx.GetOpeningBalance(ctx)
		if err != nil {
			return err
		}
		if ob != nil && !first.After(ob.BalanceDate) {
			start = ob.BalanceDate.AddDate(0, 0, 1)
		}
		if start.After(last) {
			return utils.NewValidationError("month %s ends on or before the opening balance date %s",
				result.Month, utils.FormatDate(ob.BalanceDate))
		}

		for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
			entry, err := w.tx.GetProjectedInflow(ctx, d)
			if err != nil {
				return err
			}
			isNew := entry == nil
			if isNew {
				entry = &models.ProjectedInflow{Date: d, TotalAmount: decimal.Zero}
				result.ProjectedCreated++
			}
			lineCount := len(entry.Lines)
			if entry.EnsureLines(ledgerIds) || isNew {
				result.LinesAdded += len(entry.Lines) - lineCount
				if err := w.tx.SaveProjectedInflow(ctx, entry); err != nil {
					return err
				}
			}

			actual, err := w.tx.GetActualInflow(ctx, d)
			if err != nil {
				return err
			}
			if actual == nil {
				if err := w.tx.SaveActualInflow(ctx, &models.ActualInflow{Date: d, Amount: decimal.Zero, UpdatedBy: actorId(ctx)}); err != nil {
					return err
				}
				result.ActualCreated++
			}

			if _, created, err := w.tx.UpsertDay(ctx, d, models.LedgerDayPatch{}); err != nil {
				return err
			} else if created {
				result.DaysCreated++
			}
		}

		res, err := w.cascade(ctx, start, last)
		if err != nil {
			return err
		}
		result.Recompute = res
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeLedgerMonth,
			ReferenceId:   year*100 + int(month),
			Action:        models.HistoryActionCreate,
		}
		if result.DaysCreated > 0 || res.Changed > 0 {
			change.From, change.Through = res.From, res.Through
		}
		return w.record(ctx, change, nil, result, "Ledger month "+result.Month+" generated.")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
