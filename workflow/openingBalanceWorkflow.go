package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// SetOpeningBalance sets the cash position before the first ledger day and rebuilds
// every closing balance from there.
func (s *CashflowService) SetOpeningBalance(ctx context.Context, input models.NewOpeningBalance) (*models.OpeningBalance, error) {
	if err := requireRole(ctx, models.UserRoleAdmin, models.UserRoleSystem); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	balanceDate, err := utils.ParseDate(input.BalanceDate)
	if err != nil {
		return nil, utils.NewValidationError("balance_date: %v", err)
	}

	var ob *models.OpeningBalance
	err = s.write(ctx, "SetOpeningBalance", func(ctx context.Context, w *ledgerWrite) error {
		first, err := w.tx.GetFirstDay(ctx)
		if err != nil {
			return err
		}
		if first != nil && !balanceDate.Before(first.Date) {
			return utils.NewValidationError("balance_date must be before the first ledger day %s", utils.FormatDate(first.Date))
		}
		if ob, err = w.tx.GetOpeningBalance(ctx); err != nil {
			return err
		}
		var before *models.OpeningBalance
		if ob == nil {
			ob = &models.OpeningBalance{}
		} else {
			prev := *ob
			before = &prev
		}
		ob.BalanceDate = balanceDate
		ob.Amount = input.Amount
		ob.UpdatedBy = actorId(ctx)
		if err := w.tx.SaveOpeningBalance(ctx, ob); err != nil {
			return err
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeOpeningBalance,
			ReferenceId:   ob.ID,
			Action:        models.HistoryActionUpdate,
		}
		if first != nil {
			res, err := w.cascade(ctx, first.Date, first.Date)
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
		}
		return w.record(ctx, change, before, ob,
			models.DescribeAmount("Opening balance", "set", balanceDate, input.Amount))
	})
	if err != nil {
		return nil, err
	}
	return ob, nil
}

// RecomputeLedger is the operator rebuild: it reruns the cascade from `from` (or from the
// first ledger day when from is zero) through the last known day.
func (s *CashflowService) RecomputeLedger(ctx context.Context, from time.Time) (*RecomputeResult, error) {
	if err := requireRole(ctx, models.UserRoleAdmin, models.UserRoleSystem); err != nil {
		return nil, err
	}
	var result *RecomputeResult
	err := s.write(ctx, "RecomputeFrom", func(ctx context.Context, w *ledgerWrite) error {
		start := from
		if start.IsZero() {
			first, err := w.tx.GetFirstDay(ctx)
			if err != nil {
				return err
			}
			if first == nil {
				result = &RecomputeResult{}
				return nil
			}
			start = first.Date
		}
		res, err := w.cascade(ctx, start, start)
		if err != nil {
			return err
		}
		result = res
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeLedgerRebuild,
			Action:        models.HistoryActionUpdate,
		}
		if res.Changed > 0 || res.Synthesized > 0 {
			change.From, change.Through = res.From, res.Through
		}
		return w.record(ctx, change, nil, res, "Ledger recomputed from "+utils.FormatDate(res.From)+".")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CashflowService) CreateLedgerCategory(ctx context.Context, input models.NewLedgerCategory) (*models.LedgerCategory, error) {
	category, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	err = s.write(ctx, "CreateLedgerCategory", func(ctx context.Context, w *ledgerWrite) error {
		if err := w.tx.CreateLedgerCategory(ctx, category); err != nil {
			return err
		}
		return w.record(ctx, LedgerChange{
			ReferenceType: models.ReferenceTypeLedgerCategory,
			ReferenceId:   category.ID,
			Action:        models.HistoryActionCreate,
		}, nil, category, "Ledger category "+category.Name+" created.")
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CashflowService) ListLedgerCategories(ctx context.Context) ([]*models.LedgerCategory, error) {
	categories, err := s.Store.ListLedgerCategories(ctx)
	if err != nil {
		return nil, utils.AsAppError(err)
	}
	return categories, nil
}
