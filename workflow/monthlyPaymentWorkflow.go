package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// StatusChange is the body of a status update. EffectiveDate only applies to monthly
// payments being stopped and defaults to today.
type StatusChange struct {
	Status        string `json:"status" binding:"required"`
	EffectiveDate string `json:"effective_date"`
}

// CreateMonthlyPayment starts a recurring payment. Its first occurrence must have actual
// inflow recorded and enough balance to cover the amount.
func (s *CashflowService) CreateMonthlyPayment(ctx context.Context, input *models.NewMonthlyPayment) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	payment, err := input.ToModel(s.today())
	if err != nil {
		return nil, err
	}
	payment.CreatedBy = actorId(ctx)

	result := &ObligationResult{Kind: models.ObligationKindMonthly, EffectiveDate: payment.StartDate}
	err = s.write(ctx, "CreateMonthlyPayment", func(ctx context.Context, w *ledgerWrite) error {
		if _, err := w.tx.GetLedgerCategory(ctx, payment.LedgerId); err != nil {
			return err
		}
		if _, err := CheckMonthlySolvency(ctx, w.tx, payment.StartDate, payment.Amount, nil); err != nil {
			return err
		}
		if err := w.tx.SaveMonthlyPayment(ctx, payment); err != nil {
			return err
		}
		res, err := w.cascade(ctx, payment.StartDate, payment.StartDate)
		if err != nil {
			return err
		}
		result.Recompute = res
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeMonthlyPayment,
			ReferenceId:   payment.ID,
			Action:        models.HistoryActionCreate,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, nil, payment,
			models.DescribeAmount("Monthly payment", "created", payment.StartDate, payment.Amount))
	})
	if err != nil {
		return nil, err
	}
	result.Id = payment.ID
	result.Status = string(payment.PaymentStatus)
	return result, nil
}

// UpdateMonthlyPayment edits the whole series. The first occurrence is re-checked with the
// old amount reversed, then the ledger cascades from the earlier of the old and new start.
func (s *CashflowService) UpdateMonthlyPayment(ctx context.Context, id int, input *models.NewMonthlyPayment) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	draft, err := input.ToModel(s.today())
	if err != nil {
		return nil, err
	}
	var result *ObligationResult
	err = s.write(ctx, "UpdateMonthlyPayment", func(ctx context.Context, w *ledgerWrite) error {
		payment, err := w.tx.GetMonthlyPayment(ctx, id)
		if err != nil {
			return err
		}
		if payment.PaymentStatus == models.MonthlyPaymentStatusInactive {
			return utils.NewValidationError("stopped monthly payment %d cannot be edited", id)
		}
		if _, err := w.tx.GetLedgerCategory(ctx, draft.LedgerId); err != nil {
			return err
		}
		if strings.TrimSpace(input.StartMonth) == "" {
			// keep the series' start month
			draft.StartDate = utils.DateInMonth(payment.StartDate.Year(), payment.StartDate.Month(), draft.DayOfMonth)
		}
		before := cloneMonthly(payment)
		payment.ApplyEdit(draft)
		if _, err := CheckMonthlySolvency(ctx, w.tx, payment.StartDate, payment.Amount, *before); err != nil {
			return err
		}
		if err := w.tx.SaveMonthlyPayment(ctx, payment); err != nil {
			return err
		}
		res, err := w.cascade(ctx, utils.MinDate(before.StartDate, payment.StartDate), payment.StartDate)
		if err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            payment.ID,
			Kind:          models.ObligationKindMonthly,
			EffectiveDate: payment.StartDate,
			Status:        string(payment.PaymentStatus),
			Recompute:     res,
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeMonthlyPayment,
			ReferenceId:   payment.ID,
			Action:        models.HistoryActionUpdate,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, before, payment,
			models.DescribeAmount("Monthly payment", "updated", payment.StartDate, payment.Amount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateMonthlyPaymentStatus stops an Active series: occurrences from the effective date on
// are dropped and earlier ones stay in the ledger. Stopped series cannot be restarted.
func (s *CashflowService) UpdateMonthlyPaymentStatus(ctx context.Context, id int, input StatusChange) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	next, err := models.ParseMonthlyPaymentStatus(input.Status)
	if err != nil {
		return nil, utils.NewValidationError("%v", err)
	}
	effective := s.today()
	if strings.TrimSpace(input.EffectiveDate) != "" {
		if effective, err = utils.ParseDate(input.EffectiveDate); err != nil {
			return nil, utils.NewValidationError("effective_date: %v", err)
		}
	}

	var result *ObligationResult
	err = s.write(ctx, "UpdateMonthlyPaymentStatus", func(ctx context.Context, w *ledgerWrite) error {
		payment, err := w.tx.GetMonthlyPayment(ctx, id)
		if err != nil {
			return err
		}
		if payment.PaymentStatus == next {
			return utils.NewValidationError("monthly payment %d is already %s", id, next)
		}
		if next == models.MonthlyPaymentStatusActive {
			return utils.NewValidationError("stopped monthly payment %d cannot be restarted, create a new one", id)
		}
		before := cloneMonthly(payment)
		endDate := effective.AddDate(0, 0, -1)
		payment.PaymentStatus = next
		payment.EndDate = &endDate
		if err := w.tx.SaveMonthlyPayment(ctx, payment); err != nil {
			return err
		}
		res, err := w.cascade(ctx, effective, effective)
		if err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            payment.ID,
			Kind:          models.ObligationKindMonthly,
			EffectiveDate: effective,
			Status:        string(next),
			Recompute:     res,
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeMonthlyPayment,
			ReferenceId:   payment.ID,
			Action:        models.HistoryActionStatus,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, before, payment,
			"Monthly payment stopped from "+utils.FormatDate(effective)+".")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteMonthlyPayment removes the series and every occurrence it contributed.
func (s *CashflowService) DeleteMonthlyPayment(ctx context.Context, id int) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	var result *ObligationResult
	err := s.write(ctx, "DeleteMonthlyPayment", func(ctx context.Context, w *ledgerWrite) error {
		payment, err := w.tx.GetMonthlyPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := w.tx.DeleteMonthlyPayment(ctx, id); err != nil {
			return err
		}
		res, err := w.cascade(ctx, payment.StartDate, payment.StartDate)
		if err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            id,
			Kind:          models.ObligationKindMonthly,
			EffectiveDate: payment.StartDate,
			Status:        string(payment.PaymentStatus),
			Recompute:     res,
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeMonthlyPayment,
			ReferenceId:   id,
			Action:        models.HistoryActionDelete,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, payment, nil,
			models.DescribeAmount("Monthly payment", "deleted", payment.StartDate, payment.Amount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
