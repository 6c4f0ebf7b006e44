package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// CreateScheduledPayment derives the installment plan and books every installment.
func (s *CashflowService) CreateScheduledPayment(ctx context.Context, input *models.NewScheduledPayment) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	payment, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	payment.CreatedBy = actorId(ctx)

	result := &ObligationResult{Kind: models.ObligationKindScheduled, EffectiveDate: payment.Date}
	err = s.write(ctx, "CreateScheduledPayment", func(ctx context.Context, w *ledgerWrite) error {
		if _, err := w.tx.GetLedgerCategory(ctx, payment.LedgerId); err != nil {
			return err
		}
		if err := w.tx.SaveScheduledPayment(ctx, payment); err != nil {
			return err
		}
		res, err := w.cascade(ctx, payment.Date, *payment.LastOccurrence())
		if err != nil {
			return err
		}
		result.Recompute = res
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeScheduledPayment,
			ReferenceId:   payment.ID,
			Action:        models.HistoryActionCreate,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, nil, payment,
			models.DescribeAmount("Scheduled payment", "created", payment.Date, payment.TotalAmount))
	})
	if err != nil {
		return nil, err
	}
	result.Id = payment.ID
	return result, nil
}

// UpdateScheduledPayment re-derives the plan and cascades over both the old and new installments.
func (s *CashflowService) UpdateScheduledPayment(ctx context.Context, id int, input *models.NewScheduledPayment) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	draft, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	var result *ObligationResult
	err = s.write(ctx, "UpdateScheduledPayment", func(ctx context.Context, w *ledgerWrite) error {
		payment, err := w.tx.GetScheduledPayment(ctx, id)
		if err != nil {
			return err
		}
		if _, err := w.tx.GetLedgerCategory(ctx, draft.LedgerId); err != nil {
			return err
		}
		before := *payment
		payment.HotelId = draft.HotelId
		payment.LedgerId = draft.LedgerId
		payment.Date = draft.Date
		payment.EndDate = draft.EndDate
		payment.TotalAmount = draft.TotalAmount
		payment.PaymentTerm = draft.PaymentTerm
		payment.Remarks = draft.Remarks
		payment.DeriveSchedule()
		if err := w.tx.SaveScheduledPayment(ctx, payment); err != nil {
			return err
		}
		res, err := w.cascade(ctx,
			utils.MinDate(before.Date, payment.Date),
			utils.MaxDate(*before.LastOccurrence(), *payment.LastOccurrence()))
		if err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            payment.ID,
			Kind:          models.ObligationKindScheduled,
			EffectiveDate: payment.Date,
			Recompute:     res,
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeScheduledPayment,
			ReferenceId:   payment.ID,
			Action:        models.HistoryActionUpdate,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, before, payment,
			models.DescribeAmount("Scheduled payment", "updated", payment.Date, payment.TotalAmount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CashflowService) DeleteScheduledPayment(ctx context.Context, id int) (*ObligationResult, error) {
	if err := requireLedgerRights(ctx); err != nil {
		return nil, err
	}
	var result *ObligationResult
	err := s.write(ctx, "DeleteScheduledPayment", func(ctx context.Context, w *ledgerWrite) error {
		payment, err := w.tx.GetScheduledPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := w.tx.DeleteScheduledPayment(ctx, id); err != nil {
			return err
		}
		res, err := w.cascade(ctx, payment.Date, *payment.LastOccurrence())
		if err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            id,
			Kind:          models.ObligationKindScheduled,
			EffectiveDate: payment.Date,
			Recompute:     res,
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypeScheduledPayment,
			ReferenceId:   id,
			Action:        models.HistoryActionDelete,
			From:          res.From,
			Through:       res.Through,
		}
		return w.record(ctx, change, payment, nil,
			models.DescribeAmount("Scheduled payment", "deleted", payment.Date, payment.TotalAmount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
