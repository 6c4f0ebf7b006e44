package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// ObligationResult is returned by every obligation write.
type ObligationResult struct {
	Id            int                   `json:"id"`
	Kind          models.ObligationKind `json:"kind"`
	EffectiveDate time.Time             `json:"effective_date"`
	Status        string                `json:"status,omitempty"`
	Recompute     *RecomputeResult      `json:"recompute,omitempty"`
}

// CreatePaymentRequest stores a new request at Pending, or at Transfer Completed when the
// creator holds a privileged role, in which case it must pass the solvency gate and
// immediately counts towards its due date.
func (s *CashflowService) CreatePaymentRequest(ctx context.Context, input *models.NewPaymentRequest) (*ObligationResult, error) {
	request, err := input.ToModel(s.today())
	if err != nil {
		return nil, err
	}
	request.CreatedBy = actorId(ctx)
	request.CreatedByName, _ = utils.GetUserNameFromContext(ctx)
	request.Status = models.PaymentRequestStatusPending
	if config.IsPrivilegedRole(actorRole(ctx)) {
		request.Status = models.PaymentRequestStatusTransferCompleted
		now := time.Now().UTC()
		request.StatusChangedBy = request.CreatedBy
		request.StatusChangedAt = &now
	}

	result := &ObligationResult{Kind: models.ObligationKindRequest, EffectiveDate: request.DueDate}
	err = s.write(ctx, "CreatePaymentRequest", func(ctx context.Context, w *ledgerWrite) error {
		if _, err := w.tx.GetLedgerCategory(ctx, request.LedgerId); err != nil {
			return err
		}
		completed := request.Status == models.PaymentRequestStatusTransferCompleted
		if completed {
			if err := requireAfterOpening(ctx, w.tx, request.DueDate); err != nil {
				return err
			}
			if _, err := CheckSolvency(ctx, w.tx, request.DueDate, request.Amount, nil); err != nil {
				return err
			}
		}
		if err := w.tx.SavePaymentRequest(ctx, request); err != nil {
			return err
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypePaymentRequest,
			ReferenceId:   request.ID,
			Action:        models.HistoryActionCreate,
		}
		if completed {
			res, err := w.cascade(ctx, request.DueDate, request.DueDate)
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
			result.Recompute = res
		}
		return w.record(ctx, change, nil, request,
			models.DescribeAmount("Payment request", "created", request.DueDate, request.Amount))
	})
	if err != nil {
		return nil, err
	}
	result.Id = request.ID
	result.Status = string(request.Status)
	return result, nil
}

// UpdatePaymentRequestStatus drives the request state machine. Moving into Transfer
// Completed re-checks solvency on the due date; a rejected move leaves the request as it was.
func (s *CashflowService) UpdatePaymentRequestStatus(ctx context.Context, id int, next models.PaymentRequestStatus) (*ObligationResult, error) {
	var result *ObligationResult
	err := s.write(ctx, "UpdatePaymentRequestStatus", func(ctx context.Context, w *ledgerWrite) error {
		request, err := w.tx.GetPaymentRequest(ctx, id)
		if err != nil {
			return err
		}
		if request.Status == next {
			return utils.NewValidationError("payment request %d is already %s", id, next)
		}
		if request.Status.IsTerminal() {
			return utils.NewValidationError("payment request %d is %s and can no longer change status", id, request.Status)
		}
		if !request.Status.CanTransitionTo(next) {
			return utils.NewValidationError("payment request %d cannot move from %s to %s", id, request.Status, next)
		}
		if !models.RoleMayTransitionTo(actorRole(ctx), next) {
			return utils.NewForbiddenError("role %q may not move payment requests to %s", actorRole(ctx), next)
		}
		if next == models.PaymentRequestStatusTransferCompleted {
			if err := requireAfterOpening(ctx, w.tx, request.DueDate); err != nil {
				return err
			}
			if _, err := CheckSolvency(ctx, w.tx, request.DueDate, request.Amount, nil); err != nil {
				return err
			}
		}

		before := *request
		now := time.Now().UTC()
		request.Status = next
		request.StatusChangedBy = actorId(ctx)
		request.StatusChangedAt = &now
		if err := w.tx.SavePaymentRequest(ctx, request); err != nil {
			return err
		}

		result = &ObligationResult{
			Id:            request.ID,
			Kind:          models.ObligationKindRequest,
			EffectiveDate: request.DueDate,
			Status:        string(next),
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypePaymentRequest,
			ReferenceId:   request.ID,
			Action:        models.HistoryActionStatus,
		}
		if next == models.PaymentRequestStatusTransferCompleted {
			res, err := w.cascade(ctx, request.DueDate, request.DueDate)
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
			result.Recompute = res
		}
		return w.record(ctx, change, before, request,
			"Payment request moved from "+string(before.Status)+" to "+string(next)+".")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePaymentRequest edits a request that is not Rejected. Completed requests are
// re-checked with their old contribution reversed and cascade from the earlier due date.
func (s *CashflowService) UpdatePaymentRequest(ctx context.Context, id int, input *models.NewPaymentRequest) (*ObligationResult, error) {
	draft, err := input.ToModel(s.today())
	if err != nil {
		return nil, err
	}
	var result *ObligationResult
	err = s.write(ctx, "UpdatePaymentRequest", func(ctx context.Context, w *ledgerWrite) error {
		request, err := w.tx.GetPaymentRequest(ctx, id)
		if err != nil {
			return err
		}
		if request.Status == models.PaymentRequestStatusRejected {
			return utils.NewValidationError("rejected payment request %d cannot be edited", id)
		}
		if _, err := w.tx.GetLedgerCategory(ctx, draft.LedgerId); err != nil {
			return err
		}
		before := *request
		completed := request.Status == models.PaymentRequestStatusTransferCompleted
		if completed {
			if err := requireLedgerRights(ctx); err != nil {
				return err
			}
			if err := requireAfterOpening(ctx, w.tx, draft.DueDate); err != nil {
				return err
			}
			if _, err := CheckSolvency(ctx, w.tx, draft.DueDate, draft.Amount, before); err != nil {
				return err
			}
		}
		request.ApplyEdit(draft)
		if err := w.tx.SavePaymentRequest(ctx, request); err != nil {
			return err
		}

		result = &ObligationResult{
			Id:            request.ID,
			Kind:          models.ObligationKindRequest,
			EffectiveDate: request.DueDate,
			Status:        string(request.Status),
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypePaymentRequest,
			ReferenceId:   request.ID,
			Action:        models.HistoryActionUpdate,
		}
		if completed {
			res, err := w.cascade(ctx,
				utils.MinDate(before.DueDate, request.DueDate),
				utils.MaxDate(before.DueDate, request.DueDate))
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
			result.Recompute = res
		}
		return w.record(ctx, change, before, request,
			models.DescribeAmount("Payment request", "updated", request.DueDate, request.Amount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePaymentRequest removes a request; a completed one releases its due-date payment.
func (s *CashflowService) DeletePaymentRequest(ctx context.Context, id int) (*ObligationResult, error) {
	var result *ObligationResult
	err := s.write(ctx, "DeletePaymentRequest", func(ctx context.Context, w *ledgerWrite) error {
		request, err := w.tx.GetPaymentRequest(ctx, id)
		if err != nil {
			return err
		}
		if request.Status == models.PaymentRequestStatusTransferCompleted {
			if err := requireLedgerRights(ctx); err != nil {
				return err
			}
		}
		if err := w.tx.DeletePaymentRequest(ctx, id); err != nil {
			return err
		}
		result = &ObligationResult{
			Id:            id,
			Kind:          models.ObligationKindRequest,
			EffectiveDate: request.DueDate,
			Status:        string(request.Status),
		}
		change := LedgerChange{
			ReferenceType: models.ReferenceTypePaymentRequest,
			ReferenceId:   id,
			Action:        models.HistoryActionDelete,
		}
		if request.Status == models.PaymentRequestStatusTransferCompleted {
			res, err := w.cascade(ctx, request.DueDate, request.DueDate)
			if err != nil {
				return err
			}
			change.From, change.Through = res.From, res.Through
			result.Recompute = res
		}
		return w.record(ctx, change, request, nil,
			models.DescribeAmount("Payment request", "deleted", request.DueDate, request.Amount))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
