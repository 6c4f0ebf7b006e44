package workflow

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// ObligationDetail is one obligation with its audit trail and upcoming payments.
type ObligationDetail struct {
	Kind           models.ObligationKind `json:"kind"`
	Obligation     interface{}           `json:"obligation"`
	NextOccurrence *time.Time            `json:"next_occurrence,omitempty"`
	Installments   []models.Installment  `json:"installments,omitempty"`
	History        []*models.History     `json:"history"`
}

func decodePayload[T any](payload json.RawMessage) (*T, error) {
	var input T
	if len(payload) == 0 {
		return nil, utils.NewValidationError("payload is required")
	}
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, utils.NewValidationError("invalid payload: %v", err)
	}
	return &input, nil
}

// CreateObligation creates a payment request, monthly payment or scheduled payment from a JSON payload.
func (s *CashflowService) CreateObligation(ctx context.Context, kind models.ObligationKind, payload json.RawMessage) (*ObligationResult, error) {
	switch kind {
	case models.ObligationKindRequest:
		input, err := decodePayload[models.NewPaymentRequest](payload)
		if err != nil {
			return nil, err
		}
		return s.CreatePaymentRequest(ctx, input)
	case models.ObligationKindMonthly:
		input, err := decodePayload[models.NewMonthlyPayment](payload)
		if err != nil {
			return nil, err
		}
		return s.CreateMonthlyPayment(ctx, input)
	case models.ObligationKindScheduled:
		input, err := decodePayload[models.NewScheduledPayment](payload)
		if err != nil {
			return nil, err
		}
		return s.CreateScheduledPayment(ctx, input)
	}
	return nil, utils.NewValidationError("unknown obligation kind %q", kind)
}

func (s *CashflowService) UpdateObligation(ctx context.Context, kind models.ObligationKind, id int, payload json.RawMessage) (*ObligationResult, error) {
	switch kind {
	case models.ObligationKindRequest:
		input, err := decodePayload[models.NewPaymentRequest](payload)
		if err != nil {
			return nil, err
		}
		return s.UpdatePaymentRequest(ctx, id, input)
	case models.ObligationKindMonthly:
		input, err := decodePayload[models.NewMonthlyPayment](payload)
		if err != nil {
			return nil, err
		}
		return s.UpdateMonthlyPayment(ctx, id, input)
	case models.ObligationKindScheduled:
		input, err := decodePayload[models.NewScheduledPayment](payload)
		if err != nil {
			return nil, err
		}
		return s.UpdateScheduledPayment(ctx, id, input)
	}
	return nil, utils.NewValidationError("unknown obligation kind %q", kind)
}

func (s *CashflowService) DeleteObligation(ctx context.Context, kind models.ObligationKind, id int) (*ObligationResult, error) {
	switch kind {
	case models.ObligationKindRequest:
		return s.DeletePaymentRequest(ctx, id)
	case models.ObligationKindMonthly:
		return s.DeleteMonthlyPayment(ctx, id)
	case models.ObligationKindScheduled:
		return s.DeleteScheduledPayment(ctx, id)
	}
	return nil, utils.NewValidationError("unknown obligation kind %q", kind)
}

// UpdateObligationStatus moves a payment request through its workflow or stops a monthly payment.
func (s *CashflowService) UpdateObligationStatus(ctx context.Context, kind models.ObligationKind, id int, input StatusChange) (*ObligationResult, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	switch kind {
	case models.ObligationKindRequest:
		next, err := models.ParsePaymentRequestStatus(input.Status)
		if err != nil {
			return nil, utils.NewValidationError("%v", err)
		}
		return s.UpdatePaymentRequestStatus(ctx, id, next)
	case models.ObligationKindMonthly:
		return s.UpdateMonthlyPaymentStatus(ctx, id, input)
	case models.ObligationKindScheduled:
		return nil, utils.NewValidationError("scheduled payments have no status")
	}
	return nil, utils.NewValidationError("unknown obligation kind %q", kind)
}

func (s *CashflowService) GetObligation(ctx context.Context, kind models.ObligationKind, id int) (*ObligationDetail, error) {
	detail := &ObligationDetail{Kind: kind}
	var err error
	switch kind {
	case models.ObligationKindRequest:
		var r *models.PaymentRequest
		if r, err = s.Store.GetPaymentRequest(ctx, id); err == nil {
			detail.Obligation = r
		}
	case models.ObligationKindMonthly:
		var m *models.MonthlyPayment
		if m, err = s.Store.GetMonthlyPayment(ctx, id); err == nil {
			detail.Obligation = m
			if next, ok := m.NextOccurrenceOnOrAfter(s.today()); ok {
				detail.NextOccurrence = &next
			}
		}
	case models.ObligationKindScheduled:
		var p *models.ScheduledPayment
		if p, err = s.Store.GetScheduledPayment(ctx, id); err == nil {
			detail.Obligation = p
			detail.Installments = p.InstallmentSchedule()
		}
	default:
		return nil, utils.NewValidationError("unknown obligation kind %q", kind)
	}
	if err != nil {
		return nil, utils.AsAppError(err)
	}
	if detail.History, err = s.Store.ListHistory(ctx, models.ReferenceTypeFor(kind), id); err != nil {
		return nil, utils.AsAppError(err)
	}
	return detail, nil
}
