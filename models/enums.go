package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// normalizeEnum lowercases and strips separators so "Transfer Pending",
// "transfer_pending" and "TransferPending" all compare equal.
func normalizeEnum(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}

func unmarshalEnum[T ~string](data []byte, parse func(string) (T, error), dest *T) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := parse(s)
	if err != nil {
		return err
	}
	*dest = v
	return nil
}

type PaymentRequestStatus string

const (
	PaymentRequestStatusPending           PaymentRequestStatus = "Pending"
	PaymentRequestStatusTransferPending   PaymentRequestStatus = "Transfer Pending"
	PaymentRequestStatusTransferCompleted PaymentRequestStatus = "Transfer Completed"
	PaymentRequestStatusRejected          PaymentRequestStatus = "Rejected"
)

func ParsePaymentRequestStatus(s string) (PaymentRequestStatus, error) {
	switch normalizeEnum(s) {
	case "pending":
		return PaymentRequestStatusPending, nil
	case "transferpending":
		return PaymentRequestStatusTransferPending, nil
	case "transfercompleted":
		return PaymentRequestStatusTransferCompleted, nil
	case "rejected":
		return PaymentRequestStatusRejected, nil
	}
	return "", errors.New("invalid payment request status")
}

func (s *PaymentRequestStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParsePaymentRequestStatus, s)
}

func (s PaymentRequestStatus) IsTerminal() bool {
	return s == PaymentRequestStatusTransferCompleted || s == PaymentRequestStatusRejected
}

var paymentRequestTransitions = map[PaymentRequestStatus][]PaymentRequestStatus{
	PaymentRequestStatusPending:         {PaymentRequestStatusTransferPending, PaymentRequestStatusRejected},
	PaymentRequestStatusTransferPending: {PaymentRequestStatusTransferCompleted},
}

func (s PaymentRequestStatus) CanTransitionTo(next PaymentRequestStatus) bool {
	for _, allowed := range paymentRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// transition -> roles allowed to perform it
var paymentRequestTransitionRoles = map[PaymentRequestStatus][]string{
	PaymentRequestStatusTransferPending:   {UserRoleAdmin, UserRoleApprover},
	PaymentRequestStatusRejected:          {UserRoleAdmin, UserRoleApprover},
	PaymentRequestStatusTransferCompleted: {UserRoleAdmin, UserRoleFinance},
}

// RoleMayTransitionTo reports whether role can move a request into next.
func RoleMayTransitionTo(role string, next PaymentRequestStatus) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range paymentRequestTransitionRoles[next] {
		if r == role {
			return true
		}
	}
	return false
}

type MonthlyPaymentStatus string

const (
	MonthlyPaymentStatusActive   MonthlyPaymentStatus = "Active"
	MonthlyPaymentStatusInactive MonthlyPaymentStatus = "Inactive"
)

func ParseMonthlyPaymentStatus(s string) (MonthlyPaymentStatus, error) {
	switch normalizeEnum(s) {
	case "active":
		return MonthlyPaymentStatusActive, nil
	case "inactive", "stopped":
		return MonthlyPaymentStatusInactive, nil
	}
	return "", errors.New("invalid monthly payment status")
}

func (s *MonthlyPaymentStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseMonthlyPaymentStatus, s)
}

type PaymentTerm string

const (
	PaymentTermMonthly     PaymentTerm = "monthly"
	PaymentTermQuarterly   PaymentTerm = "quarterly"
	PaymentTermHalfYearly  PaymentTerm = "half-yearly"
	PaymentTermFullPayment PaymentTerm = "full-payment"
)

func ParsePaymentTerm(s string) (PaymentTerm, error) {
	switch normalizeEnum(s) {
	case "monthly":
		return PaymentTermMonthly, nil
	case "quarterly":
		return PaymentTermQuarterly, nil
	case "halfyearly":
		return PaymentTermHalfYearly, nil
	case "fullpayment", "full":
		return PaymentTermFullPayment, nil
	}
	return "", errors.New("invalid payment term")
}

func (t *PaymentTerm) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParsePaymentTerm, t)
}

// InstallmentsPerYear is 0 for full-payment, which always has exactly one installment.
func (t PaymentTerm) InstallmentsPerYear() int {
	switch t {
	case PaymentTermMonthly:
		return 12
	case PaymentTermQuarterly:
		return 4
	case PaymentTermHalfYearly:
		return 2
	}
	return 0
}

func (t PaymentTerm) IntervalMonths() int {
	if per := t.InstallmentsPerYear(); per > 0 {
		return 12 / per
	}
	return 0
}

type ObligationKind string

const (
	ObligationKindRequest   ObligationKind = "request"
	ObligationKindMonthly   ObligationKind = "monthly"
	ObligationKindScheduled ObligationKind = "scheduled"
)

func ParseObligationKind(s string) (ObligationKind, error) {
	switch normalizeEnum(s) {
	case "request", "requests", "paymentrequest", "paymentrequests":
		return ObligationKindRequest, nil
	case "monthly", "monthlypayment", "monthlypayments":
		return ObligationKindMonthly, nil
	case "scheduled", "scheduledpayment", "scheduledpayments":
		return ObligationKindScheduled, nil
	}
	return "", errors.New("invalid obligation kind")
}

const (
	UserRoleAdmin    = "admin"
	UserRoleFinance  = "finance"
	UserRoleApprover = "approver"
	UserRoleStaff    = "staff"
	UserRoleSystem   = "system"
)

type HistoryAction string

const (
	HistoryActionCreate HistoryAction = "C"
	HistoryActionUpdate HistoryAction = "U"
	HistoryActionDelete HistoryAction = "D"
	HistoryActionStatus HistoryAction = "S"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// Outbox publish statuses for CashflowEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
