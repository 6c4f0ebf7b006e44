package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
)

// LedgerStore owns the per-day ledger rows. Missing rows and missing opening
// balances read as (nil, nil).
type LedgerStore interface {
	GetDay(ctx context.Context, date time.Time) (*models.LedgerDay, error)
	// GetLastKnownBeforeOrOn is the single "closing before date" read every caller shares.
	GetLastKnownBeforeOrOn(ctx context.Context, date time.Time) (*models.LedgerDay, error)
	GetFirstDay(ctx context.Context) (*models.LedgerDay, error)
	GetLastDay(ctx context.Context) (*models.LedgerDay, error)
	ListFrom(ctx context.Context, date time.Time) ([]*models.LedgerDay, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*models.LedgerDay, error)
	// UpsertDay creates the row when missing and applies patch. created is true for new rows.
	UpsertDay(ctx context.Context, date time.Time, patch models.LedgerDayPatch) (day *models.LedgerDay, created bool, err error)
	// SaveBalances persists TotalPayments and ClosingBalance. Only the reconciliation
	// engine calls it; a stale Version is a concurrency conflict.
	SaveBalances(ctx context.Context, day *models.LedgerDay) error
	GetOpeningBalance(ctx context.Context) (*models.OpeningBalance, error)
	SaveOpeningBalance(ctx context.Context, ob *models.OpeningBalance) error
}

type InflowStore interface {
	GetActualInflow(ctx context.Context, date time.Time) (*models.ActualInflow, error)
	SaveActualInflow(ctx context.Context, inflow *models.ActualInflow) error
	ListActualInflows(ctx context.Context, from, to time.Time) ([]*models.ActualInflow, error)
	GetProjectedInflow(ctx context.Context, date time.Time) (*models.ProjectedInflow, error)
	// SaveProjectedInflow upserts the header by date and replaces its lines.
	SaveProjectedInflow(ctx context.Context, inflow *models.ProjectedInflow) error
	ListProjectedInflows(ctx context.Context, from, to time.Time) ([]*models.ProjectedInflow, error)

	GetLedgerCategory(ctx context.Context, id int) (*models.LedgerCategory, error)
	GetLedgerCategoriesByIds(ctx context.Context, ids []int) ([]*models.LedgerCategory, error)
	ListLedgerCategories(ctx context.Context) ([]*models.LedgerCategory, error)
	CreateLedgerCategory(ctx context.Context, category *models.LedgerCategory) error
}

// ObligationStore reads and writes the three obligation kinds. Get* return a NotFound AppError.
type ObligationStore interface {
	GetPaymentRequest(ctx context.Context, id int) (*models.PaymentRequest, error)
	SavePaymentRequest(ctx context.Context, request *models.PaymentRequest) error
	DeletePaymentRequest(ctx context.Context, id int) error
	// ListCompletedPaymentRequests returns Transfer Completed requests due in [from, to].
	ListCompletedPaymentRequests(ctx context.Context, from, to time.Time) ([]*models.PaymentRequest, error)

	GetMonthlyPayment(ctx context.Context, id int) (*models.MonthlyPayment, error)
	SaveMonthlyPayment(ctx context.Context, payment *models.MonthlyPayment) error
	DeleteMonthlyPayment(ctx context.Context, id int) error
	// ListMonthlyPayments returns payments whose [StartDate, EndDate] overlaps [from, to].
	ListMonthlyPayments(ctx context.Context, from, to time.Time) ([]*models.MonthlyPayment, error)

	GetScheduledPayment(ctx context.Context, id int) (*models.ScheduledPayment, error)
	SaveScheduledPayment(ctx context.Context, payment *models.ScheduledPayment) error
	DeleteScheduledPayment(ctx context.Context, id int) error
	// ListScheduledPayments returns payments whose [Date, EndDate] overlaps [from, to].
	ListScheduledPayments(ctx context.Context, from, to time.Time) ([]*models.ScheduledPayment, error)
}

type AuditStore interface {
	CreateHistory(ctx context.Context, history *models.History) error
	ListHistory(ctx context.Context, referenceType models.ReferenceType, referenceId int) ([]*models.History, error)
	CreateCashflowEvent(ctx context.Context, event *models.CashflowEventRecord) error
}

// CommandLog gives command handlers at-most-once processing per message id.
type CommandLog interface {
	// BeginIdempotency records STARTED; skip is true when the message already succeeded.
	BeginIdempotency(ctx context.Context, handlerName, messageId string) (skip bool, err error)
	MarkIdempotencySucceeded(ctx context.Context, handlerName, messageId string) error
	MarkIdempotencyFailed(ctx context.Context, handlerName, messageId string, cause error) error
}

// Store is everything the cashflow service persists. InTransaction runs fn with the
// ledger lock held; fn's store sees its own writes and everything commits or nothing does.
type Store interface {
	LedgerStore
	InflowStore
	ObligationStore
	AuditStore
	CommandLog
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}
