package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerDay is the running cash position for one calendar date.
// ClosingBalance and TotalPayments are written only by the reconciliation engine.
type LedgerDay struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Date            time.Time       `gorm:"type:date;not null;uniqueIndex" json:"date"`
	ProjectedInflow decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"projected_inflow"`
	ActualInflow    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"actual_inflow"`
	TotalPayments   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_payments"`
	ClosingBalance  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"closing_balance"`
	Version         int             `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerDayPatch is the partial update inflow writers may apply.
// It has no closing or payment fields on purpose: those belong to the engine.
type LedgerDayPatch struct {
	ProjectedInflow *decimal.Decimal
	ActualInflow    *decimal.Decimal
}

// Apply copies the patch onto d and reports whether anything changed.
func (d *LedgerDay) Apply(p LedgerDayPatch) bool {
	changed := false
	if p.ProjectedInflow != nil && !d.ProjectedInflow.Equal(*p.ProjectedInflow) {
		d.ProjectedInflow = *p.ProjectedInflow
		changed = true
	}
	if p.ActualInflow != nil && !d.ActualInflow.Equal(*p.ActualInflow) {
		d.ActualInflow = *p.ActualInflow
		changed = true
	}
	return changed
}

// ClosingFrom is opening + actual inflow - total payments.
func (d LedgerDay) ClosingFrom(opening decimal.Decimal) decimal.Decimal {
	return opening.Add(d.ActualInflow).Sub(d.TotalPayments)
}

func NewEmptyLedgerDay(date time.Time) *LedgerDay {
	return &LedgerDay{
		Date:            date,
		ProjectedInflow: decimal.Zero,
		ActualInflow:    decimal.Zero,
		TotalPayments:   decimal.Zero,
		ClosingBalance:  decimal.Zero,
	}
}

// OpeningBalance is the cash position before the earliest ledger day.
// There is at most one row.
type OpeningBalance struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BalanceDate time.Time       `gorm:"type:date;not null" json:"balance_date"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	UpdatedBy   int             `json:"updated_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOpeningBalance struct {
	BalanceDate string          `json:"balance_date" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// LedgerLock is a single-row table whose row lock serializes ledger writers.
type LedgerLock struct {
	Name      string    `gorm:"primaryKey;size:50" json:"name"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const GlobalLedgerLockName = "cash_ledger"
