package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActualInflow is the cash actually received on a date. One row per date;
// recording again replaces the amount.
type ActualInflow struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Date      time.Time       `gorm:"type:date;not null;uniqueIndex" json:"date"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	UpdatedBy int             `json:"updated_by"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewActualInflow struct {
	Amount decimal.Decimal `json:"amount"`
}
