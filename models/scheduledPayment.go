package models

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// ScheduledPayment amortizes TotalAmount over [Date, EndDate] in equal installments.
// TotalMonths, Installments and Emi are derived by DeriveSchedule and persisted.
type ScheduledPayment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	HotelId      int             `gorm:"not null;index" json:"hotel_id"`
	LedgerId     int             `gorm:"not null;index" json:"ledger_id"`
	Date         time.Time       `gorm:"type:date;not null;index" json:"date"`
	EndDate      time.Time       `gorm:"type:date;not null" json:"end_date"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	PaymentTerm  PaymentTerm     `gorm:"size:20;not null" json:"payment_term"`
	TotalMonths  int             `gorm:"not null" json:"total_months"`
	Installments int             `gorm:"not null" json:"installments"`
	Emi          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"emi"`
	Remarks      string          `gorm:"type:text" json:"remarks"`
	CreatedBy    int             `json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewScheduledPayment struct {
	HotelId     int             `json:"hotel_id" binding:"required,gt=0"`
	LedgerId    int             `json:"ledger_id" binding:"required,gt=0"`
	Date        string          `json:"date" binding:"required"`
	EndDate     string          `json:"end_date" binding:"required"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentTerm PaymentTerm     `json:"payment_term" binding:"required"`
	Remarks     string          `json:"remarks"`
}

// Installment is one dated slice of a scheduled payment.
type Installment struct {
	Number int             `json:"number"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

func (input NewScheduledPayment) ToModel() (*ScheduledPayment, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.TotalAmount.IsPositive() {
		return nil, utils.NewValidationError("total_amount must be greater than zero")
	}
	start, err := utils.ParseDate(input.Date)
	if err != nil {
		return nil, utils.NewValidationError("date: %v", err)
	}
	end, err := utils.ParseDate(input.EndDate)
	if err != nil {
		return nil, utils.NewValidationError("end_date: %v", err)
	}
	if end.Before(start) {
		return nil, utils.NewValidationError("end_date must not be before date")
	}
	p := &ScheduledPayment{
		HotelId:     input.HotelId,
		LedgerId:    input.LedgerId,
		Date:        start,
		EndDate:     end,
		TotalAmount: input.TotalAmount,
		PaymentTerm: input.PaymentTerm,
		Remarks:     strings.TrimSpace(input.Remarks),
	}
	p.DeriveSchedule()
	return p, nil
}

// DeriveSchedule fills TotalMonths, Installments and Emi.
//
// TotalMonths counts months from Date up to the day after EndDate, so 2024-01-01..2024-12-31 is 12.
// Installments = ceil(TotalMonths/12 * perYear), at least one.
func (p *ScheduledPayment) DeriveSchedule() {
	start, end := utils.NormalizeDate(p.Date), utils.NormalizeDate(p.EndDate)
	p.TotalMonths = utils.MonthsBetweenCeil(start, end.AddDate(0, 0, 1))
	perYear := p.PaymentTerm.InstallmentsPerYear()
	n := 1
	if perYear > 0 {
		n = (p.TotalMonths*perYear + 11) / 12
	}
	if n < 1 {
		n = 1
	}
	p.Installments = n
	p.Emi = p.TotalAmount.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// InstallmentSchedule lists every installment. The last one absorbs the rounding remainder
// so the amounts always sum to TotalAmount.
func (p ScheduledPayment) InstallmentSchedule() []Installment {
	n := p.Installments
	if n < 1 {
		n = 1
	}
	interval := p.PaymentTerm.IntervalMonths()
	start := utils.NormalizeDate(p.Date)
	out := make([]Installment, 0, n)
	paid := decimal.Zero
	for k := 0; k < n; k++ {
		amount := p.Emi
		if k == n-1 {
			amount = p.TotalAmount.Sub(paid)
		}
		paid = paid.Add(amount)
		out = append(out, Installment{
			Number: k + 1,
			Date:   utils.AddMonthsClamped(start, k*interval),
			Amount: amount,
		})
	}
	return out
}

func (p ScheduledPayment) ObligationKind() ObligationKind { return ObligationKindScheduled }

func (p ScheduledPayment) ObligationId() int { return p.ID }

func (p ScheduledPayment) Occurrences(from, to time.Time) []Occurrence {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	var out []Occurrence
	for _, inst := range p.InstallmentSchedule() {
		if inRange(inst.Date, from, to) {
			out = append(out, Occurrence{
				Date:         inst.Date,
				Amount:       inst.Amount,
				Kind:         ObligationKindScheduled,
				ObligationId: p.ID,
				Installment:  inst.Number,
			})
		}
	}
	return out
}

func (p ScheduledPayment) ContributionOn(date time.Time) decimal.Decimal {
	return contributionFromOccurrences(p, date)
}

func (p ScheduledPayment) LastOccurrence() *time.Time {
	schedule := p.InstallmentSchedule()
	last := schedule[len(schedule)-1].Date
	return &last
}
