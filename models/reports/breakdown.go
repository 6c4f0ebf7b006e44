package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

type ScheduledInstallment struct {
	Payment     *models.ScheduledPayment `json:"payment"`
	Installment models.Installment       `json:"installment"`
}

// Breakdown lists every obligation that pays out on one date.
type Breakdown struct {
	Date              time.Time                `json:"date"`
	Day               *models.LedgerDay        `json:"day"`
	Requests          []*models.PaymentRequest `json:"requests"`
	MonthlyPayments   []*models.MonthlyPayment `json:"monthly_payments"`
	ScheduledPayments []ScheduledInstallment   `json:"scheduled_payments"`
	TotalPayments     decimal.Decimal          `json:"total_payments"`
}

func GetBreakdown(ctx context.Context, src Source, date time.Time) (*Breakdown, error) {
	date = utils.NormalizeDate(date)
	if date.IsZero() {
		return nil, utils.NewValidationError("date is required")
	}
	day, err := src.GetDay(ctx, date)
	if err != nil {
		return nil, utils.AsAppError(err)
	}
	set, err := loadObligations(ctx, src, date, date)
	if err != nil {
		return nil, utils.AsAppError(err)
	}

	out := &Breakdown{
		Date:              date,
		Day:               day,
		Requests:          []*models.PaymentRequest{},
		MonthlyPayments:   []*models.MonthlyPayment{},
		ScheduledPayments: []ScheduledInstallment{},
		TotalPayments:     decimal.Zero,
	}
	for _, r := range set.requests {
		if amount := r.ContributionOn(date); !amount.IsZero() {
			out.Requests = append(out.Requests, r)
			out.TotalPayments = out.TotalPayments.Add(amount)
		}
	}
	for _, m := range set.monthly {
		if amount := m.ContributionOn(date); !amount.IsZero() {
			out.MonthlyPayments = append(out.MonthlyPayments, m)
			out.TotalPayments = out.TotalPayments.Add(amount)
		}
	}
	for _, p := range set.scheduled {
		for _, inst := range p.InstallmentSchedule() {
			if inst.Date.Equal(date) {
				out.ScheduledPayments = append(out.ScheduledPayments, ScheduledInstallment{Payment: p, Installment: inst})
				out.TotalPayments = out.TotalPayments.Add(inst.Amount)
			}
		}
	}
	return out, nil
}
