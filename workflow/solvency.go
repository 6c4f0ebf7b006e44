package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// Availability is the cash a new payment on Date can draw on.
type Availability struct {
	Date         time.Time       `json:"date"`
	Opening      decimal.Decimal `json:"opening"`
	ActualInflow decimal.Decimal `json:"actual_inflow"`
	Payments     decimal.Decimal `json:"payments"`
	// Available = Opening + ActualInflow - Payments
	Available decimal.Decimal `json:"available"`
}

// OpeningOn is the closing balance of the day before date. Days missing between the
// last known row and date contribute their obligations so the figure matches what
// the cascade will produce.
func OpeningOn(ctx context.Context, tx Store, date time.Time) (decimal.Decimal, error) {
	date = utils.NormalizeDate(date)
	dayBefore := date.AddDate(0, 0, -1)
	prior, err := tx.GetLastKnownBeforeOrOn(ctx, dayBefore)
	if err != nil {
		return decimal.Zero, err
	}
	if prior == nil {
		ob, err := tx.GetOpeningBalance(ctx)
		if err != nil || ob == nil {
			return decimal.Zero, err
		}
		return ob.Amount, nil
	}
	opening := prior.ClosingBalance
	if gapStart := prior.Date.AddDate(0, 0, 1); !gapStart.After(dayBefore) {
		obligations, err := LoadObligations(ctx, tx, gapStart, dayBefore)
		if err != nil {
			return decimal.Zero, err
		}
		for _, occ := range models.OccurrencesBetween(obligations, gapStart, dayBefore) {
			opening = opening.Sub(occ.Amount)
		}
	}
	return opening, nil
}

// AvailableOn reports the cash available on date. exclude, when non-nil, is the stored
// version of an obligation being edited; its current contribution is added back so an
// update is checked as reverse-then-reapply.
func AvailableOn(ctx context.Context, tx Store, date time.Time, exclude models.Obligation) (*Availability, error) {
	date = utils.NormalizeDate(date)
	opening, err := OpeningOn(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	actual := decimal.Zero
	day, err := tx.GetDay(ctx, date)
	if err != nil {
		return nil, err
	}
	if day != nil {
		actual = day.ActualInflow
	}
	obligations, err := LoadObligations(ctx, tx, date, date)
	if err != nil {
		return nil, err
	}
	payments := decimal.Zero
	for _, o := range obligations {
		payments = payments.Add(o.ContributionOn(date))
	}
	if exclude != nil {
		payments = payments.Sub(exclude.ContributionOn(date))
	}
	return &Availability{
		Date:         date,
		Opening:      opening,
		ActualInflow: actual,
		Payments:     payments,
		Available:    opening.Add(actual).Sub(payments),
	}, nil
}

// CheckSolvency rejects amount when it exceeds what is available on date.
func CheckSolvency(ctx context.Context, tx Store, date time.Time, amount decimal.Decimal, exclude models.Obligation) (*Availability, error) {
	avail, err := AvailableOn(ctx, tx, date, exclude)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(avail.Available) {
		return avail, utils.NewInsufficientBalanceError(
			"insufficient balance on %s: %s requested, %s available",
			utils.FormatDate(date), amount.StringFixed(2), avail.Available.StringFixed(2))
	}
	return avail, nil
}

// CheckMonthlySolvency adds the monthly-payment rule that the date must have actual inflow.
func CheckMonthlySolvency(ctx context.Context, tx Store, date time.Time, amount decimal.Decimal, exclude models.Obligation) (*Availability, error) {
	avail, err := AvailableOn(ctx, tx, date, exclude)
	if err != nil {
		return nil, err
	}
	if avail.ActualInflow.IsZero() {
		return avail, utils.NewNoInflowError("no actual inflow recorded for %s", utils.FormatDate(date))
	}
	if amount.GreaterThan(avail.Available) {
		return avail, utils.NewInsufficientBalanceError(
			"insufficient balance on %s: %s requested, %s available",
			utils.FormatDate(date), amount.StringFixed(2), avail.Available.StringFixed(2))
	}
	return avail, nil
}
