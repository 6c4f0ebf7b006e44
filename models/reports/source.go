package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// maxReportDays bounds every range report.
const maxReportDays = 366

// Source is the read side the reports need. The ledger store satisfies it.
type Source interface {
	GetDay(ctx context.Context, date time.Time) (*models.LedgerDay, error)
	GetLastKnownBeforeOrOn(ctx context.Context, date time.Time) (*models.LedgerDay, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*models.LedgerDay, error)
	GetOpeningBalance(ctx context.Context) (*models.OpeningBalance, error)
	ListProjectedInflows(ctx context.Context, from, to time.Time) ([]*models.ProjectedInflow, error)
	ListCompletedPaymentRequests(ctx context.Context, from, to time.Time) ([]*models.PaymentRequest, error)
	ListMonthlyPayments(ctx context.Context, from, to time.Time) ([]*models.MonthlyPayment, error)
	ListScheduledPayments(ctx context.Context, from, to time.Time) ([]*models.ScheduledPayment, error)
}

// CategoryResolver looks ledger categories up by id. The request-scoped dataloader implements it.
type CategoryResolver func(ctx context.Context, ids []int) ([]*models.LedgerCategory, error)

func validateRange(start, end time.Time) (time.Time, time.Time, error) {
	start, end = utils.NormalizeDate(start), utils.NormalizeDate(end)
	if start.IsZero() || end.IsZero() {
		return start, end, utils.NewValidationError("start and end dates are required")
	}
	if end.Before(start) {
		return start, end, utils.NewValidationError("end date %s is before start date %s", utils.FormatDate(end), utils.FormatDate(start))
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return start, end, utils.NewValidationError("range may span at most %d days", maxReportDays)
	}
	return start, end, nil
}

type obligationSet struct {
	requests  []*models.PaymentRequest
	monthly   []*models.MonthlyPayment
	scheduled []*models.ScheduledPayment
}

func loadObligations(ctx context.Context, src Source, from, to time.Time) (*obligationSet, error) {
	set := &obligationSet{}
	var err error
	if set.requests, err = src.ListCompletedPaymentRequests(ctx, from, to); err != nil {
		return nil, err
	}
	if set.monthly, err = src.ListMonthlyPayments(ctx, from, to); err != nil {
		return nil, err
	}
	if set.scheduled, err = src.ListScheduledPayments(ctx, from, to); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *obligationSet) all() []models.Obligation {
	out := make([]models.Obligation, 0, len(s.requests)+len(s.monthly)+len(s.scheduled))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	for _, m := range s.monthly {
		out = append(out, *m)
	}
	for _, p := range s.scheduled {
		out = append(out, *p)
	}
	return out
}

// openingBefore is the closing balance of the day before date, carrying the last known
// closing across any days that have no row yet.
func openingBefore(ctx context.Context, src Source, date time.Time) (decimal.Decimal, error) {
	dayBefore := date.AddDate(0, 0, -1)
	prior, err := src.GetLastKnownBeforeOrOn(ctx, dayBefore)
	if err != nil {
		return decimal.Zero, err
	}
	if prior == nil {
		ob, err := src.GetOpeningBalance(ctx)
		if err != nil || ob == nil {
			return decimal.Zero, err
		}
		return ob.Amount, nil
	}
	opening := prior.ClosingBalance
	gapStart := prior.Date.AddDate(0, 0, 1)
	if gapStart.After(dayBefore) {
		return opening, nil
	}
	set, err := loadObligations(ctx, src, gapStart, dayBefore)
	if err != nil {
		return decimal.Zero, err
	}
	for _, occ := range models.OccurrencesBetween(set.all(), gapStart, dayBefore) {
		opening = opening.Sub(occ.Amount)
	}
	return opening, nil
}
