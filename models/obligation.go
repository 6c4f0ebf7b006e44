package models

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// Occurrence is one dated payment an obligation makes.
type Occurrence struct {
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         ObligationKind  `json:"kind"`
	ObligationId int             `json:"obligation_id"`
	Installment  int             `json:"installment"`
}

// Obligation is anything that takes cash out of the ledger on known dates.
type Obligation interface {
	ObligationKind() ObligationKind
	ObligationId() int
	// Occurrences lists the payments that land in [from, to], ascending.
	Occurrences(from, to time.Time) []Occurrence
	// ContributionOn is what the obligation adds to total_payments on date.
	ContributionOn(date time.Time) decimal.Decimal
	// LastOccurrence is nil for obligations that recur indefinitely.
	LastOccurrence() *time.Time
}

func contributionFromOccurrences(o Obligation, date time.Time) decimal.Decimal {
	date = utils.NormalizeDate(date)
	total := decimal.Zero
	for _, occ := range o.Occurrences(date, date) {
		total = total.Add(occ.Amount)
	}
	return total
}

// PaymentsByDate sums every occurrence in [from, to] keyed by utils.FormatDate.
func PaymentsByDate(obligations []Obligation, from, to time.Time) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, o := range obligations {
		for _, occ := range o.Occurrences(from, to) {
			key := utils.FormatDate(occ.Date)
			out[key] = out[key].Add(occ.Amount)
		}
	}
	return out
}

// OccurrencesBetween flattens and sorts the occurrences of all obligations.
func OccurrencesBetween(obligations []Obligation, from, to time.Time) []Occurrence {
	var out []Occurrence
	for _, o := range obligations {
		out = append(out, o.Occurrences(from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ObligationId < out[j].ObligationId
	})
	return out
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}
