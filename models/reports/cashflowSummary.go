package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

const OtherPaymentsGroup = "Other Payments"

type InflowByCategory struct {
	LedgerId   int             `json:"ledger_id"`
	LedgerName string          `json:"ledger_name"`
	Amount     decimal.Decimal `json:"amount"`
}

type OutflowByGroup struct {
	PaymentGroup string          `json:"payment_group"`
	Amount       decimal.Decimal `json:"amount"`
}

type CashflowSummary struct {
	StartDate            time.Time          `json:"start_date"`
	EndDate              time.Time          `json:"end_date"`
	OpeningBalance       decimal.Decimal    `json:"opening_balance"`
	Inflows              []InflowByCategory `json:"inflows"`
	TotalProjectedInflow decimal.Decimal    `json:"total_projected_inflow"`
	TotalActualInflow    decimal.Decimal    `json:"total_actual_inflow"`
	Outflows             []OutflowByGroup   `json:"outflows"`
	OtherPayments        decimal.Decimal    `json:"other_payments"`
	TotalOutflow         decimal.Decimal    `json:"total_outflow"`
	NetCashInHand        decimal.Decimal    `json:"net_cash_in_hand"`
}

// GetCashflowSummary aggregates [start, end]:
//   - inflows grouped by ledger category come from the projected lines, actual inflow is the daily total
//   - completed payment requests are grouped by payment group; monthly and scheduled
//     occurrences share the Other Payments bucket
//   - net cash in hand = opening + actual inflow - outflow
func GetCashflowSummary(ctx context.Context, src Source, resolve CategoryResolver, start, end time.Time) (*CashflowSummary, error) {
	start, end, err := validateRange(start, end)
	if err != nil {
		return nil, err
	}
	params := utils.FormatDate(start) + ":" + utils.FormatDate(end)
	return cachedReport(ctx, "cashflow-summary", params, func() (*CashflowSummary, error) {
		started := time.Now()
		defer logSlowReport(ctx, "cashflow-summary", started, map[string]any{"start": start, "end": end})

		summary, err := buildCashflowSummary(ctx, src, resolve, start, end)
		if err != nil {
			return nil, utils.AsAppError(err)
		}
		return summary, nil
	})
}

func buildCashflowSummary(ctx context.Context, src Source, resolve CategoryResolver, start, end time.Time) (*CashflowSummary, error) {
	opening, err := openingBefore(ctx, src, start)
	if err != nil {
		return nil, err
	}
	out := &CashflowSummary{
		StartDate:            start,
		EndDate:              end,
		OpeningBalance:       opening,
		Inflows:              []InflowByCategory{},
		TotalProjectedInflow: decimal.Zero,
		TotalActualInflow:    decimal.Zero,
		Outflows:             []OutflowByGroup{},
		OtherPayments:        decimal.Zero,
		TotalOutflow:         decimal.Zero,
	}

	days, err := src.ListRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		out.TotalActualInflow = out.TotalActualInflow.Add(d.ActualInflow)
	}

	projected, err := src.ListProjectedInflows(ctx, start, end)
	if err != nil {
		return nil, err
	}
	byLedger := make(map[int]decimal.Decimal)
	for _, p := range projected {
		for ledgerId, amount := range p.AmountByLedger() {
			byLedger[ledgerId] = byLedger[ledgerId].Add(amount)
		}
	}
	ledgerIds := make([]int, 0, len(byLedger))
	for id := range byLedger {
		ledgerIds = append(ledgerIds, id)
	}
	sort.Ints(ledgerIds)
	names, err := categoryNames(ctx, resolve, ledgerIds)
	if err != nil {
		return nil, err
	}
	for _, id := range ledgerIds {
		out.Inflows = append(out.Inflows, InflowByCategory{LedgerId: id, LedgerName: names[id], Amount: byLedger[id]})
		out.TotalProjectedInflow = out.TotalProjectedInflow.Add(byLedger[id])
	}

	set, err := loadObligations(ctx, src, start, end)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[string]decimal.Decimal)
	for _, r := range set.requests {
		for _, occ := range r.Occurrences(start, end) {
			byGroup[r.PaymentGroup] = byGroup[r.PaymentGroup].Add(occ.Amount)
		}
	}
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		out.Outflows = append(out.Outflows, OutflowByGroup{PaymentGroup: g, Amount: byGroup[g]})
		out.TotalOutflow = out.TotalOutflow.Add(byGroup[g])
	}

	var recurring []models.Obligation
	for _, m := range set.monthly {
		recurring = append(recurring, *m)
	}
	for _, p := range set.scheduled {
		recurring = append(recurring, *p)
	}
	for _, occ := range models.OccurrencesBetween(recurring, start, end) {
		out.OtherPayments = out.OtherPayments.Add(occ.Amount)
	}
	if !out.OtherPayments.IsZero() {
		out.Outflows = append(out.Outflows, OutflowByGroup{PaymentGroup: OtherPaymentsGroup, Amount: out.OtherPayments})
		out.TotalOutflow = out.TotalOutflow.Add(out.OtherPayments)
	}

	out.NetCashInHand = opening.Add(out.TotalActualInflow).Sub(out.TotalOutflow)
	return out, nil
}

func categoryNames(ctx context.Context, resolve CategoryResolver, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if resolve == nil || len(ids) == 0 {
		return names, nil
	}
	categories, err := resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		if c != nil {
			names[c.ID] = c.Name
		}
	}
	return names, nil
}
