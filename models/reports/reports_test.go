package reports

import (
	"context"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func actor(role string) context.Context {
	return utils.SetActorInContext(context.Background(), 3, "reporter", role)
}

// seededLedger builds March 2024:
//
//	03-01 inflow 500            closing 1500
//	03-02 request 300 Suppliers closing 1200
//	03-03 request 100 Utilities closing 1100
//	03-04 scheduled 120         closing  980
//	03-05 inflow 200, monthly 50 closing 1130
//	03-10 last day              closing 1130
func seededLedger(t *testing.T) (*workflow.MemoryStore, CategoryResolver) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := workflow.NewMemoryStore().WithLockTimeout(5 * time.Second)
	svc := workflow.NewCashflowService(store, logger)
	svc.Now = func() time.Time { return date(2024, 3, 1) }

	admin, finance := actor(models.UserRoleAdmin), actor(models.UserRoleFinance)
	rooms, err := svc.CreateLedgerCategory(admin, models.NewLedgerCategory{Name: "Rooms"})
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	food, err := svc.CreateLedgerCategory(admin, models.NewLedgerCategory{Name: "F&B"})
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	if _, err := svc.SetOpeningBalance(admin, models.NewOpeningBalance{BalanceDate: "2024-02-29", Amount: dec("1000")}); err != nil {
		t.Fatalf("opening balance: %v", err)
	}
	for _, in := range []struct {
		day    int
		amount string
	}{{1, "500"}, {5, "200"}, {10, "0"}} {
		if _, err := svc.RecordActualInflow(finance, date(2024, 3, in.day), models.NewActualInflow{Amount: dec(in.amount)}); err != nil {
			t.Fatalf("inflow: %v", err)
		}
	}
	if _, err := svc.UpdateProjectedInflow(finance, date(2024, 3, 1), models.NewProjectedInflow{Lines: []models.NewProjectedInflowLine{
		{LedgerId: rooms.ID, Amount: dec("400")},
		{LedgerId: food.ID, Amount: dec("150")},
	}}); err != nil {
		t.Fatalf("projected: %v", err)
	}
	if _, err := svc.UpdateProjectedInflow(finance, date(2024, 3, 2), models.NewProjectedInflow{Lines: []models.NewProjectedInflowLine{
		{LedgerId: rooms.ID, Amount: dec("100")},
	}}); err != nil {
		t.Fatalf("projected: %v", err)
	}

	for _, r := range []struct {
		amount, due, group string
	}{{"300", "2024-03-02", "Suppliers"}, {"100", "2024-03-03", "Utilities"}} {
		_, err := svc.CreatePaymentRequest(finance, &models.NewPaymentRequest{
			HotelId: 1, VendorId: 1, DepartmentId: 1, LedgerId: rooms.ID,
			Amount: dec(r.amount), DueDate: r.due, PaymentGroup: r.group,
		})
		if err != nil {
			t.Fatalf("request %s: %v", r.due, err)
		}
	}
	if _, err := svc.CreateScheduledPayment(finance, &models.NewScheduledPayment{
		HotelId: 1, LedgerId: rooms.ID, Date: "2024-03-04", EndDate: "2024-03-04",
		TotalAmount: dec("120"), PaymentTerm: models.PaymentTermFullPayment,
	}); err != nil {
		t.Fatalf("scheduled: %v", err)
	}
	if _, err := svc.CreateMonthlyPayment(finance, &models.NewMonthlyPayment{
		HotelId: 1, LedgerId: food.ID, DayOfMonth: 5, Amount: dec("50"), StartMonth: "2024-03",
	}); err != nil {
		t.Fatalf("monthly: %v", err)
	}

	resolve := func(ctx context.Context, ids []int) ([]*models.LedgerCategory, error) {
		return store.GetLedgerCategoriesByIds(ctx, ids)
	}
	return store, resolve
}

func TestLedgerRangeOpensWithPriorClosing(t *testing.T) {
	store, _ := seededLedger(t)

	got, err := GetLedgerRange(context.Background(), store, date(2024, 3, 2), date(2024, 3, 4))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got.Days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(got.Days))
	}
	if !got.OpeningBalance.Equal(dec("1500")) || !got.ClosingBalance.Equal(dec("980")) {
		t.Fatalf("opening %s closing %s", got.OpeningBalance, got.ClosingBalance)
	}
	for i, d := range got.Days {
		if !d.Date.Equal(date(2024, 3, 2+i)) {
			t.Fatalf("day %d out of order: %s", i, utils.FormatDate(d.Date))
		}
	}

	first, err := GetLedgerRange(context.Background(), store, date(2024, 3, 1), date(2024, 3, 1))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if !first.OpeningBalance.Equal(dec("1000")) {
		t.Fatalf("first day should open with the opening balance, got %s", first.OpeningBalance)
	}
}

func TestLedgerRangeRejectsBadRanges(t *testing.T) {
	store, _ := seededLedger(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"end before start", date(2024, 3, 5), date(2024, 3, 1)},
		{"too long", date(2024, 1, 1), date(2025, 3, 1)},
		{"missing start", time.Time{}, date(2024, 3, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := GetLedgerRange(ctx, store, tc.start, tc.end); !utils.IsKind(err, utils.KindValidation) {
				t.Fatalf("expected Validation, got %v", err)
			}
		})
	}
}

func TestBreakdownListsContributors(t *testing.T) {
	store, _ := seededLedger(t)
	ctx := context.Background()

	tests := []struct {
		day                          int
		requests, monthly, scheduled int
		total                        string
	}{
		{2, 1, 0, 0, "300"},
		{4, 0, 0, 1, "120"},
		{5, 0, 1, 0, "50"},
		{6, 0, 0, 0, "0"},
	}
	for _, tc := range tests {
		b, err := GetBreakdown(ctx, store, date(2024, 3, tc.day))
		if err != nil {
			t.Fatalf("breakdown %d: %v", tc.day, err)
		}
		if len(b.Requests) != tc.requests || len(b.MonthlyPayments) != tc.monthly || len(b.ScheduledPayments) != tc.scheduled {
			t.Errorf("03-%02d: %d requests, %d monthly, %d scheduled", tc.day, len(b.Requests), len(b.MonthlyPayments), len(b.ScheduledPayments))
		}
		if !b.TotalPayments.Equal(dec(tc.total)) {
			t.Errorf("03-%02d: total %s want %s", tc.day, b.TotalPayments, tc.total)
		}
		if b.Day == nil || !b.Day.TotalPayments.Equal(b.TotalPayments) {
			t.Errorf("03-%02d: breakdown disagrees with the ledger row", tc.day)
		}
	}

	b, _ := GetBreakdown(ctx, store, date(2024, 3, 4))
	if len(b.ScheduledPayments) == 1 && b.ScheduledPayments[0].Installment.Number != 1 {
		t.Fatalf("expected installment 1, got %d", b.ScheduledPayments[0].Installment.Number)
	}
}

func TestCashflowSummaryGroupsInflowAndOutflow(t *testing.T) {
	store, resolve := seededLedger(t)

	s, err := GetCashflowSummary(context.Background(), store, resolve, date(2024, 3, 1), date(2024, 3, 10))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.OpeningBalance.Equal(dec("1000")) || !s.TotalActualInflow.Equal(dec("700")) {
		t.Fatalf("opening %s actual %s", s.OpeningBalance, s.TotalActualInflow)
	}
	if len(s.Inflows) != 2 || s.Inflows[0].LedgerName != "Rooms" || !s.Inflows[0].Amount.Equal(dec("500")) ||
		s.Inflows[1].LedgerName != "F&B" || !s.Inflows[1].Amount.Equal(dec("150")) {
		t.Fatalf("inflows: %+v", s.Inflows)
	}
	if !s.TotalProjectedInflow.Equal(dec("650")) {
		t.Fatalf("projected total %s", s.TotalProjectedInflow)
	}

	want := map[string]string{"Suppliers": "300", "Utilities": "100", OtherPaymentsGroup: "170"}
	if len(s.Outflows) != len(want) {
		t.Fatalf("outflows: %+v", s.Outflows)
	}
	for _, o := range s.Outflows {
		if !o.Amount.Equal(dec(want[o.PaymentGroup])) {
			t.Errorf("%s: got %s want %s", o.PaymentGroup, o.Amount, want[o.PaymentGroup])
		}
	}
	if s.Outflows[len(s.Outflows)-1].PaymentGroup != OtherPaymentsGroup {
		t.Fatalf("other payments should come last")
	}
	if !s.TotalOutflow.Equal(dec("570")) || !s.NetCashInHand.Equal(dec("1130")) {
		t.Fatalf("outflow %s net %s", s.TotalOutflow, s.NetCashInHand)
	}

	day, _ := store.GetDay(context.Background(), date(2024, 3, 10))
	if !s.NetCashInHand.Equal(day.ClosingBalance) {
		t.Fatalf("net cash %s should match the closing of the last day %s", s.NetCashInHand, day.ClosingBalance)
	}
}

func TestCashflowSummaryMidRange(t *testing.T) {
	store, _ := seededLedger(t)

	s, err := GetCashflowSummary(context.Background(), store, nil, date(2024, 3, 3), date(2024, 3, 5))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.OpeningBalance.Equal(dec("1200")) {
		t.Fatalf("opening should be the 03-02 closing, got %s", s.OpeningBalance)
	}
	if len(s.Inflows) != 0 {
		t.Fatalf("no projected lines in range, got %+v", s.Inflows)
	}
	if !s.OtherPayments.Equal(dec("170")) || !s.NetCashInHand.Equal(dec("1130")) {
		t.Fatalf("other %s net %s", s.OtherPayments, s.NetCashInHand)
	}
}
