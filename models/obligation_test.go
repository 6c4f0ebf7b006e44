package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestScheduledPaymentMonthlyEmi(t *testing.T) {
	p, err := NewScheduledPayment{
		HotelId:     1,
		LedgerId:    1,
		Date:        "2024-01-01",
		EndDate:     "2024-12-31",
		TotalAmount: decimal.NewFromInt(12000),
		PaymentTerm: PaymentTermMonthly,
	}.ToModel()
	if err != nil {
		t.Fatalf("ToModel: %v", err)
	}
	if p.TotalMonths != 12 {
		t.Fatalf("expected total months 12, got %d", p.TotalMonths)
	}
	if p.Installments != 12 {
		t.Fatalf("expected 12 installments, got %d", p.Installments)
	}
	if !p.Emi.Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("expected emi 1000.00, got %s", p.Emi)
	}
	schedule := p.InstallmentSchedule()
	if len(schedule) != 12 {
		t.Fatalf("expected 12 installments in schedule, got %d", len(schedule))
	}
	if !schedule[11].Date.Equal(day("2024-12-01")) {
		t.Fatalf("expected last installment on 2024-12-01, got %s", schedule[11].Date)
	}
}

func TestScheduledPaymentRemainderGoesToLastInstallment(t *testing.T) {
	p := ScheduledPayment{
		Date:        day("2024-01-31"),
		EndDate:     day("2024-12-31"),
		TotalAmount: decimal.NewFromInt(1000),
		PaymentTerm: PaymentTermQuarterly,
	}
	p.DeriveSchedule()
	if p.Installments != 4 {
		t.Fatalf("expected 4 installments, got %d", p.Installments)
	}
	if !p.Emi.Equal(decimal.RequireFromString("250")) {
		t.Fatalf("expected emi 250, got %s", p.Emi)
	}

	p.TotalAmount = decimal.NewFromInt(100)
	p.PaymentTerm = PaymentTermMonthly
	p.EndDate = day("2024-04-15")
	p.DeriveSchedule()
	if p.Installments != 3 {
		t.Fatalf("expected 3 installments, got %d", p.Installments)
	}
	schedule := p.InstallmentSchedule()
	sum := decimal.Zero
	for _, inst := range schedule {
		sum = sum.Add(inst.Amount)
	}
	if !sum.Equal(p.TotalAmount) {
		t.Fatalf("installments sum to %s, want %s", sum, p.TotalAmount)
	}
	if !schedule[2].Amount.Equal(decimal.RequireFromString("33.34")) {
		t.Fatalf("expected last installment 33.34, got %s", schedule[2].Amount)
	}
	// Jan 31 + 1 month clamps to Feb 29 in a leap year
	if !schedule[1].Date.Equal(day("2024-02-29")) {
		t.Fatalf("expected second installment on 2024-02-29, got %s", schedule[1].Date)
	}
}

func TestScheduledPaymentFullPayment(t *testing.T) {
	p := ScheduledPayment{
		Date:        day("2024-05-10"),
		EndDate:     day("2025-05-09"),
		TotalAmount: decimal.NewFromInt(5000),
		PaymentTerm: PaymentTermFullPayment,
	}
	p.DeriveSchedule()
	if p.Installments != 1 {
		t.Fatalf("expected 1 installment, got %d", p.Installments)
	}
	if got := p.ContributionOn(day("2024-05-10")); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected full amount on start date, got %s", got)
	}
	if got := p.ContributionOn(day("2024-06-10")); !got.IsZero() {
		t.Fatalf("expected nothing after the single installment, got %s", got)
	}
}

func TestScheduledPaymentRejectsReversedRange(t *testing.T) {
	_, err := NewScheduledPayment{
		HotelId:     1,
		LedgerId:    1,
		Date:        "2024-06-01",
		EndDate:     "2024-01-01",
		TotalAmount: decimal.NewFromInt(10),
		PaymentTerm: PaymentTermMonthly,
	}.ToModel()
	if err == nil {
		t.Fatal("expected validation error for end_date before date")
	}
}

func TestMonthlyPaymentOccurrencesClampDay(t *testing.T) {
	m := MonthlyPayment{
		ID:         7,
		DayOfMonth: 31,
		Amount:     decimal.NewFromInt(50),
		StartDate:  day("2024-01-31"),
	}
	occ := m.Occurrences(day("2024-01-01"), day("2024-04-30"))
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	if len(occ) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(occ))
	}
	for i, w := range want {
		if !occ[i].Date.Equal(day(w)) {
			t.Fatalf("occurrence %d: got %s want %s", i, occ[i].Date, w)
		}
		if occ[i].ObligationId != 7 || occ[i].Kind != ObligationKindMonthly {
			t.Fatalf("occurrence %d carries wrong identity: %+v", i, occ[i])
		}
	}
}

func TestMonthlyPaymentRespectsStartAndEnd(t *testing.T) {
	end := day("2024-03-14")
	m := MonthlyPayment{
		DayOfMonth: 15,
		Amount:     decimal.NewFromInt(10),
		StartDate:  day("2024-01-15"),
		EndDate:    &end,
	}
	if got := m.ContributionOn(day("2023-12-15")); !got.IsZero() {
		t.Fatalf("expected no contribution before start, got %s", got)
	}
	if got := m.ContributionOn(day("2024-02-15")); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected contribution on 2024-02-15, got %s", got)
	}
	if got := m.ContributionOn(day("2024-03-15")); !got.IsZero() {
		t.Fatalf("expected no contribution after end, got %s", got)
	}
	last := m.LastOccurrence()
	if last == nil || !last.Equal(day("2024-02-15")) {
		t.Fatalf("expected last occurrence 2024-02-15, got %v", last)
	}
}

func TestMonthlyPaymentStartMonth(t *testing.T) {
	m, err := NewMonthlyPayment{
		HotelId:    1,
		LedgerId:   2,
		DayOfMonth: 30,
		Amount:     decimal.NewFromInt(100),
		StartMonth: "2023-02",
	}.ToModel(day("2024-06-01"))
	if err != nil {
		t.Fatalf("ToModel: %v", err)
	}
	if !m.StartDate.Equal(day("2023-02-28")) {
		t.Fatalf("expected start 2023-02-28, got %s", m.StartDate)
	}
	if m.PaymentStatus != MonthlyPaymentStatusActive {
		t.Fatalf("expected Active, got %s", m.PaymentStatus)
	}
	next, ok := m.NextOccurrenceOnOrAfter(day("2024-06-01"))
	if !ok || !next.Equal(day("2024-06-30")) {
		t.Fatalf("expected next occurrence 2024-06-30, got %s (%v)", next, ok)
	}
}

func TestPaymentRequestContributesOnlyWhenCompleted(t *testing.T) {
	r := PaymentRequest{
		ID:      3,
		Amount:  decimal.NewFromInt(800),
		DueDate: day("2024-03-01"),
		Status:  PaymentRequestStatusTransferPending,
	}
	if got := r.ContributionOn(day("2024-03-01")); !got.IsZero() {
		t.Fatalf("pending request must not contribute, got %s", got)
	}
	r.Status = PaymentRequestStatusTransferCompleted
	if got := r.ContributionOn(day("2024-03-01")); !got.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("completed request must contribute its amount, got %s", got)
	}
	if got := r.ContributionOn(day("2024-03-02")); !got.IsZero() {
		t.Fatalf("request contributes only on its due date, got %s", got)
	}
}

func TestPaymentsByDateSumsAllKinds(t *testing.T) {
	obligations := []Obligation{
		PaymentRequest{ID: 1, Amount: decimal.NewFromInt(100), DueDate: day("2024-03-05"), Status: PaymentRequestStatusTransferCompleted},
		MonthlyPayment{ID: 2, DayOfMonth: 5, Amount: decimal.NewFromInt(20), StartDate: day("2024-01-05")},
		ScheduledPayment{ID: 3, Date: day("2024-03-05"), EndDate: day("2024-03-05"), TotalAmount: decimal.NewFromInt(3), PaymentTerm: PaymentTermFullPayment, Installments: 1, Emi: decimal.NewFromInt(3)},
	}
	sums := PaymentsByDate(obligations, day("2024-03-01"), day("2024-04-30"))
	if got := sums["2024-03-05"]; !got.Equal(decimal.NewFromInt(123)) {
		t.Fatalf("expected 123 on 2024-03-05, got %s", got)
	}
	if got := sums["2024-04-05"]; !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 on 2024-04-05, got %s", got)
	}
	occ := OccurrencesBetween(obligations, day("2024-03-05"), day("2024-03-05"))
	if len(occ) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(occ))
	}
}
