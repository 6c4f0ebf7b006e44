package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

func (f *fixture) monthly(amount string, day int, startMonth string) *models.NewMonthlyPayment {
	return &models.NewMonthlyPayment{
		HotelId:    1,
		LedgerId:   f.ledgerId,
		DayOfMonth: day,
		Amount:     dec(amount),
		StartMonth: startMonth,
	}
}

func TestMonthlySolvencyGateLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "100")
	f.inflow(t, date(2024, 3, 5), "50")
	f.inflow(t, date(2024, 3, 6), "0")

	ctx := context.Background()
	before, _ := f.store.ListFrom(ctx, date(2024, 3, 1))
	eventsBefore := len(f.store.CashflowEvents())

	_, err := f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("200", 5, "2024-03"))
	if !utils.IsKind(err, utils.KindInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	_, err = f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("10", 6, "2024-03"))
	if !utils.IsKind(err, utils.KindNoInflow) {
		t.Fatalf("expected NoInflow, got %v", err)
	}

	after, _ := f.store.ListFrom(ctx, date(2024, 3, 1))
	if len(before) != len(after) {
		t.Fatalf("rejected writes changed the row count: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Version != after[i].Version || !before[i].ClosingBalance.Equal(after[i].ClosingBalance) {
			t.Fatalf("rejected write touched %s", utils.FormatDate(before[i].Date))
		}
	}
	if len(f.store.CashflowEvents()) != eventsBefore {
		t.Fatalf("rejected writes must not emit events")
	}
}

func TestMonthlyPaymentRecursIntoLaterDays(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 5), "100")

	res, err := f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("50", 5, "2024-03"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.EffectiveDate.Equal(date(2024, 3, 5)) {
		t.Fatalf("effective date: got %s", utils.FormatDate(res.EffectiveDate))
	}
	assertClosing(t, f, date(2024, 3, 5), "1050")

	f.inflow(t, date(2024, 5, 10), "0")
	assertClosing(t, f, date(2024, 4, 4), "1050")
	assertClosing(t, f, date(2024, 4, 5), "1000")
	assertClosing(t, f, date(2024, 5, 5), "950")
	assertInvariant(t, f.store)

	change := StatusChange{Status: "Inactive", EffectiveDate: "2024-04-01"}
	if _, err := f.svc.UpdateObligationStatus(actor(models.UserRoleFinance), models.ObligationKindMonthly, res.Id, change); err != nil {
		t.Fatalf("stop: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "1050")
	assertClosing(t, f, date(2024, 5, 10), "1050")
	assertInvariant(t, f.store)

	_, err = f.svc.UpdateMonthlyPaymentStatus(actor(models.UserRoleFinance), res.Id, StatusChange{Status: "Active"})
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("restarting a stopped series should fail validation, got %v", err)
	}
	_, err = f.svc.UpdateMonthlyPayment(actor(models.UserRoleFinance), res.Id, f.monthly("10", 5, ""))
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("editing a stopped series should fail validation, got %v", err)
	}
}

func TestMonthlyUpdateChecksNewAmountAgainstReversedOld(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "0")
	f.inflow(t, date(2024, 3, 5), "100")

	res, err := f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("100", 5, "2024-03"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "0")

	if _, err := f.svc.UpdateMonthlyPayment(actor(models.UserRoleFinance), res.Id, f.monthly("80", 5, "")); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "20")

	_, err = f.svc.UpdateMonthlyPayment(actor(models.UserRoleFinance), res.Id, f.monthly("120", 5, ""))
	if !utils.IsKind(err, utils.KindInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "20")

	if _, err := f.svc.DeleteObligation(actor(models.UserRoleFinance), models.ObligationKindMonthly, res.Id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "100")
}

func TestMonthlyPaymentClampsDayOfMonth(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-01-31", "1000")
	f.inflow(t, date(2024, 2, 29), "10")

	res, err := f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("10", 31, "2024-02"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.EffectiveDate.Equal(date(2024, 2, 29)) {
		t.Fatalf("day 31 in February should clamp to the 29th, got %s", utils.FormatDate(res.EffectiveDate))
	}
	assertClosing(t, f, date(2024, 2, 29), "1000")
}

func TestRecurringPaymentsNeedLedgerRights(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 5), "0")

	res, err := f.svc.CreateMonthlyPayment(actor(models.UserRoleFinance), f.monthly("50", 5, "2024-03"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 5), "950")

	staff := actor(models.UserRoleStaff)
	cases := []struct {
		name string
		run  func() error
	}{
		{"create monthly", func() error {
			_, err := f.svc.CreateMonthlyPayment(staff, f.monthly("10", 5, "2024-03"))
			return err
		}},
		{"edit monthly", func() error {
			_, err := f.svc.UpdateMonthlyPayment(staff, res.Id, f.monthly("10", 5, ""))
			return err
		}},
		{"stop monthly", func() error {
			_, err := f.svc.UpdateMonthlyPaymentStatus(staff, res.Id, StatusChange{Status: "Inactive", EffectiveDate: "2024-03-01"})
			return err
		}},
		{"delete monthly", func() error {
			_, err := f.svc.DeleteMonthlyPayment(staff, res.Id)
			return err
		}},
		{"create scheduled", func() error {
			_, err := f.svc.CreateScheduledPayment(staff, f.scheduled("100", models.PaymentTermFullPayment, "2024-03-05", "2024-03-05"))
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !utils.IsKind(err, utils.KindForbidden) {
				t.Fatalf("expected Forbidden, got %v", err)
			}
		})
	}
	assertClosing(t, f, date(2024, 3, 5), "950")
	assertInvariant(t, f.store)
}
