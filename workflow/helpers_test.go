package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
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
	return utils.SetActorInContext(context.Background(), 7, "tester", role)
}

type fixture struct {
	store    *MemoryStore
	svc      *CashflowService
	ledgerId int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := NewMemoryStore().WithLockTimeout(5 * time.Second)
	svc := NewCashflowService(store, logger)
	svc.Now = func() time.Time { return date(2024, 3, 1) }

	category, err := svc.CreateLedgerCategory(actor(models.UserRoleAdmin), models.NewLedgerCategory{Name: "Rooms"})
	if err != nil {
		t.Fatalf("create ledger category: %v", err)
	}
	return &fixture{store: store, svc: svc, ledgerId: category.ID}
}

func (f *fixture) openingBalance(t *testing.T, balanceDate string, amount string) {
	t.Helper()
	_, err := f.svc.SetOpeningBalance(actor(models.UserRoleAdmin), models.NewOpeningBalance{
		BalanceDate: balanceDate,
		Amount:      dec(amount),
	})
	if err != nil {
		t.Fatalf("set opening balance: %v", err)
	}
}

func (f *fixture) inflow(t *testing.T, d time.Time, amount string) {
	t.Helper()
	if _, err := f.svc.RecordActualInflow(actor(models.UserRoleFinance), d, models.NewActualInflow{Amount: dec(amount)}); err != nil {
		t.Fatalf("record inflow %s: %v", utils.FormatDate(d), err)
	}
}

func (f *fixture) day(t *testing.T, d time.Time) *models.LedgerDay {
	t.Helper()
	day, err := f.store.GetDay(context.Background(), d)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if day == nil {
		t.Fatalf("expected ledger day %s to exist", utils.FormatDate(d))
	}
	return day
}

func (f *fixture) request(amount string, due string) *models.NewPaymentRequest {
	return &models.NewPaymentRequest{
		HotelId:      1,
		VendorId:     2,
		DepartmentId: 3,
		LedgerId:     f.ledgerId,
		Amount:       dec(amount),
		DueDate:      due,
		PaymentGroup: "Suppliers",
	}
}

func assertClosing(t *testing.T, f *fixture, d time.Time, want string) {
	t.Helper()
	got := f.day(t, d).ClosingBalance
	if !got.Equal(dec(want)) {
		t.Fatalf("closing %s: got %s want %s", utils.FormatDate(d), got, want)
	}
}

// assertInvariant checks closing(d) = closing(d-1) + actual(d) - payments(d) over every stored day,
// and that no day is missing between the first and the last.
func assertInvariant(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	first, err := store.GetFirstDay(ctx)
	if err != nil || first == nil {
		return
	}
	days, err := store.ListFrom(ctx, first.Date)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	opening := decimal.Zero
	if ob, _ := store.GetOpeningBalance(ctx); ob != nil {
		opening = ob.Amount
	}
	for i, d := range days {
		if i > 0 && !d.Date.Equal(days[i-1].Date.AddDate(0, 0, 1)) {
			t.Fatalf("gap in ledger between %s and %s", utils.FormatDate(days[i-1].Date), utils.FormatDate(d.Date))
		}
		want := opening.Add(d.ActualInflow).Sub(d.TotalPayments)
		if !d.ClosingBalance.Equal(want) {
			t.Fatalf("invariant broken on %s: closing %s, expected %s", utils.FormatDate(d.Date), d.ClosingBalance, want)
		}
		opening = d.ClosingBalance
	}
}
