package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

func TestCompletedRequestsOnSameDayShareTheBalance(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 1), "500")
	assertClosing(t, f, date(2024, 3, 1), "1500")

	ctx := actor(models.UserRoleFinance)
	res, err := f.svc.CreatePaymentRequest(ctx, f.request("800", "2024-03-01"))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if res.Status != string(models.PaymentRequestStatusTransferCompleted) {
		t.Fatalf("privileged request status: got %s", res.Status)
	}
	assertClosing(t, f, date(2024, 3, 1), "700")

	_, err = f.svc.CreatePaymentRequest(ctx, f.request("900", "2024-03-01"))
	if !utils.IsKind(err, utils.KindInsufficientBalance) {
		t.Fatalf("second request: expected InsufficientBalance, got %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "700")
	if got := f.day(t, date(2024, 3, 1)).TotalPayments; !got.Equal(dec("800")) {
		t.Fatalf("total payments: got %s want 800", got)
	}
	assertInvariant(t, f.store)
}

func TestTransferCompletedRejectedWhenBalanceShort(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 1), "500")

	res, err := f.svc.CreatePaymentRequest(actor(models.UserRoleStaff), f.request("2000", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Status != string(models.PaymentRequestStatusPending) {
		t.Fatalf("staff request should start Pending, got %s", res.Status)
	}
	if res.Recompute != nil {
		t.Fatalf("pending request must not cascade")
	}
	if _, err := f.svc.UpdatePaymentRequestStatus(actor(models.UserRoleApprover), res.Id, models.PaymentRequestStatusTransferPending); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = f.svc.UpdatePaymentRequestStatus(actor(models.UserRoleFinance), res.Id, models.PaymentRequestStatusTransferCompleted)
	if !utils.IsKind(err, utils.KindInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	stored, err := f.store.GetPaymentRequest(context.Background(), res.Id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.PaymentRequestStatusTransferPending {
		t.Fatalf("request should stay Transfer Pending, got %s", stored.Status)
	}
	assertClosing(t, f, date(2024, 3, 1), "1500")
}

func TestPaymentRequestTransitionRules(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	res, err := f.svc.CreatePaymentRequest(actor(models.UserRoleStaff), f.request("100", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		role string
		next models.PaymentRequestStatus
		kind utils.ErrorKind
	}{
		{"skip approval", models.UserRoleAdmin, models.PaymentRequestStatusTransferCompleted, utils.KindValidation},
		{"staff cannot approve", models.UserRoleStaff, models.PaymentRequestStatusTransferPending, utils.KindForbidden},
		{"finance cannot reject", models.UserRoleFinance, models.PaymentRequestStatusRejected, utils.KindForbidden},
		{"same status", models.UserRoleAdmin, models.PaymentRequestStatusPending, utils.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdatePaymentRequestStatus(actor(tt.role), res.Id, tt.next)
			if !utils.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}

	if _, err := f.svc.UpdatePaymentRequestStatus(actor(models.UserRoleApprover), res.Id, models.PaymentRequestStatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err = f.svc.UpdatePaymentRequest(actor(models.UserRoleAdmin), res.Id, f.request("50", "2024-03-01"))
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("editing a rejected request should fail validation, got %v", err)
	}
	if _, err := f.svc.UpdatePaymentRequestStatus(actor(models.UserRoleAdmin), 999, models.PaymentRequestStatusRejected); !utils.IsKind(err, utils.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCompletedRequestEditReversesOldAmount(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	ctx := actor(models.UserRoleFinance)

	res, err := f.svc.CreatePaymentRequest(ctx, f.request("1000", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "0")

	// only passes when the stored 1000 is added back before checking 900
	if _, err := f.svc.UpdatePaymentRequest(ctx, res.Id, f.request("900", "2024-03-01")); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "100")

	_, err = f.svc.UpdatePaymentRequest(ctx, res.Id, f.request("1100", "2024-03-01"))
	if !utils.IsKind(err, utils.KindInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "100")
}

func TestMovingCompletedRequestCascadesBothDates(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 5), "0")
	ctx := actor(models.UserRoleFinance)

	res, err := f.svc.CreatePaymentRequest(ctx, f.request("300", "2024-03-02"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 2), "700")

	if _, err := f.svc.UpdatePaymentRequest(ctx, res.Id, f.request("300", "2024-03-04")); err != nil {
		t.Fatalf("move: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 2), "1000")
	assertClosing(t, f, date(2024, 3, 3), "1000")
	assertClosing(t, f, date(2024, 3, 4), "700")
	assertClosing(t, f, date(2024, 3, 5), "700")
	assertInvariant(t, f.store)
}

func TestDeletingCompletedRequestReleasesPayment(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 3), "0")
	ctx := actor(models.UserRoleAdmin)

	res, err := f.svc.CreatePaymentRequest(ctx, f.request("400", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 3), "600")

	del, err := f.svc.DeletePaymentRequest(ctx, res.Id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.Recompute == nil || del.Recompute.Changed == 0 {
		t.Fatalf("delete should cascade, got %+v", del.Recompute)
	}
	assertClosing(t, f, date(2024, 3, 1), "1000")
	assertClosing(t, f, date(2024, 3, 3), "1000")
	if _, err := f.store.GetPaymentRequest(context.Background(), res.Id); !utils.IsKind(err, utils.KindNotFound) {
		t.Fatalf("expected request to be gone, got %v", err)
	}
	assertInvariant(t, f.store)
}

func TestLedgerWritesEmitOutboxEventsAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 1), "0")

	var changes []LedgerChange
	f.svc.OnLedgerChanged = func(ctx context.Context, change LedgerChange) {
		changes = append(changes, change)
	}
	eventsBefore := len(f.store.CashflowEvents())

	if _, err := f.svc.CreatePaymentRequest(actor(models.UserRoleStaff), f.request("100", "2024-03-01")); err != nil {
		t.Fatalf("pending create: %v", err)
	}
	if len(changes) != 0 || len(f.store.CashflowEvents()) != eventsBefore {
		t.Fatalf("pending request must not publish a ledger change")
	}

	res, err := f.svc.CreatePaymentRequest(actor(models.UserRoleFinance), f.request("100", "2024-03-01"))
	if err != nil {
		t.Fatalf("completed create: %v", err)
	}
	if len(changes) != 1 || changes[0].ReferenceId != res.Id {
		t.Fatalf("expected one change for request %d, got %+v", res.Id, changes)
	}
	events := f.store.CashflowEvents()
	last := events[len(events)-1]
	if last.EventType != models.CashflowEventLedgerChanged || last.ReferenceType != models.ReferenceTypePaymentRequest {
		t.Fatalf("unexpected event %+v", last)
	}
	if !last.FromDate.Equal(date(2024, 3, 1)) {
		t.Fatalf("event from date: got %s", utils.FormatDate(last.FromDate))
	}

	_, err = f.svc.CreatePaymentRequest(actor(models.UserRoleFinance), f.request("5000", "2024-03-01"))
	if err == nil {
		t.Fatalf("expected failure")
	}
	if len(changes) != 1 || len(f.store.CashflowEvents()) != len(events) {
		t.Fatalf("failed write must not publish")
	}
}

func TestWritesRequireActor(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	_, err := f.svc.RecordActualInflow(context.Background(), date(2024, 3, 1), models.NewActualInflow{Amount: dec("10")})
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("expected Validation without a user, got %v", err)
	}
	if day, _ := f.store.GetDay(context.Background(), date(2024, 3, 1)); day != nil {
		t.Fatalf("failed write left a ledger row behind")
	}
}

func TestCompletedRequestNeedsLedgerRightsToChange(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	f.inflow(t, date(2024, 3, 1), "500")

	res, err := f.svc.CreatePaymentRequest(actor(models.UserRoleFinance), f.request("100", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "1400")

	for _, role := range []string{models.UserRoleStaff, models.UserRoleApprover} {
		if _, err := f.svc.UpdatePaymentRequest(actor(role), res.Id, f.request("1400", "2024-03-01")); !utils.IsKind(err, utils.KindForbidden) {
			t.Fatalf("%s edit: expected Forbidden, got %v", role, err)
		}
		if _, err := f.svc.DeletePaymentRequest(actor(role), res.Id); !utils.IsKind(err, utils.KindForbidden) {
			t.Fatalf("%s delete: expected Forbidden, got %v", role, err)
		}
	}
	assertClosing(t, f, date(2024, 3, 1), "1400")
	if stored, err := f.store.GetPaymentRequest(context.Background(), res.Id); err != nil || !stored.Amount.Equal(dec("100")) {
		t.Fatalf("request changed behind a forbidden write: %+v %v", stored, err)
	}

	if _, err := f.svc.DeletePaymentRequest(actor(models.UserRoleFinance), res.Id); err != nil {
		t.Fatalf("finance delete: %v", err)
	}
	assertClosing(t, f, date(2024, 3, 1), "1500")
	assertInvariant(t, f.store)
}

func TestPendingRequestStaysEditableByStaff(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	staff := actor(models.UserRoleStaff)

	res, err := f.svc.CreatePaymentRequest(staff, f.request("100", "2024-03-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.UpdatePaymentRequest(staff, res.Id, f.request("150", "2024-03-02")); err != nil {
		t.Fatalf("edit pending: %v", err)
	}
	if _, err := f.svc.DeletePaymentRequest(staff, res.Id); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
}

type countingStore struct {
	Store
	transactions int
}

func (s *countingStore) InTransaction(ctx context.Context, fn func(tx Store) error) error {
	s.transactions++
	return s.Store.InTransaction(ctx, fn)
}

func TestMissingActorFailsBeforeTransaction(t *testing.T) {
	f := newFixture(t)
	f.openingBalance(t, "2024-02-29", "1000")
	counting := &countingStore{Store: f.store}
	f.svc.Store = counting

	_, err := f.svc.CreatePaymentRequest(context.Background(), f.request("100", "2024-03-01"))
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("expected Validation without a user, got %v", err)
	}
	_, err = f.svc.GenerateMonth(context.Background(), 2024, 3)
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("expected Validation without a user, got %v", err)
	}
	if counting.transactions != 0 {
		t.Fatalf("expected no transaction, got %d", counting.transactions)
	}
	if _, err := f.svc.GenerateMonth(SystemContext(context.Background(), "corr-system"), 2024, 3); err != nil {
		t.Fatalf("system actor: %v", err)
	}
}
