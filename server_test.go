package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type testServer struct {
	router *gin.Engine
	app    *application
	store  *workflow.MemoryStore
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := newApplication(logger)
	store := workflow.NewMemoryStore().WithLockTimeout(5 * time.Second)
	svc := app.attach(store, nil)
	svc.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	tokens := make(map[string]string)
	for i, role := range []string{models.UserRoleAdmin, models.UserRoleFinance, models.UserRoleApprover, models.UserRoleStaff} {
		token, err := utils.JwtGenerate(i+1, role+" user", role)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		tokens[role] = token
	}
	return &testServer{router: newRouter(app), app: app, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status %d want %d: %s", w.Code, want, w.Body.String())
	}
}

func TestReadinessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := newRouter(newApplication(logger))

	for path, want := range map[string]int{"/healthz": http.StatusNoContent, "/api/v1/ledger-categories": http.StatusServiceUnavailable} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: status %d want %d", path, w.Code, want)
		}
	}
}

func TestRequestsNeedAnActor(t *testing.T) {
	s := newTestServer(t)
	expectStatus(t, s.do(t, "", http.MethodGet, "/api/v1/ledger-categories", nil), http.StatusUnauthorized)
	w := s.do(t, models.UserRoleStaff, http.MethodGet, "/api/v1/ledger-categories", nil)
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get("x-correlation-id") == "" {
		t.Fatalf("responses should carry a correlation id")
	}
}

func TestPaymentRequestFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, models.UserRoleAdmin, http.MethodPost, "/api/v1/ledger-categories", gin.H{"name": "Rooms"})
	expectStatus(t, w, http.StatusCreated)
	category := decode[models.LedgerCategory](t, w)

	expectStatus(t, s.do(t, models.UserRoleFinance, http.MethodPut, "/api/v1/ledger/opening-balance",
		gin.H{"balance_date": "2024-02-29", "amount": "1000"}), http.StatusForbidden)
	expectStatus(t, s.do(t, models.UserRoleAdmin, http.MethodPut, "/api/v1/ledger/opening-balance",
		gin.H{"balance_date": "2024-02-29", "amount": "1000"}), http.StatusOK)
	expectStatus(t, s.do(t, models.UserRoleFinance, http.MethodPut, "/api/v1/inflows/actual/2024-03-01",
		gin.H{"amount": "500"}), http.StatusOK)

	request := func(amount string) gin.H {
		return gin.H{
			"hotel_id": 1, "vendor_id": 1, "department_id": 1, "ledger_id": category.ID,
			"amount": amount, "due_date": "2024-03-01", "payment_group": "Suppliers",
		}
	}
	w = s.do(t, models.UserRoleFinance, http.MethodPost, "/api/v1/obligations/request", request("800"))
	expectStatus(t, w, http.StatusCreated)
	created := decode[workflow.ObligationResult](t, w)

	w = s.do(t, models.UserRoleFinance, http.MethodPost, "/api/v1/obligations/request", request("900"))
	expectStatus(t, w, http.StatusUnprocessableEntity)
	if body := decode[map[string]any](t, w); body["kind"] != string(utils.KindInsufficientBalance) {
		t.Fatalf("kind: %v", body["kind"])
	}

	w = s.do(t, models.UserRoleStaff, http.MethodGet, "/api/v1/ledger?start=2024-03-01&end=2024-03-01", nil)
	expectStatus(t, w, http.StatusOK)
	ledger := decode[struct {
		Days []struct {
			ClosingBalance decimal.Decimal `json:"closing_balance"`
		} `json:"days"`
	}](t, w)
	if len(ledger.Days) != 1 || !ledger.Days[0].ClosingBalance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("ledger: %s", w.Body.String())
	}

	w = s.do(t, models.UserRoleStaff, http.MethodGet, "/api/v1/ledger/2024-03-01/breakdown", nil)
	expectStatus(t, w, http.StatusOK)
	breakdown := decode[struct {
		TotalPayments decimal.Decimal `json:"total_payments"`
	}](t, w)
	if !breakdown.TotalPayments.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("breakdown total %s", breakdown.TotalPayments)
	}

	w = s.do(t, models.UserRoleStaff, http.MethodGet, "/api/v1/reports/summary?start=2024-03-01&end=2024-03-01", nil)
	expectStatus(t, w, http.StatusOK)
	summary := decode[struct {
		NetCashInHand decimal.Decimal `json:"net_cash_in_hand"`
	}](t, w)
	if !summary.NetCashInHand.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("net cash %s", summary.NetCashInHand)
	}

	// the request was created directly at Transfer Completed, which is terminal
	w = s.do(t, models.UserRoleApprover, http.MethodPatch, "/api/v1/obligations/request/"+itoa(created.Id)+"/status",
		gin.H{"status": "Rejected"})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestHandlersRejectBadInput(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown kind", http.MethodPost, "/api/v1/obligations/loan", gin.H{}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/obligations/request/abc", nil, http.StatusBadRequest},
		{"missing obligation", http.MethodGet, "/api/v1/obligations/monthly/99", nil, http.StatusNotFound},
		{"bad date", http.MethodPut, "/api/v1/inflows/actual/03-01-2024", gin.H{"amount": "1"}, http.StatusBadRequest},
		{"broken json", http.MethodPut, "/api/v1/inflows/actual/2024-03-01", "{", http.StatusBadRequest},
		{"missing month", http.MethodPost, "/api/v1/ledger/months", gin.H{}, http.StatusBadRequest},
		{"range too long", http.MethodGet, "/api/v1/ledger?start=2024-01-01&end=2025-06-01", nil, http.StatusBadRequest},
		{"recompute as finance", http.MethodPost, "/api/v1/ledger/recompute", nil, http.StatusForbidden},
		{"replay as finance", http.MethodPost, "/internal/ops/outbox/replay", nil, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, s.do(t, models.UserRoleFinance, tc.method, tc.path, tc.body), tc.want)
		})
	}

	// the memory store has no outbox table
	expectStatus(t, s.do(t, models.UserRoleAdmin, http.MethodPost, "/internal/ops/outbox/replay", nil), http.StatusServiceUnavailable)
}

func TestErrorResponseStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err  error
		want int
	}{
		{utils.NewValidationError("x"), http.StatusBadRequest},
		{utils.NewForbiddenError("x"), http.StatusForbidden},
		{utils.NewNotFoundError("thing", 1), http.StatusNotFound},
		{utils.NewConcurrencyConflictError(errors.New("lock")), http.StatusConflict},
		{utils.NewInsufficientBalanceError("x"), http.StatusUnprocessableEntity},
		{utils.NewNoInflowError("x"), http.StatusUnprocessableEntity},
		{errors.New("driver: bad connection"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		errorResponse(c, tc.err)
		if w.Code != tc.want {
			t.Errorf("%v: status %d want %d", tc.err, w.Code, tc.want)
		}
		if tc.want == http.StatusInternalServerError && bytes.Contains(w.Body.Bytes(), []byte("bad connection")) {
			t.Errorf("persistence errors must not leak their cause: %s", w.Body.String())
		}
	}
}

func pushBody(t *testing.T, id string, msg any) string {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env PubSubMessage
	env.Message.ID = id
	env.Message.Data = data
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestPubSubPushRunsCommandsOnce(t *testing.T) {
	s := newTestServer(t)
	expectStatus(t, s.do(t, models.UserRoleAdmin, http.MethodPost, "/api/v1/ledger-categories", gin.H{"name": "Rooms"}), http.StatusCreated)

	body := pushBody(t, "m-1", config.CommandMessage{Command: workflow.CommandGenerateMonth, Month: "2024-02"})
	for i := 0; i < 2; i++ {
		expectStatus(t, s.do(t, "", http.MethodPost, "/pubsub", body), http.StatusNoContent)
	}
	days, err := s.store.ListRange(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(days) != 29 {
		t.Fatalf("expected 29 generated days, got %d", len(days))
	}
	history, _ := s.store.ListHistory(context.Background(), models.ReferenceTypeLedgerMonth, 202402)
	if len(history) != 1 {
		t.Fatalf("redelivery must not run the command again, got %d history rows", len(history))
	}

	// poison messages are acknowledged
	expectStatus(t, s.do(t, "", http.MethodPost, "/pubsub", "not json"), http.StatusNoContent)
	expectStatus(t, s.do(t, "", http.MethodPost, "/pubsub", pushBody(t, "m-2", config.CommandMessage{Command: "drop_tables"})), http.StatusNoContent)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
