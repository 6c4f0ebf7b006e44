package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("hotel-cashflow")

// ledgerGuardKey is the redislock key every ledger writer shares.
const ledgerGuardKey = "lock:cashflow-ledger"

// LedgerChange is what a committed write did to the ledger.
type LedgerChange struct {
	ReferenceType models.ReferenceType
	ReferenceId   int
	Action        models.HistoryAction
	From          time.Time
	Through       time.Time
}

// WriteGuard is an optional cross-instance lock taken before the DB transaction.
// It only shortens waits on the DB lock, so failing to acquire it is not an error.
type WriteGuard interface {
	Acquire(ctx context.Context, key string) (release func())
}

// CashflowService is the write side of the cashflow ledger. Every operation runs in one
// store transaction: validate, check solvency, write, cascade, audit, outbox.
type CashflowService struct {
	Store  Store
	Logger *logrus.Logger
	Guard  WriteGuard
	// OnLedgerChanged runs after commit, once per change (report cache invalidation).
	OnLedgerChanged func(ctx context.Context, change LedgerChange)
	Now             func() time.Time
}

func NewCashflowService(store Store, logger *logrus.Logger) *CashflowService {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &CashflowService{Store: store, Logger: logger, Now: utils.Today}
}

func (s *CashflowService) today() time.Time {
	if s.Now == nil {
		return utils.Today()
	}
	return utils.NormalizeDate(s.Now())
}

// ledgerWrite collects the effects of one write while its transaction is open.
type ledgerWrite struct {
	tx      Store
	changes []LedgerChange
	results []*RecomputeResult
}

// cascade recomputes closing balances from `from` and remembers the range. Days on or
// before the opening balance date are already summed into the opening balance.
func (w *ledgerWrite) cascade(ctx context.Context, from, through time.Time) (*RecomputeResult, error) {
	ob, err := w.tx.GetOpeningBalance(ctx)
	if err != nil {
		return nil, err
	}
	if ob != nil && !from.After(ob.BalanceDate) {
		from = ob.BalanceDate.AddDate(0, 0, 1)
	}
	res, err := RecomputeFrom(ctx, w.tx, from, through)
	if err != nil {
		return nil, err
	}
	w.results = append(w.results, res)
	return res, nil
}

// record writes the audit row and, when the ledger moved, the outbox event.
func (w *ledgerWrite) record(ctx context.Context, change LedgerChange, before, after interface{}, description string) error {
	history, err := models.NewHistoryRecord(ctx, change.Action, change.ReferenceId, change.ReferenceType, before, after, description)
	if err != nil {
		return utils.NewValidationError("%v", err)
	}
	if err := w.tx.CreateHistory(ctx, history); err != nil {
		return err
	}
	if change.From.IsZero() {
		return nil
	}
	payload, err := utils.MarshalToJSON(after)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := models.CashflowEventRecord{
		EventType:     models.CashflowEventLedgerChanged,
		ReferenceType: change.ReferenceType,
		ReferenceId:   change.ReferenceId,
		Action:        change.Action,
		FromDate:      utils.NormalizeDate(change.From),
		ThroughDate:   utils.NormalizeDate(change.Through),
		Payload:       payload,
		CorrelationId: correlationId,
	}
	if err := w.tx.CreateCashflowEvent(ctx, &event); err != nil {
		return err
	}
	w.changes = append(w.changes, change)
	return nil
}

// write runs fn inside a ledger transaction and reports failures the way operators need them.
func (s *CashflowService) write(ctx context.Context, op string, fn func(ctx context.Context, w *ledgerWrite) error) error {
	ctx, span := tracer.Start(ctx, "workflow."+op)
	defer span.End()

	if _, ok := utils.GetUserIdFromContext(ctx); !ok {
		appErr := utils.NewValidationError("an acting user is required")
		span.SetStatus(codes.Error, string(appErr.Kind))
		s.logFailure(ctx, op, appErr)
		return appErr
	}

	if s.Guard != nil {
		release := s.Guard.Acquire(ctx, ledgerGuardKey)
		defer release()
	}

	var committed []LedgerChange
	err := s.Store.InTransaction(ctx, func(tx Store) error {
		w := &ledgerWrite{tx: tx}
		if err := fn(ctx, w); err != nil {
			return err
		}
		committed = w.changes
		return nil
	})
	if err != nil {
		appErr := utils.AsAppError(err)
		span.RecordError(appErr)
		span.SetStatus(codes.Error, string(appErr.Kind))
		s.logFailure(ctx, op, appErr)
		return appErr
	}

	for _, change := range committed {
		span.AddEvent(models.CashflowEventLedgerChanged, traceAttrs(change))
		if s.OnLedgerChanged != nil {
			s.OnLedgerChanged(ctx, change)
		}
	}
	return nil
}

func traceAttrs(change LedgerChange) trace.EventOption {
	return trace.WithAttributes(
		attribute.String("reference_type", string(change.ReferenceType)),
		attribute.Int("reference_id", change.ReferenceId),
		attribute.String("from", utils.FormatDate(change.From)),
	)
}

func (s *CashflowService) logFailure(ctx context.Context, op string, appErr *utils.AppError) {
	if s.Logger == nil {
		return
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{
		"field":          op,
		"kind":           appErr.Kind,
		"user_id":        userId,
		"correlation_id": correlationId,
	}
	switch appErr.Kind {
	case utils.KindPersistence, utils.KindConcurrencyConflict:
		s.Logger.WithFields(fields).Error(appErr.Error())
	default:
		s.Logger.WithFields(fields).Info(appErr.Error())
	}
}

func actorRole(ctx context.Context) string {
	role, _ := utils.GetUserRoleFromContext(ctx)
	return strings.ToLower(strings.TrimSpace(role))
}

func actorId(ctx context.Context) int {
	id, _ := utils.GetUserIdFromContext(ctx)
	return id
}

// requireLedgerRights fails with Forbidden unless the actor may book payments straight
// into the ledger, the same right that completes a transfer.
func requireLedgerRights(ctx context.Context) error {
	role := actorRole(ctx)
	if role == models.UserRoleSystem || models.RoleMayTransitionTo(role, models.PaymentRequestStatusTransferCompleted) {
		return nil
	}
	return utils.NewForbiddenError("role %q may not change payments booked to the ledger", role)
}

// requireAfterOpening rejects ledger activity dated on or before the opening balance date.
func requireAfterOpening(ctx context.Context, tx Store, date time.Time) error {
	ob, err := tx.GetOpeningBalance(ctx)
	if err != nil {
		return err
	}
	if ob != nil && !date.After(ob.BalanceDate) {
		return utils.NewValidationError("%s is on or before the opening balance date %s",
			utils.FormatDate(date), utils.FormatDate(ob.BalanceDate))
	}
	return nil
}

// requireRole fails with Forbidden unless the actor holds one of roles.
func requireRole(ctx context.Context, roles ...string) error {
	role := actorRole(ctx)
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return utils.NewForbiddenError("role %q may not perform this operation", role)
}
