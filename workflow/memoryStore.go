package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

type memoryState struct {
	days        map[string]*models.LedgerDay
	opening     *models.OpeningBalance
	actual      map[string]*models.ActualInflow
	projected   map[string]*models.ProjectedInflow
	categories  map[int]*models.LedgerCategory
	requests    map[int]*models.PaymentRequest
	monthly     map[int]*models.MonthlyPayment
	scheduled   map[int]*models.ScheduledPayment
	histories   []*models.History
	events      []*models.CashflowEventRecord
	idempotency map[string]*models.IdempotencyKey
	seq         map[string]int
}

func newMemoryState() *memoryState {
	return &memoryState{
		days:        make(map[string]*models.LedgerDay),
		actual:      make(map[string]*models.ActualInflow),
		projected:   make(map[string]*models.ProjectedInflow),
		categories:  make(map[int]*models.LedgerCategory),
		requests:    make(map[int]*models.PaymentRequest),
		monthly:     make(map[int]*models.MonthlyPayment),
		scheduled:   make(map[int]*models.ScheduledPayment),
		idempotency: make(map[string]*models.IdempotencyKey),
		seq:         make(map[string]int),
	}
}

func copyMap[K comparable, V any](in map[K]*V, cp func(*V) *V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		out[k] = cp(v)
	}
	return out
}

func clonePtr[V any](v *V) *V {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneProjected(p *models.ProjectedInflow) *models.ProjectedInflow {
	c := *p
	c.Lines = append([]models.ProjectedInflowLine(nil), p.Lines...)
	return &c
}

func cloneMonthly(m *models.MonthlyPayment) *models.MonthlyPayment {
	c := *m
	if m.EndDate != nil {
		end := *m.EndDate
		c.EndDate = &end
	}
	return &c
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		days:        copyMap(st.days, clonePtr[models.LedgerDay]),
		opening:     clonePtr(st.opening),
		actual:      copyMap(st.actual, clonePtr[models.ActualInflow]),
		projected:   copyMap(st.projected, cloneProjected),
		categories:  copyMap(st.categories, clonePtr[models.LedgerCategory]),
		requests:    copyMap(st.requests, clonePtr[models.PaymentRequest]),
		monthly:     copyMap(st.monthly, cloneMonthly),
		scheduled:   copyMap(st.scheduled, clonePtr[models.ScheduledPayment]),
		histories:   append([]*models.History(nil), st.histories...),
		events:      append([]*models.CashflowEventRecord(nil), st.events...),
		idempotency: copyMap(st.idempotency, clonePtr[models.IdempotencyKey]),
		seq:         make(map[string]int, len(st.seq)),
	}
	for k, v := range st.seq {
		c.seq[k] = v
	}
	return c
}

func (st *memoryState) nextId(table string) int {
	st.seq[table]++
	return st.seq[table]
}

type memoryShared struct {
	mu    sync.RWMutex
	sem   chan struct{}
	state *memoryState
}

// MemoryStore keeps the ledger in process. A transaction works on a private copy of
// the state that replaces the shared state only on commit, so readers see either the
// pre- or post-commit ledger. Writers are serialized.
type MemoryStore struct {
	shared      *memoryShared
	tx          *memoryState
	lockTimeout time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shared:      &memoryShared{sem: make(chan struct{}, 1), state: newMemoryState()},
		lockTimeout: config.LedgerLockTimeout(),
	}
}

func (s *MemoryStore) WithLockTimeout(d time.Duration) *MemoryStore {
	s.lockTimeout = d
	return s
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case s.shared.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return utils.NewConcurrencyConflictError(context.DeadlineExceeded)
	case <-ctx.Done():
		return utils.NewConcurrencyConflictError(ctx.Err())
	}
}

func (s *MemoryStore) release() {
	<-s.shared.sem
}

func (s *MemoryStore) InTransaction(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.shared.mu.RLock()
	work := s.shared.state.clone()
	s.shared.mu.RUnlock()

	if err := fn(&MemoryStore{shared: s.shared, tx: work, lockTimeout: s.lockTimeout}); err != nil {
		return classifyStoreError(err)
	}
	s.shared.mu.Lock()
	s.shared.state = work
	s.shared.mu.Unlock()
	return nil
}

// read runs fn against the transaction copy or, outside a transaction, the committed state.
func (s *MemoryStore) read(fn func(st *memoryState)) {
	if s.tx != nil {
		fn(s.tx)
		return
	}
	s.shared.mu.RLock()
	defer s.shared.mu.RUnlock()
	fn(s.shared.state)
}

// write applies fn in the transaction or as its own single-statement transaction.
func (s *MemoryStore) write(ctx context.Context, fn func(st *memoryState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.InTransaction(ctx, func(tx Store) error {
		return fn(tx.(*MemoryStore).tx)
	})
}

func dateKey(t time.Time) string {
	return utils.FormatDate(utils.NormalizeDate(t))
}

func sortedDays(st *memoryState, keep func(d *models.LedgerDay) bool) []*models.LedgerDay {
	var out []*models.LedgerDay
	for _, d := range st.days {
		if keep(d) {
			out = append(out, clonePtr(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ledger days

func (s *MemoryStore) GetDay(ctx context.Context, date time.Time) (day *models.LedgerDay, err error) {
	s.read(func(st *memoryState) { day = clonePtr(st.days[dateKey(date)]) })
	return day, nil
}

func (s *MemoryStore) GetLastKnownBeforeOrOn(ctx context.Context, date time.Time) (day *models.LedgerDay, err error) {
	date = utils.NormalizeDate(date)
	s.read(func(st *memoryState) {
		for _, d := range st.days {
			if !d.Date.After(date) && (day == nil || d.Date.After(day.Date)) {
				day = d
			}
		}
		day = clonePtr(day)
	})
	return day, nil
}

func (s *MemoryStore) GetFirstDay(ctx context.Context) (day *models.LedgerDay, err error) {
	s.read(func(st *memoryState) {
		if days := sortedDays(st, func(*models.LedgerDay) bool { return true }); len(days) > 0 {
			day = days[0]
		}
	})
	return day, nil
}

func (s *MemoryStore) GetLastDay(ctx context.Context) (day *models.LedgerDay, err error) {
	s.read(func(st *memoryState) {
		if days := sortedDays(st, func(*models.LedgerDay) bool { return true }); len(days) > 0 {
			day = days[len(days)-1]
		}
	})
	return day, nil
}

func (s *MemoryStore) ListFrom(ctx context.Context, date time.Time) (days []*models.LedgerDay, err error) {
	date = utils.NormalizeDate(date)
	s.read(func(st *memoryState) {
		days = sortedDays(st, func(d *models.LedgerDay) bool { return !d.Date.Before(date) })
	})
	return days, nil
}

func (s *MemoryStore) ListRange(ctx context.Context, from, to time.Time) (days []*models.LedgerDay, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		days = sortedDays(st, func(d *models.LedgerDay) bool { return !d.Date.Before(from) && !d.Date.After(to) })
	})
	return days, nil
}

func (s *MemoryStore) UpsertDay(ctx context.Context, date time.Time, patch models.LedgerDayPatch) (day *models.LedgerDay, created bool, err error) {
	date = utils.NormalizeDate(date)
	err = s.write(ctx, func(st *memoryState) error {
		key := dateKey(date)
		stored, ok := st.days[key]
		if !ok {
			stored = models.NewEmptyLedgerDay(date)
			stored.ID = st.nextId("ledger_days")
			stored.CreatedAt = time.Now().UTC()
			stored.UpdatedAt = stored.CreatedAt
			stored.Apply(patch)
			st.days[key] = stored
			created = true
		} else if stored.Apply(patch) {
			stored.Version++
			stored.UpdatedAt = time.Now().UTC()
		}
		day = clonePtr(stored)
		return nil
	})
	return day, created, err
}

func (s *MemoryStore) SaveBalances(ctx context.Context, day *models.LedgerDay) error {
	return s.write(ctx, func(st *memoryState) error {
		stored, ok := st.days[dateKey(day.Date)]
		if !ok || stored.Version != day.Version {
			return ErrStaleLedgerDay
		}
		stored.TotalPayments = day.TotalPayments
		stored.ClosingBalance = day.ClosingBalance
		stored.Version++
		stored.UpdatedAt = time.Now().UTC()
		day.Version = stored.Version
		return nil
	})
}

func (s *MemoryStore) GetOpeningBalance(ctx context.Context) (ob *models.OpeningBalance, err error) {
	s.read(func(st *memoryState) { ob = clonePtr(st.opening) })
	return ob, nil
}

func (s *MemoryStore) SaveOpeningBalance(ctx context.Context, ob *models.OpeningBalance) error {
	return s.write(ctx, func(st *memoryState) error {
		if ob.ID == 0 {
			ob.ID = st.nextId("opening_balances")
			ob.CreatedAt = time.Now().UTC()
		}
		ob.UpdatedAt = time.Now().UTC()
		st.opening = clonePtr(ob)
		return nil
	})
}

// inflows

func (s *MemoryStore) GetActualInflow(ctx context.Context, date time.Time) (inflow *models.ActualInflow, err error) {
	s.read(func(st *memoryState) { inflow = clonePtr(st.actual[dateKey(date)]) })
	return inflow, nil
}

func (s *MemoryStore) SaveActualInflow(ctx context.Context, inflow *models.ActualInflow) error {
	return s.write(ctx, func(st *memoryState) error {
		inflow.Date = utils.NormalizeDate(inflow.Date)
		if inflow.ID == 0 {
			inflow.ID = st.nextId("actual_inflows")
			inflow.CreatedAt = time.Now().UTC()
		}
		inflow.UpdatedAt = time.Now().UTC()
		st.actual[dateKey(inflow.Date)] = clonePtr(inflow)
		return nil
	})
}

func (s *MemoryStore) ListActualInflows(ctx context.Context, from, to time.Time) (rows []*models.ActualInflow, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		for _, a := range st.actual {
			if !a.Date.Before(from) && !a.Date.After(to) {
				rows = append(rows, clonePtr(a))
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (s *MemoryStore) GetProjectedInflow(ctx context.Context, date time.Time) (inflow *models.ProjectedInflow, err error) {
	s.read(func(st *memoryState) {
		if p, ok := st.projected[dateKey(date)]; ok {
			inflow = cloneProjected(p)
		}
	})
	return inflow, nil
}

func (s *MemoryStore) SaveProjectedInflow(ctx context.Context, inflow *models.ProjectedInflow) error {
	return s.write(ctx, func(st *memoryState) error {
		inflow.Date = utils.NormalizeDate(inflow.Date)
		if inflow.ID == 0 {
			inflow.ID = st.nextId("projected_inflows")
			inflow.CreatedAt = time.Now().UTC()
		}
		inflow.UpdatedAt = time.Now().UTC()
		for i := range inflow.Lines {
			inflow.Lines[i].ProjectedInflowId = inflow.ID
			if inflow.Lines[i].ID == 0 {
				inflow.Lines[i].ID = st.nextId("projected_inflow_lines")
			}
		}
		st.projected[dateKey(inflow.Date)] = cloneProjected(inflow)
		return nil
	})
}

func (s *MemoryStore) ListProjectedInflows(ctx context.Context, from, to time.Time) (rows []*models.ProjectedInflow, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		for _, p := range st.projected {
			if !p.Date.Before(from) && !p.Date.After(to) {
				rows = append(rows, cloneProjected(p))
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (s *MemoryStore) GetLedgerCategory(ctx context.Context, id int) (c *models.LedgerCategory, err error) {
	s.read(func(st *memoryState) { c = clonePtr(st.categories[id]) })
	if c == nil {
		return nil, utils.NewNotFoundError("ledger category", id)
	}
	return c, nil
}

func (s *MemoryStore) GetLedgerCategoriesByIds(ctx context.Context, ids []int) (rows []*models.LedgerCategory, err error) {
	s.read(func(st *memoryState) {
		for _, id := range utils.UniqueSlice(ids) {
			if c, ok := st.categories[id]; ok {
				rows = append(rows, clonePtr(c))
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *MemoryStore) ListLedgerCategories(ctx context.Context) (rows []*models.LedgerCategory, err error) {
	s.read(func(st *memoryState) {
		for _, c := range st.categories {
			rows = append(rows, clonePtr(c))
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *MemoryStore) CreateLedgerCategory(ctx context.Context, category *models.LedgerCategory) error {
	return s.write(ctx, func(st *memoryState) error {
		for _, c := range st.categories {
			if c.Name == category.Name {
				return utils.NewValidationError("ledger category %q already exists", category.Name)
			}
		}
		category.ID = st.nextId("ledger_categories")
		category.CreatedAt = time.Now().UTC()
		category.UpdatedAt = category.CreatedAt
		st.categories[category.ID] = clonePtr(category)
		return nil
	})
}

// obligations

func (s *MemoryStore) GetPaymentRequest(ctx context.Context, id int) (r *models.PaymentRequest, err error) {
	s.read(func(st *memoryState) { r = clonePtr(st.requests[id]) })
	if r == nil {
		return nil, utils.NewNotFoundError("payment request", id)
	}
	return r, nil
}

func (s *MemoryStore) SavePaymentRequest(ctx context.Context, request *models.PaymentRequest) error {
	return s.write(ctx, func(st *memoryState) error {
		request.DueDate = utils.NormalizeDate(request.DueDate)
		if request.ID == 0 {
			request.ID = st.nextId("payment_requests")
			request.CreatedAt = time.Now().UTC()
		}
		request.UpdatedAt = time.Now().UTC()
		st.requests[request.ID] = clonePtr(request)
		return nil
	})
}

func (s *MemoryStore) DeletePaymentRequest(ctx context.Context, id int) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.requests[id]; !ok {
			return utils.NewNotFoundError("payment request", id)
		}
		delete(st.requests, id)
		return nil
	})
}

func (s *MemoryStore) ListCompletedPaymentRequests(ctx context.Context, from, to time.Time) (rows []*models.PaymentRequest, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		for _, r := range st.requests {
			if r.Status == models.PaymentRequestStatusTransferCompleted && !r.DueDate.Before(from) && !r.DueDate.After(to) {
				rows = append(rows, clonePtr(r))
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].DueDate.Before(rows[j].DueDate)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (s *MemoryStore) GetMonthlyPayment(ctx context.Context, id int) (m *models.MonthlyPayment, err error) {
	s.read(func(st *memoryState) {
		if p, ok := st.monthly[id]; ok {
			m = cloneMonthly(p)
		}
	})
	if m == nil {
		return nil, utils.NewNotFoundError("monthly payment", id)
	}
	return m, nil
}

func (s *MemoryStore) SaveMonthlyPayment(ctx context.Context, payment *models.MonthlyPayment) error {
	return s.write(ctx, func(st *memoryState) error {
		if payment.ID == 0 {
			payment.ID = st.nextId("monthly_payments")
			payment.CreatedAt = time.Now().UTC()
		}
		payment.UpdatedAt = time.Now().UTC()
		st.monthly[payment.ID] = cloneMonthly(payment)
		return nil
	})
}

func (s *MemoryStore) DeleteMonthlyPayment(ctx context.Context, id int) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.monthly[id]; !ok {
			return utils.NewNotFoundError("monthly payment", id)
		}
		delete(st.monthly, id)
		return nil
	})
}

func (s *MemoryStore) ListMonthlyPayments(ctx context.Context, from, to time.Time) (rows []*models.MonthlyPayment, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		for _, m := range st.monthly {
			if m.StartDate.After(to) || (m.EndDate != nil && m.EndDate.Before(from)) {
				continue
			}
			rows = append(rows, cloneMonthly(m))
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (s *MemoryStore) GetScheduledPayment(ctx context.Context, id int) (p *models.ScheduledPayment, err error) {
	s.read(func(st *memoryState) { p = clonePtr(st.scheduled[id]) })
	if p == nil {
		return nil, utils.NewNotFoundError("scheduled payment", id)
	}
	return p, nil
}

func (s *MemoryStore) SaveScheduledPayment(ctx context.Context, payment *models.ScheduledPayment) error {
	return s.write(ctx, func(st *memoryState) error {
		if payment.ID == 0 {
			payment.ID = st.nextId("scheduled_payments")
			payment.CreatedAt = time.Now().UTC()
		}
		payment.UpdatedAt = time.Now().UTC()
		st.scheduled[payment.ID] = clonePtr(payment)
		return nil
	})
}

func (s *MemoryStore) DeleteScheduledPayment(ctx context.Context, id int) error {
	return s.write(ctx, func(st *memoryState) error {
		if _, ok := st.scheduled[id]; !ok {
			return utils.NewNotFoundError("scheduled payment", id)
		}
		delete(st.scheduled, id)
		return nil
	})
}

func (s *MemoryStore) ListScheduledPayments(ctx context.Context, from, to time.Time) (rows []*models.ScheduledPayment, err error) {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	s.read(func(st *memoryState) {
		for _, p := range st.scheduled {
			if p.Date.After(to) || p.EndDate.Before(from) {
				continue
			}
			rows = append(rows, clonePtr(p))
		}
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// audit

func (s *MemoryStore) CreateHistory(ctx context.Context, history *models.History) error {
	return s.write(ctx, func(st *memoryState) error {
		history.ID = st.nextId("histories")
		history.CreatedAt = time.Now().UTC()
		st.histories = append(st.histories, clonePtr(history))
		return nil
	})
}

func (s *MemoryStore) ListHistory(ctx context.Context, referenceType models.ReferenceType, referenceId int) (rows []*models.History, err error) {
	s.read(func(st *memoryState) {
		for _, h := range st.histories {
			if h.ReferenceType == referenceType && h.ReferenceID == referenceId {
				rows = append(rows, clonePtr(h))
			}
		}
	})
	return rows, nil
}

func (s *MemoryStore) CreateCashflowEvent(ctx context.Context, event *models.CashflowEventRecord) error {
	return s.write(ctx, func(st *memoryState) error {
		event.ID = st.nextId("cashflow_event_records")
		if event.PublishStatus == "" {
			event.PublishStatus = models.OutboxPublishStatusPending
		}
		event.CreatedAt = time.Now().UTC()
		event.UpdatedAt = event.CreatedAt
		st.events = append(st.events, clonePtr(event))
		return nil
	})
}

// CashflowEvents returns the committed outbox rows.
func (s *MemoryStore) CashflowEvents() []*models.CashflowEventRecord {
	var out []*models.CashflowEventRecord
	s.read(func(st *memoryState) {
		for _, e := range st.events {
			out = append(out, clonePtr(e))
		}
	})
	return out
}

// idempotency

func (s *MemoryStore) BeginIdempotency(ctx context.Context, handlerName, messageId string) (skip bool, err error) {
	err = s.write(ctx, func(st *memoryState) error {
		key := handlerName + "|" + messageId
		existing, ok := st.idempotency[key]
		if !ok {
			st.idempotency[key] = &models.IdempotencyKey{
				ID:          st.nextId("idempotency_keys"),
				HandlerName: handlerName,
				MessageId:   messageId,
				Status:      models.IdempotencyStatusStarted,
				CreatedAt:   time.Now().UTC(),
				UpdatedAt:   time.Now().UTC(),
			}
			return nil
		}
		switch existing.Status {
		case models.IdempotencyStatusSucceeded:
			skip = true
			return nil
		case models.IdempotencyStatusStarted:
			if time.Since(existing.UpdatedAt) < staleStartedAfter {
				return ErrIdempotencyInProgress
			}
		}
		existing.Status = models.IdempotencyStatusStarted
		existing.LastError = nil
		existing.UpdatedAt = time.Now().UTC()
		return nil
	})
	return skip, err
}

func (s *MemoryStore) setIdempotencyStatus(ctx context.Context, handlerName, messageId string, status models.IdempotencyStatus, cause error) error {
	return s.write(ctx, func(st *memoryState) error {
		existing, ok := st.idempotency[handlerName+"|"+messageId]
		if !ok {
			return nil
		}
		existing.Status = status
		existing.LastError = nil
		if cause != nil {
			msg := cause.Error()
			existing.LastError = &msg
		}
		existing.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *MemoryStore) MarkIdempotencySucceeded(ctx context.Context, handlerName, messageId string) error {
	return s.setIdempotencyStatus(ctx, handlerName, messageId, models.IdempotencyStatusSucceeded, nil)
}

func (s *MemoryStore) MarkIdempotencyFailed(ctx context.Context, handlerName, messageId string, cause error) error {
	return s.setIdempotencyStatus(ctx, handlerName, messageId, models.IdempotencyStatusFailed, cause)
}
