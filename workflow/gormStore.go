package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"gorm.io/gorm"
)

// GormStore persists the ledger in MySQL or Postgres.
type GormStore struct {
	db          *gorm.DB
	driver      string
	lockTimeout time.Duration
	inTx        bool
}

func NewGormStore(db *gorm.DB, driver string) *GormStore {
	return &GormStore{db: db, driver: driver, lockTimeout: config.LedgerLockTimeout()}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) WithLockTimeout(d time.Duration) *GormStore {
	s.lockTimeout = d
	return s
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *GormStore) InTransaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireLedgerLock(tx, s.driver, s.lockTimeout); err != nil {
			return err
		}
		return fn(&GormStore{db: tx, driver: s.driver, lockTimeout: s.lockTimeout, inTx: true})
	})
	return classifyStoreError(err)
}

func firstOrNil[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func firstOrNotFound[T any](q *gorm.DB, resource string, id int) (*T, error) {
	out, err := firstOrNil[T](q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, utils.NewNotFoundError(resource, id)
	}
	return out, nil
}

// ledger days

func (s *GormStore) GetDay(ctx context.Context, date time.Time) (*models.LedgerDay, error) {
	return firstOrNil[models.LedgerDay](s.conn(ctx).Where("date = ?", utils.NormalizeDate(date)))
}

func (s *GormStore) GetLastKnownBeforeOrOn(ctx context.Context, date time.Time) (*models.LedgerDay, error) {
	return firstOrNil[models.LedgerDay](s.conn(ctx).
		Where("date <= ?", utils.NormalizeDate(date)).
		Order("date DESC"))
}

func (s *GormStore) GetFirstDay(ctx context.Context) (*models.LedgerDay, error) {
	return firstOrNil[models.LedgerDay](s.conn(ctx).Order("date ASC"))
}

func (s *GormStore) GetLastDay(ctx context.Context) (*models.LedgerDay, error) {
	return firstOrNil[models.LedgerDay](s.conn(ctx).Order("date DESC"))
}

func (s *GormStore) ListFrom(ctx context.Context, date time.Time) ([]*models.LedgerDay, error) {
	var days []*models.LedgerDay
	err := s.conn(ctx).Where("date >= ?", utils.NormalizeDate(date)).Order("date ASC").Find(&days).Error
	return days, err
}

func (s *GormStore) ListRange(ctx context.Context, from, to time.Time) ([]*models.LedgerDay, error) {
	var days []*models.LedgerDay
	err := s.conn(ctx).
		Where("date BETWEEN ? AND ?", utils.NormalizeDate(from), utils.NormalizeDate(to)).
		Order("date ASC").
		Find(&days).Error
	return days, err
}

func (s *GormStore) UpsertDay(ctx context.Context, date time.Time, patch models.LedgerDayPatch) (*models.LedgerDay, bool, error) {
	date = utils.NormalizeDate(date)
	day, err := s.GetDay(ctx, date)
	if err != nil {
		return nil, false, err
	}
	if day == nil {
		day = models.NewEmptyLedgerDay(date)
		day.Apply(patch)
		if err := s.conn(ctx).Create(day).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return nil, false, utils.NewConcurrencyConflictError(err)
			}
			return nil, false, err
		}
		return day, true, nil
	}
	if !day.Apply(patch) {
		return day, false, nil
	}
	res := s.conn(ctx).Model(&models.LedgerDay{}).
		Where("id = ? AND version = ?", day.ID, day.Version).
		Updates(map[string]interface{}{
			"projected_inflow": day.ProjectedInflow,
			"actual_inflow":    day.ActualInflow,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, ErrStaleLedgerDay
	}
	day.Version++
	return day, false, nil
}

func (s *GormStore) SaveBalances(ctx context.Context, day *models.LedgerDay) error {
	res := s.conn(ctx).Model(&models.LedgerDay{}).
		Where("id = ? AND version = ?", day.ID, day.Version).
		Updates(map[string]interface{}{
			"total_payments":  day.TotalPayments,
			"closing_balance": day.ClosingBalance,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleLedgerDay
	}
	day.Version++
	return nil
}

func (s *GormStore) GetOpeningBalance(ctx context.Context) (*models.OpeningBalance, error) {
	return firstOrNil[models.OpeningBalance](s.conn(ctx).Order("id ASC"))
}

func (s *GormStore) SaveOpeningBalance(ctx context.Context, ob *models.OpeningBalance) error {
	return s.conn(ctx).Save(ob).Error
}

// inflows

func (s *GormStore) GetActualInflow(ctx context.Context, date time.Time) (*models.ActualInflow, error) {
	return firstOrNil[models.ActualInflow](s.conn(ctx).Where("date = ?", utils.NormalizeDate(date)))
}

func (s *GormStore) SaveActualInflow(ctx context.Context, inflow *models.ActualInflow) error {
	inflow.Date = utils.NormalizeDate(inflow.Date)
	return s.conn(ctx).Save(inflow).Error
}

func (s *GormStore) ListActualInflows(ctx context.Context, from, to time.Time) ([]*models.ActualInflow, error) {
	var rows []*models.ActualInflow
	err := s.conn(ctx).
		Where("date BETWEEN ? AND ?", utils.NormalizeDate(from), utils.NormalizeDate(to)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) GetProjectedInflow(ctx context.Context, date time.Time) (*models.ProjectedInflow, error) {
	return firstOrNil[models.ProjectedInflow](s.conn(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("ledger_id ASC") }).
		Where("date = ?", utils.NormalizeDate(date)))
}

func (s *GormStore) SaveProjectedInflow(ctx context.Context, inflow *models.ProjectedInflow) error {
	db := s.conn(ctx)
	inflow.Date = utils.NormalizeDate(inflow.Date)
	lines := inflow.Lines
	if err := db.Omit("Lines").Save(inflow).Error; err != nil {
		return err
	}
	if err := db.Where("projected_inflow_id = ?", inflow.ID).Delete(&models.ProjectedInflowLine{}).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].ProjectedInflowId = inflow.ID
	}
	if len(lines) > 0 {
		if err := db.Create(&lines).Error; err != nil {
			return err
		}
	}
	inflow.Lines = lines
	return nil
}

func (s *GormStore) ListProjectedInflows(ctx context.Context, from, to time.Time) ([]*models.ProjectedInflow, error) {
	var rows []*models.ProjectedInflow
	err := s.conn(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("ledger_id ASC") }).
		Where("date BETWEEN ? AND ?", utils.NormalizeDate(from), utils.NormalizeDate(to)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) GetLedgerCategory(ctx context.Context, id int) (*models.LedgerCategory, error) {
	return firstOrNotFound[models.LedgerCategory](s.conn(ctx).Where("id = ?", id), "ledger category", id)
}

func (s *GormStore) GetLedgerCategoriesByIds(ctx context.Context, ids []int) ([]*models.LedgerCategory, error) {
	var rows []*models.LedgerCategory
	if len(ids) == 0 {
		return rows, nil
	}
	err := s.conn(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListLedgerCategories(ctx context.Context) ([]*models.LedgerCategory, error) {
	var rows []*models.LedgerCategory
	err := s.conn(ctx).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (s *GormStore) CreateLedgerCategory(ctx context.Context, category *models.LedgerCategory) error {
	err := s.conn(ctx).Create(category).Error
	if isDuplicateKeyErr(err) {
		return utils.NewValidationError("ledger category %q already exists", category.Name)
	}
	return err
}

// obligations

func (s *GormStore) GetPaymentRequest(ctx context.Context, id int) (*models.PaymentRequest, error) {
	return firstOrNotFound[models.PaymentRequest](s.conn(ctx).Where("id = ?", id), "payment request", id)
}

func (s *GormStore) SavePaymentRequest(ctx context.Context, request *models.PaymentRequest) error {
	request.DueDate = utils.NormalizeDate(request.DueDate)
	return s.conn(ctx).Save(request).Error
}

func (s *GormStore) DeletePaymentRequest(ctx context.Context, id int) error {
	return deleteById[models.PaymentRequest](s.conn(ctx), id, "payment request")
}

func (s *GormStore) ListCompletedPaymentRequests(ctx context.Context, from, to time.Time) ([]*models.PaymentRequest, error) {
	var rows []*models.PaymentRequest
	err := s.conn(ctx).
		Where("status = ?", models.PaymentRequestStatusTransferCompleted).
		Where("due_date BETWEEN ? AND ?", utils.NormalizeDate(from), utils.NormalizeDate(to)).
		Order("due_date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) GetMonthlyPayment(ctx context.Context, id int) (*models.MonthlyPayment, error) {
	return firstOrNotFound[models.MonthlyPayment](s.conn(ctx).Where("id = ?", id), "monthly payment", id)
}

func (s *GormStore) SaveMonthlyPayment(ctx context.Context, payment *models.MonthlyPayment) error {
	return s.conn(ctx).Save(payment).Error
}

func (s *GormStore) DeleteMonthlyPayment(ctx context.Context, id int) error {
	return deleteById[models.MonthlyPayment](s.conn(ctx), id, "monthly payment")
}

func (s *GormStore) ListMonthlyPayments(ctx context.Context, from, to time.Time) ([]*models.MonthlyPayment, error) {
	var rows []*models.MonthlyPayment
	err := s.conn(ctx).
		Where("start_date <= ?", utils.NormalizeDate(to)).
		Where("end_date IS NULL OR end_date >= ?", utils.NormalizeDate(from)).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) GetScheduledPayment(ctx context.Context, id int) (*models.ScheduledPayment, error) {
	return firstOrNotFound[models.ScheduledPayment](s.conn(ctx).Where("id = ?", id), "scheduled payment", id)
}

func (s *GormStore) SaveScheduledPayment(ctx context.Context, payment *models.ScheduledPayment) error {
	return s.conn(ctx).Save(payment).Error
}

func (s *GormStore) DeleteScheduledPayment(ctx context.Context, id int) error {
	return deleteById[models.ScheduledPayment](s.conn(ctx), id, "scheduled payment")
}

func (s *GormStore) ListScheduledPayments(ctx context.Context, from, to time.Time) ([]*models.ScheduledPayment, error) {
	var rows []*models.ScheduledPayment
	err := s.conn(ctx).
		Where("date <= ? AND end_date >= ?", utils.NormalizeDate(to), utils.NormalizeDate(from)).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func deleteById[T any](db *gorm.DB, id int, resource string) error {
	var zero T
	res := db.Where("id = ?", id).Delete(&zero)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewNotFoundError(resource, id)
	}
	return nil
}

// audit

func (s *GormStore) CreateHistory(ctx context.Context, history *models.History) error {
	return s.conn(ctx).Create(history).Error
}

func (s *GormStore) ListHistory(ctx context.Context, referenceType models.ReferenceType, referenceId int) ([]*models.History, error) {
	var rows []*models.History
	err := s.conn(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) CreateCashflowEvent(ctx context.Context, event *models.CashflowEventRecord) error {
	if event.PublishStatus == "" {
		event.PublishStatus = models.OutboxPublishStatusPending
	}
	return s.conn(ctx).Create(event).Error
}
