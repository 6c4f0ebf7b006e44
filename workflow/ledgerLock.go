package workflow

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleLedgerDay means a ledger row changed between read and write.
var ErrStaleLedgerDay = errors.New("ledger day version is stale")

// AcquireLedgerLock serializes ledger writers across instances by locking the single
// ledger_locks row FOR UPDATE. The lock is released when tx commits or rolls back,
// unlike GET_LOCK which is connection-scoped.
func AcquireLedgerLock(tx *gorm.DB, driver string, timeout time.Duration) error {
	if err := setLockTimeout(tx, driver, timeout); err != nil {
		return err
	}
	var lock models.LedgerLock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", models.GlobalLedgerLockName).
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// first writer on a fresh schema
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.LedgerLock{Name: models.GlobalLedgerLockName}).Error; err != nil {
			return err
		}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", models.GlobalLedgerLockName).
			First(&lock).Error
	}
	return err
}

func setLockTimeout(tx *gorm.DB, driver string, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	switch driver {
	case config.DriverPostgres:
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error
	case config.DriverMySQL:
		secs := int(timeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		return tx.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error
	}
	return nil
}

// isLockConflictErr reports lock wait timeouts, deadlocks and serialization failures.
func isLockConflictErr(err error) bool {
	if errors.Is(err, ErrStaleLedgerDay) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// classifyStoreError maps raw store failures onto the service error kinds.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) || errors.Is(err, ErrIdempotencyInProgress) {
		return err
	}
	if isLockConflictErr(err) {
		return utils.NewConcurrencyConflictError(err)
	}
	return utils.NewPersistenceError(err)
}
