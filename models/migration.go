package models

import (
	"log"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func MigrateTable() {
	if err := MigrateSchema(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

// MigrateSchema creates the cashflow tables and the ledger lock row writers lock on.
func MigrateSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&LedgerDay{}, &OpeningBalance{}, &LedgerLock{},
		&LedgerCategory{},
		&ProjectedInflow{}, &ProjectedInflowLine{}, &ActualInflow{},
		&PaymentRequest{}, &MonthlyPayment{}, &ScheduledPayment{},
		&History{},
		&CashflowEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&LedgerLock{Name: GlobalLedgerLockName}).Error
}
