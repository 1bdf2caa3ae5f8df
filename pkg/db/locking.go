package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsPostgres reports whether the handle talks to postgres.
func IsPostgres(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == DriverPostgres
}

// ForUpdate adds a row-level exclusive lock to the next query when the
// dialect supports it. sqlite serializes writers at the database level, so
// the clause is skipped there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if !IsPostgres(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// SetLockTimeout bounds lock waits for the rest of the transaction.
func SetLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 || !IsPostgres(tx) {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}
