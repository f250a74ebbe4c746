package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a row lock on dialects that support one. sqlite serializes
// writers at the database level, so the clause is skipped there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != DriverPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// ForUpdateSkipLocked is ForUpdate for queue-style polling by several workers.
func ForUpdateSkipLocked(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != DriverPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{
		Strength: clause.LockingStrengthUpdate,
		Options:  clause.LockingOptionsSkipLocked,
	})
}
