package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation on
// either postgres or sqlite. When constraintName is provided, the helper also
// requires the constraint (or, for sqlite, the column list) to be named.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) && pgxErr.Code == pgUniqueViolation {
		return constraintName == "" || pgxErr.ConstraintName == constraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return constraintName == "" || pqErr.Constraint == constraintName
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsNotFound hides the gorm sentinel from callers that only hold an error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
