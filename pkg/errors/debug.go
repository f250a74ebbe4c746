package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain for structured logs. Postgres fields are
// filled from either driver so constraint names survive into the log line.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Reason = ReasonOf(err)
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.fillPostgres(err)
	return d
}

func (d *ErrorDump) fillPostgres(err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode, d.PGConstraint, d.PGTable = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName
		d.PGColumn, d.PGDetail, d.PGMessage = pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message
		return
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.PGColumn, d.PGDetail, d.PGMessage = pqErr.Column, pqErr.Detail, pqErr.Message
	}
}
