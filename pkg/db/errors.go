package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// sqlite reports unique violations by column list, not index name. Known
// unique indexes map to the column signature sqlite emits for them.
var sqliteUniqueColumns = map[string]string{
	"invoices_year_sequence_number_key": "invoices.year, invoices.sequence_number",
}

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation, optionally scoped to a named constraint. Typed driver errors are
// checked first; the message fallback covers wrapped errors and the sqlite
// test store.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolationCode &&
			(constraintName == "" || pgxErr.ConstraintName == constraintName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode &&
			(constraintName == "" || pqErr.Constraint == constraintName)
	}

	msg := err.Error()
	if constraintName == "" {
		return strings.Contains(msg, "duplicate key value") ||
			strings.Contains(msg, "UNIQUE constraint failed")
	}
	if strings.Contains(msg, constraintName) {
		return true
	}
	if columns, ok := sqliteUniqueColumns[constraintName]; ok {
		return strings.Contains(msg, "UNIQUE constraint failed") &&
			strings.Contains(msg, columns)
	}
	return false
}
