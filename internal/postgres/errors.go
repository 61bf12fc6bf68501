package postgres

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation   = "23505"
	codeSerializationFail = "40001"
)

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeUniqueViolation
	}
	return false
}

// IsSerializationFailure reports whether the transaction lost a
// serialization race and may be retried
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == codeSerializationFail
	}
	return false
}

// IsNoRows reports whether a single row query found nothing
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
