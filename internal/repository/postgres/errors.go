package postgres

import (
	"database/sql"

	ierr "github.com/edulane/billing/internal/errors"
	"github.com/edulane/billing/internal/postgres"
)

// wrapError maps a driver error to the domain error kinds
func wrapError(err error, entity string, details map[string]any) error {
	switch {
	case postgres.IsNoRows(err):
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	case postgres.IsUniqueViolation(err):
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrAlreadyExists)
	case postgres.IsSerializationFailure(err):
		return ierr.WithError(err).
			WithHintf("%s was modified concurrently", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrVersionConflict)
	default:
		return ierr.WithError(err).
			WithHintf("Failed to access %s", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrDatabase)
	}
}

// checkVersioned turns a conditional write that touched no row into a
// version conflict
func checkVersioned(result sql.Result, entity string, details map[string]any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return wrapError(err, entity, details)
	}
	if n == 0 {
		return ierr.NewError("version conflict").
			WithHintf("The %s was modified concurrently", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}
