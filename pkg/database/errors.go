package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meritrack/backend/pkg/apperr"
)

// MapError translates pgx and PostgreSQL errors into apperr kinds.
// Errors it does not recognise are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var mapped *apperr.Error
	if errors.As(err, &mapped) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.ErrNotFound, "not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.ErrUnavailable, "database timeout", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return apperr.Wrap(apperr.ErrDuplicate, "already exists", err)
		case pgErr.Code == "23503": // foreign_key_violation
			return apperr.Wrap(apperr.ErrNotFound, "referenced record not found", err)
		case pgErr.Code == "23514": // check_violation
			return apperr.Wrap(apperr.ErrValidation, "value violates a constraint", err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return apperr.Wrap(apperr.ErrConflict, "concurrent update conflict", err)
		case pgErr.Code == "57014": // query_canceled
			return apperr.Wrap(apperr.ErrUnavailable, "database timeout", err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
			return apperr.Wrap(apperr.ErrUnavailable, "database unavailable", err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return apperr.Wrap(apperr.ErrUnavailable, "database unavailable", err)
	}
	return err
}
