package apperr

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error classes relevant to classification.
const (
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// FromStore maps a raw persistence error onto the taxonomy. Constraint
// violations become validation failures, a missing row becomes not-found,
// everything else is treated as a transient store outage.
func FromStore(msg string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound("%s", msg)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgNotNullViolation, pgUniqueViolation, pgCheckViolation:
			return &Error{Kind: KindValidation, Msg: msg, Err: err}
		}
	}

	return StoreUnavailable(msg, err)
}

// IsTransient reports whether err looks like a failure worth retrying at the
// caller's discretion: store outages, network timeouts, cancelled deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsStoreUnavailable(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
