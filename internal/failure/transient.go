package failure

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransient marks infrastructure failures that are safe to retry: nothing
// was committed and the same call may succeed later.
var ErrTransient = errors.New("transient failure")

const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *transientError) Unwrap() []error {
	return []error{ErrTransient, e.err}
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(op string, err error) error {
	return &transientError{op: op, err: err}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// FromDB classifies a database error. Lock timeouts, serialization failures,
// deadlocks, statement timeouts and dropped connections become transient;
// domain failures and nil pass through; everything else is wrapped with op.
func FromDB(op string, err error) error {
	if err == nil || IsDomain(err) || IsTransient(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return Transient(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return Transient(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
