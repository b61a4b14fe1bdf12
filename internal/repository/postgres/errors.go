package postgres

import (
	"errors"
	"fmt"

	xerrors "escrow-service/shared/utils/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// classify maps driver errors onto the shared error kinds so callers can
// match with errors.Is regardless of store.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, xerrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %s: %w", what, pgErr.Message, xerrors.ErrBusy)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, xerrors.ErrConflict)
		case codeCheckViolation:
			return fmt.Errorf("%s: %s: %w", what, pgErr.ConstraintName, xerrors.ErrInvariantViolation)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
