package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/threeway/internal/shared"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TranslateError maps retryable or duplicate Postgres failures to shared.ErrConflict.
func TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, shared.ErrConflict)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("concurrent update, retry: %w", shared.ErrConflict)
	}
	return err
}
