package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// wrap maps driver errors onto repository sentinels and adds context.
func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return nil
}
