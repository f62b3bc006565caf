package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/store"
)

// SQLSTATE codes the generation_tasks schema can raise.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
)

// statusCheckConstraint guards the status column of generation_tasks.
const statusCheckConstraint = "generation_tasks_status_check"

// MapError translates a driver error from a generation_tasks query into the
// store sentinels. The driver text is kept after the sentinel.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrTaskNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		// task_id is the only unique key.
		return fmt.Errorf("%w: task id already used: %v", store.ErrDuplicate, err)
	case checkViolationCode:
		if pgErr.ConstraintName == statusCheckConstraint {
			return fmt.Errorf("%w: %w: %v", store.ErrInvalidEntity, domain.ErrInvalidTaskStatus, err)
		}
		return fmt.Errorf("%w: %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case notNullViolationCode:
		return fmt.Errorf("%w: %s is required: %v", store.ErrInvalidEntity, pgErr.ColumnName, err)
	default:
		return err
	}
}

// CheckRowsAffected reports store.ErrTaskNotFound when an update touched no
// row.
func CheckRowsAffected(result sql.Result) error {
	if result == nil {
		return errors.New("nil sql result")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}
