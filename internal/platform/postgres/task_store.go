package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/platform/logger"
	"github.com/phrazzld/mediagen/internal/store"
)

// taskColumns is the column list shared by every task query, in scan order.
const taskColumns = `task_id, canvas_id, status, status_code, payload, claim_count, claimed_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db  store.DBTX
	now func() time.Time
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask persists a new pending task
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	payload, err := task.Payload()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO generation_tasks (task_id, canvas_id, status, status_code, payload, claim_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		nullString(task.OwnerRef),
		task.Status,
		nullString(task.StatusCode),
		payload,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}

	return nil
}

// GetTask retrieves a task by its ID
func (s *PostgresTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE task_id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContext(ctx).Error("failed to get task",
			"task_id", taskID,
			"error", err)
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}

	return task, nil
}

// ClaimTask moves the task to in_progress with a single conditional UPDATE.
// Concurrent callers are serialized by the row lock; only one of them sees
// the WHERE clause hold and gets a row back.
func (s *PostgresTaskStore) ClaimTask(
	ctx context.Context,
	taskID uuid.UUID,
	staleBefore time.Time,
) (*domain.Task, error) {
	query := `
		UPDATE generation_tasks
		SET status = 'in_progress', claim_count = claim_count + 1, claimed_at = $2, updated_at = $2
		WHERE task_id = $1
		  AND (status = 'pending' OR (status = 'in_progress' AND claimed_at < $3))
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskID, s.now(), staleBefore.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotClaimable
		}
		logger.FromContext(ctx).Error("failed to claim task",
			"task_id", taskID,
			"error", err)
		return nil, fmt.Errorf("failed to claim task: %w", MapError(err))
	}

	return task, nil
}

// FinishTask writes the terminal status and result, fenced on the claim count
func (s *PostgresTaskStore) FinishTask(
	ctx context.Context,
	taskID uuid.UUID,
	claimCount int,
	status domain.TaskStatus,
	statusCode string,
	result domain.TaskResult,
) error {
	log := logger.FromContext(ctx)

	if !status.IsTerminal() {
		return store.NewStoreError("task", "finish", "status is not terminal", domain.ErrInvalidTransition)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}

	query := `
		UPDATE generation_tasks
		SET status = $3, status_code = $4, payload = jsonb_set(payload, '{result}', $5::jsonb), updated_at = $6
		WHERE task_id = $1 AND status = 'in_progress' AND claim_count = $2
	`

	res, err := s.db.ExecContext(ctx, query,
		taskID,
		claimCount,
		status,
		nullString(statusCode),
		resultJSON,
		s.now(),
	)
	if err != nil {
		log.Error("failed to finish task",
			"task_id", taskID,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to finish task: %w", MapError(err))
	}

	if err := CheckRowsAffected(res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("task no longer held under claim",
				"task_id", taskID,
				"claim_count", claimCount)
			return store.ErrClaimLost
		}
		return err
	}

	return nil
}

// ListTasksByOwner returns up to limit tasks for ownerRef, newest first
func (s *PostgresTaskStore) ListTasksByOwner(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE canvas_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, ownerRef, limit)
	if err != nil {
		log.Error("failed to query tasks by owner",
			"canvas_id", ownerRef,
			"error", err)
		return nil, fmt.Errorf("failed to query tasks by owner: %w", MapError(err))
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		canvasID   sql.NullString
		statusCode sql.NullString
		payload    []byte
		claimedAt  sql.NullTime
	)

	if err := row.Scan(
		&task.ID,
		&canvasID,
		&task.Status,
		&statusCode,
		&payload,
		&task.ClaimCount,
		&claimedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	req, result, err := domain.DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	task.OwnerRef = canvasID.String
	task.StatusCode = statusCode.String
	task.Request = req
	task.Result = result
	if claimedAt.Valid {
		task.ClaimedAt = claimedAt.Time
	}

	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
