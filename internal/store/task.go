package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagen/internal/domain"
)

// TaskStore defines the persistence contract for generation tasks.
//
// ClaimTask and FinishTask are conditional updates evaluated atomically by
// the backing store. Implementations must never emulate them with a read
// followed by an unconditional write.
type TaskStore interface {
	// CreateTask persists a new pending task.
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

	// ClaimTask moves the task to in_progress if it is pending, or if it is
	// in_progress with a claim older than staleBefore. The claim count is
	// incremented and the updated task returned.
	// Returns ErrNotClaimable if the condition did not hold.
	ClaimTask(ctx context.Context, taskID uuid.UUID, staleBefore time.Time) (*domain.Task, error)

	// FinishTask writes a terminal status, status code and result, provided
	// the task is still in_progress under the given claim count.
	// Returns ErrClaimLost otherwise.
	FinishTask(
		ctx context.Context,
		taskID uuid.UUID,
		claimCount int,
		status domain.TaskStatus,
		statusCode string,
		result domain.TaskResult,
	) error

	// ListTasksByOwner returns up to limit tasks for an owner ref, newest first.
	ListTasksByOwner(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error)
}
