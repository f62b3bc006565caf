// Package memory provides an in-process task store for tests and local
// development. Claims are serialized by a mutex, so the conditional update
// is atomic within one process only.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/store"
)

// TaskStore implements store.TaskStore in memory.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
	now   func() time.Time
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask persists a new pending task.
func (s *TaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", errors.Join(store.ErrInvalidEntity, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask retrieves a task by its ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// ClaimTask moves a pending or stale in_progress task to in_progress.
func (s *TaskStore) ClaimTask(ctx context.Context, taskID uuid.UUID, staleBefore time.Time) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	claimable := task.Status == domain.TaskStatusPending ||
		(task.Status == domain.TaskStatusInProgress && task.ClaimedAt.Before(staleBefore))
	if !claimable {
		return nil, store.ErrNotClaimable
	}

	now := s.now()
	task.Status = domain.TaskStatusInProgress
	task.ClaimCount++
	task.ClaimedAt = now
	task.UpdatedAt = now
	return task.Clone(), nil
}

// FinishTask writes a terminal state under the given claim.
func (s *TaskStore) FinishTask(
	ctx context.Context,
	taskID uuid.UUID,
	claimCount int,
	status domain.TaskStatus,
	statusCode string,
	result domain.TaskResult,
) error {
	if !status.IsTerminal() {
		return store.NewStoreError("task", "finish", "status is not terminal", domain.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}

	if task.Status != domain.TaskStatusInProgress || task.ClaimCount != claimCount {
		return store.ErrClaimLost
	}

	task.Status = status
	task.StatusCode = statusCode
	task.Result = result
	task.UpdatedAt = s.now()
	return nil
}

// ListTasksByOwner returns up to limit tasks for ownerRef, newest first.
func (s *TaskStore) ListTasksByOwner(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if task.OwnerRef == ownerRef {
			tasks = append(tasks, task.Clone())
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}
