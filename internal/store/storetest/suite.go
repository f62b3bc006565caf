// Package storetest holds behavioral tests shared by every store.TaskStore
// implementation that can run without external services.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTaskStoreSuite exercises the TaskStore contract against stores built by
// newStore. Each subtest gets a fresh store.
func RunTaskStoreSuite(t *testing.T, newStore func(t *testing.T) store.TaskStore) {
	t.Helper()

	ctx := context.Background()

	newTask := func(t *testing.T, owner string) *domain.Task {
		task, err := domain.NewTask(domain.GenerationRequest{
			Prompt:           "a red cube",
			Model:            "m1",
			InputImageInline: []byte{0x89, 'P', 'N', 'G'},
			FolderHint:       "canvas",
		}, owner)
		require.NoError(t, err)
		return task
	}

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "canvas-1")
		require.NoError(t, s.CreateTask(ctx, task))

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "canvas-1", got.OwnerRef)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
		assert.Equal(t, task.Request, got.Request)
		assert.True(t, got.Result.IsZero())
		assert.Zero(t, got.ClaimCount)
	})

	t.Run("get missing task", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetTask(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("claim pending task once", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "")
		require.NoError(t, s.CreateTask(ctx, task))

		claimed, err := s.ClaimTask(ctx, task.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, claimed.Status)
		assert.Equal(t, 1, claimed.ClaimCount)
		assert.False(t, claimed.ClaimedAt.IsZero())

		_, err = s.ClaimTask(ctx, task.ID, time.Now().Add(-time.Hour))
		assert.ErrorIs(t, err, store.ErrNotClaimable)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "")
		require.NoError(t, s.CreateTask(ctx, task))

		const pollers = 16
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			losses int
		)
		for i := 0; i < pollers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ClaimTask(ctx, task.ID, time.Now().Add(-time.Hour))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else if assert.ErrorIs(t, err, store.ErrNotClaimable) {
					losses++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, pollers-1, losses)
	})

	t.Run("stale claim can be reclaimed", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "")
		require.NoError(t, s.CreateTask(ctx, task))

		first, err := s.ClaimTask(ctx, task.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		second, err := s.ClaimTask(ctx, task.ID, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, first.ClaimCount+1, second.ClaimCount)

		err = s.FinishTask(ctx, task.ID, first.ClaimCount, domain.TaskStatusSucceeded, "",
			domain.TaskResult{URL: "https://late"})
		assert.ErrorIs(t, err, store.ErrClaimLost)

		err = s.FinishTask(ctx, task.ID, second.ClaimCount, domain.TaskStatusSucceeded, "",
			domain.TaskResult{URL: "https://storage.example.com/b/k.png"})
		require.NoError(t, err)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://storage.example.com/b/k.png", got.Result.URL)
	})

	t.Run("finish writes terminal state once", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "")
		require.NoError(t, s.CreateTask(ctx, task))

		claimed, err := s.ClaimTask(ctx, task.ID, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		err = s.FinishTask(ctx, task.ID, claimed.ClaimCount, domain.TaskStatusFailed, "429",
			domain.TaskResult{Error: "provider throttled the request"})
		require.NoError(t, err)

		err = s.FinishTask(ctx, task.ID, claimed.ClaimCount, domain.TaskStatusSucceeded, "",
			domain.TaskResult{URL: "https://x"})
		assert.ErrorIs(t, err, store.ErrClaimLost)

		_, err = s.ClaimTask(ctx, task.ID, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, store.ErrNotClaimable)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusFailed, got.Status)
		assert.Equal(t, "429", got.StatusCode)
		assert.Equal(t, "provider throttled the request", got.Result.Error)
		assert.Equal(t, task.Request, got.Request)
	})

	t.Run("finish requires a claim", func(t *testing.T) {
		s := newStore(t)
		task := newTask(t, "")
		require.NoError(t, s.CreateTask(ctx, task))

		err := s.FinishTask(ctx, task.ID, 0, domain.TaskStatusSucceeded, "", domain.TaskResult{URL: "https://x"})
		assert.ErrorIs(t, err, store.ErrClaimLost)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		s := newStore(t)

		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			task := newTask(t, "canvas-7")
			task.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
			task.UpdatedAt = task.CreatedAt
			require.NoError(t, s.CreateTask(ctx, task))
			ids = append(ids, task.ID)
		}
		require.NoError(t, s.CreateTask(ctx, newTask(t, "other")))

		tasks, err := s.ListTasksByOwner(ctx, "canvas-7", 2)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, ids[2], tasks[0].ID)
		assert.Equal(t, ids[1], tasks[1].ID)
	})
}
