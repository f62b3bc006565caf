// Package redis implements store.TaskStore on Redis. Each task is a Hash;
// an owner's tasks are indexed in a Sorted Set scored by creation time.
// Claims and terminal writes run as Lua scripts so the conditional update
// is atomic on the server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"
	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/store"
)

const keyPrefix = "mediagen:"

func taskKey(id string) string { return keyPrefix + "task:" + id }
func ownerKey(owner string) string { return keyPrefix + "owner:" + owner }

// claimScript returns the task hash after a successful claim, 0 when the
// task is not claimable and -1 when it does not exist.
//
// KEYS[1] task key; ARGV[1] now (unix ms); ARGV[2] stale-before (unix ms);
// ARGV[3] now (RFC3339Nano).
var claimScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
local claimedAt = tonumber(redis.call('HGET', KEYS[1], 'claimed_at') or '0')
if status == 'pending' or (status == 'in_progress' and claimedAt < tonumber(ARGV[2])) then
  redis.call('HINCRBY', KEYS[1], 'claim_count', 1)
  redis.call('HSET', KEYS[1], 'status', 'in_progress', 'claimed_at', ARGV[1], 'updated_at', ARGV[3])
  return redis.call('HGETALL', KEYS[1])
end
return 0
`)

// createScript writes a new task hash and its owner index entry, or returns
// 0 without writing when the task key already exists.
//
// KEYS[1] task key; KEYS[2] owner index (optional); ARGV[1] created (unix ms);
// ARGV[2] task id; ARGV[3..] hash field/value pairs.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
if KEYS[2] then
  redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
end
return 1
`)

// taskFields fixes the order in which hash fields are passed to createScript.
var taskFields = []string{
	"canvas_id", "status", "status_code", "request", "result",
	"claim_count", "claimed_at", "created_at", "updated_at",
}

// finishScript returns 1 on success, 0 when the claim was lost and -1 when
// the task does not exist.
//
// KEYS[1] task key; ARGV[1] claim count; ARGV[2] status; ARGV[3] status code;
// ARGV[4] result JSON; ARGV[5] now (RFC3339Nano).
var finishScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status ~= 'in_progress' or redis.call('HGET', KEYS[1], 'claim_count') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'status_code', ARGV[3], 'result', ARGV[4], 'updated_at', ARGV[5])
return 1
`)

// Option configures the TaskStore.
type Option func(*TaskStore)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *TaskStore) { s.logger = l }
}

// TaskStore implements store.TaskStore backed by Redis.
type TaskStore struct {
	client goredis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a Redis-backed task store. The caller owns the client
// lifecycle.
func NewTaskStore(client goredis.UniversalClient, opts ...Option) *TaskStore {
	s := &TaskStore{
		client: client,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping checks connectivity to Redis.
func (s *TaskStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateTask stores the task hash and indexes it under its owner.
func (s *TaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", errors.Join(store.ErrInvalidEntity, err))
	}

	fields, err := taskToMap(task)
	if err != nil {
		return err
	}

	keys := []string{taskKey(task.ID.String())}
	if task.OwnerRef != "" {
		keys = append(keys, ownerKey(task.OwnerRef))
	}
	args := []interface{}{task.CreatedAt.UnixMilli(), task.ID.String()}
	for _, name := range taskFields {
		args = append(args, name, fields[name])
	}

	n, err := createScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to save task", "task_id", task.ID, "error", err)
		return fmt.Errorf("mediagen/redis: create task: %w", err)
	}
	if n == 0 {
		return store.ErrDuplicate
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *TaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	vals, err := s.client.HGetAll(ctx, taskKey(taskID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("mediagen/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return taskFromMap(taskID, vals)
}

// ClaimTask runs the claim script against the task hash.
func (s *TaskStore) ClaimTask(ctx context.Context, taskID uuid.UUID, staleBefore time.Time) (*domain.Task, error) {
	now := s.now()
	res, err := claimScript.Run(ctx, s.client,
		[]string{taskKey(taskID.String())},
		now.UnixMilli(),
		staleBefore.UnixMilli(),
		now.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to claim task", "task_id", taskID, "error", err)
		return nil, fmt.Errorf("mediagen/redis: claim task: %w", err)
	}

	switch v := res.(type) {
	case int64:
		if v < 0 {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.ErrNotClaimable
	case []interface{}:
		vals, err := pairsToMap(v)
		if err != nil {
			return nil, err
		}
		return taskFromMap(taskID, vals)
	default:
		return nil, fmt.Errorf("mediagen/redis: unexpected claim reply %T", res)
	}
}

// FinishTask runs the finish script, fenced on claimCount.
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

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("mediagen/redis: marshal result: %w", err)
	}

	n, err := finishScript.Run(ctx, s.client,
		[]string{taskKey(taskID.String())},
		strconv.Itoa(claimCount),
		string(status),
		statusCode,
		string(resultJSON),
		s.now().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to finish task", "task_id", taskID, "error", err)
		return fmt.Errorf("mediagen/redis: finish task: %w", err)
	}

	switch {
	case n < 0:
		return store.ErrTaskNotFound
	case n == 0:
		s.logger.WarnContext(ctx, "task no longer held under claim",
			"task_id", taskID,
			"claim_count", claimCount)
		return store.ErrClaimLost
	}
	return nil
}

// ListTasksByOwner reads the owner index newest first and loads each hash.
func (s *TaskStore) ListTasksByOwner(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, ownerKey(ownerRef), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("mediagen/redis: list owner index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("mediagen/redis: list tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		id, err := uuid.Parse(ids[i])
		if err != nil {
			continue
		}
		task, err := taskFromMap(id, vals)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func taskToMap(task *domain.Task) (map[string]interface{}, error) {
	req, err := json.Marshal(task.Request)
	if err != nil {
		return nil, fmt.Errorf("mediagen/redis: marshal request: %w", err)
	}

	var result string
	if !task.Result.IsZero() {
		data, err := json.Marshal(task.Result)
		if err != nil {
			return nil, fmt.Errorf("mediagen/redis: marshal result: %w", err)
		}
		result = string(data)
	}

	var claimedAt int64
	if !task.ClaimedAt.IsZero() {
		claimedAt = task.ClaimedAt.UnixMilli()
	}

	return map[string]interface{}{
		"canvas_id":   task.OwnerRef,
		"status":      string(task.Status),
		"status_code": task.StatusCode,
		"request":     string(req),
		"result":      result,
		"claim_count": task.ClaimCount,
		"claimed_at":  claimedAt,
		"created_at":  task.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func taskFromMap(id uuid.UUID, m map[string]string) (*domain.Task, error) {
	task := &domain.Task{
		ID:         id,
		OwnerRef:   m["canvas_id"],
		Status:     domain.TaskStatus(m["status"]),
		StatusCode: m["status_code"],
	}

	if err := json.Unmarshal([]byte(m["request"]), &task.Request); err != nil {
		return nil, fmt.Errorf("%w: request: %v", domain.ErrInvalidTaskPayload, err)
	}
	if r := m["result"]; r != "" {
		if err := json.Unmarshal([]byte(r), &task.Result); err != nil {
			return nil, fmt.Errorf("%w: result: %v", domain.ErrInvalidTaskPayload, err)
		}
	}

	if v := m["claim_count"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("mediagen/redis: parse claim_count: %w", err)
		}
		task.ClaimCount = n
	}
	if v := m["claimed_at"]; v != "" && v != "0" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("mediagen/redis: parse claimed_at: %w", err)
		}
		task.ClaimedAt = time.UnixMilli(ms).UTC()
	}

	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"])
	task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"])
	return task, nil
}

func pairsToMap(pairs []interface{}) (map[string]string, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("mediagen/redis: odd hash reply length %d", len(pairs))
	}
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, ok1 := pairs[i].(string)
		v, ok2 := pairs[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("mediagen/redis: non-string hash reply")
		}
		m[k] = v
	}
	return m, nil
}
