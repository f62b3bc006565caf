package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a generation task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrInvalidTransition  = errors.New("invalid task status transition")
	ErrMissingTaskResult  = errors.New("terminal task must carry a result")
	ErrUnexpectedResult   = errors.New("non-terminal task must not carry a result")
	ErrMissingStatusCode  = errors.New("failed task must carry a status code")
	ErrConflictingInputs  = errors.New("inline image and image reference are mutually exclusive")
	ErrInvalidTaskPayload = errors.New("invalid task payload")
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the status
// monotonic. in_progress -> in_progress is a reclaim of an expired claim.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusInProgress
	case TaskStatusInProgress:
		return next == TaskStatusInProgress || next.IsTerminal()
	default:
		return false
	}
}

// GenerationRequest is the immutable input of a task. It is written once at
// submission and never modified afterwards.
type GenerationRequest struct {
	Prompt           string `json:"prompt"`
	Model            string `json:"model,omitempty"`
	InputImageInline []byte `json:"input_image_inline,omitempty"`
	InputImageRef    string `json:"input_image_ref,omitempty"`
	FolderHint       string `json:"folder_hint,omitempty"`
}

// TaskResult is the output written at the single transition into a terminal
// state: a published URL on success, an error description on failure.
type TaskResult struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsZero reports whether the result is empty.
func (r TaskResult) IsZero() bool {
	return r.URL == "" && r.Error == ""
}

// Task represents one durable generation job and its lifecycle state.
type Task struct {
	ID         uuid.UUID         `json:"task_id"`
	OwnerRef   string            `json:"canvas_id,omitempty"`
	Status     TaskStatus        `json:"status"`
	StatusCode string            `json:"status_code,omitempty"`
	Request    GenerationRequest `json:"request"`
	Result     TaskResult        `json:"result"`

	// ClaimCount is incremented on every successful claim and fences
	// terminal writes against executors whose claim has expired.
	ClaimCount int       `json:"claim_count"`
	ClaimedAt  time.Time `json:"claimed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a pending task for the given request.
// Returns an error if validation fails.
func NewTask(req GenerationRequest, ownerRef string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		OwnerRef:  ownerRef,
		Status:    TaskStatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the task invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Request.Prompt == "" {
		return ErrEmptyPrompt
	}

	if len(t.Request.InputImageInline) > 0 && t.Request.InputImageRef != "" {
		return ErrConflictingInputs
	}

	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}

	if t.Status.IsTerminal() && t.Result.IsZero() {
		return ErrMissingTaskResult
	}

	if !t.Status.IsTerminal() && !t.Result.IsZero() {
		return ErrUnexpectedResult
	}

	if t.Status == TaskStatusFailed && t.StatusCode == "" {
		return ErrMissingStatusCode
	}

	return nil
}

// Clone returns a deep copy so stores can hand out tasks without sharing the
// underlying request bytes.
func (t *Task) Clone() *Task {
	c := *t
	if t.Request.InputImageInline != nil {
		c.Request.InputImageInline = append([]byte(nil), t.Request.InputImageInline...)
	}
	return &c
}

// taskPayload is the JSON document persisted in the payload column
type taskPayload struct {
	Request GenerationRequest `json:"request"`
	Result  *TaskResult       `json:"result,omitempty"`
}

// Payload encodes the request and, once terminal, the result as one JSON
// document.
func (t *Task) Payload() ([]byte, error) {
	p := taskPayload{Request: t.Request}
	if !t.Result.IsZero() {
		result := t.Result
		p.Result = &result
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return data, nil
}

// DecodePayload splits a persisted payload back into request and result.
func DecodePayload(data []byte) (GenerationRequest, TaskResult, error) {
	var p taskPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return GenerationRequest{}, TaskResult{}, fmt.Errorf("%w: %v", ErrInvalidTaskPayload, err)
	}

	var result TaskResult
	if p.Result != nil {
		result = *p.Result
	}
	return p.Request, result, nil
}
