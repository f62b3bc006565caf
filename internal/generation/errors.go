package generation

import (
	"errors"
	"fmt"
	"strconv"
)

// Common errors returned by the generation pipeline
var (
	// ErrInvalidConfig is returned when provider or storage configuration is
	// missing or invalid. It is fatal and never retried.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrThrottled is returned when the provider kept answering 429 after all retries
	ErrThrottled = errors.New("provider throttled the request")

	// ErrProviderFailed is returned for any other unsuccessful provider call
	ErrProviderFailed = errors.New("provider call failed")

	// ErrNoContent is returned when the provider response holds no usable media
	ErrNoContent = errors.New("provider returned no content")

	// ErrInputUnavailable is returned when the remote input image cannot be fetched
	ErrInputUnavailable = errors.New("input image unavailable")

	// ErrOutputUnavailable is returned when a remote output handle cannot be fetched
	ErrOutputUnavailable = errors.New("generated output unavailable")

	// ErrPublishFailed is returned when the final media cannot be stored
	ErrPublishFailed = errors.New("failed to publish generated media")

	// ErrCredentials is returned when no bearer token could be obtained
	ErrCredentials = errors.New("provider credentials unavailable")
)

// Pipeline step names
const (
	StepResolveInput = "resolve_input"
	StepGenerate     = "generate"
	StepMaterialize  = "materialize_output"
	StepPublish      = "publish"
)

// Diagnostic codes for failures that carry no upstream HTTP status
const (
	CodeNoContent           = "no_content"
	CodeInputUnavailable    = "input_unavailable"
	CodeOutputUnavailable   = "output_unavailable"
	CodeProviderUnavailable = "provider_unavailable"
	CodeCredentials         = "credentials_unavailable"
	CodeStorageFailed       = "storage_failed"
	CodeInvalidRequest      = "invalid_request"
	CodeInternal            = "internal_error"
)

// HTTPStatusError records an unsuccessful HTTP status from an upstream call.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// StepError is a terminal pipeline failure. Code becomes the task's status code.
type StepError struct {
	Step string
	Code string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Step, e.Code, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError wraps err as a failure of step. When code is empty it is
// derived from err: an upstream HTTP status if one is wrapped, otherwise
// fallback.
func NewStepError(step, fallback string, err error) *StepError {
	code := fallback
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		code = strconv.Itoa(statusErr.StatusCode)
	}
	return &StepError{Step: step, Code: code, Err: err}
}

// Diagnostic returns the status code to persist for a failed task.
func Diagnostic(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Code != "" {
		return stepErr.Code
	}
	return CodeInternal
}
