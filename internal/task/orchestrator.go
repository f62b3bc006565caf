package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/generation"
	"github.com/phrazzld/mediagen/internal/platform/logger"
	"github.com/phrazzld/mediagen/internal/platform/metrics"
	"github.com/phrazzld/mediagen/internal/redact"
	"github.com/phrazzld/mediagen/internal/store"
)

const tracerName = "github.com/phrazzld/mediagen/internal/task"

// Config holds the orchestrator settings.
type Config struct {
	// ClaimLease is how long an in_progress claim is honored before a later
	// poll may reclaim the task.
	ClaimLease time.Duration

	// DefaultModel is used when neither the request nor a prompt directive
	// names a model.
	DefaultModel string

	// FinishTimeout bounds the terminal write, which runs even when the
	// poll's context is already done.
	FinishTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator. Metrics is optional.
type Deps struct {
	Store      store.TaskStore
	Provider   generation.Provider
	Normalizer generation.Normalizer
	// Inputs fetches input images referenced by URL.
	Inputs generation.Fetcher
	// Outputs fetches remote handles returned by the provider, with the
	// provider credential.
	Outputs   generation.Fetcher
	Publisher generation.Publisher
	Metrics   *metrics.Collector
}

// Orchestrator owns the task lifecycle.
type Orchestrator struct {
	store      store.TaskStore
	provider   generation.Provider
	normalizer generation.Normalizer
	inputs     generation.Fetcher
	outputs    generation.Fetcher
	publisher  generation.Publisher
	metrics    *metrics.Collector

	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config, log *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("task store cannot be nil")
	case deps.Provider == nil:
		return nil, errors.New("provider cannot be nil")
	case deps.Inputs == nil || deps.Outputs == nil:
		return nil, errors.New("fetchers cannot be nil")
	case deps.Publisher == nil:
		return nil, errors.New("publisher cannot be nil")
	}
	if cfg.DefaultModel == "" {
		return nil, fmt.Errorf("%w: default model cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 10 * time.Minute
	}
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		store:      deps.Store,
		provider:   deps.Provider,
		normalizer: deps.Normalizer,
		inputs:     deps.Inputs,
		outputs:    deps.Outputs,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     log.With("component", "orchestrator"),
		tracer:     otel.Tracer(tracerName),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Submit records a pending task and returns its ID. No work is started.
func (o *Orchestrator) Submit(ctx context.Context, req domain.GenerationRequest, ownerRef string) (uuid.UUID, error) {
	t, err := domain.NewTask(req, ownerRef)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	if err := o.store.CreateTask(ctx, t); err != nil {
		o.log(ctx).ErrorContext(ctx, "failed to create task",
			"error", redact.Error(err))
		return uuid.Nil, fmt.Errorf("failed to create task: %w", err)
	}

	o.metrics.TaskSubmitted()
	o.log(ctx).InfoContext(ctx, "task submitted",
		"task_id", t.ID,
		"canvas_id", t.OwnerRef,
		"has_inline_input", len(req.InputImageInline) > 0,
		"has_input_ref", req.InputImageRef != "")

	return t.ID, nil
}

// Poll returns the task's state. A terminal task is returned as stored with
// no side effects. A pending task, or one whose claim has expired, is claimed
// with a conditional update; the winner runs the pipeline before returning,
// every other caller gets the current state.
//
// Returns store.ErrTaskNotFound for unknown IDs.
func (o *Orchestrator) Poll(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	t, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return t, nil
	}

	staleBefore := o.now().Add(-o.cfg.ClaimLease)
	if t.Status == domain.TaskStatusInProgress && !t.ClaimedAt.Before(staleBefore) {
		return t, nil
	}

	claimed, err := o.store.ClaimTask(ctx, taskID, staleBefore)
	if err != nil {
		if errors.Is(err, store.ErrNotClaimable) {
			o.metrics.ClaimConflict()
			return o.store.GetTask(ctx, taskID)
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	o.metrics.TaskTransition(string(domain.TaskStatusInProgress), "")
	return o.run(ctx, claimed)
}

// List returns up to limit tasks for ownerRef, newest first. It never
// triggers work.
func (o *Orchestrator) List(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error) {
	return o.store.ListTasksByOwner(ctx, ownerRef, limit)
}

// run executes the pipeline for a claimed task and writes its terminal state.
func (o *Orchestrator) run(ctx context.Context, claimed *domain.Task) (*domain.Task, error) {
	start := o.now()
	log := o.log(ctx).With("task_id", claimed.ID, "claim_count", claimed.ClaimCount)
	ctx = logger.WithContext(ctx, log)

	ctx, span := o.tracer.Start(ctx, "generation.pipeline", trace.WithAttributes(
		attribute.String("task.id", claimed.ID.String()),
		attribute.Int("task.claim_count", claimed.ClaimCount),
	))
	defer span.End()

	log.InfoContext(ctx, "task claimed, running pipeline")

	url, err := o.execute(ctx, claimed.Request)

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil && errors.Is(err, ctxErr) {
		// The claim stays in place; a poll after the lease expires retries.
		log.WarnContext(ctx, "pipeline interrupted, task left in progress",
			"error", ctxErr)
		span.SetStatus(codes.Error, "interrupted")
		return claimed, nil
	}

	status := domain.TaskStatusSucceeded
	statusCode := ""
	result := domain.TaskResult{URL: url}
	if err != nil {
		status = domain.TaskStatusFailed
		statusCode = generation.Diagnostic(err)
		result = domain.TaskResult{Error: redact.Error(err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, statusCode)
	}
	span.SetAttributes(attribute.String("task.status", string(status)))

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinishTimeout)
	defer cancel()

	if ferr := o.store.FinishTask(finishCtx, claimed.ID, claimed.ClaimCount, status, statusCode, result); ferr != nil {
		if errors.Is(ferr, store.ErrClaimLost) {
			log.WarnContext(ctx, "claim lost before terminal write, discarding result",
				"status", status)
			return o.store.GetTask(finishCtx, claimed.ID)
		}
		log.ErrorContext(ctx, "failed to write terminal state",
			"status", status,
			"error", redact.Error(ferr))
		return nil, fmt.Errorf("failed to finish task: %w", ferr)
	}

	elapsed := o.now().Sub(start)
	o.metrics.TaskTransition(string(status), statusCode)
	o.metrics.ObservePipeline(string(status), elapsed)

	if err != nil {
		log.WarnContext(ctx, "task failed",
			"status_code", statusCode,
			"duration_ms", elapsed.Milliseconds(),
			"error", redact.Error(err))
	} else {
		log.InfoContext(ctx, "task succeeded",
			"duration_ms", elapsed.Milliseconds())
	}

	finished := claimed.Clone()
	finished.Status = status
	finished.StatusCode = statusCode
	finished.Result = result
	finished.UpdatedAt = o.now()
	return finished, nil
}

// execute runs the pipeline steps and returns the published URL. Failures
// are *generation.StepError, except context errors, which are returned as is.
func (o *Orchestrator) execute(ctx context.Context, req domain.GenerationRequest) (string, error) {
	prompt, model := ParseDirectives(req.Prompt)
	if req.Model != "" {
		model = req.Model
	}
	if model == "" {
		model = o.cfg.DefaultModel
	}
	if prompt == "" {
		return "", &generation.StepError{
			Step: generation.StepGenerate,
			Code: generation.CodeInvalidRequest,
			Err:  errors.New("prompt is empty after removing routing directives"),
		}
	}

	input, err := o.resolveInput(ctx, req)
	if err != nil {
		return "", err
	}

	raw, err := o.generate(ctx, prompt, model, input)
	if err != nil {
		return "", err
	}

	media, err := o.materialize(ctx, raw)
	if err != nil {
		return "", err
	}

	return o.publish(ctx, media, req.FolderHint)
}

// resolveInput picks inline bytes first, then the remote reference, then
// no input at all.
func (o *Orchestrator) resolveInput(ctx context.Context, req domain.GenerationRequest) (*generation.Media, error) {
	if len(req.InputImageInline) > 0 {
		return &generation.Media{
			Data:     req.InputImageInline,
			MIMEType: generation.DetectMIMEType("", req.InputImageInline),
		}, nil
	}
	if req.InputImageRef == "" {
		return nil, nil
	}

	ctx, span := o.tracer.Start(ctx, "generation."+generation.StepResolveInput)
	defer span.End()

	media, err := o.inputs.Fetch(ctx, req.InputImageRef)
	if err != nil {
		return nil, o.stepFailed(ctx, span, generation.StepResolveInput, generation.CodeInputUnavailable,
			fmt.Errorf("%w: %w", generation.ErrInputUnavailable, err))
	}
	return &media, nil
}

func (o *Orchestrator) generate(
	ctx context.Context,
	prompt, model string,
	input *generation.Media,
) (*generation.RawResponse, error) {
	ctx, span := o.tracer.Start(ctx, "generation."+generation.StepGenerate,
		trace.WithAttributes(attribute.String("provider.model", model)))
	defer span.End()

	raw, err := o.provider.Generate(ctx, prompt, model, input)
	if err != nil {
		fallback := generation.CodeProviderUnavailable
		if errors.Is(err, generation.ErrCredentials) {
			fallback = generation.CodeCredentials
		}
		return nil, o.stepFailed(ctx, span, generation.StepGenerate, fallback, err)
	}
	return raw, nil
}

// materialize turns the classified provider output into bytes. A remote
// handle costs exactly one authenticated fetch.
func (o *Orchestrator) materialize(ctx context.Context, raw *generation.RawResponse) (generation.Media, error) {
	switch out := o.normalizer.Extract(raw).(type) {
	case generation.InlineMedia:
		return out.Media, nil

	case generation.RemoteHandle:
		ctx, span := o.tracer.Start(ctx, "generation."+generation.StepMaterialize)
		defer span.End()

		media, err := o.outputs.Fetch(ctx, out.URI)
		if err != nil {
			return generation.Media{}, o.stepFailed(ctx, span, generation.StepMaterialize,
				generation.CodeOutputUnavailable, fmt.Errorf("%w: %w", generation.ErrOutputUnavailable, err))
		}
		if out.MIMEType != "" {
			media.MIMEType = out.MIMEType
		}
		return media, nil

	case generation.NoContent:
		return generation.Media{}, &generation.StepError{
			Step: generation.StepMaterialize,
			Code: generation.CodeNoContent,
			Err:  fmt.Errorf("%w: %s", generation.ErrNoContent, out.Reason),
		}

	default:
		return generation.Media{}, &generation.StepError{
			Step: generation.StepMaterialize,
			Code: generation.CodeInternal,
			Err:  fmt.Errorf("unknown provider output %T", out),
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, media generation.Media, folderHint string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "generation."+generation.StepPublish)
	defer span.End()

	url, err := o.publisher.Publish(ctx, media.Data, media.MIMEType, folderHint)
	if err != nil {
		return "", o.stepFailed(ctx, span, generation.StepPublish, generation.CodeStorageFailed, err)
	}
	return url, nil
}

// stepFailed records err on the span. A failure while ctx is done is an
// interruption, not a task failure: it comes back wrapping the context error
// so run leaves the claim in place, even when the adapter lost the cause.
func (o *Orchestrator) stepFailed(ctx context.Context, span trace.Span, step, fallback string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return err
		}
		return fmt.Errorf("%s interrupted: %w: %w", step, ctxErr, err)
	}
	return generation.NewStepError(step, fallback, err)
}

func (o *Orchestrator) log(ctx context.Context) *slog.Logger {
	if l := logger.FromContext(ctx); l != nil && l != slog.Default() {
		return l
	}
	return o.logger
}
