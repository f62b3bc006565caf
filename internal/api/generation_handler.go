package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/mediagen/internal/api/shared"
	"github.com/phrazzld/mediagen/internal/domain"
	"github.com/phrazzld/mediagen/internal/platform/logger"
)

// MaxListLimit is the largest page returned by the owner listing.
const MaxListLimit = 50

// GenerationService is the task lifecycle the handler drives.
type GenerationService interface {
	Submit(ctx context.Context, req domain.GenerationRequest, ownerRef string) (uuid.UUID, error)
	Poll(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, ownerRef string, limit int) ([]*domain.Task, error)
}

// GenerationHandler handles generation task HTTP requests
type GenerationHandler struct {
	service     GenerationService
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler. pollTimeout bounds a
// poll that ends up running the pipeline; zero means no bound beyond the
// request context.
func NewGenerationHandler(service GenerationService, pollTimeout time.Duration, log *slog.Logger) *GenerationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GenerationHandler{
		service:     service,
		pollTimeout: pollTimeout,
		logger:      log.With("component", "generation_handler"),
	}
}

// Submit handles POST /api/generations
func (h *GenerationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	var req SubmitGenerationRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrBodyTooLarge) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	taskID, err := h.service.Submit(r.Context(), req.toDomain(), req.OwnerRef)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit generation")
		return
	}

	log.Info("generation submitted", "task_id", taskID, "canvas_id", req.OwnerRef)

	w.Header().Set("Location", "/api/generations/"+taskID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitGenerationResponse{TaskID: taskID.String()})
}

// Poll handles GET /api/generations/{taskID}. The first poll of a pending
// task runs the pipeline before responding.
func (h *GenerationHandler) Poll(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "taskID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ctx := r.Context()
	if h.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.pollTimeout)
		defer cancel()
	}

	task, err := h.service.Poll(ctx, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// List handles GET /api/canvases/{canvasID}/generations
func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if canvasID == "" || len(canvasID) > 128 {
		HandleAPIError(w, r, domain.ErrValidation, "")
		return
	}

	limit, err := getLimit(r, MaxListLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.service.List(r.Context(), canvasID, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list generations")
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

func (h *GenerationHandler) log(r *http.Request) *slog.Logger {
	if l := logger.FromContext(r.Context()); l != slog.Default() {
		return l
	}
	return h.logger
}
