package api

import (
	"time"

	"github.com/phrazzld/mediagen/internal/domain"
)

// MaxInlineImageBytes bounds inputImageInline after base64 decoding.
const MaxInlineImageBytes = 20 << 20

// SubmitGenerationRequest defines the payload for submitting a generation task.
// inputImageInline is base64 in JSON.
type SubmitGenerationRequest struct {
	Prompt           string `json:"prompt"                     validate:"required,max=8000"`
	Model            string `json:"model,omitempty"            validate:"omitempty,max=128"`
	InputImageRef    string `json:"inputImageRef,omitempty"    validate:"omitempty,http_url,excluded_with=InputImageInline"`
	InputImageInline []byte `json:"inputImageInline,omitempty" validate:"omitempty,max=20971520"`
	FolderHint       string `json:"folderHint,omitempty"       validate:"omitempty,max=512"`
	OwnerRef         string `json:"ownerRef,omitempty"         validate:"omitempty,max=128"`
}

// toDomain converts the request DTO to the domain request.
func (r SubmitGenerationRequest) toDomain() domain.GenerationRequest {
	return domain.GenerationRequest{
		Prompt:           r.Prompt,
		Model:            r.Model,
		InputImageInline: r.InputImageInline,
		InputImageRef:    r.InputImageRef,
		FolderHint:       r.FolderHint,
	}
}

// SubmitGenerationResponse is returned with 202 Accepted.
type SubmitGenerationResponse struct {
	TaskID string `json:"taskId"`
}

// TaskResponse is the poll result. The shape is the same whether or not the
// poll performed work.
type TaskResponse struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	StatusCode string    `json:"statusCode,omitempty"`
	ResultURL  string    `json:"resultUrl,omitempty"`
	Error      string    `json:"error,omitempty"`
	OwnerRef   string    `json:"ownerRef,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TaskListResponse lists tasks for one owner, newest first.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:     t.ID.String(),
		Status:     string(t.Status),
		StatusCode: t.StatusCode,
		ResultURL:  t.Result.URL,
		Error:      t.Result.Error,
		OwnerRef:   t.OwnerRef,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
