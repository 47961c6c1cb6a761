package api

import (
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

// CreateBuildRequest — запрос на сборку деплоймента.
type CreateBuildRequest struct {
	// Retry — повторная сборка уже загруженных исходников.
	Retry bool `json:"retry"`

	// Template — шаблон, который нужно запушить в репозиторий функции.
	Template *domain.Template `json:"template,omitempty"`
}

// Type возвращает тип задания сборки.
func (r CreateBuildRequest) Type() string {
	if r.Retry {
		return mq.BuildTypeRetry
	}
	return mq.BuildTypeDeployment
}

// BuildResponse — ответ со сборкой.
type BuildResponse struct {
	ID           string             `json:"id"`
	DeploymentID string             `json:"deployment_id"`
	Status       domain.BuildStatus `json:"status"`
	StartTime    *time.Time         `json:"start_time,omitempty"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Duration     int                `json:"duration"`
	Size         int64              `json:"size"`
	Logs         string             `json:"logs,omitempty"`
}

// BuildFromDomain конвертирует domain.Build в BuildResponse.
func BuildFromDomain(b domain.Build) BuildResponse {
	return BuildResponse{
		ID:           b.ID,
		DeploymentID: b.DeploymentID,
		Status:       b.Status,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Duration:     b.Duration,
		Size:         b.Size,
		Logs:         b.Logs,
	}
}

// BuildQueuedResponse — ответ на постановку сборки в очередь.
type BuildQueuedResponse struct {
	Type         string `json:"type"`
	FunctionID   string `json:"function_id"`
	DeploymentID string `json:"deployment_id"`
	BuildID      string `json:"build_id,omitempty"`
}

// CreateExecutionRequest — запрос на асинхронное выполнение.
type CreateExecutionRequest struct {
	Data    string            `json:"data"`
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
}

// ExecutionResponse — ответ с выполнением.
type ExecutionResponse struct {
	ID                 string                 `json:"id"`
	FunctionID         string                 `json:"function_id"`
	DeploymentID       string                 `json:"deployment_id"`
	Trigger            domain.Trigger         `json:"trigger"`
	Status             domain.ExecutionStatus `json:"status"`
	RequestPath        string                 `json:"request_path"`
	RequestMethod      string                 `json:"request_method"`
	ResponseStatusCode int                    `json:"response_status_code"`
	Logs               string                 `json:"logs"`
	Errors             string                 `json:"errors"`
	Duration           float64                `json:"duration"`
	CreatedAt          time.Time              `json:"created_at"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:                 e.ID,
		FunctionID:         e.FunctionID,
		DeploymentID:       e.DeploymentID,
		Trigger:            e.Trigger,
		Status:             e.Status,
		RequestPath:        e.RequestPath,
		RequestMethod:      e.RequestMethod,
		ResponseStatusCode: e.ResponseStatusCode,
		Logs:               e.Logs,
		Errors:             e.Errors,
		Duration:           e.Duration,
		CreatedAt:          e.CreatedAt,
	}
}
