package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — одно выполнение функции.
//
// Терминальный статус всегда completed или failed, Duration всегда заполнен.
type Execution struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	FunctionID   string          `json:"function_id"`
	DeploymentID string          `json:"deployment_id"`
	Trigger      Trigger         `json:"trigger"`
	Status       ExecutionStatus `json:"status"`

	RequestPath    string            `json:"request_path"`
	RequestMethod  string            `json:"request_method"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`

	ResponseStatusCode int               `json:"response_status_code"`
	ResponseHeaders    map[string]string `json:"response_headers,omitempty"`
	ResponseBody       string            `json:"-"`

	Logs   string `json:"logs"`
	Errors string `json:"errors"`

	// Duration — длительность в секундах.
	Duration float64 `json:"duration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecution создаёт выполнение в статусе waiting.
// Если id пустой, генерируется новый.
func NewExecution(id string, fn *Function, deploymentID string, trigger Trigger) *Execution {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Execution{
		ID:           id,
		TenantID:     fn.TenantID,
		FunctionID:   fn.ID,
		DeploymentID: deploymentID,
		Trigger:      trigger,
		Status:       ExecutionStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkProcessing переводит выполнение в processing.
func (e *Execution) MarkProcessing() {
	e.Status = ExecutionStatusProcessing
	e.UpdatedAt = time.Now()
}

// Finish фиксирует ответ executor'а. Статус ответа >= 400 — это failed.
func (e *Execution) Finish(statusCode int, headers map[string]string, body, logs, errs string, duration float64) {
	e.ResponseStatusCode = statusCode
	e.ResponseHeaders = headers
	e.ResponseBody = body
	e.Logs = logs
	e.Errors = errs
	e.Duration = max(duration, 0)
	if statusCode >= 400 {
		e.Status = ExecutionStatusFailed
	} else {
		e.Status = ExecutionStatusCompleted
	}
	e.UpdatedAt = time.Now()
}

// Fail фиксирует транспортную ошибку.
func (e *Execution) Fail(statusCode int, errs string, elapsed time.Duration) {
	e.Status = ExecutionStatusFailed
	e.ResponseStatusCode = statusCode
	e.Errors = errs
	e.Duration = max(elapsed.Seconds(), 0)
	e.UpdatedAt = time.Now()
}

// DropLogs очищает логи и ошибки (логирование функции выключено).
func (e *Execution) DropLogs() {
	e.Logs = ""
	e.Errors = ""
}
