package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Build — попытка превратить деплоймент в запускаемый артефакт.
type Build struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	DeploymentID string      `json:"deployment_id"`
	Status       BuildStatus `json:"status"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Duration — длительность в секундах (округление вверх).
	Duration int `json:"duration"`

	// Source — путь загруженного архива исходников в хранилище.
	Source string `json:"source,omitempty"`

	// SourceType — тип устройства хранилища (s3, local).
	SourceType string `json:"source_type,omitempty"`

	// Path и Size — собранный артефакт.
	Path string `json:"path,omitempty"`
	Size int64  `json:"size"`

	Logs string `json:"logs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCancelled возвращает true, если сборка отменена.
func (b *Build) IsCancelled() bool {
	return b.Status == BuildStatusCancelled
}

// NewBuild создаёт сборку в статусе waiting. Пустой id генерируется.
func NewBuild(id, tenantID, deploymentID string) *Build {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Build{
		ID:           id,
		TenantID:     tenantID,
		DeploymentID: deploymentID,
		Status:       BuildStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Rebuild создаёт новую сборку того же деплоймента с уже загруженными
// исходниками предыдущей. Сама предыдущая сборка не меняется.
func (b *Build) Rebuild(id string) *Build {
	next := NewBuild(id, b.TenantID, b.DeploymentID)
	next.Source = b.Source
	next.SourceType = b.SourceType
	return next
}

// MarkProcessing переводит сборку в processing.
func (b *Build) MarkProcessing(now time.Time, device string) {
	b.Status = BuildStatusProcessing
	b.StartTime = &now
	b.SourceType = device
	b.UpdatedAt = now
}

// MarkBuilding переводит сборку в building.
func (b *Build) MarkBuilding() {
	b.Status = BuildStatusBuilding
	b.UpdatedAt = time.Now()
}

// MarkReady фиксирует успешный результат builder'а.
func (b *Build) MarkReady(started, finished time.Time, wall time.Duration, path string, size int64, logs string) {
	b.Status = BuildStatusReady
	b.StartTime = &started
	b.EndTime = &finished
	b.Duration = CeilSeconds(wall)
	b.Path = path
	b.Size = size
	b.Logs = logs
	b.UpdatedAt = finished
}

// MarkFailed фиксирует ошибку сборки.
func (b *Build) MarkFailed(finished time.Time, wall time.Duration, msg string) {
	b.Status = BuildStatusFailed
	b.EndTime = &finished
	b.Duration = CeilSeconds(wall)
	b.Logs = msg
	b.UpdatedAt = finished
}

// AppendLogs дописывает кусок лога сборки.
func (b *Build) AppendLogs(chunk string) {
	b.Logs += chunk
}

// CeilSeconds округляет длительность до целых секунд вверх.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
