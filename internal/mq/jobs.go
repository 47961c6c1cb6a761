package mq

import "github.com/shaiso/Forge/internal/domain"

// Типы заданий сборки.
const (
	BuildTypeDeployment = "deployment"
	BuildTypeRetry      = "retry"
)

// BuildJob — задание на сборку деплоймента.
type BuildJob struct {
	Type         string           `json:"type"`
	TenantID     string           `json:"tenant_id"`
	FunctionID   string           `json:"function_id"`
	DeploymentID string           `json:"deployment_id"`
	Template     *domain.Template `json:"template,omitempty"`

	// BuildID — заранее выданный ID новой сборки для retry. Повторная
	// доставка того же задания не создаёт вторую сборку.
	BuildID string `json:"build_id,omitempty"`
}

// ExecutionJob — задание на выполнение функции (http или schedule)
// либо на рассылку события (Events не пустой).
type ExecutionJob struct {
	Type        domain.Trigger `json:"type,omitempty"`
	TenantID    string         `json:"tenant_id"`
	FunctionID  string         `json:"function_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	JWT         string         `json:"jwt,omitempty"`
	Data        string         `json:"data,omitempty"`
	Path        string         `json:"path,omitempty"`
	Method      string         `json:"method,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`

	// Events и Payload — для рассылки по подписанным функциям.
	Events  []string `json:"events,omitempty"`
	Payload any      `json:"payload,omitempty"`
}

// IsEvent возвращает true, если задание — рассылка события.
func (j ExecutionJob) IsEvent() bool {
	return len(j.Events) > 0
}

// EventPayload — событие "ресурс обновлён" для внешней шины событий.
type EventPayload struct {
	TenantID string   `json:"tenant_id"`
	Events   []string `json:"events"`
	Payload  any      `json:"payload"`
}

// UsagePayload — одна метрика потребления.
type UsagePayload struct {
	TenantID string `json:"tenant_id"`
	Metric   string `json:"metric"`
	Value    int64  `json:"value"`
}
