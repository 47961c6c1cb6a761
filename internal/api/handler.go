package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/executions"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/telemetry"
)

// Invoker — синхронный вызов функции.
type Invoker interface {
	Invoke(ctx context.Context, inv executions.Invocation) (*executions.Result, error)
}

// FunctionStore — чтение функций.
type FunctionStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Function, error)
}

// DeploymentStore — чтение деплойментов.
type DeploymentStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Deployment, error)
}

// BuildStore — чтение и отмена сборок.
type BuildStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Build, error)
	Cancel(ctx context.Context, tenantID, id string) error
}

// ExecutionStore — выполнения.
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.Execution) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Execution, error)
}

// JobPublisher ставит задания в очереди.
type JobPublisher interface {
	PublishBuild(ctx context.Context, job mq.BuildJob) error
	PublishExecution(ctx context.Context, job mq.ExecutionJob) error
}

// TokenParser проверяет JWT пользователя.
type TokenParser interface {
	Parse(token string) (*executions.Claims, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	invoker     Invoker
	functions   FunctionStore
	deployments DeploymentStore
	builds      BuildStore
	executions  ExecutionStore
	publisher   JobPublisher
	tokens      TokenParser
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Invoker     Invoker
	Functions   FunctionStore
	Deployments DeploymentStore
	Builds      BuildStore
	Executions  ExecutionStore
	Publisher   JobPublisher

	// Tokens — проверка JWT вызывающего; nil — все вызовы анонимные.
	Tokens TokenParser

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		invoker:     cfg.Invoker,
		functions:   cfg.Functions,
		deployments: cfg.Deployments,
		builds:      cfg.Builds,
		executions:  cfg.Executions,
		publisher:   cfg.Publisher,
		tokens:      cfg.Tokens,
		logger:      logger,
	}
}

// reqLogger возвращает логгер запроса (с request_id), если его положил Logging.
func reqLogger(r *http.Request) *slog.Logger {
	return telemetry.FromContext(r.Context())
}
