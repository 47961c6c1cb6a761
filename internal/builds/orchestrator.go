package builds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/realtime"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/usage"
	"github.com/shaiso/Forge/internal/vcs"
	"github.com/shaiso/Forge/internal/workspace"
)

// Значения по умолчанию.
const (
	defaultSizeLimit   = 30_000_000
	defaultTimeout     = 15 * time.Minute
	defaultDestination = "/storage/builds"
)

// FunctionStore — функции тенанта.
type FunctionStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Function, error)
	SetDeployment(ctx context.Context, tenantID, id, deploymentID string) error
}

// DeploymentStore — деплойменты.
type DeploymentStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Deployment, error)
	UpdateCommit(ctx context.Context, d *domain.Deployment) error
	SetBuild(ctx context.Context, tenantID, id, buildID string) error
}

// BuildStore — сборки. Update не перезаписывает финальную сборку
// и возвращает repo.ErrInvalidState. Create на занятый ID даёт
// repo.ErrAlreadyExists.
type BuildStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Build, error)
	Create(ctx context.Context, b *domain.Build) error
	Update(ctx context.Context, b *domain.Build) error
}

// ScheduleStore — записи расписаний.
type ScheduleStore interface {
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
}

// Builder — удалённый builder.
type Builder interface {
	CreateRuntime(ctx context.Context, req executor.RuntimeRequest) (*executor.RuntimeResult, error)
	StreamLogs(ctx context.Context, tenantID, deploymentID string, onChunk func(string) error) error
}

// ArtifactStore — хранилище архивов исходников.
type ArtifactStore interface {
	Upload(ctx context.Context, tenantID, deploymentID, localPath string) (string, error)
	DeviceType() string
}

// GitProvider — git-сторона сборки.
type GitProvider interface {
	Checkout(ctx context.Context, src domain.VCSSource, dir string) error
	PushTemplate(ctx context.Context, push vcs.TemplatePush) (string, domain.CommitInfo, error)
	ReportStatus(ctx context.Context, r vcs.StatusReport) error
}

// RuntimeCatalog — каталог рантаймов.
type RuntimeCatalog interface {
	Resolve(version, key string) (domain.Runtime, error)
}

// Orchestrator обрабатывает задания сборки.
type Orchestrator struct {
	functions   FunctionStore
	deployments DeploymentStore
	builds      BuildStore
	schedules   ScheduleStore

	builder   Builder
	artifacts ArtifactStore
	git       GitProvider
	runtimes  RuntimeCatalog
	workspace *workspace.Manager

	events   events.Trigger
	usage    usage.Recorder
	notifier *realtime.Notifier

	conn     *mq.Connection
	consumer *mq.Consumer

	sizeLimit   int64
	timeout     time.Duration
	destination string
	cpus        float64
	memory      int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Orchestrator.
type Config struct {
	Functions   FunctionStore
	Deployments DeploymentStore
	Builds      BuildStore
	Schedules   ScheduleStore

	Builder   Builder
	Artifacts ArtifactStore
	Git       GitProvider // nil — сборки из репозиториев не поддерживаются
	Runtimes  RuntimeCatalog
	Workspace *workspace.Manager

	Events   events.Trigger
	Usage    usage.Recorder
	Notifier *realtime.Notifier

	// Conn нужен только для Start.
	Conn *mq.Connection

	SizeLimit   int64         // максимальный размер исходников (default: 30 000 000)
	Timeout     time.Duration // таймаут сборки на builder'е (default: 15m)
	Destination string        // каталог артефактов на стороне builder'а
	CPUs        float64
	Memory      int

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	sizeLimit := cfg.SizeLimit
	if sizeLimit <= 0 {
		sizeLimit = defaultSizeLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	destination := cfg.Destination
	if destination == "" {
		destination = defaultDestination
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		functions:   cfg.Functions,
		deployments: cfg.Deployments,
		builds:      cfg.Builds,
		schedules:   cfg.Schedules,
		builder:     cfg.Builder,
		artifacts:   cfg.Artifacts,
		git:         cfg.Git,
		runtimes:    cfg.Runtimes,
		workspace:   cfg.Workspace,
		events:      cfg.Events,
		usage:       cfg.Usage,
		notifier:    cfg.Notifier,
		conn:        cfg.Conn,
		sizeLimit:   sizeLimit,
		timeout:     timeout,
		destination: destination,
		cpus:        cfg.CPUs,
		memory:      cfg.Memory,
		logger:      logger,
	}
}

// Start запускает consumer очереди builds.pending.
// Сборки тяжёлые, поэтому prefetch = 1.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.conn == nil {
		return errors.New("builds: connection is required to start consumer")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueBuildsPending),
		Handler:  o.handleJob,
		Prefetch: 1,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("build consumer error", "error", err)
		}
	}()

	o.logger.Info("build orchestrator started", "size_limit", o.sizeLimit, "timeout", o.timeout)
	return nil
}

// Stop останавливает consumer и ждёт текущую сборку.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping build orchestrator...")
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}
	o.wg.Wait()
	o.logger.Info("build orchestrator stopped")
}

// handleJob обрабатывает одно сообщение очереди.
//
// Ошибки до первого изменения сборки (нет функции, нет рантайма, нет
// entrypoint) постоянные: сообщение уходит в DLQ без повтора.
func (o *Orchestrator) handleJob(ctx context.Context, delivery *mq.Delivery) error {
	job, err := mq.ParsePayload[mq.BuildJob](&delivery.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
	}

	err = o.Build(ctx, job)
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		o.logger.Warn("build job rejected",
			"tenant_id", job.TenantID,
			"deployment_id", job.DeploymentID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
	}
	o.logger.Error("build job failed",
		"tenant_id", job.TenantID,
		"deployment_id", job.DeploymentID,
		"error", err,
	)
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrUnsupported)
}

// notFound приводит repo.ErrNotFound к domain.ErrNotFound.
func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}
