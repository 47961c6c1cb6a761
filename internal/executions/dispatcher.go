package executions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/realtime"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/telemetry"
	"github.com/shaiso/Forge/internal/usage"
)

// guardGrace — запас локального таймаута сверх таймаута функции.
const guardGrace = 15 * time.Second

// FunctionStore — функции тенанта.
type FunctionStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Function, error)
	ListPage(ctx context.Context, tenantID string, limit, offset int) ([]domain.Function, error)
}

// DeploymentStore — деплойменты.
type DeploymentStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Deployment, error)
}

// BuildStore — сборки.
type BuildStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Build, error)
}

// ExecutionStore — выполнения.
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.Execution) error
	Update(ctx context.Context, e *domain.Execution) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Execution, error)
}

// Invoker — удалённый executor.
type Invoker interface {
	CreateExecution(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error)
}

// RuntimeCatalog — каталог рантаймов.
type RuntimeCatalog interface {
	Resolve(version, key string) (domain.Runtime, error)
}

// Invocation — один вызов функции.
type Invocation struct {
	TenantID   string
	FunctionID string

	// Function — уже загруженная функция (рассылка событий); иначе
	// функция читается по FunctionID.
	Function *domain.Function

	Trigger     domain.Trigger
	ExecutionID string

	UserID string
	JWT    string
	Data   string

	Event     string
	EventData string

	// Inline — синхронный HTTP вызов: проверка прав, заголовки, ответ клиенту.
	Inline  bool
	Path    string
	Method  string
	Headers map[string]string
}

// Result — итог вызова.
type Result struct {
	Execution *domain.Execution

	// StatusCode, Headers и Body — ответ для HTTP клиента.
	StatusCode  int
	Headers     map[string]string
	ContentType string
	Body        []byte
}

// Dispatcher исполняет функции.
type Dispatcher struct {
	functions   FunctionStore
	deployments DeploymentStore
	builds      BuildStore
	executions  ExecutionStore
	invoker     Invoker
	runtimes    RuntimeCatalog

	geo      GeoResolver
	tokens   *TokenSigner
	events   events.Trigger
	usage    usage.Recorder
	notifier *realtime.Notifier

	maxWait time.Duration
	cpus    float64
	memory  int
	logger  *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	Functions   FunctionStore
	Deployments DeploymentStore
	Builds      BuildStore
	Executions  ExecutionStore
	Invoker     Invoker
	Runtimes    RuntimeCatalog

	Geo      GeoResolver  // nil — заголовки геолокации пустые
	Tokens   *TokenSigner // nil — JWT не выпускаются
	Events   events.Trigger
	Usage    usage.Recorder
	Notifier *realtime.Notifier

	// MaxWait ограничивает локальный таймаут вызова executor'а.
	MaxWait time.Duration
	CPUs    float64
	Memory  int

	Logger *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		functions:   cfg.Functions,
		deployments: cfg.Deployments,
		builds:      cfg.Builds,
		executions:  cfg.Executions,
		invoker:     cfg.Invoker,
		runtimes:    cfg.Runtimes,
		geo:         cfg.Geo,
		tokens:      cfg.Tokens,
		events:      cfg.Events,
		usage:       cfg.Usage,
		notifier:    cfg.Notifier,
		maxWait:     cfg.MaxWait,
		cpus:        cfg.CPUs,
		memory:      cfg.Memory,
		logger:      logger,
	}
}

// target — всё, что нужно для вызова.
type target struct {
	function   *domain.Function
	deployment *domain.Deployment
	build      *domain.Build
	runtime    domain.Runtime
}

// Invoke выполняет функцию.
//
// Ошибка без Result означает, что вызов отклонён до создания Execution
// (функция, деплоймент или сборка недоступны, нет прав). Сбой executor'а
// не ошибка: он фиксируется в Execution со статусом failed.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	fn := inv.Function
	if fn == nil {
		var err error
		fn, err = d.functions.GetByID(ctx, inv.TenantID, inv.FunctionID)
		if err != nil {
			return nil, notFound("function", inv.FunctionID, err)
		}
	}

	tgt, err := d.resolve(ctx, fn)
	if err != nil {
		if inv.Inline {
			return nil, err
		}
		return d.reject(ctx, fn, &inv, err)
	}

	if inv.Inline && !fn.AllowsRoles(domain.UserRoles(inv.UserID)) {
		return nil, fmt.Errorf("%w: function %s cannot be executed by this user", domain.ErrUnauthorized, fn.ID)
	}

	jwt := inv.JWT
	if jwt == "" && inv.UserID != "" && d.tokens != nil {
		if jwt, err = d.tokens.Sign(fn.TenantID, fn.ID, inv.UserID); err != nil {
			return nil, err
		}
	}

	logger := telemetry.WithFunctionID(d.logger, fn.TenantID, fn.ID)

	var headers map[string]string
	if inv.Inline {
		headers = requestHeaders(inv.Headers, inv.UserID, jwt, d.lookup(inv.Headers))
	}

	exec, err := d.findOrCreate(ctx, fn, tgt.deployment.ID, &inv)
	if err != nil {
		return nil, err
	}
	logger = telemetry.WithExecutionID(logger, exec.ID)

	// Запись выполнения уже есть: дальше любая ошибка завершает его
	// статусом failed, задание в очередь не возвращается.
	if err := d.start(ctx, exec, &inv, headers); err != nil {
		return d.abort(ctx, fn, exec, &inv, logger, err), nil
	}

	req := executor.ExecutionRequest{
		TenantID:          fn.TenantID,
		DeploymentID:      tgt.deployment.ID,
		Body:              inv.Data,
		Path:              exec.RequestPath,
		Method:            exec.RequestMethod,
		Headers:           headers,
		Timeout:           fn.Timeout,
		Image:             tgt.runtime.Image,
		Source:            tgt.build.Path,
		Entrypoint:        tgt.deployment.Entrypoint,
		Version:           fn.RuntimeVersion(),
		Variables:         mergeVariables(fn.SharedVars, fn.Vars, platformVariables(fn, tgt.deployment.ID, tgt.runtime, &inv, jwt)),
		RuntimeEntrypoint: runtimeEntrypoint(fn.RuntimeVersion(), tgt.runtime),
		Logging:           fn.Logging,
		CPUs:              d.cpus,
		Memory:            d.memory,
	}

	res := &Result{Execution: exec}
	started := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, d.guard(fn))
	out, err := d.invoker.CreateExecution(callCtx, req)
	cancel()

	if err != nil {
		code := domain.ErrorCode(err, 500)
		exec.Fail(code, err.Error(), time.Since(started))
		res.Body = []byte(err.Error())
		logger.Warn("execution failed", "status_code", code, "error", err)
	} else {
		exec.Finish(out.StatusCode, FilterHeaders(out.Headers, ResponseAllowList),
			out.Body, out.Logs, out.Errors, out.Duration)
		res.Headers = exec.ResponseHeaders
		res.Body = decodeBody(out.Body, out.Headers)
	}
	res.StatusCode = exec.ResponseStatusCode
	res.ContentType = "text/plain"
	if ct, ok := headerValue(res.Headers, "content-type"); ok {
		res.ContentType = ct
	}

	d.complete(ctx, fn, exec, &inv, logger)
	return res, nil
}

// resolve находит активный деплоймент, его сборку и рантайм.
func (d *Dispatcher) resolve(ctx context.Context, fn *domain.Function) (*target, error) {
	if !fn.Enabled {
		return nil, fmt.Errorf("%w: function %s", domain.ErrNotFound, fn.ID)
	}
	if fn.DeploymentID == "" {
		return nil, fmt.Errorf("%w: deployment not found, create a deployment before executing function %s", domain.ErrNotFound, fn.ID)
	}

	dep, err := d.deployments.GetByID(ctx, fn.TenantID, fn.DeploymentID)
	if err != nil {
		return nil, notFound("deployment", fn.DeploymentID, err)
	}
	if dep.FunctionID != fn.ID {
		return nil, fmt.Errorf("%w: deployment %s does not belong to function %s", domain.ErrNotFound, dep.ID, fn.ID)
	}

	build, err := d.builds.GetByID(ctx, fn.TenantID, dep.BuildID)
	if err != nil {
		return nil, notFound("build", dep.BuildID, err)
	}
	if build.Status != domain.BuildStatusReady {
		return nil, fmt.Errorf("%w: build %s is %s", domain.ErrNotReady, build.ID, build.Status)
	}

	rt, err := d.runtimes.Resolve(fn.RuntimeVersion(), fn.Runtime)
	if err != nil {
		return nil, err
	}
	return &target{function: fn, deployment: dep, build: build, runtime: rt}, nil
}

// start создаёт (или берёт переданное) выполнение и переводит его в processing.
func (d *Dispatcher) start(ctx context.Context, exec *domain.Execution, inv *Invocation, headers map[string]string) error {
	exec.RequestPath = inv.Path
	if exec.RequestPath == "" {
		exec.RequestPath = "/"
	}
	exec.RequestMethod = inv.Method
	if exec.RequestMethod == "" {
		exec.RequestMethod = "POST"
	}
	if headers != nil {
		exec.RequestHeaders = FilterHeaders(headers, RequestAllowList)
	}

	exec.MarkProcessing()
	if err := d.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

func (d *Dispatcher) findOrCreate(ctx context.Context, fn *domain.Function, deploymentID string, inv *Invocation) (*domain.Execution, error) {
	if inv.ExecutionID != "" {
		exec, err := d.executions.GetByID(ctx, fn.TenantID, inv.ExecutionID)
		if err == nil {
			if exec.Status.IsTerminal() {
				return nil, fmt.Errorf("%w: %s", ErrDuplicate, exec.ID)
			}
			exec.DeploymentID = deploymentID
			return exec, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("get execution: %w", err)
		}
	}

	exec := domain.NewExecution(inv.ExecutionID, fn, deploymentID, inv.Trigger)
	if err := d.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return exec, nil
}

// reject фиксирует отклонённый вызов из очереди как failed выполнение.
func (d *Dispatcher) reject(ctx context.Context, fn *domain.Function, inv *Invocation, cause error) (*Result, error) {
	exec, err := d.findOrCreate(ctx, fn, fn.DeploymentID, inv)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	exec.Fail(domain.ErrorCode(cause, statusFor(cause)), cause.Error(), 0)

	logger := telemetry.WithExecutionID(telemetry.WithFunctionID(d.logger, fn.TenantID, fn.ID), exec.ID)
	logger.Warn("execution rejected", "error", cause)

	d.complete(ctx, fn, exec, inv, logger)
	return &Result{Execution: exec, StatusCode: exec.ResponseStatusCode}, cause
}

// abort завершает уже созданное выполнение ошибкой платформы.
func (d *Dispatcher) abort(ctx context.Context, fn *domain.Function, exec *domain.Execution, inv *Invocation, logger *slog.Logger, cause error) *Result {
	exec.Fail(500, cause.Error(), 0)
	logger.Error("execution aborted", "error", cause)

	d.complete(ctx, fn, exec, inv, logger)
	return &Result{
		Execution:   exec,
		StatusCode:  exec.ResponseStatusCode,
		Body:        []byte("execution could not be started"),
		ContentType: "text/plain",
	}
}

// complete сохраняет итог, рассылает его и записывает метрики.
func (d *Dispatcher) complete(ctx context.Context, fn *domain.Function, exec *domain.Execution, inv *Invocation, logger *slog.Logger) {
	if !fn.Logging {
		exec.DropLogs()
	}
	if err := d.executions.Update(ctx, exec); err != nil {
		logger.Error("failed to persist execution", "error", err)
	}

	evts, err := events.Generate(events.ExecutionUpdate, map[string]string{
		"functionId":  fn.ID,
		"executionId": exec.ID,
	})
	if err != nil {
		logger.Error("failed to generate events", "error", err)
	}

	var roles []string
	if inv.UserID != "" {
		roles = []string{"user:" + inv.UserID}
	}
	d.notifier.ExecutionUpdated(ctx, evts, exec, roles)

	if d.events != nil && len(evts) > 0 {
		if err := d.events.PublishEvent(ctx, fn.TenantID, evts, exec); err != nil {
			logger.Warn("failed to trigger execution update", "error", err)
		}
	}

	telemetry.ExecutionsTotal.WithLabelValues(string(exec.Trigger), string(exec.Status)).Inc()
	telemetry.ExecutionDuration.WithLabelValues(string(exec.Trigger)).Observe(exec.Duration)

	batch := usage.NewBatch(fn.TenantID, fn.ID).
		Add(usage.MetricExecutions, 1).
		Add(usage.MetricExecutionsCompute, int64(exec.Duration*1000))
	if err := batch.Flush(ctx, d.usage); err != nil {
		logger.Warn("failed to record execution usage", "error", err)
	}

	logger.Info("execution finished",
		"trigger", exec.Trigger,
		"status", exec.Status,
		"status_code", exec.ResponseStatusCode,
		"duration", exec.Duration,
	)
}

// guard возвращает локальный таймаут вызова executor'а.
func (d *Dispatcher) guard(fn *domain.Function) time.Duration {
	guard := time.Duration(fn.Timeout)*time.Second + guardGrace
	if d.maxWait > 0 && guard > d.maxWait {
		guard = d.maxWait
	}
	return guard
}

func (d *Dispatcher) lookup(headers map[string]string) GeoInfo {
	if d.geo == nil {
		return GeoInfo{}
	}
	ip, ok := headerValue(headers, headerRealIP)
	if !ok || ip == "" {
		return GeoInfo{}
	}
	info, _ := d.geo.Lookup(ip)
	return info
}

// statusFor возвращает HTTP статус для ошибки домена.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 404
	case errors.Is(err, domain.ErrUnauthorized):
		return 401
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrUnsupported), errors.Is(err, domain.ErrValidation):
		return 400
	default:
		return 500
	}
}

// notFound приводит repo.ErrNotFound к domain.ErrNotFound.
func notFound(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}
