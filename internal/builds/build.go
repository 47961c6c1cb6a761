package builds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/telemetry"
	"github.com/shaiso/Forge/internal/usage"
	"github.com/shaiso/Forge/internal/vcs"
	"github.com/shaiso/Forge/internal/workspace"
)

// Build выполняет одно задание сборки.
//
// Возвращает ошибку только если сборка не дошла до изменения состояния
// (постоянные ошибки домена) или состояние не удалось сохранить.
// Ошибки самой сборки фиксируются статусом failed, и Build возвращает nil.
func (o *Orchestrator) Build(ctx context.Context, job mq.BuildJob) error {
	st, err := o.load(ctx, job)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	st.logger.Info("processing build", "type", job.Type, "runtime", st.runtime.Key)

	// Исходники из репозитория готовятся, только если их ещё нет:
	// retry и повторная доставка используют уже загруженный архив.
	needsSource := st.build.Source == "" && st.deployment.VCS.IsSet()
	if st.build.Source == "" && !needsSource {
		st.build.Source = st.deployment.Path
	}
	st.build.MarkProcessing(st.started, o.artifacts.DeviceType())
	if err := o.persist(ctx, st); err != nil {
		if errors.Is(err, errCancelled) {
			return nil
		}
		return err
	}
	o.notify(ctx, st)

	err = o.run(ctx, st, needsSource)
	if errors.Is(err, errCancelled) {
		st.logger.Info("build cancelled")
		return nil
	}
	if err != nil {
		if o.isCancelled(ctx, st) {
			st.logger.Info("build cancelled")
			return nil
		}
		now := time.Now()
		st.build.MarkFailed(now, st.elapsed(now), err.Error())
		st.logger.Warn("build failed", "error", err)
		o.reportStatus(ctx, st, domain.BuildStatusFailed)
	}

	return o.finish(ctx, st)
}

// load перечитывает всё, что нужно сборке. Возвращает nil без ошибки,
// если делать нечего: сборка отменена или уже завершена.
func (o *Orchestrator) load(ctx context.Context, job mq.BuildJob) (*buildState, error) {
	fn, err := o.functions.GetByID(ctx, job.TenantID, job.FunctionID)
	if err != nil {
		return nil, notFound("function", job.FunctionID, err)
	}
	dep, err := o.deployments.GetByID(ctx, job.TenantID, job.DeploymentID)
	if err != nil {
		return nil, notFound("deployment", job.DeploymentID, err)
	}
	if dep.Entrypoint == "" {
		return nil, fmt.Errorf("%w: entrypoint for function %s is missing", domain.ErrValidation, fn.ID)
	}

	rt, err := o.runtimes.Resolve(fn.RuntimeVersion(), fn.Runtime)
	if err != nil {
		return nil, err
	}

	var current *domain.Build
	if dep.BuildID != "" {
		current, err = o.builds.GetByID(ctx, job.TenantID, dep.BuildID)
		if err != nil {
			return nil, notFound("build", dep.BuildID, err)
		}
	}
	build, err := o.resolveBuild(ctx, job, current)
	if err != nil {
		return nil, err
	}
	if build == nil {
		return nil, fmt.Errorf("%w: build for deployment %s", domain.ErrNotFound, dep.ID)
	}

	logger := telemetry.WithBuildID(telemetry.WithFunctionID(o.logger, fn.TenantID, fn.ID), build.ID)
	if build.IsCancelled() {
		logger.Info("build already cancelled, skipping")
		return nil, nil
	}
	if build.Status.IsTerminal() {
		logger.Info("build already finished, skipping", "status", build.Status)
		return nil, nil
	}

	// Готовая сборка продолжает обслуживать вызовы, пока новая не готова.
	replaces := current != nil && current.ID != build.ID && current.Status == domain.BuildStatusReady
	if dep.BuildID != build.ID && !replaces {
		if err := o.deployments.SetBuild(ctx, job.TenantID, dep.ID, build.ID); err != nil {
			return nil, fmt.Errorf("set deployment build: %w", err)
		}
		dep.BuildID = build.ID
	}

	evts, err := events.Generate(events.DeploymentUpdate, map[string]string{
		"functionId":   fn.ID,
		"deploymentId": dep.ID,
	})
	if err != nil {
		return nil, err
	}

	return &buildState{
		job:        job,
		function:   fn,
		deployment: dep,
		build:      build,
		runtime:    rt,
		events:     evts,
		started:    time.Now(),
		replaces:   replaces,
		logger:     logger,
	}, nil
}

// resolveBuild выбирает запись сборки для задания.
//
// Финальная запись никогда не переиспользуется: retry получает новую
// сборку в статусе waiting с исходниками предыдущей. Заранее выданный
// job.BuildID делает создание идемпотентным.
func (o *Orchestrator) resolveBuild(ctx context.Context, job mq.BuildJob, current *domain.Build) (*domain.Build, error) {
	if job.BuildID != "" {
		b, err := o.builds.GetByID(ctx, job.TenantID, job.BuildID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("get build: %w", err)
		}
		return o.createBuild(ctx, job, current, job.BuildID)
	}
	if job.Type == mq.BuildTypeRetry && current != nil && current.Status.IsTerminal() {
		return o.createBuild(ctx, job, current, "")
	}
	return current, nil
}

func (o *Orchestrator) createBuild(ctx context.Context, job mq.BuildJob, prev *domain.Build, id string) (*domain.Build, error) {
	var b *domain.Build
	if prev != nil {
		b = prev.Rebuild(id)
	} else {
		b = domain.NewBuild(id, job.TenantID, job.DeploymentID)
	}

	err := o.builds.Create(ctx, b)
	if errors.Is(err, repo.ErrAlreadyExists) {
		existing, err := o.builds.GetByID(ctx, job.TenantID, b.ID)
		if err != nil {
			return nil, fmt.Errorf("get build: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create build: %w", err)
	}

	o.logger.Info("build created",
		"function_id", job.FunctionID,
		"deployment_id", job.DeploymentID,
		"build_id", b.ID,
		"source", b.Source,
	)
	return b, nil
}

// run проходит шаги от подготовки исходников до результата builder'а.
func (o *Orchestrator) run(ctx context.Context, st *buildState, needsSource bool) error {
	if needsSource {
		if err := o.prepareSource(ctx, st); err != nil {
			return err
		}
	}

	st.build.MarkBuilding()
	if err := o.persist(ctx, st); err != nil {
		return err
	}
	o.reportStatus(ctx, st, domain.BuildStatusBuilding)
	o.triggerUpdate(ctx, st)
	o.notify(ctx, st)

	result, err := o.runBuilder(ctx, st)
	if err != nil {
		return err
	}

	finished := time.Now()
	startedAt := st.started
	if result.StartTime > 0 {
		startedAt = time.UnixMilli(int64(result.StartTime * 1000))
	}
	st.build.MarkReady(startedAt, finished, st.elapsed(finished), result.Path, result.Size, result.Output)
	st.logger.Info("build ready", "path", result.Path, "size", result.Size)
	o.reportStatus(ctx, st, domain.BuildStatusReady)

	if st.deployment.Activate {
		if err := o.functions.SetDeployment(ctx, st.tenantID(), st.function.ID, st.deployment.ID); err != nil {
			return fmt.Errorf("activate deployment: %w", err)
		}
		st.function.DeploymentID = st.deployment.ID
	}

	return o.syncSchedule(ctx, st)
}

// prepareSource клонирует репозиторий, переносит шаблон, пакует и загружает
// исходники. Рабочий каталог удаляется в любом случае.
func (o *Orchestrator) prepareSource(ctx context.Context, st *buildState) error {
	if o.git == nil {
		return fmt.Errorf("%w: repository builds are not configured", domain.ErrUnsupported)
	}

	dir, err := o.workspace.Prepare(st.build.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := o.workspace.Cleanup(dir); err != nil {
			st.logger.Warn("failed to cleanup workspace", "dir", dir, "error", err)
		}
	}()

	codeDir := filepath.Join(dir, "code")
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		return fmt.Errorf("create code dir: %w", err)
	}

	if o.isCancelled(ctx, st) {
		return errCancelled
	}
	if err := o.git.Checkout(ctx, st.deployment.VCS, codeDir); err != nil {
		return fmt.Errorf("unable to clone code repository: %w", err)
	}
	if o.isCancelled(ctx, st) {
		return errCancelled
	}

	rootDir := cleanRoot(st.function.VCSRootDirectory)

	if tmpl := st.job.Template; tmpl.IsSet() {
		templateDir := filepath.Join(dir, "template")
		if err := os.MkdirAll(templateDir, 0o755); err != nil {
			return fmt.Errorf("create template dir: %w", err)
		}
		push := vcs.TemplatePush{
			Source:        st.deployment.VCS,
			Template:      *tmpl,
			FunctionName:  st.function.Name,
			RootDirectory: rootDir,
			RepoDir:       codeDir,
			ScratchDir:    templateDir,
		}
		push.Template.RootDirectory = cleanRoot(tmpl.RootDirectory)

		hash, info, err := o.git.PushTemplate(ctx, push)
		if err != nil {
			return fmt.Errorf("unable to push code repository: %w", err)
		}
		st.deployment.VCS.CommitHash = hash
		st.deployment.Commit = info
		if err := o.deployments.UpdateCommit(ctx, st.deployment); err != nil {
			return fmt.Errorf("update deployment commit: %w", err)
		}
		st.logger.Info("template pushed", "commit", hash)
		o.notify(ctx, st)
	}

	srcDir := codeDir
	if rootDir != "" {
		srcDir = filepath.Join(codeDir, filepath.FromSlash(rootDir))
		if err := os.MkdirAll(srcDir, 0o755); err != nil {
			return fmt.Errorf("create root dir: %w", err)
		}
	}

	size, err := workspace.DirSize(srcDir)
	if err != nil {
		return err
	}
	if size > o.sizeLimit {
		return fmt.Errorf("%w: repository directory size should be less than %.2f MBs",
			domain.ErrSourceTooLarge, float64(o.sizeLimit)/1048576)
	}

	archive := filepath.Join(dir, workspace.ArchiveName)
	if err := workspace.Archive(srcDir, archive); err != nil {
		return err
	}

	source, err := o.artifacts.Upload(ctx, st.tenantID(), st.deployment.ID, archive)
	if err != nil {
		return fmt.Errorf("unable to move file: %w", err)
	}
	st.build.Source = source
	if err := o.persist(ctx, st); err != nil {
		return err
	}

	o.reportStatus(ctx, st, domain.BuildStatusProcessing)
	return nil
}

// runBuilder запускает сборку и параллельно сохраняет логи.
//
// Логи пишутся только пока результата нет: флаг done ставится под тем же
// мьютексом, под которым пишется очередной кусок.
func (o *Orchestrator) runBuilder(ctx context.Context, st *buildState) (*executor.RuntimeResult, error) {
	fn, dep := st.function, st.deployment
	req := executor.RuntimeRequest{
		TenantID:     st.tenantID(),
		DeploymentID: dep.ID,
		RuntimeID:    executor.RuntimeID(st.tenantID(), dep.ID),
		Source:       st.build.Source,
		Destination:  o.destination + "/app-" + st.tenantID(),
		Image:        st.runtime.Image,
		Entrypoint:   dep.Entrypoint,
		Variables:    buildVariables(fn, dep, st.runtime),
		Command:      buildCommand(fn.RuntimeVersion(), dep.Commands),
		Version:      fn.RuntimeVersion(),
		CPUs:         o.cpus,
		Memory:       o.memory,
		Timeout:      int(o.timeout.Seconds()),
		Remove:       true,
	}

	var (
		mu       sync.Mutex
		done     bool
		result   *executor.RuntimeResult
		buildErr error
		logErr   error
	)

	buildCtx, stopBuild := context.WithCancel(ctx)
	defer stopBuild()
	logCtx, stopLogs := context.WithCancel(ctx)
	defer stopLogs()

	var g errgroup.Group
	g.Go(func() error {
		res, err := o.builder.CreateRuntime(buildCtx, req)

		mu.Lock()
		done = true
		result, buildErr = res, err
		mu.Unlock()

		stopLogs()
		return err
	})
	g.Go(func() error {
		err := o.builder.StreamLogs(logCtx, st.tenantID(), dep.ID, func(chunk string) error {
			mu.Lock()
			defer mu.Unlock()
			if done {
				return nil
			}
			st.build.AppendLogs(chunk)
			if err := o.persist(ctx, st); err != nil {
				return err
			}
			o.notify(ctx, st)
			return nil
		})
		if err != nil && logCtx.Err() == nil {
			logErr = err
		}
		if errors.Is(err, errCancelled) {
			// отмена замечена по логам: сборку дальше не ждём
			stopBuild()
		}
		return nil
	})
	_ = g.Wait()

	if errors.Is(logErr, errCancelled) {
		return nil, errCancelled
	}
	if buildErr != nil {
		return nil, buildErr
	}
	if logErr != nil {
		st.logger.Warn("build log stream failed", "error", logErr)
	}
	return result, nil
}

// syncSchedule пересчитывает активность расписания функции.
func (o *Orchestrator) syncSchedule(ctx context.Context, st *buildState) error {
	if o.schedules == nil || st.function.ScheduleID == "" {
		return nil
	}
	s, err := o.schedules.GetByID(ctx, st.function.ScheduleID)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	s.Sync(st.function, time.Now())
	if err := o.schedules.Update(ctx, s); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// finish сохраняет итоговое состояние и рассылает его.
func (o *Orchestrator) finish(ctx context.Context, st *buildState) error {
	if err := o.persist(ctx, st); err != nil {
		if errors.Is(err, errCancelled) {
			st.logger.Info("build cancelled")
			return nil
		}
		return err
	}
	o.notify(ctx, st)

	if st.replaces && st.build.Status == domain.BuildStatusReady {
		if err := o.deployments.SetBuild(ctx, st.tenantID(), st.deployment.ID, st.build.ID); err != nil {
			st.logger.Error("failed to switch deployment to new build", "error", err)
		} else {
			st.deployment.BuildID = st.build.ID
		}
	}

	telemetry.BuildsTotal.WithLabelValues(string(st.build.Status)).Inc()
	telemetry.BuildDuration.Observe(st.elapsed(time.Now()).Seconds())

	batch := usage.NewBatch(st.tenantID(), st.function.ID).
		Add(usage.MetricBuilds, 1).
		Add(usage.MetricBuildsStorage, st.build.Size).
		Add(usage.MetricBuildsCompute, int64(st.build.Duration)*1000)
	if err := batch.Flush(ctx, o.usage); err != nil {
		st.logger.Warn("failed to record build usage", "error", err)
	}

	o.triggerUpdate(ctx, st)

	st.logger.Info("build finished", "status", st.build.Status, "duration", st.build.Duration)
	return nil
}

// persist сохраняет сборку. Если в БД сборка уже финальная (отменена
// пользователем), возвращается errCancelled.
func (o *Orchestrator) persist(ctx context.Context, st *buildState) error {
	err := o.builds.Update(ctx, st.build)
	if errors.Is(err, repo.ErrInvalidState) {
		return errCancelled
	}
	if err != nil {
		return fmt.Errorf("persist build: %w", err)
	}
	return nil
}

// isCancelled перечитывает статус сборки.
func (o *Orchestrator) isCancelled(ctx context.Context, st *buildState) bool {
	b, err := o.builds.GetByID(ctx, st.tenantID(), st.build.ID)
	if err != nil {
		st.logger.Warn("failed to reload build", "error", err)
		return false
	}
	return b.IsCancelled()
}

func (o *Orchestrator) notify(ctx context.Context, st *buildState) {
	o.notifier.BuildUpdated(ctx, st.tenantID(), st.events, st.build)
}

// triggerUpdate публикует событие обновления деплоймента; подписанные
// функции получат его через очередь событий.
func (o *Orchestrator) triggerUpdate(ctx context.Context, st *buildState) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishEvent(ctx, st.tenantID(), st.events, st.deployment); err != nil {
		st.logger.Warn("failed to trigger deployment update", "error", err)
	}
}

// reportStatus обновляет commit status и комментарий PR. Ошибки не влияют
// на сборку.
func (o *Orchestrator) reportStatus(ctx context.Context, st *buildState, status domain.BuildStatus) {
	if o.git == nil || !st.deployment.VCS.IsSet() {
		return
	}
	err := o.git.ReportStatus(ctx, vcs.StatusReport{
		Function:   st.function,
		Deployment: st.deployment,
		Status:     status,
	})
	if err != nil {
		st.logger.Warn("failed to report git status", "status", status, "error", err)
	}
}
