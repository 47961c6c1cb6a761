package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// executionNamespace — пространство имён для детерминированных ID выполнений.
var executionNamespace = uuid.MustParse("9f1c6a52-6b0e-4d8e-9a39-3c1d2f0b7e41")

// ScheduleStore — расписания функций.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
}

// ExecutionPublisher ставит выполнения в очередь.
type ExecutionPublisher interface {
	PublishExecution(ctx context.Context, job mq.ExecutionJob) error
}

// Leader — лидерство среди экземпляров scheduler'а.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler — планировщик, ставящий выполнения функций по расписанию.
type Scheduler struct {
	schedules ScheduleStore
	publisher ExecutionPublisher
	leader    Leader
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Publisher ExecutionPublisher

	// Leader — nil означает, что экземпляр всегда лидер.
	Leader Leader

	Logger    *slog.Logger
	BatchSize int           // количество schedules за один тик (default: 100)
	Interval  time.Duration // период тиков (default: 1s)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		publisher: cfg.Publisher,
		leader:    cfg.Leader,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
	}
}

// Run выполняет тики, пока экземпляр лидер, до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	defer func() {
		if s.leader != nil {
			if err := s.leader.Release(context.Background()); err != nil {
				s.logger.Warn("failed to release leadership", "error", err)
			}
		}
	}()

	for {
		select {
		case <-tk.C:
			if !s.isLeader(ctx) {
				continue
			}
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}
	ok, err := s.leader.TryAcquire(ctx)
	if err != nil {
		s.logger.Warn("leader election failed", "error", err)
		return false
	}
	return ok
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (active=true, next_due_at <= now или не рассчитан)
// 2. Для каждого due schedule публикует выполнение с триггером schedule
// 3. Обновляет next_due_at и last_run_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, enqueued int
	for i := range schedules {
		sched := &schedules[i]

		queued, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"function_id", sched.FunctionID,
				"error", err,
			)
			continue
		}

		processed++
		if queued {
			enqueued++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"executions_queued", enqueued,
	)
	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если выполнение поставлено в очередь.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	next, err := NextDue(sched.CronExpr, now)
	if err != nil {
		// Некорректное выражение: не трогаем schedule.
		s.logger.Warn("invalid schedule, skipping", "schedule_id", sched.ID, "error", err)
		return false, nil
	}

	// Первое появление: только рассчитываем время запуска.
	if sched.NextDueAt == nil {
		sched.NextDueAt = &next
		if err := s.schedules.Update(ctx, sched); err != nil {
			return false, fmt.Errorf("update schedule: %w", err)
		}
		return false, nil
	}
	if !sched.IsDue(now) {
		return false, nil
	}

	// ID выполнения детерминирован: повторная публикация того же
	// запуска не приведёт к повторному выполнению.
	executionID := uuid.NewSHA1(executionNamespace,
		fmt.Appendf(nil, "%s/%d", sched.ID, sched.NextDueAt.Unix())).String()

	job := mq.ExecutionJob{
		Type:        domain.TriggerSchedule,
		TenantID:    sched.TenantID,
		FunctionID:  sched.FunctionID,
		ExecutionID: executionID,
	}
	if err := s.publisher.PublishExecution(ctx, job); err != nil {
		return false, fmt.Errorf("publish execution: %w", err)
	}

	s.logger.Info("scheduled execution queued",
		"schedule_id", sched.ID,
		"function_id", sched.FunctionID,
		"execution_id", executionID,
		"next_due_at", next,
	)

	sched.RecordRun(now, next)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return true, fmt.Errorf("update schedule: %w", err)
	}
	return true, nil
}
