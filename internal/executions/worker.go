package executions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

const defaultPrefetch = 5

// Worker потребляет очереди functions.pending и events.pending.
//
// Выполнения без ретраев: итог вызова фиксируется в Execution, а сообщение
// подтверждается. В очередь возвращаются только задания, упавшие на
// инфраструктуре до записи итога.
type Worker struct {
	dispatcher *Dispatcher
	conn       *mq.Connection
	prefetch   int
	logger     *slog.Logger

	consumers  []*mq.Consumer
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	Dispatcher *Dispatcher
	Conn       *mq.Connection

	// Prefetch — количество сообщений на consumer (default: 5).
	Prefetch int

	Logger *slog.Logger
}

// NewWorker создаёт Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		dispatcher: cfg.Dispatcher,
		conn:       cfg.Conn,
		prefetch:   prefetch,
		logger:     logger,
	}
}

// Start запускает consumers обеих очередей.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return errors.New("executions: connection is required to start consumer")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	for _, queue := range []mq.Queue{mq.QueueFunctionsPending, mq.QueueEventsPending} {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(queue),
			Handler:  w.handleJob,
			Prefetch: w.prefetch,
		})
		w.consumers = append(w.consumers, consumer)

		queue := queue
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("execution consumer error", "queue", queue, "error", err)
			}
		}()
	}

	w.logger.Info("execution worker started", "prefetch", w.prefetch)
	return nil
}

// Stop останавливает consumers и ждёт текущие вызовы.
func (w *Worker) Stop() {
	w.logger.Info("stopping execution worker...")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, c := range w.consumers {
		c.Stop()
	}
	w.wg.Wait()
	w.logger.Info("execution worker stopped")
}

func (w *Worker) handleJob(ctx context.Context, delivery *mq.Delivery) error {
	job, err := mq.ParsePayload[mq.ExecutionJob](&delivery.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
	}
	return w.Handle(ctx, job)
}

// Handle обрабатывает одно задание очереди.
func (w *Worker) Handle(ctx context.Context, job mq.ExecutionJob) error {
	logger := w.logger.With("tenant_id", job.TenantID, "function_id", job.FunctionID)

	if job.TenantID == domain.ConsoleTenant {
		logger.Debug("console job ignored")
		return nil
	}

	if job.IsEvent() {
		_, err := w.dispatcher.FanOut(ctx, Event{
			TenantID: job.TenantID,
			Events:   job.Events,
			Payload:  job.Payload,
			UserID:   job.UserID,
		})
		if errors.Is(err, domain.ErrValidation) {
			return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
		}
		return err
	}

	switch job.Type {
	case domain.TriggerHTTP, domain.TriggerSchedule:
	default:
		logger.Warn("unknown execution job type", "type", job.Type)
		return fmt.Errorf("%w: invalid execution type %q", mq.ErrDiscard, job.Type)
	}

	res, err := w.dispatcher.Invoke(ctx, Invocation{
		TenantID:    job.TenantID,
		FunctionID:  job.FunctionID,
		Trigger:     job.Type,
		ExecutionID: job.ExecutionID,
		UserID:      job.UserID,
		JWT:         job.JWT,
		Data:        job.Data,
		Path:        job.Path,
		Method:      job.Method,
		Headers:     job.Headers,
	})
	switch {
	case err == nil:
		return nil
	case res != nil:
		// Итог уже записан в Execution.
		return nil
	case errors.Is(err, ErrDuplicate):
		logger.Info("execution already finished, skipping", "execution_id", job.ExecutionID)
		return nil
	case isPermanent(err):
		logger.Warn("execution job rejected", "error", err)
		return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
	default:
		logger.Error("execution job failed", "error", err)
		return err
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNotReady) ||
		errors.Is(err, domain.ErrUnsupported) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrUnauthorized)
}
