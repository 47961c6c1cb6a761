// Package usage записывает метрики потребления сборок и выполнений.
//
// Агрегация вне этого пакета: метрики уходят в очередь usage.pending.
package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Forge/internal/mq"
)

// Имена метрик уровня тенанта. Метрики уровня функции получают
// префикс "functions.<id>." (см. FunctionMetric).
const (
	MetricBuilds            = "builds"
	MetricBuildsStorage     = "builds.storage"
	MetricBuildsCompute     = "builds.compute"
	MetricExecutions        = "executions"
	MetricExecutionsCompute = "executions.compute"
)

// FunctionMetric возвращает имя метрики уровня функции.
func FunctionMetric(functionID, metric string) string {
	return fmt.Sprintf("functions.%s.%s", functionID, metric)
}

// Recorder записывает одну метрику.
type Recorder interface {
	Record(ctx context.Context, tenantID, metric string, value int64) error
}

// UsagePublisher — источник очереди для QueueRecorder.
type UsagePublisher interface {
	PublishUsage(ctx context.Context, usage mq.UsagePayload) error
}

// QueueRecorder публикует метрики в RabbitMQ.
type QueueRecorder struct {
	pub UsagePublisher
}

// NewQueueRecorder создаёт QueueRecorder.
func NewQueueRecorder(pub UsagePublisher) *QueueRecorder {
	return &QueueRecorder{pub: pub}
}

// Record публикует метрику.
func (r *QueueRecorder) Record(ctx context.Context, tenantID, metric string, value int64) error {
	return r.pub.PublishUsage(ctx, mq.UsagePayload{
		TenantID: tenantID,
		Metric:   metric,
		Value:    value,
	})
}

// Batch собирает метрики одного задания на уровне тенанта и функции.
type Batch struct {
	tenantID   string
	functionID string
	entries    []entry
}

type entry struct {
	metric string
	value  int64
}

// NewBatch создаёт пакет метрик.
func NewBatch(tenantID, functionID string) *Batch {
	return &Batch{tenantID: tenantID, functionID: functionID}
}

// Add добавляет метрику сразу на уровне тенанта и функции.
func (b *Batch) Add(metric string, value int64) *Batch {
	b.entries = append(b.entries,
		entry{metric: metric, value: value},
		entry{metric: FunctionMetric(b.functionID, metric), value: value},
	)
	return b
}

// Len возвращает число записей в пакете.
func (b *Batch) Len() int {
	return len(b.entries)
}

// Flush записывает все метрики; ошибки объединяются.
func (b *Batch) Flush(ctx context.Context, rec Recorder) error {
	if rec == nil {
		return nil
	}
	var errs []error
	for _, e := range b.entries {
		if err := rec.Record(ctx, b.tenantID, e.metric, e.value); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", e.metric, err))
		}
	}
	return errors.Join(errs...)
}
