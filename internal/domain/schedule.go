package domain

import "time"

// Schedule — запись расписания функции.
//
// Scheduler проверяет next_due_at и ставит выполнение с триггером schedule,
// когда время подошло. Active = у функции есть расписание И активный деплоймент;
// пересчитывается после каждой сборки.
type Schedule struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	FunctionID string `json:"function_id"`

	// CronExpr — cron-выражение, "минуты часы дни месяцы дни_недели".
	CronExpr string `json:"cron_expr"`

	Active bool `json:"active"`

	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// ResourceUpdatedAt — время последнего изменения функции, повлиявшего на расписание.
	ResourceUpdatedAt time.Time `json:"resource_updated_at"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Active || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// Sync обновляет расписание по состоянию функции.
func (s *Schedule) Sync(fn *Function, now time.Time) {
	s.CronExpr = fn.Schedule
	s.Active = fn.HasSchedule() && fn.DeploymentID != ""
	s.ResourceUpdatedAt = now
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(ranAt, nextDue time.Time) {
	s.LastRunAt = &ranAt
	s.NextDueAt = &nextDue
}
