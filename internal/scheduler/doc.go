// Package scheduler ставит выполнения функций по расписанию.
//
// Scheduler периодически выбирает активные schedules с истекшим next_due_at
// и публикует в functions.pending задание с триггером schedule.
//
// Структура:
//   - scheduler.go — Scheduler (Run, Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Leader Election:
//
// Tick выполняет только лидер. Лидерство берётся через Leader
// (repo.AdvisoryLock, pg_try_advisory_lock) на каждом тике.
package scheduler
