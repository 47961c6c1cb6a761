package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// ScheduleRepo — репозиторий расписаний функций.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const scheduleColumns = `id, tenant_id, function_id, cron_expr, active, next_due_at, last_run_at, resource_updated_at`

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	s, err := scanSchedule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

// ListDue возвращает активные schedules, готовые к выполнению, и активные
// schedules без next_due_at (их время ещё не рассчитано).
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE active = true
		  AND (next_due_at IS NULL OR next_due_at <= $1)
		ORDER BY next_due_at ASC NULLS FIRST
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// Update сохраняет изменения schedule.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET cron_expr = $2, active = $3, next_due_at = $4, last_run_at = $5,
		    resource_updated_at = $6
		WHERE id = $1`,
		s.ID, s.CronExpr, s.Active, s.NextDueAt, s.LastRunAt, s.ResourceUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID, &s.TenantID, &s.FunctionID, &s.CronExpr, &s.Active,
		&s.NextDueAt, &s.LastRunAt, &s.ResourceUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
