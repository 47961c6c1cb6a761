package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// BuildRepo — репозиторий сборок.
type BuildRepo struct {
	pool *pgxpool.Pool
}

// NewBuildRepo создаёт новый BuildRepo.
func NewBuildRepo(pool *pgxpool.Pool) *BuildRepo {
	return &BuildRepo{pool: pool}
}

// GetByID возвращает сборку по ID.
func (r *BuildRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Build, error) {
	query := `
		SELECT tenant_id, id, deployment_id, status, start_time, end_time, duration,
		       source, source_type, path, size, logs, created_at, updated_at
		FROM builds
		WHERE tenant_id = $1 AND id = $2
	`
	var (
		b                        domain.Build
		source, sourceType, path *string
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&b.TenantID, &b.ID, &b.DeploymentID, &b.Status, &b.StartTime, &b.EndTime, &b.Duration,
		&source, &sourceType, &path, &b.Size, &b.Logs, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get build: %w", err)
	}
	b.Source = deref(source)
	b.SourceType = deref(sourceType)
	b.Path = deref(path)
	return &b, nil
}

// Create добавляет новую сборку. Занятый ID даёт ErrAlreadyExists.
func (r *BuildRepo) Create(ctx context.Context, b *domain.Build) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO builds (tenant_id, id, deployment_id, status, source, source_type,
		                    logs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.TenantID, b.ID, b.DeploymentID, b.Status,
		nullString(b.Source), nullString(b.SourceType), b.Logs,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// Update сохраняет состояние сборки.
//
// Финальная сборка (ready, failed, cancelled) не перезаписывается:
// возвращается ErrInvalidState.
func (r *BuildRepo) Update(ctx context.Context, b *domain.Build) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE builds
		SET status = $3, start_time = $4, end_time = $5, duration = $6,
		    source = $7, source_type = $8, path = $9, size = $10, logs = $11,
		    updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('ready', 'failed', 'cancelled')`,
		b.TenantID, b.ID,
		b.Status, b.StartTime, b.EndTime, b.Duration,
		nullString(b.Source), nullString(b.SourceType), nullString(b.Path), b.Size, b.Logs,
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Cancel переводит нефинальную сборку в cancelled.
func (r *BuildRepo) Cancel(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE builds SET status = 'cancelled', end_time = now(), updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('ready', 'failed', 'cancelled')`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("cancel build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, tenantID, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}
