package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// FunctionRepo — репозиторий функций.
type FunctionRepo struct {
	pool *pgxpool.Pool
}

// NewFunctionRepo создаёт новый FunctionRepo.
func NewFunctionRepo(pool *pgxpool.Pool) *FunctionRepo {
	return &FunctionRepo{pool: pool}
}

const functionColumns = `
	f.tenant_id, f.id, f.name, f.runtime, f.version, f.deployment_id, f.execute, f.vars,
	COALESCE((SELECT jsonb_object_agg(v.key, v.value) FROM tenant_variables v
	          WHERE v.tenant_id = f.tenant_id), '{}'::jsonb),
	f.enabled, f.logging, f.events, f.schedule, f.schedule_id, f.timeout,
	f.vcs_root_directory, f.silent_mode, f.created_at, f.updated_at`

// GetByID возвращает функцию вместе с общими переменными тенанта.
func (r *FunctionRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Function, error) {
	query := `SELECT ` + functionColumns + `
		FROM functions f
		WHERE f.tenant_id = $1 AND f.id = $2`

	fn, err := scanFunction(r.pool.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get function: %w", err)
	}
	return fn, nil
}

// ListPage возвращает страницу функций тенанта, отсортированную по имени.
func (r *FunctionRepo) ListPage(ctx context.Context, tenantID string, limit, offset int) ([]domain.Function, error) {
	query := `SELECT ` + functionColumns + `
		FROM functions f
		WHERE f.tenant_id = $1
		ORDER BY f.name ASC, f.id ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var functions []domain.Function
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		functions = append(functions, *fn)
	}
	return functions, rows.Err()
}

// SetDeployment переключает активный деплоймент функции.
func (r *FunctionRepo) SetDeployment(ctx context.Context, tenantID, id, deploymentID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE functions SET deployment_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, deploymentID,
	)
	if err != nil {
		return fmt.Errorf("update function deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFunction(row pgx.Row) (*domain.Function, error) {
	var (
		fn                                 domain.Function
		deploymentID, schedule, scheduleID *string
		rootDir                            *string
		varsJSON, sharedJSON               []byte
	)

	err := row.Scan(
		&fn.TenantID, &fn.ID, &fn.Name, &fn.Runtime, &fn.Version, &deploymentID,
		&fn.Execute, &varsJSON, &sharedJSON,
		&fn.Enabled, &fn.Logging, &fn.Events, &schedule, &scheduleID, &fn.Timeout,
		&rootDir, &fn.SilentMode, &fn.CreatedAt, &fn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fn.DeploymentID = deref(deploymentID)
	fn.Schedule = deref(schedule)
	fn.ScheduleID = deref(scheduleID)
	fn.VCSRootDirectory = deref(rootDir)

	if err := json.Unmarshal(varsJSON, &fn.Vars); err != nil {
		return nil, fmt.Errorf("unmarshal vars: %w", err)
	}
	if err := json.Unmarshal(sharedJSON, &fn.SharedVars); err != nil {
		return nil, fmt.Errorf("unmarshal shared vars: %w", err)
	}
	return &fn, nil
}
