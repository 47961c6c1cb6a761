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

// ExecutionRepo — репозиторий выполнений.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create создаёт запись выполнения.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution) error {
	reqHeaders, err := json.Marshal(e.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	respHeaders, err := json.Marshal(e.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO executions (tenant_id, id, function_id, deployment_id, trigger, status,
		                        request_path, request_method, request_headers,
		                        response_status_code, response_headers, logs, errors,
		                        duration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.TenantID, e.ID, e.FunctionID, e.DeploymentID, e.Trigger, e.Status,
		e.RequestPath, e.RequestMethod, reqHeaders,
		e.ResponseStatusCode, respHeaders, e.Logs, e.Errors,
		e.Duration, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Update сохраняет состояние выполнения.
func (r *ExecutionRepo) Update(ctx context.Context, e *domain.Execution) error {
	respHeaders, err := json.Marshal(e.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET deployment_id = $3, status = $4, response_status_code = $5,
		    response_headers = $6, logs = $7, errors = $8, duration = $9, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		e.TenantID, e.ID, e.DeploymentID, e.Status, e.ResponseStatusCode,
		respHeaders, e.Logs, e.Errors, e.Duration,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает выполнение по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Execution, error) {
	query := `
		SELECT tenant_id, id, function_id, deployment_id, trigger, status,
		       request_path, request_method, request_headers,
		       response_status_code, response_headers, logs, errors,
		       duration, created_at, updated_at
		FROM executions
		WHERE tenant_id = $1 AND id = $2
	`
	var (
		e                       domain.Execution
		reqHeaders, respHeaders []byte
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&e.TenantID, &e.ID, &e.FunctionID, &e.DeploymentID, &e.Trigger, &e.Status,
		&e.RequestPath, &e.RequestMethod, &reqHeaders,
		&e.ResponseStatusCode, &respHeaders, &e.Logs, &e.Errors,
		&e.Duration, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	if err := json.Unmarshal(reqHeaders, &e.RequestHeaders); err != nil {
		return nil, fmt.Errorf("unmarshal request headers: %w", err)
	}
	if err := json.Unmarshal(respHeaders, &e.ResponseHeaders); err != nil {
		return nil, fmt.Errorf("unmarshal response headers: %w", err)
	}
	return &e, nil
}
