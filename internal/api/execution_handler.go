package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

// CreateExecution создаёт выполнение в статусе waiting и ставит его в очередь.
// POST /v1/tenants/{tenantID}/functions/{functionID}/executions
func (h *Handler) CreateExecution(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	functionID := chi.URLParam(r, "functionID")

	var req CreateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	fn, err := h.functions.GetByID(r.Context(), tenantID, functionID)
	if HandleRepoError(w, reqLogger(r), err, "function not found") {
		return
	}
	if !fn.Enabled {
		NotFound(w, "function not found")
		return
	}

	exec := domain.NewExecution("", fn, fn.DeploymentID, domain.TriggerHTTP)
	exec.RequestPath = req.Path
	exec.RequestMethod = req.Method
	if err := h.executions.Create(r.Context(), exec); err != nil {
		InternalError(w, reqLogger(r), err)
		return
	}

	job := mq.ExecutionJob{
		Type:        domain.TriggerHTTP,
		TenantID:    tenantID,
		FunctionID:  functionID,
		ExecutionID: exec.ID,
		UserID:      req.UserID,
		Data:        req.Data,
		Path:        req.Path,
		Method:      req.Method,
		Headers:     req.Headers,
	}
	if err := h.publisher.PublishExecution(r.Context(), job); err != nil {
		InternalError(w, reqLogger(r), err)
		return
	}

	reqLogger(r).Info("execution queued",
		"tenant_id", tenantID,
		"function_id", functionID,
		"execution_id", exec.ID,
	)
	Accepted(w, ExecutionFromDomain(*exec))
}

// GetExecution возвращает выполнение.
// GET /v1/tenants/{tenantID}/executions/{executionID}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.executions.GetByID(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "executionID"))
	if HandleRepoError(w, reqLogger(r), err, "execution not found") {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}
