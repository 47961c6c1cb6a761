package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/mq"
)

// CreateBuild ставит сборку деплоймента в очередь.
// POST /v1/tenants/{tenantID}/functions/{functionID}/deployments/{deploymentID}/builds
func (h *Handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	functionID := chi.URLParam(r, "functionID")
	deploymentID := chi.URLParam(r, "deploymentID")

	var req CreateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	dep, err := h.deployments.GetByID(r.Context(), tenantID, deploymentID)
	if HandleRepoError(w, reqLogger(r), err, "deployment not found") {
		return
	}
	if dep.FunctionID != functionID {
		NotFound(w, "deployment not found")
		return
	}
	if req.Template != nil && !req.Template.IsSet() {
		BadRequest(w, "template requires owner and repository")
		return
	}

	job := mq.BuildJob{
		Type:         req.Type(),
		TenantID:     tenantID,
		FunctionID:   functionID,
		DeploymentID: deploymentID,
		Template:     req.Template,
	}
	buildID := dep.BuildID
	// retry собирает заново в новой записи; текущая сборка должна быть завершена
	if job.Type == mq.BuildTypeRetry {
		if dep.BuildID != "" {
			current, err := h.builds.GetByID(r.Context(), tenantID, dep.BuildID)
			if HandleRepoError(w, reqLogger(r), err, "build not found") {
				return
			}
			if !current.Status.IsTerminal() {
				InvalidState(w, "build is still in progress")
				return
			}
		}
		job.BuildID = uuid.NewString()
		buildID = job.BuildID
	}
	if err := h.publisher.PublishBuild(r.Context(), job); err != nil {
		InternalError(w, reqLogger(r), err)
		return
	}

	reqLogger(r).Info("build queued",
		"tenant_id", tenantID,
		"deployment_id", deploymentID,
		"type", job.Type,
		"build_id", buildID,
	)
	Accepted(w, BuildQueuedResponse{
		Type:         job.Type,
		FunctionID:   functionID,
		DeploymentID: deploymentID,
		BuildID:      buildID,
	})
}

// GetBuild возвращает сборку.
// GET /v1/tenants/{tenantID}/builds/{buildID}
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := h.builds.GetByID(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "buildID"))
	if HandleRepoError(w, reqLogger(r), err, "build not found") {
		return
	}
	Success(w, BuildFromDomain(*build))
}

// CancelBuild отменяет незавершённую сборку. Worker увидит отмену
// при следующей проверке и остановит сборку.
// POST /v1/tenants/{tenantID}/builds/{buildID}/cancel
func (h *Handler) CancelBuild(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	buildID := chi.URLParam(r, "buildID")

	if err := h.builds.Cancel(r.Context(), tenantID, buildID); HandleRepoError(w, reqLogger(r), err, "build not found") {
		return
	}

	build, err := h.builds.GetByID(r.Context(), tenantID, buildID)
	if HandleRepoError(w, reqLogger(r), err, "build not found") {
		return
	}

	reqLogger(r).Info("build cancelled", "tenant_id", tenantID, "build_id", buildID)
	Success(w, BuildFromDomain(*build))
}
