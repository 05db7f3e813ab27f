package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/task"
	"github.com/vectorq/taskqueue/internal/worker"
)

// AdminHandler serves the observability and control surface of spec §6's
// `manage` commands (pause/resume/retry, plus worker/queue introspection
// that CLI has no equivalent for) over HTTP.
type AdminHandler struct {
	client     *coordination.Client
	controller *task.Controller
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(client *coordination.Client, controller *task.Controller) *AdminHandler {
	return &AdminHandler{client: client, controller: controller}
}

// ListWorkers handles GET /admin/workers.
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := worker.ListActive(r.Context(), h.client)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active workers")
		h.respondError(w, http.StatusInternalServerError, "failed to get workers")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}.
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	workers, err := worker.ListActive(r.Context(), h.client)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active workers")
		h.respondError(w, http.StatusInternalServerError, "failed to get worker")
		return
	}

	for _, wk := range workers {
		if wk.Identity == workerID {
			h.respondJSON(w, http.StatusOK, wk)
			return
		}
	}

	h.respondError(w, http.StatusNotFound, "worker not found or not active")
}

// GetQueues handles GET /admin/queues, reporting the current size of each
// keyspace a task passes through: queued-but-unclaimed, and claimed (held
// by a live worker).
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	queued, err := h.client.ListByCreateOrder(r.Context(), h.client.QueuePrefix())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list queue markers")
		h.respondError(w, http.StatusInternalServerError, "failed to get queue statistics")
		return
	}

	claimed, err := h.client.ListByCreateOrder(r.Context(), h.client.ClaimsPrefix())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list claims")
		h.respondError(w, http.StatusInternalServerError, "failed to get queue statistics")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queued_depth":  len(queued),
		"claimed_depth": len(claimed),
	})
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"etcd":   "disconnected",
			"error":  err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"etcd":   "connected",
	})
}

// PauseTask handles POST /admin/tasks/{taskID}/pause, mirroring
// `manage pause`.
func (h *AdminHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.controller.Pause, "task paused or pause requested")
}

// ResumeTask handles POST /admin/tasks/{taskID}/resume, mirroring
// `manage resume`.
func (h *AdminHandler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.controller.Resume, "task resume requested")
}

// RetryTask handles POST /admin/tasks/{taskID}/retry, mirroring
// `manage retry`.
func (h *AdminHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.controller.Retry, "task retried")
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error, message string) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	if err := op(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		var mismatch *task.StatusMismatchError
		if errors.As(err, &mismatch) {
			h.respondError(w, http.StatusConflict, mismatch.Error())
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to transition task")
		h.respondError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	logger.Info().Str("task_id", taskID).Msg(message)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"task_id": taskID,
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
