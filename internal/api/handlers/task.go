package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/task"
)

// TaskHandler serves the read-only task surface (spec §6's `status`/`list`
// commands, reachable over HTTP) plus task creation, all backed by the
// same Controller the `manage` CLI uses.
type TaskHandler struct {
	controller *task.Controller
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(controller *task.Controller) *TaskHandler {
	return &TaskHandler{controller: controller}
}

// CreateTaskRequest is the body accepted by POST /api/v1/tasks.
type CreateTaskRequest struct {
	ID         string `json:"id"`
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
}

// TaskResponse is the JSON shape returned for a single task.
type TaskResponse struct {
	ID       string         `json:"id"`
	Status   task.Status    `json:"status"`
	Init     *task.Init     `json:"init,omitempty"`
	Progress *task.Progress `json:"progress,omitempty"`
	Result   *int64         `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func toTaskResponse(id string, st *task.State) *TaskResponse {
	return &TaskResponse{
		ID:       id,
		Status:   st.Status,
		Init:     st.Init,
		Progress: st.Progress,
		Result:   st.Result,
		Error:    st.Error,
	}
}

// Create handles POST /api/v1/tasks, mirroring manage.py's process command.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ID == "" {
		h.respondError(w, http.StatusBadRequest, "task id is required")
		return
	}
	if req.InputFile == "" || req.OutputFile == "" {
		h.respondError(w, http.StatusBadRequest, "input_file and output_file are required")
		return
	}

	init := task.Init{InputFile: req.InputFile, OutputFile: req.OutputFile}
	if err := h.controller.Create(r.Context(), req.ID, init); err != nil {
		if errors.Is(err, task.ErrTaskAlreadyExists) {
			h.respondError(w, http.StatusConflict, "task already exists")
			return
		}
		logger.Error().Err(err).Str("task_id", req.ID).Msg("failed to create task")
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	logger.Info().Str("task_id", req.ID).Msg("task created")
	h.respondJSON(w, http.StatusCreated, toTaskResponse(req.ID, task.NewPendingState(init)))
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	st, err := h.controller.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, toTaskResponse(taskID, st))
}

// ListResponse is the response shape for GET /api/v1/tasks.
type ListResponse struct {
	Tasks      []*TaskResponse `json:"tasks"`
	TotalCount int             `json:"total_count"`
}

// List handles GET /api/v1/tasks, mirroring manage.py's list command.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.controller.List(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	tasks := make([]*TaskResponse, 0, len(summaries))
	for _, s := range summaries {
		tasks = append(tasks, toTaskResponse(s.ID, s.State))
	}

	h.respondJSON(w, http.StatusOK, ListResponse{Tasks: tasks, TotalCount: len(tasks)})
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
