package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
)

// TaskHandler handles task allocation and administration requests.
type TaskHandler struct {
	deps Dependencies
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(deps Dependencies) *TaskHandler {
	return &TaskHandler{deps: deps}
}

// HandleNextTask handles GET /api/tasks/next requests. A 204 response
// means no task is currently available for the caller.
func (h *TaskHandler) HandleNextTask(w http.ResponseWriter, r *http.Request) {
	const op = "api.next_task"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	view, ok, err := h.deps.RequestTask(r.Context(), callerFrom(r))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleActiveTasks handles GET /api/tasks/active requests.
func (h *TaskHandler) HandleActiveTasks(w http.ResponseWriter, r *http.Request) {
	const op = "api.active_tasks"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	views, err := h.deps.ActiveTasks(r.Context(), callerFrom(r))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type addTaskRequest struct {
	ImageRef   string  `json:"image_ref"`
	Categories string  `json:"categories"`
	Bounty     float64 `json:"bounty"`
}

func (t addTaskRequest) validate() error {
	switch {
	case strings.TrimSpace(t.ImageRef) == "":
		return errors.New("missing image_ref")
	case strings.TrimSpace(t.Categories) == "":
		return errors.New("missing categories")
	}
	return nil
}

// HandleAddTask handles POST /api/tasks requests.
func (h *TaskHandler) HandleAddTask(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_task"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req addTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	view, err := h.deps.AddTask(r.Context(), callerFrom(r), req.ImageRef, req.Categories, req.Bounty)
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type addUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u addUserRequest) validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("missing username")
	}
	switch model.Role(u.Role) {
	case model.RoleAdmin, model.RoleAnnotator:
		return nil
	}
	return errors.New("role must be admin or annotator")
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// HandleAddUser handles POST /api/admin/users requests.
func (h *TaskHandler) HandleAddUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_user"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	user, err := h.deps.AddUser(r.Context(), callerFrom(r), req.Username, model.Role(req.Role))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
}
