// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	engine "github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/app"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RequestTask(ctx context.Context, caller engine.Caller) (types.TaskView, bool, error)
	SubmitAnnotation(ctx context.Context, caller engine.Caller, taskID, label string) (model.Annotation, error)
	Stats(ctx context.Context, caller engine.Caller) (types.Stats, error)
	History(ctx context.Context, caller engine.Caller) ([]types.HistoryEntry, error)
	ReviewQueue(ctx context.Context, caller engine.Caller) ([]types.TaskView, error)
	ResolveConflict(ctx context.Context, caller engine.Caller, taskID, truthLabel string) error
	UnpaidUsers(ctx context.Context, caller engine.Caller) ([]types.UnpaidUser, error)
	RunPayroll(ctx context.Context, caller engine.Caller) (float64, error)
	ActiveTasks(ctx context.Context, caller engine.Caller) ([]types.TaskView, error)
	AddTask(ctx context.Context, caller engine.Caller, imageRef, categories string, bounty float64) (types.TaskView, error)
	AddUser(ctx context.Context, caller engine.Caller, username string, role model.Role) (model.User, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	taskHandler       *TaskHandler
	annotationHandler *AnnotationHandler
	reviewHandler     *ReviewHandler
	payrollHandler    *PayrollHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps, statsProvider),
		taskHandler:       NewTaskHandler(deps),
		annotationHandler: NewAnnotationHandler(deps),
		reviewHandler:     NewReviewHandler(deps),
		payrollHandler:    NewPayrollHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleEngineStats, "engine_stats"))
	mux.HandleFunc("/api/tasks/next", MetricsMiddleware(s.taskHandler.HandleNextTask, "next_task"))
	mux.HandleFunc("/api/tasks/active", MetricsMiddleware(s.taskHandler.HandleActiveTasks, "active_tasks"))
	mux.HandleFunc("/api/tasks", MetricsMiddleware(s.taskHandler.HandleAddTask, "add_task"))
	mux.HandleFunc("/api/annotations", MetricsMiddleware(s.annotationHandler.HandleSubmit, "submit_annotation"))
	mux.HandleFunc("/api/stats", MetricsMiddleware(s.statsHandler.HandleUserStats, "user_stats"))
	mux.HandleFunc("/api/history", MetricsMiddleware(s.statsHandler.HandleHistory, "history"))
	mux.HandleFunc("/api/admin/reviews", MetricsMiddleware(s.reviewHandler.HandleReviewQueue, "review_queue"))
	mux.HandleFunc("/api/admin/resolve", MetricsMiddleware(s.reviewHandler.HandleResolve, "resolve_conflict"))
	mux.HandleFunc("/api/admin/unpaid", MetricsMiddleware(s.payrollHandler.HandleUnpaid, "unpaid_users"))
	mux.HandleFunc("/api/admin/payroll", MetricsMiddleware(s.payrollHandler.HandleRunPayroll, "run_payroll"))
	mux.HandleFunc("/api/admin/users", MetricsMiddleware(s.taskHandler.HandleAddUser, "add_user"))
}

// Caller identity headers. Session auth is an upstream concern; the
// engine trusts these the way it would trust a decoded session.
const (
	headerCallerID   = "X-Caller-Id"
	headerCallerRole = "X-Caller-Role"
)

// callerFrom extracts the caller identity from trusted request headers.
func callerFrom(r *http.Request) engine.Caller {
	return engine.Caller{
		ID:   r.Header.Get(headerCallerID),
		Role: model.Role(r.Header.Get(headerCallerRole)),
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, engine.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", Wrap(op, err))
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, engine.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, "duplicate_submission", Wrap(op, err))
	case errors.Is(err, engine.ErrTaskClosed):
		writeError(w, http.StatusConflict, "task_closed", Wrap(op, err))
	case errors.Is(err, engine.ErrNotInConflict):
		writeError(w, http.StatusConflict, "not_in_conflict", Wrap(op, err))
	case errors.Is(err, engine.ErrNotAssigned):
		writeError(w, http.StatusConflict, "not_assigned", Wrap(op, err))
	case errors.Is(err, engine.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", Wrap(op, err))
	case errors.Is(err, engine.ErrInvalidLabel):
		writeError(w, http.StatusBadRequest, "invalid_label", Wrap(op, err))
	case errors.Is(err, engine.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// annotationResponse mirrors the wire shape for a created annotation.
type annotationResponse struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	TaskID    string   `json:"task_id"`
	Label     string   `json:"label"`
	IsCorrect *bool    `json:"is_correct"`
	Payment   *float64 `json:"payment"`
	CreatedAt string   `json:"created_at"`
}
