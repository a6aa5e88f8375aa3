package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ReviewHandler handles conflict review requests.
type ReviewHandler struct {
	deps Dependencies
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps Dependencies) *ReviewHandler {
	return &ReviewHandler{deps: deps}
}

// HandleReviewQueue handles GET /api/admin/reviews requests.
func (h *ReviewHandler) HandleReviewQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.review_queue"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	views, err := h.deps.ReviewQueue(r.Context(), callerFrom(r))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type resolveRequest struct {
	TaskID     string `json:"task_id"`
	TruthLabel string `json:"truth_label"`
}

func (rr resolveRequest) validate() error {
	switch {
	case strings.TrimSpace(rr.TaskID) == "":
		return errors.New("missing task_id")
	case strings.TrimSpace(rr.TruthLabel) == "":
		return errors.New("missing truth_label")
	}
	return nil
}

type resolveResponse struct {
	TaskID     string `json:"task_id"`
	FinalLabel string `json:"final_label"`
	Status     string `json:"status"`
}

// HandleResolve handles POST /api/admin/resolve requests.
func (h *ReviewHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_conflict"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.ResolveConflict(r.Context(), callerFrom(r), req.TaskID, req.TruthLabel); err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		TaskID:     req.TaskID,
		FinalLabel: req.TruthLabel,
		Status:     "resolved",
	})
}
