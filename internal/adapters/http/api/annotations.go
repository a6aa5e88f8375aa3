package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// AnnotationHandler handles label submission requests.
type AnnotationHandler struct {
	deps Dependencies
}

// NewAnnotationHandler creates a new annotation handler.
func NewAnnotationHandler(deps Dependencies) *AnnotationHandler {
	return &AnnotationHandler{deps: deps}
}

type submitRequest struct {
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
}

func (s submitRequest) validate() error {
	switch {
	case strings.TrimSpace(s.TaskID) == "":
		return errors.New("missing task_id")
	case strings.TrimSpace(s.Label) == "":
		return errors.New("missing label")
	}
	return nil
}

// HandleSubmit handles POST /api/annotations requests.
func (h *AnnotationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_annotation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ann, err := h.deps.SubmitAnnotation(r.Context(), callerFrom(r), req.TaskID, req.Label)
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, annotationResponse{
		ID:        ann.ID,
		UserID:    ann.UserID,
		TaskID:    ann.TaskID,
		Label:     ann.Label,
		IsCorrect: ann.IsCorrect,
		Payment:   ann.Payment,
		CreatedAt: ann.CreatedAt.Format(time.RFC3339),
	})
}
