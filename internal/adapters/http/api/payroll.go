package api

import (
	"net/http"
)

// PayrollHandler handles settlement requests.
type PayrollHandler struct {
	deps Dependencies
}

// NewPayrollHandler creates a new payroll handler.
func NewPayrollHandler(deps Dependencies) *PayrollHandler {
	return &PayrollHandler{deps: deps}
}

// HandleUnpaid handles GET /api/admin/unpaid requests.
func (h *PayrollHandler) HandleUnpaid(w http.ResponseWriter, r *http.Request) {
	const op = "api.unpaid_users"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	unpaid, err := h.deps.UnpaidUsers(r.Context(), callerFrom(r))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, unpaid)
}

type payrollResponse struct {
	TotalPaid float64 `json:"total_paid"`
}

// HandleRunPayroll handles POST /api/admin/payroll requests.
func (h *PayrollHandler) HandleRunPayroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_payroll"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	total, err := h.deps.RunPayroll(r.Context(), callerFrom(r))
	if err != nil {
		writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, payrollResponse{TotalPaid: total})
}
