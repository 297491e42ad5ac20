package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
	"github.com/Shivanand-hulikatti/regflow/internal/service"
)

// approveRequest is the optional body of the approval endpoints.
type approveRequest struct {
	Author string `json:"author"`
}

type approvalResponse struct {
	Outcome *service.ApprovalOutcome `json:"outcome,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

type approveAllResponse struct {
	Outcomes []service.ApprovalOutcome `json:"outcomes"`
	Error    string                    `json:"error,omitempty"`
}

type jobRunResponse struct {
	Result *escalation.RunResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// ListActionRequests handles GET /action-requests?type=
func (h *Handler) ListActionRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.approvals.ListPending(r.Context(), model.ActionType(r.URL.Query().Get("type")))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list action requests")
		return
	}

	if reqs == nil {
		reqs = []model.ActionRequest{}
	}

	writeJSON(w, http.StatusOK, reqs)
}

// Approve handles POST /action-requests/{id}/approve
// A partially applied approval returns its outcome next to the error so the
// operator can see which side effect already happened.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out, err := h.approvals.Approve(r.Context(), chi.URLParam(r, "id"), req.Author)
	if err != nil {
		if out == nil {
			h.writeServiceError(w, r, err, "failed to approve action request")
			return
		}
		writeJSON(w, statusFor(err), approvalResponse{Outcome: out, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, approvalResponse{Outcome: out})
}

// Reject handles POST /action-requests/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	out, err := h.approvals.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to reject action request")
		return
	}

	writeJSON(w, http.StatusOK, approvalResponse{Outcome: out})
}

// ApproveAll handles POST /action-requests/approve-all?type=
// Requests are processed one at a time; per-request failures are listed and
// do not stop the batch.
func (h *Handler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcomes, err := h.approvals.ApproveAll(r.Context(), model.ActionType(r.URL.Query().Get("type")), req.Author)
	if err != nil && outcomes == nil {
		h.writeServiceError(w, r, err, "failed to approve action requests")
		return
	}

	resp := approveAllResponse{Outcomes: outcomes}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunJob handles POST /jobs/{name}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.Run(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if res == nil {
			h.writeServiceError(w, r, err, "job run failed")
			return
		}
		writeJSON(w, http.StatusInternalServerError, jobRunResponse{Result: res, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, jobRunResponse{Result: res})
}

// ListJobLogs handles GET /job-logs?day=YYYY-MM-DD
// The day defaults to today in UTC.
func (h *Handler) ListJobLogs(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = model.DayKey(time.Now())
	} else if _, err := time.Parse(time.DateOnly, day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be formatted as YYYY-MM-DD")
		return
	}

	entries, err := h.jobs.Logs(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list job logs")
		return
	}

	if entries == nil {
		entries = []model.DailyJobLog{}
	}

	writeJSON(w, http.StatusOK, entries)
}
