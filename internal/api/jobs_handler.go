package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/jobs"
	"github.com/revittco/toolgw/internal/store"
)

type jobsHandler struct {
	runner *jobs.Runner
	store  store.JobStore
}

type submitJobRequest struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	RequestID string          `json:"request_id,omitempty"`
}

// submit implements POST /mcp/jobs.
func (h *jobsHandler) submit(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r)
	if !ok {
		writeGatewayError(w, gwerr.New(gwerr.InvalidToken, "missing authenticated user"))
		return
	}

	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeGatewayError(w, gwerr.New(gwerr.InvalidRequest, "invalid request body: %s", err.Error()))
		return
	}
	if req.ToolName == "" {
		writeGatewayError(w, gwerr.New(gwerr.InvalidRequest, "tool_name is required"))
		return
	}

	job, err := h.runner.Submit(r.Context(), user, req.ToolName, req.Arguments, req.RequestID)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// get implements GET /mcp/jobs/{id}: owner-only or admin.
func (h *jobsHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r)
	if !ok {
		writeGatewayError(w, gwerr.New(gwerr.InvalidToken, "missing authenticated user"))
		return
	}

	id := r.PathValue("id")
	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		writeGatewayError(w, gwerr.New(gwerr.NotFound, "job %q not found", id))
		return
	}
	if job.UserID != user.Claims.UserID && !user.Claims.HasRole("admin") {
		writeGatewayError(w, gwerr.New(gwerr.AdminRequired, "not the job owner"))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// reap implements DELETE /mcp/jobs?hours=N, admin-only (enforced by the
// requireAdmin middleware at the route).
func (h *jobsHandler) reap(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	count, err := h.runner.Reap(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reaped": count})
}
