package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/revittco/toolgw/internal/store"
)

type auditHandler struct {
	store store.AuditStore
}

type auditLogsResponse struct {
	Items  []store.AuditLog `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// query implements GET /admin/audit-logs: admin-only, filtered and
// paginated, ordered by timestamp desc.
func (h *auditHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		Limit:  100,
		Offset: 0,
	}

	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("tool_name"); v != "" {
		filter.ToolName = &v
	}
	if v := q.Get("endpoint_path"); v != "" {
		filter.EndpointPath = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 1000 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	items, total, err := h.store.QueryAuditLogs(r.Context(), filter)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if items == nil {
		items = []store.AuditLog{}
	}

	writeJSON(w, http.StatusOK, auditLogsResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}
