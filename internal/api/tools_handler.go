package api

import (
	"net/http"

	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/registry"
)

type toolsHandler struct {
	registry *registry.Registry
	policy   *policy.Engine
}

// list implements GET /mcp/tools: the user-scoped, endpoint-unscoped tool
// listing kept for legacy REST clients.
func (h *toolsHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r)
	if !ok {
		writeGatewayError(w, gwerr.New(gwerr.InvalidToken, "missing authenticated user"))
		return
	}

	tools, err := h.registry.ListForUser(r.Context(), h.policy, user)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
