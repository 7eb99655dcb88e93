package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/revittco/toolgw/internal/gwerr"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// plainErrorBody is the {error, message} shape used by non-JSON-RPC routes.
type plainErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeGatewayError renders a *gwerr.Error (or any other error) as a plain
// JSON error body at the error's mapped HTTP status. Messages never carry
// raw JWT contents, backend bodies beyond what gwerr already truncates, or
// stack traces.
func writeGatewayError(w http.ResponseWriter, err error) {
	if ge, ok := err.(*gwerr.Error); ok {
		writeJSON(w, ge.HTTPStatus(), plainErrorBody{Error: string(ge.Code), Message: ge.Message})
		return
	}
	slog.Error("unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, plainErrorBody{Error: "InternalError", Message: "internal server error"})
}

// decodeJSON reads and decodes a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
