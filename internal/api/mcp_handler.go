package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/revittco/toolgw/internal/mcpserver"
)

const sseKeepaliveInterval = 30 * time.Second

type mcpHandler struct {
	dispatcher *mcpserver.Dispatcher
}

// scopeErrorBody is the JSON-RPC-shaped envelope used for protocol-level
// errors that occur outside any single request's id: an invalid scope, or
// a request body that cannot be read.
type scopeErrorBody struct {
	Error mcpserver.RPCError `json:"error"`
}

// requireValidScope rejects any {scope} path value outside the fixed
// endpoint literals with a 404 JSON-RPC envelope.
func requireValidScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mcpserver.ValidScope(r.PathValue("scope")) {
			writeInvalidScope(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sse handles GET /{scope}/sse: emits one "endpoint" event carrying the
// absolute POST URL, followed by a comment-only keepalive ping every 30s
// until the client disconnects.
func (h *mcpHandler) sse(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeGatewayError(w, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	endpointURL := absoluteURL(r, "/"+scope+"/sse")
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpointURL)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ":\n\n")
			flusher.Flush()
		}
	}
}

// message handles POST /{scope}/sse: one JSON-RPC request per call.
func (h *mcpHandler) message(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")

	user, ok := userFromContext(r)
	if !ok {
		writeGatewayError(w, fmt.Errorf("missing authenticated user"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, scopeErrorBody{Error: mcpserver.RPCError{Code: -32700, Message: "failed to read request body"}})
		return
	}

	outcome := h.dispatcher.Dispatch(r.Context(), scope, user, body)

	if outcome.RateLimited != nil {
		retryAfter := int(math.Ceil(outcome.RateLimited.RetryAfter))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, plainErrorBody{Error: "RateLimitExceeded", Message: "rate limit exceeded"})
		return
	}

	if outcome.Response == nil {
		// Notification: no response body.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, outcome.Response)
}

func writeInvalidScope(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, scopeErrorBody{Error: mcpserver.RPCError{Code: -32010, Message: "Invalid endpoint scope"}})
}

func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, path)
}
