// Package proxy forwards validated tool calls to backend URLs over HTTP,
// attaching the gateway shared secret and mapping transport failures to
// the gateway's error taxonomy.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/revittco/toolgw/internal/gwerr"
)

// Proxy forwards JSON-RPC tool calls to backend URLs, sharing one HTTP
// client (and its connection pool) across all forward calls.
type Proxy struct {
	client       *http.Client
	sharedSecret string
}

func New(sharedSecret string, timeout time.Duration) *Proxy {
	return &Proxy{
		client:       &http.Client{Timeout: timeout},
		sharedSecret: sharedSecret,
	}
}

// Request is a JSON-RPC tools/call forward request.
type Request struct {
	BackendURL string
	RequestID  string
	UserID     string
	ToolName   string
	Arguments  json.RawMessage
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      string    `json:"id"`
}

type rpcParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is the parsed JSON-RPC response from a backend.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error envelope, surfaced as-is from a backend
// (never mapped to a gateway BackendError) when the HTTP call itself
// succeeded.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ForwardToolCall forwards a tools/call invocation to the backend. The
// gateway shared secret must be configured; an empty secret is a fatal,
// fail-closed BackendError rather than a silently-unauthenticated call.
func (p *Proxy) ForwardToolCall(ctx context.Context, req Request) (*Response, error) {
	if p.sharedSecret == "" {
		return nil, gwerr.Backend("GATEWAY_MISCONFIGURED", "gateway shared secret not configured")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  rpcParams{Name: req.ToolName, Arguments: req.Arguments},
		ID:      req.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tool call: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.BackendURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)
	httpReq.Header.Set("X-Gateway-Auth", p.sharedSecret)
	if req.UserID != "" {
		httpReq.Header.Set("X-User-ID", req.UserID)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerr.New(gwerr.BackendUnavailable, "read backend response: %s", err.Error())
	}

	if resp.StatusCode >= 400 {
		return nil, gwerr.Backend(fmt.Sprintf("HTTP_%d", resp.StatusCode), "%s", truncate(string(respBody), 200))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, gwerr.New(gwerr.BackendUnavailable, "invalid backend response body")
	}
	return &parsed, nil
}

func mapTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return gwerr.New(gwerr.BackendTimeout, "backend call timed out")
	}
	return gwerr.New(gwerr.BackendUnavailable, "%s", err.Error())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
