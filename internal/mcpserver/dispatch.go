package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revittco/toolgw/internal/audit"
	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/gateway"
	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/ratelimit"
	"github.com/revittco/toolgw/internal/registry"
)

// AllowedScopes are the fixed endpoint labels partitioning the tool catalog.
var AllowedScopes = map[string]bool{
	"calculator": true,
	"git":        true,
	"docs":       true,
}

// metaTools were removed in v2: calling either responds MetaToolRemoved;
// neither is ever present in a scoped tools/list.
var metaTools = map[string]bool{
	"find_tools": true,
	"call_tool":  true,
}

// ValidScope reports whether scope is one of the fixed endpoint literals.
func ValidScope(scope string) bool {
	return AllowedScopes[scope]
}

// Dispatcher handles one scope's JSON-RPC message channel.
type Dispatcher struct {
	registry *registry.Registry
	policy   *policy.Engine
	gateway  *gateway.Service
	limiter  *ratelimit.Limiter
	audit    *audit.Recorder
	appName  string
	version  string
}

func NewDispatcher(reg *registry.Registry, pol *policy.Engine, gw *gateway.Service, lim *ratelimit.Limiter, rec *audit.Recorder, appName, version string) *Dispatcher {
	return &Dispatcher{registry: reg, policy: pol, gateway: gw, limiter: lim, audit: rec, appName: appName, version: version}
}

// Outcome is the result of dispatching one message. Response is nil for a
// notification (no reply expected). RateLimited is set only when the
// tools/call rate-limit probe denied the request; the transport maps that
// to HTTP 429 with a Retry-After header instead of a JSON-RPC envelope.
type Outcome struct {
	Response    *Response
	RateLimited *ratelimit.Result
}

// Dispatch handles a single inbound JSON-RPC message for the given scope
// and user.
func (d *Dispatcher) Dispatch(ctx context.Context, scope string, user auth.AuthenticatedUser, raw []byte) Outcome {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Outcome{Response: errorResponse(nil, -32700, "invalid JSON: "+err.Error())}
	}

	if req.ID == nil {
		d.handleNotification(req)
		return Outcome{}
	}

	switch req.Method {
	case "initialize":
		return Outcome{Response: resultResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    capabilities{Tools: toolsCapability{ListChanged: false}},
			ServerInfo:      serverInfo{Name: d.appName, Version: d.version},
		})}
	case "tools/list":
		return Outcome{Response: d.handleToolsList(ctx, req.ID, scope, user)}
	case "tools/call":
		return d.handleToolsCall(ctx, req.ID, scope, user, req.Params)
	default:
		return Outcome{Response: errorResponse(req.ID, -32601, fmt.Sprintf("unknown method: %s", req.Method))}
	}
}

func (d *Dispatcher) handleNotification(req Request) {
	// "notifications/initialized" is acknowledged implicitly by returning
	// no body; no other notification carries gateway-side behavior.
	_ = req
}

func (d *Dispatcher) handleToolsList(ctx context.Context, id json.RawMessage, scope string, user auth.AuthenticatedUser) *Response {
	tools, err := d.registry.ListForUserInScope(ctx, d.policy, user, scope)
	if err != nil {
		return errorResponse(id, -32603, "failed to list tools")
	}
	out := make([]toolDescriptor, 0, len(tools))
	for _, t := range tools {
		if metaTools[t.Name] {
			continue
		}
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return resultResponse(id, toolsListResult{Tools: out})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, id json.RawMessage, scope string, user auth.AuthenticatedUser, rawParams json.RawMessage) Outcome {
	var params toolCallParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return Outcome{Response: errorResponse(id, -32602, "invalid params: "+err.Error())}
	}

	endpointPath := "/" + scope + "/sse"

	if metaTools[params.Name] {
		return Outcome{Response: errorResponse(id, -32012, "meta-tool removed in v2")}
	}

	limit := d.limiter.Check(user.Claims.UserID, params.Name)
	if !limit.Allowed {
		d.audit.LogDenied(ctx, user.Claims.UserID, params.Name, endpointPath, "RATE_LIMITED")
		return Outcome{RateLimited: &limit}
	}

	tool, err := d.registry.GetActiveTool(ctx, params.Name)
	if err != nil {
		d.audit.LogDenied(ctx, user.Claims.UserID, params.Name, endpointPath, "TOOL_NOT_FOUND")
		notFound := gwerr.New(gwerr.ToolNotFound, "tool %q not found", params.Name)
		code, _ := notFound.RPCCode()
		return Outcome{Response: errorResponse(id, code, notFound.Message)}
	}
	if tool.Scope != scope {
		d.audit.LogDenied(ctx, user.Claims.UserID, params.Name, endpointPath, "TOOL_NOT_IN_SCOPE")
		return Outcome{Response: errorResponse(id, -32011, "tool not in scope")}
	}

	resp, err := d.gateway.Invoke(ctx, user, gateway.InvokeRequest{
		RequestID:    idAsString(id),
		ToolName:     params.Name,
		Arguments:    params.Arguments,
		EndpointPath: endpointPath,
	})
	if err != nil {
		if ge, ok := err.(*gwerr.Error); ok {
			if ge.Code == gwerr.ToolNotAllowed {
				return Outcome{Response: errorResponse(id, -32011, ge.Message)}
			}
			if code, ok := ge.RPCCode(); ok {
				return Outcome{Response: errorResponse(id, code, ge.Message)}
			}
		}
		return Outcome{Response: errorResponse(id, -32603, "internal error")}
	}
	if resp.Error != nil {
		return Outcome{Response: &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}}}
	}

	return Outcome{Response: &Response{JSONRPC: "2.0", ID: id, Result: callResultEnvelope(resp.Result)}}
}

// callResultEnvelope passes a backend result through when it already has
// the tools/call content shape, and wraps anything else as a single text
// content block.
func callResultEnvelope(result json.RawMessage) json.RawMessage {
	var probe struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(result, &probe); err == nil && probe.Content != nil {
		return result
	}
	wrapped, err := json.Marshal(toolCallResult{
		Content: []toolCallContent{{Type: "text", Text: string(result)}},
		IsError: false,
	})
	if err != nil {
		return result
	}
	return wrapped
}

func idAsString(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}
