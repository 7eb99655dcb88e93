// Package gateway orchestrates one synchronous tool invocation: payload
// validation, permission and registry checks, backend forwarding, and
// audit persistence.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/revittco/toolgw/internal/audit"
	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/proxy"
	"github.com/revittco/toolgw/internal/registry"
)

const DefaultMaxPayloadBytes = 1024 * 1024

// Service wires the registry, policy engine, proxy, and audit recorder
// into the single invoke operation.
type Service struct {
	registry        *registry.Registry
	policy          *policy.Engine
	proxy           *proxy.Proxy
	audit           *audit.Recorder
	maxPayloadBytes int
}

func NewService(reg *registry.Registry, pol *policy.Engine, prx *proxy.Proxy, rec *audit.Recorder, maxPayloadBytes int) *Service {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Service{registry: reg, policy: pol, proxy: prx, audit: rec, maxPayloadBytes: maxPayloadBytes}
}

// InvokeRequest is one synchronous (or job-background) tool invocation.
type InvokeRequest struct {
	RequestID    string
	ToolName     string
	Arguments    json.RawMessage
	EndpointPath string
}

// Invoke executes the seven-step invocation order inside one audit scope.
// The scope persists its row on every exit path; Invoke never swallows the
// returned error.
func (s *Service) Invoke(ctx context.Context, user auth.AuthenticatedUser, req InvokeRequest) (*proxy.Response, error) {
	scope := s.audit.Open(req.RequestID, user.Claims.UserID, req.ToolName, req.EndpointPath)
	defer scope.Close(ctx)

	resp, err := s.invoke(ctx, user, req, scope)
	if err != nil {
		scope.MarkFromError(err)
		return nil, err
	}
	return resp, nil
}

func (s *Service) invoke(ctx context.Context, user auth.AuthenticatedUser, req InvokeRequest, scope *audit.Scope) (*proxy.Response, error) {
	if len(req.Arguments) > s.maxPayloadBytes {
		return nil, gwerr.New(gwerr.PayloadTooLarge, "payload of %d bytes exceeds limit of %d", len(req.Arguments), s.maxPayloadBytes)
	}

	// A workspace deny is checked before the wildcard allow: "*" never
	// satisfies a name the workspace explicitly denied.
	if user.DeniedTools[req.ToolName] || (!user.AllowedTools[req.ToolName] && !user.HasWildcard()) {
		return nil, gwerr.New(gwerr.ToolNotAllowed, "tool %q not allowed for user %q", req.ToolName, user.Claims.UserID)
	}

	tool, err := s.registry.GetActiveTool(ctx, req.ToolName)
	if err != nil {
		return nil, gwerr.New(gwerr.ToolNotFound, "tool %q not found", req.ToolName)
	}

	// The role gate is any-of over both sources: the registry row's own
	// required_roles and any policy-level gate for the same name.
	if !user.Claims.HasAnyRole(tool.RequiredRoles) || !s.policy.CheckRequiredRoles(user.Claims, tool.Name) {
		return nil, gwerr.New(gwerr.ToolNotAllowed, "tool %q requires a role the user does not hold", tool.Name)
	}

	resp, err := s.proxy.ForwardToolCall(ctx, proxy.Request{
		BackendURL: tool.BackendURL,
		RequestID:  scope.RequestID(),
		UserID:     user.Claims.UserID,
		ToolName:   tool.Name,
		Arguments:  req.Arguments,
	})
	if err != nil {
		return nil, err
	}

	if resp.Error == nil {
		if err := s.registry.IncrementUsage(ctx, tool.ID); err != nil {
			// Usage counting is best-effort; it must not fail the invocation
			// that already succeeded against the backend.
			_ = err
		}
	}

	return resp, nil
}
