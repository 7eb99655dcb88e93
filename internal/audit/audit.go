// Package audit implements the gateway's scoped audit recorder: a
// construct that couples acquisition and guaranteed single persistence on
// exit so callers cannot accidentally skip a row.
package audit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/store"
)

// Recorder persists AuditLog rows and emits a structured log line
// alongside each one.
type Recorder struct {
	store store.AuditStore
}

func NewRecorder(s store.AuditStore) *Recorder {
	return &Recorder{store: s}
}

// Scope is a single invocation's audit context: acquired on invocation
// start, mutated by mark* calls as the outcome becomes known, and
// persisted exactly once when Close runs. It is meant to be deferred in the
// same statement that creates it, so persistence cannot be skipped.
type Scope struct {
	recorder *Recorder

	requestID    string
	userID       string
	toolName     string
	endpointPath string
	start        time.Time

	status       string
	errorCode    string
	errorMessage string
}

// Open starts a new audit scope. requestID, if empty, is a fresh UUID.
// Status defaults to "success"; callers mark a different outcome as it
// becomes known.
func (r *Recorder) Open(requestID, userID, toolName, endpointPath string) *Scope {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Scope{
		recorder:     r,
		requestID:    requestID,
		userID:       userID,
		toolName:     toolName,
		endpointPath: endpointPath,
		start:        time.Now(),
		status:       "success",
	}
}

func (s *Scope) RequestID() string { return s.requestID }

// MarkError sets the scope's outcome to an error with the given code.
func (s *Scope) MarkError(code string) {
	s.status = "error"
	s.errorCode = code
}

// MarkTimeout sets the scope's outcome to a backend timeout.
func (s *Scope) MarkTimeout() {
	s.status = "timeout"
	s.errorCode = "BACKEND_TIMEOUT"
}

// MarkRateLimited sets the scope's outcome to rate-limited.
func (s *Scope) MarkRateLimited() {
	s.status = "rate_limited"
	s.errorCode = "RATE_LIMITED"
}

// MarkFromError inspects a *gwerr.Error and applies the matching mark*
// call, falling back to a generic error mark for anything else.
func (s *Scope) MarkFromError(err error) {
	if err == nil {
		return
	}
	ge, ok := err.(*gwerr.Error)
	if !ok {
		s.MarkError("INTERNAL_ERROR")
		s.errorMessage = err.Error()
		return
	}
	switch ge.Code {
	case gwerr.BackendTimeout:
		s.MarkTimeout()
	case gwerr.RateLimitExceeded:
		s.MarkRateLimited()
	default:
		s.MarkError(ge.AuditErrorCode())
	}
	s.errorMessage = ge.Message
}

// Close computes duration, persists the row, and emits a structured log
// line. Persistence failure is logged but never propagated; it must not
// mask the business outcome that already happened.
func (s *Scope) Close(ctx context.Context) {
	duration := int(math.Floor(time.Since(s.start).Seconds() * 1000))

	rec := &store.AuditLog{
		RequestID:    s.requestID,
		UserID:       s.userID,
		ToolName:     s.toolName,
		EndpointPath: s.endpointPath,
		Status:       s.status,
		DurationMs:   duration,
		ErrorCode:    s.errorCode,
		ErrorMessage: s.errorMessage,
	}

	if err := s.recorder.store.InsertAuditLog(ctx, rec); err != nil {
		slog.Error("audit record persist failed", "request_id", s.requestID, "error", err)
	}

	slog.Info("tool invocation",
		"request_id", s.requestID,
		"user_id", s.userID,
		"tool_name", s.toolName,
		"endpoint_path", s.endpointPath,
		"status", s.status,
		"duration_ms", duration,
		"error_code", s.errorCode,
	)
}

// LogDenied records a rejection that happened before the gateway service
// ran: denied before invocation, not a scoped execution outcome.
func (r *Recorder) LogDenied(ctx context.Context, userID, toolName, endpointPath, errorCode string) {
	rec := &store.AuditLog{
		RequestID:    uuid.NewString(),
		UserID:       userID,
		ToolName:     toolName,
		EndpointPath: endpointPath,
		Status:       "error",
		DurationMs:   0,
		ErrorCode:    errorCode,
	}
	if err := r.store.InsertAuditLog(ctx, rec); err != nil {
		slog.Error("denied audit record persist failed", "user_id", userID, "tool_name", toolName, "error", err)
	}
	slog.Info("tool invocation denied",
		"user_id", userID, "tool_name", toolName, "endpoint_path", endpointPath, "error_code", errorCode)
}
