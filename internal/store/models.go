package store

import (
	"encoding/json"
	"time"
)

// Tool is a named capability routed to a backend URL.
type Tool struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	BackendURL    string          `json:"backend_url"`
	Scope         string          `json:"scope"` // calculator, git, docs
	RiskLevel     string          `json:"risk_level"`
	RequiredRoles []string        `json:"required_roles,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	IsActive      bool            `json:"is_active"`
	UsageCount    int             `json:"usage_count"`
	LastUsedAt    *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AuditLog is a single, append-only audit trail row.
type AuditLog struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	ToolName     string    `json:"tool_name"`
	EndpointPath string    `json:"endpoint_path"`
	Status       string    `json:"status"` // success, error, timeout, rate_limited
	DurationMs   int       `json:"duration_ms"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditFilter specifies query parameters for GET /admin/audit-logs.
type AuditFilter struct {
	UserID       *string    `json:"user_id,omitempty"`
	ToolName     *string    `json:"tool_name,omitempty"`
	EndpointPath *string    `json:"endpoint_path,omitempty"`
	Status       *string    `json:"status,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Limit        int        `json:"limit"`
	Offset       int        `json:"offset"`
}

// Job is an asynchronous tool invocation tracked through to completion.
type Job struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ToolName    string          `json:"tool_name"`
	Arguments   json.RawMessage `json:"arguments"`
	Status      string          `json:"status"` // PENDING, RUNNING, COMPLETED, FAILED
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
