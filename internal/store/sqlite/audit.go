package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/toolgw/internal/store"
)

func (d *DB) InsertAuditLog(ctx context.Context, r *store.AuditLog) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, timestamp, request_id, user_id, tool_name, endpoint_path,
			 status, duration_ms, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.Timestamp), r.RequestID, r.UserID, r.ToolName, r.EndpointPath,
		r.Status, r.DurationMs, r.ErrorCode, r.ErrorMessage, formatTime(r.CreatedAt),
	)
	return err
}

func (d *DB) QueryAuditLogs(ctx context.Context, f store.AuditFilter) ([]store.AuditLog, int, error) {
	where, args := buildAuditWhere(f)

	var total int
	countQ := "SELECT COUNT(*) FROM audit_logs" + where
	if err := d.q.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	dataQ := "SELECT id, timestamp, request_id, user_id, tool_name, endpoint_path, " +
		"status, duration_ms, error_code, error_message, created_at FROM audit_logs" +
		where + " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	dataArgs := append(append([]any{}, args...), limit, f.Offset)

	rows, err := d.q.QueryContext(ctx, dataQ, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.AuditLog
	for rows.Next() {
		r, err := scanAuditRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func buildAuditWhere(f store.AuditFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ToolName != nil {
		clauses = append(clauses, "tool_name = ?")
		args = append(args, *f.ToolName)
	}
	if f.EndpointPath != nil {
		clauses = append(clauses, "endpoint_path = ?")
		args = append(args, *f.EndpointPath)
	}
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *f.Status)
	}
	if f.StartTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, formatTime(*f.StartTime))
	}
	if f.EndTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, formatTime(*f.EndTime))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanAuditRow(row rowScanner) (*store.AuditLog, error) {
	var r store.AuditLog
	var timestamp, createdAt string
	var errCode, errMsg sql.NullString

	err := row.Scan(
		&r.ID, &timestamp, &r.RequestID, &r.UserID, &r.ToolName, &r.EndpointPath,
		&r.Status, &r.DurationMs, &errCode, &errMsg, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Timestamp = parseTime(timestamp)
	r.CreatedAt = parseTime(createdAt)
	r.ErrorCode = errCode.String
	r.ErrorMessage = errMsg.String
	return &r, nil
}
