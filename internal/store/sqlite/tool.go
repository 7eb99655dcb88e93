package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/toolgw/internal/store"
)

func (d *DB) CreateTool(ctx context.Context, t *store.Tool) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	requiredRoles := normalizeJSON(marshalStrings(t.RequiredRoles), "[]")
	categories := normalizeJSON(marshalStrings(t.Categories), "[]")
	schema := normalizeJSON(t.InputSchema, "null")

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO tools
			(id, name, description, backend_url, scope, risk_level,
			 required_roles, categories, input_schema, is_active,
			 usage_count, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.BackendURL, t.Scope, t.RiskLevel,
		requiredRoles, categories, schema, boolToInt(t.IsActive),
		t.UsageCount, formatTimePtr(t.LastUsedAt), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return mapConstraintError(err)
}

func (d *DB) GetTool(ctx context.Context, id string) (*store.Tool, error) {
	row := d.q.QueryRowContext(ctx, toolSelect+" WHERE id = ?", id)
	return scanTool(row)
}

func (d *DB) GetToolByName(ctx context.Context, name string) (*store.Tool, error) {
	row := d.q.QueryRowContext(ctx, toolSelect+" WHERE name = ?", name)
	return scanTool(row)
}

func (d *DB) ListTools(ctx context.Context) ([]store.Tool, error) {
	return d.listTools(ctx, toolSelect+" ORDER BY name")
}

func (d *DB) ListActiveTools(ctx context.Context) ([]store.Tool, error) {
	return d.listTools(ctx, toolSelect+" WHERE is_active = 1 ORDER BY name")
}

func (d *DB) listTools(ctx context.Context, query string) ([]store.Tool, error) {
	rows, err := d.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Tool
	for rows.Next() {
		t, err := scanToolRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (d *DB) UpdateTool(ctx context.Context, t *store.Tool) error {
	t.UpdatedAt = time.Now().UTC()

	requiredRoles := normalizeJSON(marshalStrings(t.RequiredRoles), "[]")
	categories := normalizeJSON(marshalStrings(t.Categories), "[]")
	schema := normalizeJSON(t.InputSchema, "null")

	res, err := d.q.ExecContext(ctx, `
		UPDATE tools SET
			description = ?, backend_url = ?, scope = ?, risk_level = ?,
			required_roles = ?, categories = ?, input_schema = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`,
		t.Description, t.BackendURL, t.Scope, t.RiskLevel,
		requiredRoles, categories, schema,
		boolToInt(t.IsActive), formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return checkRowsAffected(res)
}

func (d *DB) DeactivateTool(ctx context.Context, name string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE tools SET is_active = 0, updated_at = ? WHERE name = ?`,
		formatTime(time.Now().UTC()), name,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) IncrementToolUsage(ctx context.Context, id string, at time.Time) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE tools SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		formatTime(at), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

const toolSelect = `SELECT
	id, name, description, backend_url, scope, risk_level,
	required_roles, categories, input_schema, is_active,
	usage_count, last_used_at, created_at, updated_at
	FROM tools`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row *sql.Row) (*store.Tool, error) {
	t, err := scanToolRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func scanToolRow(row rowScanner) (*store.Tool, error) {
	var t store.Tool
	var requiredRoles, categories string
	var schema sql.NullString
	var isActive int
	var lastUsedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.BackendURL, &t.Scope, &t.RiskLevel,
		&requiredRoles, &categories, &schema, &isActive,
		&t.UsageCount, &lastUsedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.RequiredRoles = unmarshalStrings(requiredRoles)
	t.Categories = unmarshalStrings(categories)
	if schema.Valid && schema.String != "null" && schema.String != "" {
		t.InputSchema = json.RawMessage(schema.String)
	}
	t.IsActive = isActive != 0
	if lastUsedAt.Valid {
		ts := parseTime(lastUsedAt.String)
		t.LastUsedAt = &ts
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func marshalStrings(ss []string) json.RawMessage {
	if ss == nil {
		return nil
	}
	b, _ := json.Marshal(ss)
	return b
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
