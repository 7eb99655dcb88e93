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

func (d *DB) CreateJob(ctx context.Context, j *store.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = "PENDING"
	}

	args := normalizeJSON(j.Arguments, "{}")

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO jobs
			(id, user_id, tool_name, arguments, status, result, error,
			 request_id, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.ToolName, args, j.Status, nullableJSON(j.Result), j.Error,
		j.RequestID, formatTime(j.CreatedAt), formatTimePtr(j.CompletedAt),
	)
	return err
}

func (d *DB) GetJob(ctx context.Context, id string) (*store.Job, error) {
	row := d.q.QueryRowContext(ctx, jobSelect+" WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return j, err
}

func (d *DB) UpdateJob(ctx context.Context, j *store.Job) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		j.Status, nullableJSON(j.Result), j.Error, formatTimePtr(j.CompletedAt), j.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (d *DB) ReapJobs(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM jobs WHERE created_at < ?`, formatTime(olderThan))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const jobSelect = `SELECT
	id, user_id, tool_name, arguments, status, result, error,
	request_id, created_at, completed_at
	FROM jobs`

func scanJob(row *sql.Row) (*store.Job, error) {
	var j store.Job
	var args string
	var result sql.NullString
	var errMsg sql.NullString
	var requestID sql.NullString
	var createdAt string
	var completedAt sql.NullString

	err := row.Scan(
		&j.ID, &j.UserID, &j.ToolName, &args, &j.Status, &result, &errMsg,
		&requestID, &createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Arguments = json.RawMessage(args)
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	j.Error = errMsg.String
	j.RequestID = requestID.String
	j.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		j.CompletedAt = &t
	}
	return &j, nil
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
