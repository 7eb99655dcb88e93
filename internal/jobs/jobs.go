// Package jobs implements the asynchronous tool-invocation path: a job is
// persisted PENDING, then driven through RUNNING to a terminal state by a
// background task that reuses the synchronous gateway service.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/gateway"
	"github.com/revittco/toolgw/internal/store"
)

// Runner submits and drives async jobs.
type Runner struct {
	store   store.JobStore
	service *gateway.Service
}

func NewRunner(s store.JobStore, svc *gateway.Service) *Runner {
	return &Runner{store: s, service: svc}
}

// Submit creates a PENDING job and schedules background execution. It
// returns immediately with the persisted job record; the caller responds
// 202 with it.
func (r *Runner) Submit(ctx context.Context, user auth.AuthenticatedUser, toolName string, arguments json.RawMessage, requestID string) (*store.Job, error) {
	job := &store.Job{
		ID:        uuid.NewString(),
		UserID:    user.Claims.UserID,
		ToolName:  toolName,
		Arguments: arguments,
		Status:    "PENDING",
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	// The background task does not inherit the request context; the
	// request has already responded by the time this runs, so it gets a fresh
	// context.Background() here, matching the "fresh session/client"
	// requirement for the task's own resources.
	go r.process(context.Background(), job.ID, user, toolName, arguments, requestID)

	return job, nil
}

func (r *Runner) process(ctx context.Context, jobID string, user auth.AuthenticatedUser, toolName string, arguments json.RawMessage, requestID string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job task panicked", "job_id", jobID, "panic", rec)
			r.failJob(ctx, jobID, "internal error")
		}
	}()

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("job task: reload failed", "job_id", jobID, "error", err)
		return
	}
	job.Status = "RUNNING"
	if err := r.store.UpdateJob(ctx, job); err != nil {
		slog.Error("job task: mark running failed", "job_id", jobID, "error", err)
		return
	}

	reqID := requestID
	if reqID == "" {
		reqID = jobID
	}

	resp, err := r.service.Invoke(ctx, user, gateway.InvokeRequest{
		RequestID:    reqID,
		ToolName:     toolName,
		Arguments:    arguments,
		EndpointPath: "/mcp/jobs",
	})
	if err != nil {
		r.failJob(ctx, jobID, err.Error())
		return
	}
	if resp.Error != nil {
		r.failJob(ctx, jobID, resp.Error.Message)
		return
	}

	r.completeJob(ctx, jobID, resp.Result)
}

func (r *Runner) completeJob(ctx context.Context, jobID string, result json.RawMessage) {
	now := time.Now().UTC()
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("job task: reload for completion failed", "job_id", jobID, "error", err)
		return
	}
	job.Status = "COMPLETED"
	job.Result = result
	job.CompletedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		// Matches the original's "log critical and drop": the invocation
		// already completed, there is nothing further to escalate to.
		slog.Error("job task: status update failed after completion", "job_id", jobID, "error", err)
	}
}

func (r *Runner) failJob(ctx context.Context, jobID, message string) {
	now := time.Now().UTC()
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("job task: reload for failure failed", "job_id", jobID, "error", err)
		return
	}
	job.Status = "FAILED"
	job.Error = message
	job.CompletedAt = &now
	if err := r.store.UpdateJob(ctx, job); err != nil {
		slog.Error("job task: status update failed after failure", "job_id", jobID, "error", err)
	}
}

// Reap deletes jobs older than the given age, returning the count removed.
func (r *Runner) Reap(ctx context.Context, olderThan time.Duration) (int, error) {
	return r.store.ReapJobs(ctx, time.Now().UTC().Add(-olderThan))
}
