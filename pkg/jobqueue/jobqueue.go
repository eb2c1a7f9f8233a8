// Package jobqueue runs tenant-scoped background jobs off a Postgres table.
// A Queue enqueues work and answers pollers; a Worker claims due jobs with
// FOR UPDATE SKIP LOCKED and dispatches them to per-kind handlers. Failed
// handlers are retried with capped exponential backoff until MaxAttempts,
// unless the error is marked Terminal. Handlers report progress, results and
// cancellation through the job Context; progress updates double as lock
// heartbeats so long imports are not re-claimed as stale.
package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobsTable = "background_jobs"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one row of the jobs table as pollers see it.
type Job struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Kind            string
	Payload         json.RawMessage
	Status          Status
	Attempts        int
	Progress        json.RawMessage
	Result          json.RawMessage
	LastError       string
	CancelRequested bool
	AvailableAt     time.Time
	LockedAt        *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// Progress is the shape handlers write and pollers read.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase,omitempty"`
}

// NewJob describes work to enqueue. Payload is marshalled to JSON; a zero
// RunAt means immediately.
type NewJob struct {
	TenantID uuid.UUID
	Kind     string
	Payload  any
	RunAt    time.Time
}

type Handler interface {
	Handle(ctx context.Context, job *Context) error
}

type HandlerFunc func(ctx context.Context, job *Context) error

func (f HandlerFunc) Handle(ctx context.Context, job *Context) error {
	return f(ctx, job)
}

// Context is the handler's handle on the claimed job. A detached Context
// (one not built by a worker, so without a queue row behind it) drops
// progress and result writes and never reports a cancel.
type Context struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Kind     string
	Payload  json.RawMessage
	Attempts int

	pool *pgxpool.Pool
}

// UnmarshalPayload decodes the job payload into v.
func (c *Context) UnmarshalPayload(v any) error {
	return json.Unmarshal(c.Payload, v)
}

// UpdateProgress persists the job's progress and refreshes the claim lock.
// Best effort: a write failure never fails the job, the next update or the
// final status write will catch up.
func (c *Context) UpdateProgress(ctx context.Context, current, total int, phase string) error {
	if c.pool == nil {
		return nil
	}
	raw, err := json.Marshal(Progress{Current: current, Total: total, Phase: phase})
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx,
		`UPDATE `+jobsTable+` SET progress = $2, locked_at = now() WHERE id = $1`,
		c.ID, raw,
	)
	return err
}

// SetResult stores the job's result object for pollers.
func (c *Context) SetResult(ctx context.Context, result any) error {
	if c.pool == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx,
		`UPDATE `+jobsTable+` SET result = $2 WHERE id = $1`,
		c.ID, raw,
	)
	return err
}

// IsCancelled polls the job's cancel flag. Errors read as "not cancelled"
// so a flaky connection cannot abort a healthy run.
func (c *Context) IsCancelled(ctx context.Context) bool {
	if c.pool == nil {
		return false
	}
	var cancelled bool
	err := c.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM `+jobsTable+` WHERE id = $1`,
		c.ID,
	).Scan(&cancelled)
	if err != nil {
		return false
	}
	return cancelled
}
