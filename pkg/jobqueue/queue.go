package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queue is the producer/poller side of the jobs table.
type Queue struct {
	pool *pgxpool.Pool
	m    *metrics
}

func NewQueue(pool *pgxpool.Pool) (*Queue, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	return &Queue{pool: pool, m: getMetrics()}, nil
}

func (q *Queue) Enqueue(ctx context.Context, job NewJob) (uuid.UUID, error) {
	if job.TenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidConfig)
	}
	if job.Kind == "" {
		return uuid.Nil, fmt.Errorf("%w: kind is required", ErrInvalidConfig)
	}

	payload := json.RawMessage("{}")
	if job.Payload != nil {
		raw, err := json.Marshal(job.Payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("jobqueue enqueue marshal: %w", err)
		}
		payload = raw
	}
	availableAt := job.RunAt
	if availableAt.IsZero() {
		availableAt = time.Now()
	}

	var id uuid.UUID
	err := q.pool.QueryRow(ctx,
		`INSERT INTO `+jobsTable+` (tenant_id, kind, payload, available_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		job.TenantID, job.Kind, payload, availableAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("jobqueue enqueue: %w", err)
	}

	q.m.enqueueTotal.WithLabelValues(job.Kind).Inc()
	return id, nil
}

// Get returns one job scoped by tenant, for status polling.
func (q *Queue) Get(ctx context.Context, tenantID, id uuid.UUID) (*Job, error) {
	row := q.pool.QueryRow(ctx,
		`SELECT id, tenant_id, kind, payload, status, attempts, progress, result,
		        COALESCE(last_error, ''), cancel_requested,
		        available_at, locked_at, completed_at, created_at
		   FROM `+jobsTable+`
		  WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)

	var j Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.Kind, &j.Payload, &j.Status, &j.Attempts,
		&j.Progress, &j.Result, &j.LastError, &j.CancelRequested,
		&j.AvailableAt, &j.LockedAt, &j.CompletedAt, &j.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("jobqueue get: %w", err)
	}
	return &j, nil
}

// RequestCancel flips the cancel flag on an unfinished job. Handlers observe
// it between batches; a job that never polls simply runs to completion.
func (q *Queue) RequestCancel(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE `+jobsTable+`
		    SET cancel_requested = true
		  WHERE tenant_id = $1 AND id = $2 AND status IN ('pending', 'running')`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("jobqueue cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
