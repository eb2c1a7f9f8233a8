//go:build integration

package jobqueue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestWorker_Integration_ClaimRetryTerminal(t *testing.T) {
	dsn := os.Getenv("JOBQUEUE_TEST_DSN")
	if dsn == "" {
		t.Skip("JOBQUEUE_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto;`); err != nil {
		t.Fatalf("create extension: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS background_jobs`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	createSQL := `
CREATE TABLE background_jobs (
  id               UUID        NOT NULL DEFAULT gen_random_uuid(),
  tenant_id        UUID        NOT NULL,
  kind             VARCHAR(100) NOT NULL,
  payload          JSONB       NOT NULL DEFAULT '{}',
  status           VARCHAR(20) NOT NULL DEFAULT 'pending',
  attempts         INT         NOT NULL DEFAULT 0,
  progress         JSONB       NULL,
  result           JSONB       NULL,
  last_error       TEXT        NULL,
  cancel_requested BOOLEAN     NOT NULL DEFAULT false,
  available_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  locked_at        TIMESTAMPTZ NULL,
  completed_at     TIMESTAMPTZ NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT background_jobs_pkey PRIMARY KEY (id)
);
`
	if _, err := pool.Exec(ctx, createSQL); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS background_jobs`)
	})

	tenantID := uuid.New()

	q, err := NewQueue(pool)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	okID, err := q.Enqueue(ctx, NewJob{TenantID: tenantID, Kind: "ok", Payload: map[string]string{"hello": "world"}})
	if err != nil {
		t.Fatalf("enqueue ok: %v", err)
	}
	poisonID, err := q.Enqueue(ctx, NewJob{TenantID: tenantID, Kind: "poison"})
	if err != nil {
		t.Fatalf("enqueue poison: %v", err)
	}
	flakyID, err := q.Enqueue(ctx, NewJob{TenantID: tenantID, Kind: "flaky"})
	if err != nil {
		t.Fatalf("enqueue flaky: %v", err)
	}

	w, err := NewWorker(pool, Options{
		BatchSize:              10,
		MaxAttempts:            2,
		ClaimTimeout:           1 * time.Second,
		MaxBackoff:             1 * time.Millisecond,
		JitterMax:              1 * time.Nanosecond,
		ObserveQueueDepthEvery: 1 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	mustRegister := func(kind string, h HandlerFunc) {
		t.Helper()
		if err := w.Register(kind, h); err != nil {
			t.Fatalf("register %s: %v", kind, err)
		}
	}
	mustRegister("ok", func(ctx context.Context, job *Context) error {
		if err := job.UpdateProgress(ctx, 1, 1, "done"); err != nil {
			return err
		}
		return job.SetResult(ctx, map[string]int{"created": 1})
	})
	mustRegister("poison", func(ctx context.Context, job *Context) error {
		return Terminal(errors.New("upstream rejected the request"))
	})
	mustRegister("flaky", func(ctx context.Context, job *Context) error {
		return errors.New("transient")
	})

	if err := w.processOnce(ctx, nil); err != nil {
		t.Fatalf("processOnce 1: %v", err)
	}

	okJob, err := q.Get(ctx, tenantID, okID)
	if err != nil {
		t.Fatalf("get ok: %v", err)
	}
	if okJob.Status != StatusCompleted {
		t.Fatalf("ok status: got %s", okJob.Status)
	}
	if len(okJob.Result) == 0 {
		t.Fatal("ok result not persisted")
	}
	if len(okJob.Progress) == 0 {
		t.Fatal("ok progress not persisted")
	}

	poisonJob, err := q.Get(ctx, tenantID, poisonID)
	if err != nil {
		t.Fatalf("get poison: %v", err)
	}
	if poisonJob.Status != StatusFailed {
		t.Fatalf("poison status: got %s after one attempt", poisonJob.Status)
	}
	if poisonJob.Attempts != 1 {
		t.Fatalf("poison attempts: got %d", poisonJob.Attempts)
	}
	if poisonJob.LastError == "" {
		t.Fatal("poison last_error not recorded")
	}

	flakyJob, err := q.Get(ctx, tenantID, flakyID)
	if err != nil {
		t.Fatalf("get flaky: %v", err)
	}
	if flakyJob.Status != StatusPending {
		t.Fatalf("flaky status: got %s, want pending for retry", flakyJob.Status)
	}
	if flakyJob.Attempts != 1 {
		t.Fatalf("flaky attempts: got %d", flakyJob.Attempts)
	}

	// Bring the retry forward instead of waiting out the backoff.
	if _, err := pool.Exec(ctx, `UPDATE background_jobs SET available_at = now() WHERE id = $1`, flakyID); err != nil {
		t.Fatalf("fast-forward: %v", err)
	}
	if err := w.processOnce(ctx, nil); err != nil {
		t.Fatalf("processOnce 2: %v", err)
	}

	flakyJob, err = q.Get(ctx, tenantID, flakyID)
	if err != nil {
		t.Fatalf("get flaky: %v", err)
	}
	if flakyJob.Status != StatusFailed {
		t.Fatalf("flaky status: got %s after max attempts", flakyJob.Status)
	}
	if flakyJob.Attempts != 2 {
		t.Fatalf("flaky attempts: got %d", flakyJob.Attempts)
	}

	t.Run("cancel flag round-trips", func(t *testing.T) {
		id, err := q.Enqueue(ctx, NewJob{TenantID: tenantID, Kind: "slow", RunAt: time.Now().Add(time.Hour)})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		if err := q.RequestCancel(ctx, tenantID, id); err != nil {
			t.Fatalf("request cancel: %v", err)
		}

		job, err := q.Get(ctx, tenantID, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !job.CancelRequested {
			t.Fatal("cancel flag not set")
		}

		jc := &Context{ID: id, TenantID: tenantID, pool: pool}
		if !jc.IsCancelled(ctx) {
			t.Fatal("IsCancelled should see the flag")
		}

		if err := q.RequestCancel(ctx, tenantID, uuid.New()); !errors.Is(err, ErrJobNotFound) {
			t.Fatalf("expected ErrJobNotFound, got %v", err)
		}
	})
}
