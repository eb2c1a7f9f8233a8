package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/worklane/worklane/pkg/composables"
)

var tracer = otel.Tracer("worklane-jobqueue")

// Worker polls the jobs table and dispatches claimed jobs to registered
// handlers. One worker handles one job at a time; horizontal scale comes
// from running more workers, SKIP LOCKED keeps them from colliding.
type Worker struct {
	pool     *pgxpool.Pool
	handlers map[string]Handler
	opts     Options

	lockKey int64

	m *metrics
}

func NewWorker(pool *pgxpool.Pool, opts Options) (*Worker, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}

	opts.setDefaults()

	w := &Worker{
		pool:     pool,
		handlers: make(map[string]Handler),
		opts:     opts,
		m:        getMetrics(),
		lockKey:  advisoryLockKey("jobqueue:" + jobsTable),
	}
	if w.opts.Logger == nil {
		w.opts.Logger = logrusNop()
	}
	return w, nil
}

// Register binds a handler to a job kind. All registrations must happen
// before Run.
func (w *Worker) Register(kind string, h Handler) error {
	if kind == "" {
		return invalidConfig("kind is required")
	}
	if h == nil {
		return invalidConfig("handler is required")
	}
	if _, exists := w.handlers[kind]; exists {
		return invalidConfig("handler already registered for kind %q", kind)
	}
	w.handlers[kind] = h
	return nil
}

func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	if w.opts.SingleActive {
		return w.runSingleActive(ctx)
	}

	w.m.workerLeader.Set(1)
	return w.runLoop(ctx, nil)
}

func (w *Worker) runSingleActive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := w.pool.Acquire(ctx)
		if err != nil {
			w.opts.Logger.WithError(err).Warn("jobqueue: failed to acquire connection for single-active worker")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
				continue
			}
		}

		leader, err := w.tryAcquireLeader(ctx, conn)
		if err != nil {
			conn.Release()
			w.opts.Logger.WithError(err).Warn("jobqueue: failed to attempt advisory lock")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
				continue
			}
		}

		if !leader {
			w.m.workerLeader.Set(0)
			conn.Release()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
				continue
			}
		}

		w.m.workerLeader.Set(1)
		w.opts.Logger.Info("jobqueue: worker became leader")

		err = w.runLoop(ctx, conn)
		_ = w.releaseLeader(context.Background(), conn)
		conn.Release()
		return err
	}
}

func (w *Worker) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := w.observeQueueDepth(ctx, conn); err != nil {
				w.opts.Logger.WithError(err).Debug("jobqueue: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(w.opts.ObserveQueueDepthEvery)
		}

		if err := w.processOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.opts.Logger.WithError(err).Warn("jobqueue: process tick failed")
		}
	}
}

type claimedJob struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Kind     string
	Payload  json.RawMessage
	Attempts int
}

func (w *Worker) processOnce(ctx context.Context, conn *pgxpool.Conn) error {
	now := time.Now()
	cutoff := now.Add(-w.opts.ClaimTimeout)

	claimed, err := w.claim(ctx, conn, now, cutoff)
	if err != nil {
		return err
	}

	for _, c := range claimed {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.handleOne(ctx, conn, c)
	}
	return nil
}

func (w *Worker) handleOne(ctx context.Context, conn *pgxpool.Conn, c claimedJob) {
	handler, ok := w.handlers[c.Kind]
	if !ok {
		w.m.failedTotal.WithLabelValues(c.Kind).Inc()
		if err := w.fail(ctx, conn, c.ID, "no handler registered for kind "+c.Kind); err != nil {
			w.opts.Logger.WithError(err).WithFields(logFields(c)).Warn("jobqueue: fail update failed")
		}
		return
	}

	hctx := composables.WithPool(ctx, w.pool)
	hctx = composables.WithTenantID(hctx, c.TenantID)
	hctx = composables.WithLogger(hctx, w.opts.Logger.WithFields(logFields(c)))
	var cancel func()
	if w.opts.HandleTimeout > 0 {
		hctx, cancel = context.WithTimeout(hctx, w.opts.HandleTimeout)
	}

	hctx, span := tracer.Start(
		hctx,
		"jobqueue.handle",
		trace.WithAttributes(
			attribute.String("job.kind", c.Kind),
			attribute.String("job.id", c.ID.String()),
			attribute.String("job.tenant_id", c.TenantID.String()),
			attribute.Int("job.attempt", c.Attempts),
		),
	)

	start := time.Now()
	err := w.safeHandle(hctx, handler, &Context{
		ID:       c.ID,
		TenantID: c.TenantID,
		Kind:     c.Kind,
		Payload:  c.Payload,
		Attempts: c.Attempts,
		pool:     w.pool,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job handler failed")
	}
	span.End()
	if cancel != nil {
		cancel()
	}
	latency := time.Since(start)

	if err == nil {
		w.recordHandle(c.Kind, "success", latency)
		if ackErr := w.complete(ctx, conn, c.ID); ackErr != nil {
			w.opts.Logger.WithError(ackErr).WithFields(logFields(c)).Warn("jobqueue: complete update failed")
		}
		return
	}

	w.recordHandle(c.Kind, "failure", latency)
	lastErr := truncateError(err, w.opts.LastErrorMaxLen)

	if IsTerminal(err) || c.Attempts >= w.opts.MaxAttempts {
		w.m.failedTotal.WithLabelValues(c.Kind).Inc()
		if failErr := w.fail(ctx, conn, c.ID, lastErr); failErr != nil {
			w.opts.Logger.WithError(failErr).WithFields(logFields(c)).Warn("jobqueue: fail update failed")
		}
		return
	}

	next := time.Now().Add(backoff(c.Attempts, w.opts.MaxBackoff) + jitter(w.opts.Rand, w.opts.JitterMax))
	if retryErr := w.retry(ctx, conn, c.ID, lastErr, next); retryErr != nil {
		w.opts.Logger.WithError(retryErr).WithFields(logFields(c)).Warn("jobqueue: retry update failed")
	}
}

// safeHandle keeps a panicking handler from killing the worker loop; the
// panic becomes a normal retryable failure.
func (w *Worker) safeHandle(ctx context.Context, h Handler, job *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

func (w *Worker) claim(ctx context.Context, conn *pgxpool.Conn, now, lockCutoff time.Time) ([]claimedJob, error) {
	exec := txExec{pool: w.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.rollback(ctx)

	q := `SELECT id, tenant_id, kind, payload, attempts
	        FROM ` + jobsTable + `
	       WHERE status IN ('pending', 'running')
	         AND available_at <= $1
	         AND attempts < $2
	         AND (locked_at IS NULL OR locked_at < $3)
	       ORDER BY available_at, created_at
	       LIMIT $4
	       FOR UPDATE SKIP LOCKED`
	rows, err := tx.tx.Query(ctx, q, now, w.opts.MaxAttempts, lockCutoff, w.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("jobqueue claim select: %w", err)
	}
	defer rows.Close()

	var items []claimedJob
	var ids []uuid.UUID
	for rows.Next() {
		var c claimedJob
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Kind, &c.Payload, &c.Attempts); err != nil {
			return nil, fmt.Errorf("jobqueue claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobqueue claim rows: %w", err)
	}
	if len(ids) == 0 {
		if err := tx.commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	update := `UPDATE ` + jobsTable + ` SET status = 'running', locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`
	if _, err := tx.tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, fmt.Errorf("jobqueue claim update: %w", err)
	}

	if err := tx.commit(ctx); err != nil {
		return nil, err
	}

	return items, nil
}

func (w *Worker) complete(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	exec := txExec{pool: w.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `UPDATE ` + jobsTable + `
	         SET status = 'completed',
	             completed_at = now(),
	             locked_at = NULL,
	             last_error = NULL
	       WHERE id = $1 AND status = 'running'`
	if _, err := tx.tx.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("jobqueue complete: %w", err)
	}
	return tx.commit(ctx)
}

func (w *Worker) retry(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	exec := txExec{pool: w.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `UPDATE ` + jobsTable + `
	         SET status = 'pending',
	             locked_at = NULL,
	             last_error = $2,
	             available_at = $3
	       WHERE id = $1 AND status = 'running'`
	if _, err := tx.tx.Exec(ctx, q, id, lastError, nextAvailable); err != nil {
		return fmt.Errorf("jobqueue retry: %w", err)
	}
	return tx.commit(ctx)
}

func (w *Worker) fail(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string) error {
	exec := txExec{pool: w.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `UPDATE ` + jobsTable + `
	         SET status = 'failed',
	             completed_at = now(),
	             locked_at = NULL,
	             last_error = $2
	       WHERE id = $1 AND status = 'running'`
	if _, err := tx.tx.Exec(ctx, q, id, lastError); err != nil {
		return fmt.Errorf("jobqueue fail: %w", err)
	}
	return tx.commit(ctx)
}

func (w *Worker) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	exec := txExec{pool: w.pool, conn: conn}
	db := exec.queryer()

	var pending, running int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM `+jobsTable+` WHERE status = 'pending'`).Scan(&pending); err != nil {
		return fmt.Errorf("jobqueue pending count: %w", err)
	}
	if err := db.QueryRow(ctx, `SELECT count(*) FROM `+jobsTable+` WHERE status = 'running'`).Scan(&running); err != nil {
		return fmt.Errorf("jobqueue running count: %w", err)
	}

	w.m.pending.Set(float64(pending))
	w.m.running.Set(float64(running))
	return nil
}

func (w *Worker) recordHandle(kind, result string, latency time.Duration) {
	w.m.handleTotal.WithLabelValues(kind, result).Inc()
	w.m.handleLatency.WithLabelValues(kind, result).Observe(latency.Seconds())
}

func (w *Worker) tryAcquireLeader(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, w.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (w *Worker) releaseLeader(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, w.lockKey).Scan(&ok); err != nil {
		return err
	}
	return nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

type txExec struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (e txExec) begin(ctx context.Context) (*txWrap, error) {
	if e.conn != nil {
		tx, err := e.conn.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return nil, err
		}
		return &txWrap{tx: tx}, nil
	}
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &txWrap{tx: tx}, nil
}

func (e txExec) queryer() queryer {
	if e.conn != nil {
		return e.conn
	}
	return e.pool
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txWrap struct {
	tx pgx.Tx
}

func (t *txWrap) commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

func (t *txWrap) rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}

func logFields(c claimedJob) map[string]any {
	return map[string]any{
		"job_id":    c.ID.String(),
		"kind":      c.Kind,
		"tenant_id": c.TenantID.String(),
		"attempts":  c.Attempts,
	}
}
