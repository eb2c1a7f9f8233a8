package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner prunes finished jobs so the table stays small enough for the
// claim index to matter. Completed and failed jobs age out on separate
// clocks; failed rows stick around longer for debugging.
type Cleaner struct {
	pool *pgxpool.Pool
	opts CleanerOptions
}

func NewCleaner(pool *pgxpool.Pool, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}

	opts.setDefaults()

	c := &Cleaner{pool: pool, opts: opts}
	if c.opts.Logger == nil {
		c.opts.Logger = logrusNop()
	}
	return c, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := c.cleanOnce(ctx); err != nil {
			c.opts.Logger.WithError(err).Warn("jobqueue: clean tick failed")
		}
	}
}

func (c *Cleaner) cleanOnce(ctx context.Context) error {
	now := time.Now()

	completedCutoff := now.Add(-c.opts.Retention)
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM `+jobsTable+` WHERE status = 'completed' AND completed_at < $1`,
		completedCutoff,
	)
	if err != nil {
		return fmt.Errorf("jobqueue clean completed: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		c.opts.Logger.WithField("count", n).Debug("jobqueue: pruned completed jobs")
	}

	failedCutoff := now.Add(-c.opts.FailedRetention)
	tag, err = c.pool.Exec(ctx,
		`DELETE FROM `+jobsTable+` WHERE status = 'failed' AND completed_at < $1`,
		failedCutoff,
	)
	if err != nil {
		return fmt.Errorf("jobqueue clean failed: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		c.opts.Logger.WithField("count", n).Debug("jobqueue: pruned failed jobs")
	}

	return nil
}
