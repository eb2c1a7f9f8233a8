// Package jobstore keeps in-flight import jobs in process memory. Jobs are
// transient by contract: a restart loses them and the wizard restarts the
// flow on 404. Durability would buy nothing because raw rows are cheap to
// re-upload and stale mappings are worthless.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/worklane/worklane/modules/imports/domain/importjob"
)

var (
	ErrNotFound = errors.New("import job not found")
)

type Options struct {
	TTL          time.Duration
	TenantJobCap int
	SweepEvery   time.Duration

	Clock  clockwork.Clock
	Logger *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.TTL == 0 {
		o.TTL = 2 * time.Hour
	}
	if o.TenantJobCap == 0 {
		o.TenantJobCap = 50
	}
	if o.SweepEvery == 0 {
		o.SweepEvery = time.Minute
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = logrus.NewEntry(l)
	}
}

type entry struct {
	job       *importjob.Job
	expiresAt time.Time
}

// Store is an owned, injectable job map with TTL eviction and a per-tenant
// quota. All access is tenant-checked: a job id from another tenant reads as
// not found.
type Store struct {
	opts Options

	mu     sync.RWMutex
	jobs   map[string]*entry
	tenant map[uuid.UUID][]string // job ids in creation order, oldest first
}

func New(opts Options) *Store {
	opts.setDefaults()
	return &Store{
		opts:   opts,
		jobs:   make(map[string]*entry),
		tenant: make(map[uuid.UUID][]string),
	}
}

// Create registers a job, evicting the tenant's oldest jobs past the quota.
func (s *Store) Create(ctx context.Context, job *importjob.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = &entry{
		job:       job,
		expiresAt: s.opts.Clock.Now().Add(s.opts.TTL),
	}
	ids := append(s.tenant[job.TenantID], job.ID)

	for len(ids) > s.opts.TenantJobCap {
		oldest := ids[0]
		ids = ids[1:]
		delete(s.jobs, oldest)
		s.opts.Logger.WithFields(logrus.Fields{
			"job_id":    oldest,
			"tenant_id": job.TenantID.String(),
		}).Info("import job evicted by tenant quota")
	}
	s.tenant[job.TenantID] = ids
	return nil
}

// Get returns a value snapshot of the job. Callers must not mutate slice or
// pointer fields reached through it; mutation goes through Update.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, id string) (importjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok || e.job.TenantID != tenantID {
		return importjob.Job{}, ErrNotFound
	}
	if s.opts.Clock.Now().After(e.expiresAt) {
		return importjob.Job{}, ErrNotFound
	}
	return *e.job, nil
}

// Update applies fn to the live job under the store lock. fn must replace
// slice/pointer fields rather than mutate them so concurrent snapshots stay
// consistent.
func (s *Store) Update(ctx context.Context, tenantID uuid.UUID, id string, fn func(*importjob.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.job.TenantID != tenantID {
		return ErrNotFound
	}
	if s.opts.Clock.Now().After(e.expiresAt) {
		return ErrNotFound
	}
	if err := fn(e.job); err != nil {
		return err
	}
	e.job.UpdatedAt = s.opts.Clock.Now()
	return nil
}

func (s *Store) Delete(ctx context.Context, tenantID uuid.UUID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || e.job.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.jobs, id)
	s.tenant[tenantID] = removeID(s.tenant[tenantID], id)
	return nil
}

// Len reports the number of live (non-expired) jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.Clock.Now()
	n := 0
	for _, e := range s.jobs {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// Run sweeps expired jobs until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	ticker := s.opts.Clock.NewTicker(s.opts.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
		s.sweep()
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Clock.Now()
	removed := 0
	for id, e := range s.jobs {
		if now.After(e.expiresAt) {
			delete(s.jobs, id)
			s.tenant[e.job.TenantID] = removeID(s.tenant[e.job.TenantID], id)
			removed++
		}
	}
	for tenantID, ids := range s.tenant {
		if len(ids) == 0 {
			delete(s.tenant, tenantID)
		}
	}
	if removed > 0 {
		s.opts.Logger.WithField("removed", removed).Debug("import job sweep")
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
