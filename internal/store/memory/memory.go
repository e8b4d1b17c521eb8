package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"rxreader/internal/models"
	"rxreader/internal/store"
)

// Store is an in-memory JobStore used by the process command and tests.
// Records are deep-copied on the way in and out so callers cannot mutate
// stored state without going through Update.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	now  func() time.Time
}

var _ store.JobStore = (*Store)(nil)

func New() *Store {
	return &Store{jobs: make(map[string]*models.Job), now: time.Now}
}

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(job.JobID); ok {
		return store.ErrAlreadyExists
	}
	now := s.now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.TTL = now.Add(store.JobTTL).Unix()
	job.Version = 1
	s.jobs[job.JobID] = clone(job)
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.liveLocked(jobID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(cur), nil
}

func (s *Store) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.liveLocked(job.JobID)
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != job.Version {
		return store.ErrVersionConflict
	}
	now := s.now().UTC()
	job.UpdatedAt = now
	job.TTL = now.Add(store.JobTTL).Unix()
	job.Version++
	s.jobs[job.JobID] = clone(job)
	return nil
}

// liveLocked returns the record unless its TTL has lapsed, in which case
// it is purged, mimicking the expiry a real backend applies.
func (s *Store) liveLocked(jobID string) (*models.Job, bool) {
	cur, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	if cur.TTL > 0 && s.now().Unix() > cur.TTL {
		delete(s.jobs, jobID)
		return nil, false
	}
	return cur, true
}

func clone(job *models.Job) *models.Job {
	b, _ := json.Marshal(job)
	out := &models.Job{}
	_ = json.Unmarshal(b, out)
	return out
}
