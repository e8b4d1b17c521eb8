package store

import (
	"context"
	"errors"
	"time"

	"rxreader/internal/models"
)

// Storage errors shared by every JobStore implementation.
var (
	ErrNotFound        = errors.New("job not found")
	ErrAlreadyExists   = errors.New("job already exists")
	ErrVersionConflict = errors.New("job version conflict")
)

// JobTTL is how long a record survives after its last write. Every
// update refreshes the expiry, matching the behavior clients rely on
// when polling long-running jobs.
const JobTTL = 24 * time.Hour

// JobStore is durable key-value persistence for job records. Update is a
// full-record overwrite conditional on the record's Version, which makes
// re-applying the same transition payload idempotent: replaying a write
// cannot double-increment counters or duplicate usage entries.
type JobStore interface {
	// Create persists a new record. ErrAlreadyExists if the jobId is taken.
	Create(ctx context.Context, job *models.Job) error
	// Get returns the current record. ErrNotFound if absent or expired.
	Get(ctx context.Context, jobID string) (*models.Job, error)
	// Update overwrites the record if the stored version still equals
	// job.Version, then bumps job.Version and refreshes the TTL.
	// ErrVersionConflict if another writer got there first.
	Update(ctx context.Context, job *models.Job) error
}
