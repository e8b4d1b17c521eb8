package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rxreader/internal/models"
	"rxreader/internal/store"
)

// Store persists job records as JSON values under job:<id> keys with a
// native Redis TTL. Conditional updates use WATCH so two drivers racing
// on the same record surface as ErrVersionConflict instead of a lost write.
type Store struct {
	rdb *redis.Client
}

var _ store.JobStore = (*Store)(nil)

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(jobID string) string { return "job:" + jobID }

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.TTL = now.Add(store.JobTTL).Unix()
	job.Version = 1

	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	ok, err := s.rdb.SetNX(ctx, key(job.JobID), b, store.JobTTL).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	b, err := s.rdb.Get(ctx, key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job := &models.Job{}
	if err := json.Unmarshal(b, job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *Store) Update(ctx context.Context, job *models.Job) error {
	k := key(job.JobID)

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur := &models.Job{}
		if err := json.Unmarshal(b, cur); err != nil {
			return fmt.Errorf("decode job %s: %w", job.JobID, err)
		}
		if cur.Version != job.Version {
			return store.ErrVersionConflict
		}

		now := time.Now().UTC()
		job.UpdatedAt = now
		job.TTL = now.Add(store.JobTTL).Unix()
		job.Version++

		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", job.JobID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, out, store.JobTTL)
			return nil
		})
		return err
	}

	prev := job.Version
	err := s.rdb.Watch(ctx, txf, k)
	if err != nil {
		job.Version = prev
		if errors.Is(err, redis.TxFailedErr) {
			// The key changed between read and write; the versions diverged.
			return store.ErrVersionConflict
		}
		return err
	}
	return nil
}
