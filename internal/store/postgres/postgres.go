package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rxreader/internal/models"
	"rxreader/internal/store"
)

// Store implements JobStore on PostgreSQL. The full record lives in a
// jsonb column; version and expiry are lifted into their own columns so
// conditional updates and purging stay plain SQL.
type Store struct {
	db *pgxpool.Pool
}

var _ store.JobStore = (*Store)(nil)

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}
	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{db: dbpool}, nil
}

// Migrate creates the jobs table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS prescription_jobs (
			job_id     TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			version    BIGINT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate prescription_jobs: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.TTL = now.Add(store.JobTTL).Unix()
	job.Version = 1

	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	query := `
		INSERT INTO prescription_jobs (job_id, record, version, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.Exec(ctx, query, job.JobID, record, job.Version, time.Unix(job.TTL, 0).UTC(), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT record FROM prescription_jobs WHERE job_id = $1 AND expires_at > now()`
	var record []byte
	err := s.db.QueryRow(ctx, query, jobID).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job := &models.Job{}
	if err := json.Unmarshal(record, job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *Store) Update(ctx context.Context, job *models.Job) error {
	expected := job.Version
	now := time.Now().UTC()
	job.UpdatedAt = now
	job.TTL = now.Add(store.JobTTL).Unix()
	job.Version = expected + 1

	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	query := `
		UPDATE prescription_jobs
		SET record = $1, version = $2, expires_at = $3, updated_at = $4
		WHERE job_id = $5 AND version = $6`
	cmdTag, err := s.db.Exec(ctx, query, record, job.Version, time.Unix(job.TTL, 0).UTC(), now, job.JobID, expected)
	if err != nil {
		job.Version = expected
		return fmt.Errorf("update job %s: %w", job.JobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		job.Version = expected
		// Distinguish a missing record from a concurrent writer.
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM prescription_jobs WHERE job_id = $1)`, job.JobID).Scan(&exists); err != nil {
			return fmt.Errorf("update job %s: %w", job.JobID, err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}
