// Package jobs is the submission/status service shared by the HTTP API
// and the CLI. It creates the durable QUEUED record first and only then
// enqueues the processing task, so a reader never observes a task for a
// record that does not exist.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"rxreader/internal/engine"
	"rxreader/internal/models"
	"rxreader/internal/store"
	"rxreader/internal/tasks"
)

var ErrInvalidInput = errors.New("invalid input")

// Enqueuer is the slice of asynq.Client the service uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Defaults are the deployment-level submission defaults.
type Defaults struct {
	MaxCorrections int
	UseTranscriber bool
}

type Service struct {
	Store    store.JobStore
	Enqueuer Enqueuer
	Defaults Defaults
}

// SubmitRequest mirrors the external submission contract. Pointer fields
// distinguish "not supplied" from a zero value.
type SubmitRequest struct {
	Image          string   `json:"image"`
	Schema         string   `json:"prescriptionSchema"`
	Temperature    *float32 `json:"temperature,omitempty"`
	FastModel      string   `json:"fastModel,omitempty"`
	JudgeModel     string   `json:"judgeModel,omitempty"`
	PowerfulModel  string   `json:"powerfulModel,omitempty"`
	UseTranscriber *bool    `json:"useTextract,omitempty"`
	MaxCorrections *int     `json:"maxCorrections,omitempty"`
}

func (s *Service) Submit(ctx context.Context, req SubmitRequest) (models.JobView, error) {
	view, err := s.SubmitLocal(ctx, req)
	if err != nil {
		return models.JobView{}, err
	}

	task, err := tasks.NewProcessPrescriptionTask(view.JobID)
	if err != nil {
		return models.JobView{}, err
	}
	if _, err := s.Enqueuer.EnqueueContext(ctx, task); err != nil {
		return models.JobView{}, fmt.Errorf("enqueue job %s: %w", view.JobID, err)
	}
	return view, nil
}

// SubmitLocal validates the request and creates the durable QUEUED
// record without enqueueing a task. Callers that run the engine
// in-process use this directly.
func (s *Service) SubmitLocal(ctx context.Context, req SubmitRequest) (models.JobView, error) {
	if req.Image == "" {
		return models.JobView{}, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if req.Schema == "" {
		return models.JobView{}, fmt.Errorf("%w: prescriptionSchema is required", ErrInvalidInput)
	}
	if !json.Valid([]byte(req.Schema)) {
		return models.JobView{}, fmt.Errorf("%w: prescriptionSchema is not valid JSON", ErrInvalidInput)
	}

	params := models.JobParams{
		Image:          req.Image,
		Schema:         req.Schema,
		Temperature:    req.Temperature,
		FastModel:      req.FastModel,
		JudgeModel:     req.JudgeModel,
		PowerfulModel:  req.PowerfulModel,
		UseTranscriber: s.Defaults.UseTranscriber,
		MaxCorrections: s.Defaults.MaxCorrections,
	}
	if req.UseTranscriber != nil {
		params.UseTranscriber = *req.UseTranscriber
	}
	if req.MaxCorrections != nil {
		if *req.MaxCorrections < 0 {
			return models.JobView{}, fmt.Errorf("%w: maxCorrections must be >= 0", ErrInvalidInput)
		}
		params.MaxCorrections = *req.MaxCorrections
	}

	job := &models.Job{
		JobID:  uuid.NewString(),
		Status: models.JobStatusQueued,
		Params: params,
	}
	if err := s.Store.Create(ctx, job); err != nil {
		return models.JobView{}, fmt.Errorf("create job record: %w", err)
	}

	log.WithFields(log.Fields{"job_id": job.JobID, "use_transcriber": params.UseTranscriber, "max_corrections": params.MaxCorrections}).
		Info("prescription job accepted")
	return engine.Project(job), nil
}

// GetStatus returns the external view of a job for polling clients.
func (s *Service) GetStatus(ctx context.Context, jobID string) (models.JobView, error) {
	job, err := s.Store.Get(ctx, jobID)
	if err != nil {
		return models.JobView{}, err
	}
	return engine.Project(job), nil
}
