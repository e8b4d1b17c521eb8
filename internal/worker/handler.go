// Package worker registers the asynq handler that drives submitted jobs
// through the workflow engine. Each task is one job; asynq's worker pool
// lets many jobs block on model calls concurrently.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"rxreader/internal/engine"
	"rxreader/internal/store"
	"rxreader/internal/tasks"
)

// Deps are the collaborators the handler needs.
type Deps struct {
	Engine *engine.Engine
}

// RegisterHandlers wires task types to handlers on the mux.
func RegisterHandlers(mux *asynq.ServeMux, deps Deps) {
	mux.HandleFunc(tasks.TypeProcessPrescription, HandleProcessPrescription(deps))
}

// HandleProcessPrescription returns the handler for one job execution.
// The engine is idempotent, so a duplicate delivery of the same job ID
// is a safe no-op once the record is terminal.
func HandleProcessPrescription(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload tasks.ProcessPrescriptionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode process payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.JobID == "" {
			return fmt.Errorf("process payload missing jobId: %w", asynq.SkipRetry)
		}

		log.WithFields(log.Fields{"job_id": payload.JobID}).Info("processing prescription job")
		if err := deps.Engine.Run(ctx, payload.JobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// The record expired or was purged; nothing to drive.
				log.WithFields(log.Fields{"job_id": payload.JobID}).Warn("job record gone, dropping task")
				return nil
			}
			return fmt.Errorf("run job %s: %w", payload.JobID, err)
		}
		return nil
	}
}
