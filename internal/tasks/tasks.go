package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeProcessPrescription is the asynq task type that drives one job
// through the workflow engine.
const TypeProcessPrescription = "prescription:process"

// QueuePrescriptions is the queue all prescription tasks land on.
const QueuePrescriptions = "prescriptions"

// ProcessPrescriptionPayload carries only the job ID; everything else is
// read from the job record so a redelivered task always sees current state.
type ProcessPrescriptionPayload struct {
	JobID string `json:"jobId"`
}

// NewProcessPrescriptionTask builds the task for a job. Asynq-level
// retry is disabled: the engine owns retries and guarantees the single
// terminal write, so a framework redelivery on top of that would only
// re-drive an already terminal record.
func NewProcessPrescriptionTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessPrescriptionPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal process payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPrescription, payload,
		asynq.Queue(QueuePrescriptions),
		asynq.MaxRetry(0),
	), nil
}
