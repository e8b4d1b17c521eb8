package engine

import (
	"rxreader/internal/models"
)

// Project maps the internal record to the externally visible view. It is
// a pure function: fields not yet populated on the record are omitted
// rather than zeroed, so an early QUEUED record projects cleanly.
func Project(job *models.Job) models.JobView {
	view := models.JobView{
		JobID:     job.JobID,
		Status:    job.Status,
		Message:   job.Message,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == models.JobStatusProcessing {
		view.State = job.State
	}
	if job.Score != "" {
		view.Score = job.Score
	}
	if job.Status == models.JobStatusCompleted && len(job.ExtractionResult) > 0 {
		view.PrescriptionData = string(job.ExtractionResult)
	}
	if job.Error != nil {
		e := *job.Error
		view.Error = &e
	}
	if len(job.UsageLog) > 0 {
		view.Usage = append([]models.ModelUsage(nil), job.UsageLog...)
	}
	return view
}
