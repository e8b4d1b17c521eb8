package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxreader/internal/models"
)

func TestProject_QueuedRecord(t *testing.T) {
	job := &models.Job{JobID: "j1", Status: models.JobStatusQueued}
	view := Project(job)

	assert.Equal(t, "j1", view.JobID)
	assert.Equal(t, models.JobStatusQueued, view.Status)
	assert.Empty(t, string(view.State))
	assert.Empty(t, view.PrescriptionData)
	assert.Nil(t, view.Error)
	assert.Nil(t, view.Usage)
}

func TestProject_ProcessingExposesState(t *testing.T) {
	job := &models.Job{
		JobID:  "j1",
		Status: models.JobStatusProcessing,
		State:  models.JobStateJudge,
	}
	view := Project(job)
	assert.Equal(t, models.JobStateJudge, view.State)
}

func TestProject_CompletedExposesData(t *testing.T) {
	job := &models.Job{
		JobID:            "j1",
		Status:           models.JobStatusCompleted,
		Score:            models.QualityGood,
		Message:          "done",
		ExtractionResult: []byte(`{"medication":"x"}`),
		UsageLog:         []models.ModelUsage{{Stage: "EXTRACT", InputTokens: 10}},
	}
	view := Project(job)

	assert.Empty(t, string(view.State), "terminal views carry no pipeline state")
	assert.Equal(t, `{"medication":"x"}`, view.PrescriptionData)
	assert.Equal(t, models.QualityGood, view.Score)
	assert.Equal(t, "done", view.Message)
	require.Len(t, view.Usage, 1)
}

func TestProject_FailedHidesExtraction(t *testing.T) {
	// A rejected image may still have partial extraction bytes on the
	// record; the external view must not leak them.
	job := &models.Job{
		JobID:            "j1",
		Status:           models.JobStatusFailed,
		ExtractionResult: []byte(`{"partial":true}`),
		Error:            &models.ErrorDetail{Code: models.ErrCodeInvalidImage, Message: "not a prescription"},
	}
	view := Project(job)

	assert.Empty(t, view.PrescriptionData)
	require.NotNil(t, view.Error)
	assert.Equal(t, models.ErrCodeInvalidImage, view.Error.Code)
}

func TestProject_CopiesUsageAndError(t *testing.T) {
	job := &models.Job{
		JobID:    "j1",
		Status:   models.JobStatusFailed,
		Error:    &models.ErrorDetail{Code: models.ErrCodeInternalError, Message: "boom"},
		UsageLog: []models.ModelUsage{{Stage: "EXTRACT"}},
	}
	view := Project(job)

	// Mutating the view must not reach back into the record
	view.Error.Message = "changed"
	view.Usage[0].Stage = "changed"

	assert.Equal(t, "boom", job.Error.Message)
	assert.Equal(t, "EXTRACT", job.UsageLog[0].Stage)
}
