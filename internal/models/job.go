package models

import (
	"strings"
	"time"
)

// JobStatus is the externally visible lifecycle of a prescription job.
// It is monotonic: QUEUED -> PROCESSING -> (COMPLETED | FAILED).
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobState names the pipeline stage a PROCESSING job is currently in.
// It is only meaningful while status is PROCESSING.
type JobState string

const (
	JobStateTranscribe JobState = "TRANSCRIBE"
	JobStateExtract    JobState = "EXTRACT"
	JobStateJudge      JobState = "JUDGE"
	JobStateCorrect    JobState = "CORRECT"
)

// ExtractionQuality is the judge's rating of an extraction.
type ExtractionQuality string

const (
	QualityPoor      ExtractionQuality = "poor"
	QualityFair      ExtractionQuality = "fair"
	QualityGood      ExtractionQuality = "good"
	QualityExcellent ExtractionQuality = "excellent"
)

// NeedsCorrection reports whether the score is low enough to trigger the
// correction loop. Comparison is case-insensitive.
func (q ExtractionQuality) NeedsCorrection() bool {
	switch ExtractionQuality(strings.ToLower(string(q))) {
	case QualityPoor, QualityFair:
		return true
	}
	return false
}

// ModelUsage is one append-only accounting entry per model invocation.
type ModelUsage struct {
	Stage        string `json:"stage"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	CachedTokens int    `json:"cachedTokens,omitempty"`
}

// ErrorDetail is the stable machine-readable failure payload.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Failure codes surfaced to clients on terminal FAILED.
const (
	ErrCodeInvalidImage  = "InvalidImage"
	ErrCodeInternalError = "InternalError"
)

// JobParams are the submission-time parameters that drive one execution.
// They are persisted with the record so a restarted worker can resume
// with the exact same configuration.
type JobParams struct {
	Image          string   `json:"image"`
	Schema         string   `json:"prescriptionSchema"`
	Temperature    *float32 `json:"temperature,omitempty"`
	FastModel      string   `json:"fastModel,omitempty"`
	JudgeModel     string   `json:"judgeModel,omitempty"`
	PowerfulModel  string   `json:"powerfulModel,omitempty"`
	UseTranscriber bool     `json:"useTranscriber"`
	MaxCorrections int      `json:"maxCorrections"`
}

// Job is the durable record for one extraction job. Updates are always
// full-record overwrites keyed by the immutable JobID; Version guards
// against concurrent writers.
type Job struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	State  JobState  `json:"state,omitempty"`

	Params JobParams `json:"params"`

	CorrectionCount int `json:"correctionCount"`

	// Workflow variables carried across stages so execution can resume
	// from the last durably written state.
	Transcription    string            `json:"transcription,omitempty"`
	ExtractionResult []byte            `json:"extractionResult,omitempty"`
	IsHandwritten    bool              `json:"isHandwritten,omitempty"`
	Score            ExtractionQuality `json:"score,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`

	UsageLog []ModelUsage `json:"usageLog,omitempty"`

	Message string       `json:"message,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	TTL       int64     `json:"ttl"`
	Version   int64     `json:"version"`
}

// JobView is the external projection returned by status queries. Fields
// that are not yet populated on the record are omitted, never zeroed in.
type JobView struct {
	JobID            string            `json:"jobId"`
	Status           JobStatus         `json:"status"`
	State            JobState          `json:"state,omitempty"`
	Score            ExtractionQuality `json:"score,omitempty"`
	Message          string            `json:"message,omitempty"`
	PrescriptionData string            `json:"prescriptionData,omitempty"`
	Error            *ErrorDetail      `json:"error,omitempty"`
	Usage            []ModelUsage      `json:"usage,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}
