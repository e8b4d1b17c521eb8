// Package stages defines the capability contracts for the four pipeline
// stages and the error taxonomy the engine's retry policy keys on. The
// implementations live in openaistage and geministage; the engine only
// ever sees these interfaces.
package stages

import (
	"context"
	"errors"
	"fmt"

	"rxreader/internal/models"
)

// ErrorKind classifies a stage failure for retry purposes.
type ErrorKind int

const (
	// KindUnrecoverable errors are never retried: invalid schema, auth
	// failure, a permanently broken adapter.
	KindUnrecoverable ErrorKind = iota
	// KindRateLimited errors retry with exponential backoff.
	KindRateLimited
	// KindTransient errors retry immediately, a bounded number of times.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "unrecoverable"
	}
}

// Error wraps a stage failure with its retry classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified stage error.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification from err. Anything that is not a
// *stages.Error counts as unrecoverable.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnrecoverable
}

// ModelParams carries the per-invocation model configuration resolved
// from the submission and deployment defaults.
type ModelParams struct {
	Model       string
	Temperature *float32
}

type TranscribeInput struct {
	Image string
}

type TranscribeResult struct {
	Transcription string
	Usage         *models.ModelUsage
}

type ExtractInput struct {
	Image             string
	Schema            string
	Transcription     string
	MedicationContext string
	Params            ModelParams
}

type ExtractResult struct {
	IsPrescription bool
	IsHandwritten  bool
	Data           []byte
	Usage          *models.ModelUsage
}

type EvaluateInput struct {
	Image             string
	Schema            string
	Extraction        []byte
	Transcription     string
	MedicationContext string
	Params            ModelParams
}

type EvaluateResult struct {
	Score    models.ExtractionQuality
	Feedback string
	Usage    *models.ModelUsage
}

type CorrectInput struct {
	Image             string
	Schema            string
	Extraction        []byte
	Feedback          string
	Transcription     string
	MedicationContext string
	Params            ModelParams
}

type CorrectResult struct {
	Data  []byte
	Usage *models.ModelUsage
}

// Transcriber produces a raw text transcription of the document image.
// The stage is optional; jobs submitted with useTranscriber=false skip it.
type Transcriber interface {
	Transcribe(ctx context.Context, in TranscribeInput) (*TranscribeResult, error)
}

// Extractor turns the image (plus optional transcription) into structured
// data under the submitted JSON schema.
type Extractor interface {
	Extract(ctx context.Context, in ExtractInput) (*ExtractResult, error)
}

// Evaluator scores an extraction and produces feedback for correction.
type Evaluator interface {
	Evaluate(ctx context.Context, in EvaluateInput) (*EvaluateResult, error)
}

// Corrector re-extracts using the judge's feedback.
type Corrector interface {
	Correct(ctx context.Context, in CorrectInput) (*CorrectResult, error)
}

// Adapters bundles the four capabilities the engine drives.
type Adapters struct {
	Transcriber Transcriber
	Extractor   Extractor
	Evaluator   Evaluator
	Corrector   Corrector
}

// ImageSource resolves an image reference to raw bytes and a content
// type. Object storage is an external collaborator; tests and the local
// process command use a filesystem-backed source.
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (data []byte, contentType string, err error)
}
