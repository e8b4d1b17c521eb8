// Package engine drives the prescription extraction state machine. The
// transition graph is an explicit table of tagged states so every edge
// can be unit-tested in isolation and an interrupted execution can be
// re-driven from the last durably written record.
package engine

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"rxreader/internal/models"
	"rxreader/internal/retry"
	"rxreader/internal/stages"
	"rxreader/internal/store"
	"rxreader/internal/util"
)

// State tags one node of the transition graph. Stage states invoke an
// adapter and persist the transition; choice states only route.
type State string

const (
	StateStart          State = "START"
	StateTranscribe     State = "TRANSCRIBE"
	StateExtract        State = "EXTRACT"
	StateIsPrescription State = "IS_PRESCRIPTION"
	StateJudge          State = "JUDGE"
	StateShouldCorrect  State = "SHOULD_CORRECT"
	StateCorrect        State = "CORRECT"
	StateSucceed        State = "SUCCEED"
	StateFail           State = "FAIL"
)

// ContextProvider supplies an opaque, bounded text context (for example a
// medication name list) injected into model prompts. It never affects
// control flow; a failed lookup is logged and ignored.
type ContextProvider interface {
	MedicationContext(ctx context.Context) (string, error)
}

// Engine executes one job at a time against the transition graph. It is
// safe for concurrent use across jobs; the JobStore is the only shared
// state, and per-record conditional writes are the only coordination.
type Engine struct {
	Store    store.JobStore
	Adapters stages.Adapters
	Policy   retry.Policy
	Context  ContextProvider
}

// run carries the workflow variables for a single execution.
type run struct {
	job            *models.Job
	isPrescription bool
	failure        *models.ErrorDetail
	medContext     string
}

func (r *run) setFailure(code, message string) {
	if r.failure == nil {
		r.failure = &models.ErrorDetail{Code: code, Message: message}
	}
}

// transition couples a state's stage action (nil for choice states) with
// the function choosing the next state from the workflow variables.
type transition struct {
	action func(*Engine, context.Context, *run) error
	next   func(*run) State
}

// transitions is the full graph. Terminal states are handled by the Run
// loop itself and deliberately absent here.
var transitions = map[State]transition{
	StateStart:          {next: nextFromStart},
	StateTranscribe:     {action: (*Engine).runTranscribe, next: func(*run) State { return StateExtract }},
	StateExtract:        {action: (*Engine).runExtract, next: func(*run) State { return StateIsPrescription }},
	StateIsPrescription: {next: nextFromIsPrescription},
	StateJudge:          {action: (*Engine).runJudge, next: func(*run) State { return StateShouldCorrect }},
	StateShouldCorrect:  {next: nextFromShouldCorrect},
	StateCorrect:        {action: (*Engine).runCorrect, next: func(*run) State { return StateJudge }},
}

func nextFromStart(r *run) State {
	if r.job.Params.UseTranscriber {
		return StateTranscribe
	}
	return StateExtract
}

func nextFromIsPrescription(r *run) State {
	if !r.isPrescription {
		r.setFailure(models.ErrCodeInvalidImage, "the supplied image does not appear to be a prescription")
		return StateFail
	}
	return StateJudge
}

func nextFromShouldCorrect(r *run) State {
	if r.job.Score.NeedsCorrection() && r.job.CorrectionCount < r.job.Params.MaxCorrections {
		return StateCorrect
	}
	return StateSucceed
}

// entryState derives where to re-enter the graph from the last durably
// written (status, state) pair. A persisted stage state means that stage
// completed and was written, so the record never re-invokes it.
func entryState(job *models.Job) State {
	if job.Status == models.JobStatusQueued {
		return StateStart
	}
	switch job.State {
	case models.JobStateTranscribe:
		return StateExtract
	case models.JobStateExtract:
		// A written EXTRACT implies the prescription check passed; a
		// rejection is only ever written as terminal FAILED.
		return StateJudge
	case models.JobStateJudge:
		return StateShouldCorrect
	case models.JobStateCorrect:
		return StateJudge
	}
	return StateStart
}

// Run drives the job to a terminal outcome. It is idempotent: re-driving
// an already terminal job is a no-op, and re-driving a mid-pipeline
// record resumes after the last written stage without re-charging usage.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, err := e.Store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		log.WithFields(log.Fields{"job_id": jobID, "status": job.Status}).Info("job already terminal, nothing to do")
		return nil
	}

	r := &run{job: job}
	if e.Context != nil {
		medCtx, err := e.Context.MedicationContext(ctx)
		if err != nil {
			log.WithFields(log.Fields{"job_id": jobID, "err": err}).Warn("medication context unavailable, continuing without it")
		} else {
			r.medContext = medCtx
		}
	}

	state := entryState(job)
	log.WithFields(log.Fields{"job_id": jobID, "entry": string(state)}).Info("job execution started")

	for {
		switch state {
		case StateSucceed:
			return e.writeSuccess(ctx, r)
		case StateFail:
			return e.writeFailure(ctx, r)
		}

		t, ok := transitions[state]
		if !ok {
			r.setFailure(models.ErrCodeInternalError, fmt.Sprintf("no transition for state %s", state))
			state = StateFail
			continue
		}

		if t.action != nil {
			if err := t.action(e, ctx, r); err != nil {
				if ctx.Err() != nil {
					// The process is going away; leave the record as-is so a
					// restarted worker resumes from the last written state.
					return err
				}
				log.WithFields(log.Fields{"job_id": jobID, "state": string(state), "err": err}).
					Error("stage failed after retry budget")
				r.setFailure(models.ErrCodeInternalError, err.Error())
				state = StateFail
				continue
			}
		}
		state = t.next(r)
	}
}

func (e *Engine) runTranscribe(ctx context.Context, r *run) error {
	var res *stages.TranscribeResult
	err := retry.Do(ctx, e.Policy, "transcribe", func(ctx context.Context) error {
		var err error
		res, err = e.Adapters.Transcriber.Transcribe(ctx, stages.TranscribeInput{Image: r.job.Params.Image})
		return err
	})
	if err != nil {
		return err
	}
	r.job.Transcription = util.CleanTranscription(res.Transcription)
	r.appendUsage(string(models.JobStateTranscribe), res.Usage)
	return e.persist(ctx, r, models.JobStateTranscribe)
}

func (e *Engine) runExtract(ctx context.Context, r *run) error {
	var res *stages.ExtractResult
	err := retry.Do(ctx, e.Policy, "extract", func(ctx context.Context) error {
		var err error
		res, err = e.Adapters.Extractor.Extract(ctx, stages.ExtractInput{
			Image:             r.job.Params.Image,
			Schema:            r.job.Params.Schema,
			Transcription:     r.job.Transcription,
			MedicationContext: r.medContext,
			Params:            stages.ModelParams{Model: r.job.Params.FastModel, Temperature: r.job.Params.Temperature},
		})
		return err
	})
	if err != nil {
		return err
	}
	r.isPrescription = res.IsPrescription
	r.job.IsHandwritten = res.IsHandwritten
	r.job.ExtractionResult = res.Data
	r.appendUsage(string(models.JobStateExtract), res.Usage)
	if !res.IsPrescription {
		// Domain rejection: the terminal FAILED write carries the usage;
		// no EXTRACT state is ever published for a rejected image.
		return nil
	}
	return e.persist(ctx, r, models.JobStateExtract)
}

func (e *Engine) runJudge(ctx context.Context, r *run) error {
	var res *stages.EvaluateResult
	err := retry.Do(ctx, e.Policy, "judge", func(ctx context.Context) error {
		var err error
		res, err = e.Adapters.Evaluator.Evaluate(ctx, stages.EvaluateInput{
			Image:             r.job.Params.Image,
			Schema:            r.job.Params.Schema,
			Extraction:        r.job.ExtractionResult,
			Transcription:     r.job.Transcription,
			MedicationContext: r.medContext,
			Params:            stages.ModelParams{Model: r.job.Params.JudgeModel, Temperature: r.job.Params.Temperature},
		})
		return err
	})
	if err != nil {
		return err
	}
	r.job.Score = res.Score
	r.job.Feedback = res.Feedback
	r.appendUsage(string(models.JobStateJudge), res.Usage)
	return e.persist(ctx, r, models.JobStateJudge)
}

func (e *Engine) runCorrect(ctx context.Context, r *run) error {
	var res *stages.CorrectResult
	err := retry.Do(ctx, e.Policy, "correct", func(ctx context.Context) error {
		var err error
		res, err = e.Adapters.Corrector.Correct(ctx, stages.CorrectInput{
			Image:             r.job.Params.Image,
			Schema:            r.job.Params.Schema,
			Extraction:        r.job.ExtractionResult,
			Feedback:          r.job.Feedback,
			Transcription:     r.job.Transcription,
			MedicationContext: r.medContext,
			Params:            stages.ModelParams{Model: r.job.Params.PowerfulModel, Temperature: r.job.Params.Temperature},
		})
		return err
	})
	if err != nil {
		return err
	}
	r.job.CorrectionCount++
	r.job.ExtractionResult = res.Data
	r.appendUsage(string(models.JobStateCorrect), res.Usage)
	return e.persist(ctx, r, models.JobStateCorrect)
}

func (r *run) appendUsage(stage string, usage *models.ModelUsage) {
	if usage == nil {
		return
	}
	u := *usage
	u.Stage = stage
	r.job.UsageLog = append(r.job.UsageLog, u)
}

// persist publishes a completed stage transition. The write lands before
// the engine advances, so pollers observe a monotonically advancing
// (status, state) pair and a restart can resume from it.
func (e *Engine) persist(ctx context.Context, r *run, state models.JobState) error {
	r.job.Status = models.JobStatusProcessing
	r.job.State = state
	if err := e.Store.Update(ctx, r.job); err != nil {
		return fmt.Errorf("publish state %s for job %s: %w", state, r.job.JobID, err)
	}
	log.WithFields(log.Fields{"job_id": r.job.JobID, "state": string(state)}).Info("stage transition written")
	return nil
}

func (e *Engine) writeSuccess(ctx context.Context, r *run) error {
	r.job.Status = models.JobStatusCompleted
	r.job.State = ""
	r.job.Message = r.job.Feedback
	r.job.Error = nil
	if err := e.writeTerminal(ctx, r.job); err != nil {
		return fmt.Errorf("write terminal COMPLETED for job %s: %w", r.job.JobID, err)
	}
	log.WithFields(log.Fields{"job_id": r.job.JobID, "score": string(r.job.Score), "corrections": r.job.CorrectionCount}).
		Info("job completed")
	return nil
}

func (e *Engine) writeFailure(ctx context.Context, r *run) error {
	if r.failure == nil {
		r.failure = &models.ErrorDetail{Code: models.ErrCodeInternalError, Message: "unclassified failure"}
	}
	r.job.Status = models.JobStatusFailed
	r.job.State = ""
	// A failed job has no extraction to offer; the record must not keep
	// one around, whether from a rejected image or a stale EXTRACT write.
	r.job.ExtractionResult = nil
	r.job.Error = r.failure
	r.job.Message = r.failure.Message
	if err := e.writeTerminal(ctx, r.job); err != nil {
		return fmt.Errorf("write terminal FAILED for job %s: %w", r.job.JobID, err)
	}
	log.WithFields(log.Fields{"job_id": r.job.JobID, "code": r.failure.Code}).Warn("job failed")
	return nil
}

// writeTerminal performs the single terminal write. Losing it would
// strand the job in PROCESSING forever, so the write itself is retried
// under the generic transient policy.
func (e *Engine) writeTerminal(ctx context.Context, job *models.Job) error {
	return retry.Do(ctx, e.Policy, "terminal_write", func(ctx context.Context) error {
		err := e.Store.Update(ctx, job)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			// Another writer owns the record; retrying cannot help and
			// risks a second terminal write.
			return err
		}
		return stages.NewError(stages.KindTransient, err)
	})
}
