package pipeline

import (
	"context"
	"time"

	"trendpipe/internal/job"
)

// Policy determines how a stage failure affects the run.
type Policy int

const (
	// Fatal aborts the whole job when the stage fails.
	Fatal Policy = iota
	// Recoverable logs a warning and lets the pipeline continue, optionally
	// after a fallback path supplied the stage's output.
	Recoverable
)

// Stage is one ordered step of the pipeline. Run and Fallback return a
// human-readable success message that is appended to the job log.
type Stage struct {
	Name          string
	StartMessage  string
	Policy        Policy
	ProgressAfter int
	// Skip, when set and returning true, bypasses the stage with an
	// informational log entry instead of executing it.
	Skip func() (bool, string)
	Run  func(ctx context.Context) (string, error)
	// Fallback runs after a recoverable failure to produce degraded output
	// for downstream stages. A fallback failure is fatal.
	Fallback func(ctx context.Context) (string, error)
}

// Stage metric outcomes.
const (
	outcomeSuccess   = "success"
	outcomeRecovered = "recovered"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

// runStage executes one stage against the job record: an info entry on entry,
// a success entry on exit, and the failure policy applied in between. All
// record mutations go through the store so polls observe them atomically.
func (r *Runner) runStage(ctx context.Context, jobID string, idx int, st Stage) error {
	logger := r.logger.With("jobId", jobID, "stage", st.Name)

	if st.Skip != nil {
		if skip, reason := st.Skip(); skip {
			r.store.SetStep(jobID, idx)
			r.store.AppendLog(jobID, job.LogInfo, idx, reason)
			r.recordStage(ctx, st.Name, outcomeSkipped, 0)
			logger.Info("Stage skipped", "reason", reason)
			return nil
		}
	}

	r.store.SetStep(jobID, idx)
	r.store.AppendLog(jobID, job.LogInfo, idx, st.StartMessage)
	logger.Info("Stage starting")
	start := time.Now()

	msg, err := st.Run(ctx)
	if err == nil {
		r.store.AppendLog(jobID, job.LogSuccess, idx, msg)
		r.recordStage(ctx, st.Name, outcomeSuccess, time.Since(start).Seconds())
		logger.Info("Stage completed", "duration", time.Since(start))
		return nil
	}

	if st.Policy == Fatal {
		r.recordStage(ctx, st.Name, outcomeFailed, time.Since(start).Seconds())
		logger.Error("Stage failed", "error", err)
		return err
	}

	// Recoverable: warn, run the fallback if any, then append a synthetic
	// success entry so the log shows the stage as settled.
	r.store.AppendLog(jobID, job.LogWarning, idx, err.Error())
	logger.Warn("Stage failed, continuing", "error", err)

	msg = "Continuing without " + st.Name + " results"
	if st.Fallback != nil {
		fallbackMsg, fallbackErr := st.Fallback(ctx)
		if fallbackErr != nil {
			r.recordStage(ctx, st.Name, outcomeFailed, time.Since(start).Seconds())
			logger.Error("Stage fallback failed", "error", fallbackErr)
			return fallbackErr
		}
		msg = fallbackMsg
	}

	r.store.AppendLog(jobID, job.LogSuccess, idx, msg)
	r.recordStage(ctx, st.Name, outcomeRecovered, time.Since(start).Seconds())
	return nil
}

func (r *Runner) recordStage(ctx context.Context, stage, outcome string, seconds float64) {
	if r.metrics != nil {
		r.metrics.RecordStage(ctx, stage, outcome, seconds)
	}
}
