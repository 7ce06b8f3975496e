// Package pipeline runs the background content pipeline: discover design
// trends, synthesize product ideas, generate images, and publish marketplace
// drafts. Each run is owned by a job record in the store; callers start a run
// and poll the record for progress.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/discovery"
	"trendpipe/internal/docstore"
	"trendpipe/internal/job"
	"trendpipe/internal/market"
	"trendpipe/internal/notify"
	"trendpipe/internal/observability"
	"trendpipe/pkg/webhook"
)

// DefaultTimeout bounds a whole pipeline run end to end.
const DefaultTimeout = 10 * time.Minute

// Webhook event types emitted when a run reaches a terminal state.
const (
	EventJobCompleted = "pipeline.job.completed"
	EventJobFailed    = "pipeline.job.failed"
)

const eventSource = "trendpipe/pipeline"

// Discoverer fetches current design trends from the search provider.
type Discoverer interface {
	Discover(ctx context.Context) ([]docstore.Trend, error)
}

// Synthesizer turns trends into concrete product ideas.
type Synthesizer interface {
	Synthesize(ctx context.Context, trends []docstore.Trend) ([]docstore.Idea, error)
}

// Generator renders ideas into image files and a manifest tagged with the
// run id that produced it.
type Generator interface {
	Generate(ctx context.Context, runID string, ideas []docstore.Idea) (*docstore.Manifest, error)
}

// Publisher uploads generated images as marketplace draft listings.
type Publisher interface {
	Configured() bool
	Publish(ctx context.Context, m *docstore.Manifest) (market.Result, error)
}

// Config carries the runner's collaborators. All fields except Notifier and
// Metrics are required.
type Config struct {
	Store       *job.Store
	Docs        *docstore.Store
	Discoverer  Discoverer
	Synthesizer Synthesizer
	Generator   Generator
	Publisher   Publisher
	Notifier    *notify.Notifier
	Metrics     *observability.Metrics
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Runner executes pipeline runs in the background, one goroutine per job.
type Runner struct {
	store       *job.Store
	docs        *docstore.Store
	discoverer  Discoverer
	synthesizer Synthesizer
	generator   Generator
	publisher   Publisher
	notifier    *notify.Notifier
	metrics     *observability.Metrics
	timeout     time.Duration
	logger      *slog.Logger
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(cfg Config) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:       cfg.Store,
		docs:        cfg.Docs,
		discoverer:  cfg.Discoverer,
		synthesizer: cfg.Synthesizer,
		generator:   cfg.Generator,
		publisher:   cfg.Publisher,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		timeout:     timeout,
		logger:      logger.With("component", "pipeline"),
	}
}

// Start launches the run for jobID in the background and returns immediately.
// The caller must have created the job record first.
func (r *Runner) Start(jobID string) {
	go r.run(jobID)
}

func (r *Runner) run(jobID string) {
	if _, ok := r.store.Get(jobID); !ok {
		r.logger.Error("Job record missing, aborting run", "jobId", jobID)
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("pipeline panicked: %v", p)
			}
		}()
		done <- r.execute(ctx, jobID)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		// The stage goroutine unwinds on its own once its in-flight calls
		// observe the cancelled context; its late store writes are dropped
		// because the record is already terminal.
		runErr = apperrors.Timeout("pipeline", r.timeout)
	}

	r.finish(ctx, jobID, runErr, time.Since(start))
}

// execute walks the stages in order, bumping coarse progress after each one.
func (r *Runner) execute(ctx context.Context, jobID string) error {
	for idx, st := range r.stages(jobID) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStage(ctx, jobID, idx, st); err != nil {
			return err
		}
		r.store.SetProgress(jobID, st.ProgressAfter)
	}
	return nil
}

// stages builds the run's stage list. The job id doubles as the run id that
// tags the image manifest, so publish only ever uploads this run's output.
func (r *Runner) stages(runID string) []Stage {
	return []Stage{
		{
			Name:          "discover",
			StartMessage:  "Searching for current design trends",
			Policy:        Recoverable,
			ProgressAfter: 25,
			Run: func(ctx context.Context) (string, error) {
				trends, err := r.discoverer.Discover(ctx)
				if err != nil {
					return "", err
				}
				if err := r.docs.SaveTrends(trends); err != nil {
					return "", err
				}
				return fmt.Sprintf("Found %d design trends", len(trends)), nil
			},
			Fallback: func(ctx context.Context) (string, error) {
				trends := discovery.SampleTrends()
				if err := r.docs.SaveTrends(trends); err != nil {
					return "", err
				}
				return fmt.Sprintf("Using %d built-in sample trends", len(trends)), nil
			},
		},
		{
			Name:          "synthesize",
			StartMessage:  "Synthesizing product ideas from trends",
			Policy:        Fatal,
			ProgressAfter: 50,
			Run: func(ctx context.Context) (string, error) {
				trends, err := r.docs.LoadTrends()
				if err != nil {
					return "", err
				}
				ideas, err := r.synthesizer.Synthesize(ctx, trends)
				if err != nil {
					return "", err
				}
				if err := r.docs.SaveIdeas(ideas); err != nil {
					return "", err
				}
				return fmt.Sprintf("Generated %d product ideas", len(ideas)), nil
			},
		},
		{
			Name:          "generate",
			StartMessage:  "Generating images for product ideas",
			Policy:        Fatal,
			ProgressAfter: 85,
			Run: func(ctx context.Context) (string, error) {
				ideas, err := r.docs.LoadIdeas()
				if err != nil {
					return "", err
				}
				manifest, err := r.generator.Generate(ctx, runID, ideas)
				if err != nil {
					return "", err
				}
				if err := r.docs.SaveManifest(manifest); err != nil {
					return "", err
				}
				return fmt.Sprintf("Generated %d images", len(manifest.Images)), nil
			},
		},
		{
			Name:          "publish",
			StartMessage:  "Publishing draft listings to the marketplace",
			Policy:        Recoverable,
			ProgressAfter: 95,
			Skip: func() (bool, string) {
				if r.publisher.Configured() {
					return false, ""
				}
				return true, "Marketplace credentials not configured, skipping publish"
			},
			Run: func(ctx context.Context) (string, error) {
				manifest, err := r.docs.LoadManifest()
				if err != nil {
					return "", err
				}
				if manifest.RunID != runID {
					return "", fmt.Errorf("image manifest belongs to run %s, refusing to publish", manifest.RunID)
				}
				res, err := r.publisher.Publish(ctx, manifest)
				if err != nil {
					return "", err
				}
				msg := fmt.Sprintf("Uploaded %d draft listing(s)", res.Uploaded)
				if res.Failed > 0 {
					msg += fmt.Sprintf(", %d failed", res.Failed)
				}
				return msg, nil
			},
		},
	}
}

// finish moves the record to its terminal state, records run metrics, and
// emits the terminal webhook event. Log entries are appended before the
// status flips because terminal records reject further mutation.
func (r *Runner) finish(ctx context.Context, jobID string, runErr error, elapsed time.Duration) {
	rec, ok := r.store.Get(jobID)
	step := 0
	if ok {
		step = rec.CurrentStep
	}

	if runErr != nil {
		r.store.AppendLog(jobID, job.LogError, step, "Pipeline failed: "+runErr.Error())
		r.store.Fail(jobID, runErr.Error())
		r.logger.Error("Pipeline run failed", "jobId", jobID, "duration", elapsed, "error", runErr)
	} else {
		r.store.AppendLog(jobID, job.LogSuccess, step, "Pipeline completed successfully")
		r.store.Complete(jobID)
		r.logger.Info("Pipeline run completed", "jobId", jobID, "duration", elapsed)
	}

	if r.metrics != nil {
		r.metrics.RecordJobFinished(context.WithoutCancel(ctx), runErr == nil, elapsed.Seconds())
	}
	r.emit(jobID, runErr)
}

func (r *Runner) emit(jobID string, runErr error) {
	if r.notifier == nil {
		return
	}
	rec, ok := r.store.Get(jobID)
	if !ok {
		return
	}
	eventType := EventJobCompleted
	data := map[string]any{
		"jobId":    rec.ID,
		"status":   string(rec.Status),
		"progress": rec.Progress,
	}
	if runErr != nil {
		eventType = EventJobFailed
		data["error"] = runErr.Error()
	}
	if err := r.notifier.Dispatch(webhook.New(eventType, eventSource, jobID, data)); err != nil {
		r.logger.Warn("Terminal event not queued", "jobId", jobID, "error", err)
	}
}
