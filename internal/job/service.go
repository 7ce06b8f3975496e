package job

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/observability"
)

// Runner starts the pipeline for a job asynchronously. Implemented by
// pipeline.Runner; substituted with a fake in tests.
type Runner interface {
	// Start dispatches the run in the background and returns immediately.
	Start(jobID string)
}

// StartResponse is the body returned when a job is accepted.
type StartResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// Service starts jobs and answers status polls. Start is fire-and-forget:
// it never waits on the pipeline and cannot fail observably to the caller.
type Service struct {
	store   *Store
	runner  Runner
	metrics *observability.Metrics
}

// NewService creates a new job service.
func NewService(store *Store, runner Runner, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		runner:  runner,
		metrics: metrics,
	}
}

// Start creates a running job record and dispatches the pipeline without
// awaiting it.
func (s *Service) Start(ctx context.Context) *StartResponse {
	id := uuid.NewString()
	s.store.Create(id)
	s.runner.Start(id)

	if s.metrics != nil {
		s.metrics.RecordJobCreated(ctx)
	}

	slog.Info("Job started", "jobId", id)

	return &StartResponse{
		JobID:   id,
		Message: "Pipeline started",
	}
}

// Get returns a snapshot of a job record, or a not-found error for ids that
// never existed or were evicted.
func (s *Service) Get(ctx context.Context, jobID string) (*Record, error) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		return nil, apperrors.NotFound("job", jobID)
	}
	return &rec, nil
}
