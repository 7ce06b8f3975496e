package api

import (
	"net/http"

	"trendpipe/internal/health"
	"trendpipe/internal/job"
	"trendpipe/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService    *job.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes)
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	mux.HandleFunc("GET /version", handler.Version)

	// Job endpoints
	mux.HandleFunc("POST /jobs", handler.StartJob)
	mux.HandleFunc("GET /jobs/{jobId}", handler.GetJob)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
