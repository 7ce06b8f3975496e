// pipeline-service is the HTTP API server for the design-trend content pipeline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendpipe/internal/api"
	"trendpipe/internal/config"
	"trendpipe/internal/discovery"
	"trendpipe/internal/docstore"
	"trendpipe/internal/health"
	"trendpipe/internal/ideas"
	"trendpipe/internal/images"
	"trendpipe/internal/job"
	"trendpipe/internal/market"
	"trendpipe/internal/notify"
	"trendpipe/internal/observability"
	"trendpipe/internal/pipeline"
	"trendpipe/internal/version"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.Info("Starting pipeline service",
		"version", version.Version,
		"dataDir", cfg.Pipeline.DataDir,
		"maxJobs", cfg.Pipeline.MaxJobs,
		"timeout", cfg.Pipeline.Timeout,
	)

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Document store for inter-stage JSON documents
	docs, err := docstore.New(cfg.Pipeline.DataDir)
	if err != nil {
		return err
	}

	// Completion webhook notifier; nil when NOTIFY_URL is unset
	notifier := notify.New(cfg.Notify, metrics)
	if notifier != nil {
		slog.Info("Completion webhooks enabled", "url", cfg.Notify.URL)
	}

	// Stage clients
	marketClient := market.NewClient(cfg.Market, metrics)
	if !marketClient.Configured() {
		slog.Warn("Marketplace credentials not configured, publish stage will be skipped")
	}

	// Job store and pipeline runner
	store := job.NewStore(cfg.Pipeline.MaxJobs)
	runner := pipeline.NewRunner(pipeline.Config{
		Store:       store,
		Docs:        docs,
		Discoverer:  discovery.NewClient(cfg.Search),
		Synthesizer: ideas.NewClient(cfg.LLM),
		Generator:   images.NewClient(cfg.Images),
		Publisher:   marketClient,
		Notifier:    notifier,
		Metrics:     metrics,
		Timeout:     cfg.Pipeline.Timeout,
	})

	// Create health checker
	healthChecker := health.NewChecker(docs)

	// Create job service
	jobService := job.NewService(store, runner, metrics)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
	})

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.Server.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if cfg.Server.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.Server.ShutdownDrainWait)
		time.Sleep(cfg.Server.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain the webhook notifier
	if notifier != nil {
		slog.Info("Draining webhook notifier")
		notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer notifierCancel()
		if err := notifier.Close(notifierCtx); err != nil {
			slog.Warn("Notifier shutdown error", "error", err)
		}

		stats := notifier.Stats()
		slog.Info("Notifier stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	// In-flight pipeline runs are abandoned at process exit; job records are
	// in-memory only and clients will simply stop seeing the job.
	slog.Info("Shutdown complete")
	return nil
}
