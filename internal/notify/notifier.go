// Package notify delivers job lifecycle events to a configured webhook URL
// with buffering, retry, and circuit breaking.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"trendpipe/internal/config"
	"trendpipe/pkg/backoff"
	"trendpipe/pkg/circuitbreaker"
	"trendpipe/pkg/webhook"
)

// Delivery defaults - these rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// ErrBufferFull is returned when the notifier's buffer is full and the event
// is dropped.
var ErrBufferFull = errors.New("notify buffer full, event dropped")

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifyFailed(ctx context.Context)
	RecordNotifyDropped(ctx context.Context)
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth int
	Delivered  int64
	Failed     int64
	Dropped    int64
}

// Notifier is an in-memory async webhook notifier. Events are queued in a
// bounded channel and delivered by a worker pool; when the buffer is full or
// the destination's circuit is open, events are dropped.
type Notifier struct {
	queue      chan *webhook.Event
	sender     *webhook.Sender
	breaker    *circuitbreaker.Breaker
	dest       string
	signingKey string
	logger     *slog.Logger
	metrics    MetricsRecorder

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a notifier delivering to cfg.URL. Returns nil when no URL is
// configured; a nil Notifier's methods are safe no-ops.
func New(cfg config.NotifyConfig, metrics MetricsRecorder) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	n := &Notifier{
		queue:  make(chan *webhook.Event, cfg.BufferSize),
		sender: webhook.NewSender(cfg.HTTPTimeout),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		dest:       cfg.URL,
		signingKey: cfg.SigningKey,
		logger:     slog.With("component", "notifier", "destination", hostOf(cfg.URL)),
		metrics:    metrics,
		shutdown:   make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return n
}

// Dispatch queues an event for async delivery. Non-blocking.
func (n *Notifier) Dispatch(event *webhook.Event) error {
	if n == nil {
		return nil
	}
	if n.closed.Load() {
		return fmt.Errorf("notifier is closed")
	}

	select {
	case n.queue <- event:
		return nil
	default:
		n.drop(event, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *Notifier) Stats() Stats {
	if n == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth: len(n.queue),
		Delivered:  n.delivered.Load(),
		Failed:     n.failed.Load(),
		Dropped:    n.dropped.Load(),
	}
}

// Close gracefully shuts down, attempting to deliver queued events. The
// context deadline controls how long to wait for drain.
func (n *Notifier) Close(ctx context.Context) error {
	if n == nil || n.closed.Swap(true) {
		return nil
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-n.queue:
					n.deliver(event)
				default:
					return
				}
			}
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

func (n *Notifier) deliver(event *webhook.Event) {
	if !n.breaker.Allow() {
		n.drop(event, "circuit open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, event); err != nil {
		n.breaker.RecordFailure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Delivery failed", "type", event.Type, "jobId", event.Subject, "error", err)
		return
	}

	n.breaker.RecordSuccess()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, event *webhook.Event) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		lastErr = n.sender.Send(ctx, n.dest, event, n.signingKey)
		if lastErr == nil {
			return nil
		}
		if webhook.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (n *Notifier) drop(event *webhook.Event, reason string) {
	n.dropped.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDropped(context.Background())
	}
	n.logger.Warn("Event dropped", "reason", reason, "type", event.Type, "jobId", event.Subject)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
