package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/health", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/jobs", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/jobs/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/jobs/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "GET", "/version", 200, 0.001)
}

func TestRecordJobAndStageMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobCreated(ctx)
	metrics.RecordJobFinished(ctx, true, 95.5)
	metrics.RecordJobCreated(ctx)
	metrics.RecordJobFinished(ctx, false, 12.0)
	metrics.RecordStage(ctx, "discover", "recovered", 2.5)
	metrics.RecordStage(ctx, "synthesize", "success", 8.0)
	metrics.RecordStage(ctx, "publish", "skipped", 0)
	metrics.RecordListingUploaded(ctx)
	metrics.RecordListingUploadFailed(ctx)
	metrics.RecordNotifyDelivered(ctx, 0.05)
	metrics.RecordNotifyFailed(ctx)
	metrics.RecordNotifyDropped(ctx)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/version", "/version"},
		{"/jobs", "/jobs"},
		{"/jobs/abc123", "/jobs/{jobId}"},
		{"/jobs/xyz-789-def", "/jobs/{jobId}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
