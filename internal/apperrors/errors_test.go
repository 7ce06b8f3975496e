package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("id", "job ID is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "job ID is required" {
		t.Errorf("expected message 'job ID is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "id" {
		t.Errorf("expected field 'id', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "abc123")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job abc123 not found" {
		t.Errorf("expected message 'job abc123 not found', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "job" {
		t.Errorf("expected resource 'job', got %q", appErr.Resource)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	err := Timeout("pipeline", 10*time.Minute)

	if !errors.Is(err, ErrTimeout) {
		t.Error("expected error to match ErrTimeout")
	}
	if err.Error() != "pipeline timed out after 10m0s" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestExternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("connection refused")
	err := External("search.query", cause)

	if !errors.Is(err, ErrExternal) {
		t.Error("expected error to match ErrExternal")
	}
	if err.Error() != "search.query: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("disk full")
	err := Internal("docstore.save", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if err.Error() != "docstore.save: disk full" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "docstore.save" {
		t.Errorf("expected op 'docstore.save', got %q", appErr.Op)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("job", "123"), http.StatusNotFound},
		{"timeout", Timeout("pipeline", time.Minute), http.StatusGatewayTimeout},
		{"external", External("op", fmt.Errorf("fail")), http.StatusBadGateway},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"sentinel validation", ErrValidation, http.StatusBadRequest},
		{"sentinel not found", ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("wrap: %w", NotFound("job", "x")), http.StatusNotFound},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	// Ensure errors.Is works through fmt.Errorf wrapping
	original := NotFound("job", "abc")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrNotFound) {
		t.Error("expected errors.Is to find ErrNotFound through multiple wraps")
	}
}
