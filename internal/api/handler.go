// Package api provides the HTTP API handlers and routing for the pipeline service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"trendpipe/internal/apperrors"
	"trendpipe/internal/health"
	"trendpipe/internal/job"
	"trendpipe/internal/version"
)

// Handler contains HTTP handlers for the pipeline API
type Handler struct {
	svc    *job.Service
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *job.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:    svc,
		health: healthChecker,
	}
}

// jobResponse wraps a job record for polling clients.
type jobResponse struct {
	Success bool        `json:"success"`
	Job     *job.Record `json:"job"`
}

// errorResponse is the error body shape shared by all job endpoints.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// versionResponse reports build metadata for deployment verification.
type versionResponse struct {
	Version   string `json:"version"`
	Desc      string `json:"desc"`
	Timestamp string `json:"timestamp"`
}

// StartJob handles POST /jobs. The pipeline runs in the background; the
// response returns as soon as the job record exists.
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	resp := h.svc.Start(r.Context())
	h.writeJSON(w, http.StatusAccepted, resp)
}

// GetJob handles GET /jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	rec, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, jobResponse{Success: true, Job: rec})
}

// Health handles GET /health - liveness probe.
// Returns plain OK if the process is alive. Does not check dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the data directory is unavailable or shutdown has begun.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// Version handles GET /version - build metadata for deployment verification.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, versionResponse{
		Version:   version.Version,
		Desc:      version.Desc,
		Timestamp: version.Timestamp(),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// handleError maps service errors to HTTP status codes. Unknown and evicted
// jobs share one not-found shape; callers cannot tell them apart.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if errors.Is(err, apperrors.ErrNotFound) {
		message = "Job not found"
	}

	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, message)
}
