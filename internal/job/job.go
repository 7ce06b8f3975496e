// Package job defines the job record, the bounded in-memory record store, and
// the service that starts pipeline runs and answers status polls.
package job

import "time"

// Status is the lifecycle state of a job. Transitions are one-way:
// running -> completed or running -> failed, never out of a terminal state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Log entry types.
const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogWarning = "warning"
	LogError   = "error"
)

// LogEntry is one append-only log line on a job record.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // RFC3339
	Message   string `json:"message"`
	Type      string `json:"type"` // info|success|warning|error
	Step      int    `json:"step"`
}

// Record is the full state of one pipeline run as seen by polling clients.
// Timestamps are epoch milliseconds to match the browser client.
type Record struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
	CurrentStep int        `json:"currentStep"`
	Progress    int        `json:"progress"`
	Logs        []LogEntry `json:"logs"`
	Error       *string    `json:"error"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// clone returns a deep copy safe to hand to readers while the original keeps
// being mutated by the run.
func (r *Record) clone() Record {
	c := *r
	c.Logs = make([]LogEntry, len(r.Logs))
	copy(c.Logs, r.Logs)
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return c
}
