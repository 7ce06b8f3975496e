package job

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of job records retained when no capacity is
// configured.
const DefaultCapacity = 10

// Store is a bounded in-memory job record store. It retains the capacity
// most-recently-created jobs; creating one more evicts the oldest. An evicted
// job that is still running keeps being mutated through its id, but lookups
// for it return not-found. That gap is accepted: the retention bound exists
// to cap memory, not to track every historical run.
//
// All mutation goes through Store methods under one mutex, so a concurrent
// Get can never observe a half-applied update. Records in a terminal state
// are never mutated again.
type Store struct {
	mu       sync.RWMutex
	capacity int
	jobs     map[string]*Record
	order    []string // creation order, oldest first
}

// NewStore creates a store retaining at most capacity jobs.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		jobs:     make(map[string]*Record),
	}
}

// Create inserts a new running record with empty logs, evicting the oldest
// record if the store is at capacity. Returns a snapshot of the new record.
func (s *Store) Create(id string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	rec := &Record{
		ID:        id,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Logs:      []LogEntry{},
	}
	s.jobs[id] = rec
	s.order = append(s.order, id)

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.jobs, oldest)
	}

	return rec.clone()
}

// Get returns a deep-copy snapshot of a record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.jobs[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// AppendLog appends a log entry and refreshes UpdatedAt.
func (s *Store) AppendLog(id, typ string, step int, message string) {
	s.mutate(id, func(rec *Record) {
		rec.Logs = append(rec.Logs, LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Message:   message,
			Type:      typ,
			Step:      step,
		})
	})
}

// SetStep records the stage index currently executing.
func (s *Store) SetStep(id string, step int) {
	s.mutate(id, func(rec *Record) {
		rec.CurrentStep = step
	})
}

// SetProgress updates the coarse progress percentage.
func (s *Store) SetProgress(id string, progress int) {
	s.mutate(id, func(rec *Record) {
		rec.Progress = progress
	})
}

// Complete transitions a running job to completed with progress 100.
func (s *Store) Complete(id string) {
	s.mutate(id, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.Progress = 100
	})
}

// Fail transitions a running job to failed and records the error message.
func (s *Store) Fail(id, message string) {
	s.mutate(id, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = &message
	})
}

// mutate applies fn to a live, non-terminal record. Mutations of unknown or
// terminal records are dropped, which makes terminal state idempotent and
// lets a run of an evicted job finish without resurrecting the record.
func (s *Store) mutate(id string, fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok || rec.Status.Terminal() {
		return
	}
	fn(rec)
	rec.UpdatedAt = nowMillis()
}
