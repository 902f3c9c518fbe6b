// Package status implements the per-job Status Store: a Redis-persisted,
// TTL-bounded record of where one job is in its lifecycle.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberqueue/ember/internal/redisgw"
)

// Status is one point in the job status DAG: Waiting -> Running ->
// (Complete | Failed). Transitions never go backward; that monotonicity is
// a convention the worker upholds, not something Redis enforces.
type Status string

const (
	Waiting  Status = "waiting"
	Running  Status = "running"
	Complete Status = "completed"
	Failed   Status = "failed"
	// Unknown is returned for a job id with no status key, not stored.
	Unknown Status = "unknown"
)

// Cause describes why a job failed: the failure metadata recorded
// alongside the FAILED status and appended to the `failed` list.
type Cause struct {
	Class     string    `json:"class"`
	Message   string    `json:"message"`
	Trace     string    `json:"trace,omitempty"`
	Queue     string    `json:"queue"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the JSON status record stored at job:{id}:status.
type Record struct {
	Status  Status          `json:"status"`
	Updated time.Time       `json:"updated"`
	Started time.Time       `json:"started,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Cause   *Cause          `json:"cause,omitempty"`
}

// DefaultTTL is how long a status record survives before Redis expires it.
const DefaultTTL = 24 * time.Hour

func key(jobID string) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

// Store reads and writes job status records.
type Store struct {
	gw  *redisgw.Gateway
	ttl time.Duration
}

// NewStore creates a status store with the given TTL. A zero ttl means
// DefaultTTL.
func NewStore(gw *redisgw.Gateway, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{gw: gw, ttl: ttl}
}

// Get reads the status record for a job. A missing key returns
// Record{Status: Unknown}, not an error.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	data, ok, err := s.gw.Get(ctx, key(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read status for %s: %w", jobID, err)
	}
	if !ok {
		return &Record{Status: Unknown}, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status for %s: %w", jobID, err)
	}
	return &rec, nil
}

// Set writes the status record unconditionally (an overwrite, not a
// compare-and-swap); callers are responsible for only moving forward
// through the DAG.
func (s *Store) Set(ctx context.Context, jobID string, rec *Record) error {
	rec.Updated = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal status for %s: %w", jobID, err)
	}
	if err := s.gw.SetEx(ctx, key(jobID), string(data), s.ttl); err != nil {
		return fmt.Errorf("failed to write status for %s: %w", jobID, err)
	}
	return nil
}

// SetWaiting records a freshly-enqueued job.
func (s *Store) SetWaiting(ctx context.Context, jobID string) error {
	return s.Set(ctx, jobID, &Record{Status: Waiting})
}

// SetRunning records that a job has been reserved and is executing.
func (s *Store) SetRunning(ctx context.Context, jobID string, started time.Time) error {
	return s.Set(ctx, jobID, &Record{Status: Running, Started: started})
}

// SetComplete records a successful terminal status.
func (s *Store) SetComplete(ctx context.Context, jobID string, result json.RawMessage) error {
	return s.Set(ctx, jobID, &Record{Status: Complete, Result: result})
}

// SetFailed records a failed terminal status with its cause.
func (s *Store) SetFailed(ctx context.Context, jobID string, cause *Cause) error {
	return s.Set(ctx, jobID, &Record{Status: Failed, Cause: cause})
}
