// Package stats implements the processed/failed counters the required
// Resque protocol keeps in Redis: a global pair and a per-worker pair.
package stats

import (
	"context"
	"fmt"

	"github.com/emberqueue/ember/internal/redisgw"
)

const (
	globalProcessedKey = "stat:processed"
	globalFailedKey    = "stat:failed"
)

func perWorkerProcessedKey(id string) string {
	return "stat:processed:" + id
}

func perWorkerFailedKey(id string) string {
	return "stat:failed:" + id
}

// Counters increments the processed/failed counters a worker reports
// through over its lifetime.
type Counters struct {
	gw *redisgw.Gateway
}

// New creates a Counters over gw.
func New(gw *redisgw.Gateway) *Counters {
	return &Counters{gw: gw}
}

// IncrProcessed increments both the global and per-worker processed
// counters for a job that completed successfully.
func (c *Counters) IncrProcessed(ctx context.Context, workerID string) error {
	if _, err := c.gw.Incr(ctx, globalProcessedKey); err != nil {
		return fmt.Errorf("failed to increment global processed counter: %w", err)
	}
	if _, err := c.gw.Incr(ctx, perWorkerProcessedKey(workerID)); err != nil {
		return fmt.Errorf("failed to increment processed counter for %s: %w", workerID, err)
	}
	return nil
}

// IncrFailed increments both the global and per-worker failed counters for
// a job that ended in failure (terminal or dirty-exit).
func (c *Counters) IncrFailed(ctx context.Context, workerID string) error {
	if _, err := c.gw.Incr(ctx, globalFailedKey); err != nil {
		return fmt.Errorf("failed to increment global failed counter: %w", err)
	}
	if _, err := c.gw.Incr(ctx, perWorkerFailedKey(workerID)); err != nil {
		return fmt.Errorf("failed to increment failed counter for %s: %w", workerID, err)
	}
	return nil
}

// Clear removes a worker's per-worker counters, called as part of
// Unregister so a dead worker's stats don't linger forever.
func (c *Counters) Clear(ctx context.Context, workerID string) error {
	return c.gw.Del(ctx, perWorkerProcessedKey(workerID), perWorkerFailedKey(workerID))
}

// Snapshot is the read-only stats view the external Stats Read API
// collaborator consumes.
type Snapshot struct {
	Processed int64
	Failed    int64
}

// Global returns the process-wide processed/failed totals.
func (c *Counters) Global(ctx context.Context) (Snapshot, error) {
	return c.read(ctx, globalProcessedKey, globalFailedKey)
}

// ForWorker returns one worker's processed/failed totals.
func (c *Counters) ForWorker(ctx context.Context, workerID string) (Snapshot, error) {
	return c.read(ctx, perWorkerProcessedKey(workerID), perWorkerFailedKey(workerID))
}

func (c *Counters) read(ctx context.Context, processedKey, failedKey string) (Snapshot, error) {
	var snap Snapshot
	if v, ok, err := c.gw.Get(ctx, processedKey); err != nil {
		return snap, err
	} else if ok {
		fmt.Sscanf(v, "%d", &snap.Processed)
	}
	if v, ok, err := c.gw.Get(ctx, failedKey); err != nil {
		return snap, err
	} else if ok {
		fmt.Sscanf(v, "%d", &snap.Failed)
	}
	return snap, nil
}
