// Package registry implements the Worker Registry: the "workers" set of
// every live worker id, the worker:{id} current-job marker, and host-local
// pruning of workers whose process no longer exists.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/emberqueue/ember/internal/redisgw"
	"github.com/emberqueue/ember/internal/stats"
)

const workersSetKey = "workers"

func workerKey(id string) string {
	return "worker:" + id
}

func startedKey(id string) string {
	return "worker:" + id + ":started"
}

// workerRecord is the JSON value stored at worker:{id}: either an empty
// object (idle) or the payload currently assigned to this worker.
type workerRecord struct {
	Payload *job.Payload `json:"payload,omitempty"`
}

// Registry tracks which workers are alive and what each is working on.
type Registry struct {
	gw       *redisgw.Gateway
	counters *stats.Counters
	log      logger.Logger
}

// New creates a Registry over gw.
func New(gw *redisgw.Gateway) *Registry {
	return &Registry{gw: gw, counters: stats.New(gw), log: logger.Default().WithComponent(logger.ComponentRegistry)}
}

// Register adds id to the workers set and records its start time. Called
// once at worker startup.
func (r *Registry) Register(ctx context.Context, id string) error {
	if err := r.gw.SAdd(ctx, workersSetKey, id); err != nil {
		return fmt.Errorf("failed to register worker %s: %w", id, err)
	}
	if err := r.gw.Set(ctx, startedKey(id), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record start time for worker %s: %w", id, err)
	}
	return r.WorkingOn(ctx, id, nil)
}

// Unregister removes id from the workers set, clears its markers, and
// clears its per-worker processed/failed counters. It does not inspect or
// report whatever job the worker was holding; callers doing a dirty-exit
// sweep should read CurrentJob first and record the failure before calling
// Unregister.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if err := r.gw.SRem(ctx, workersSetKey, id); err != nil {
		return fmt.Errorf("failed to unregister worker %s: %w", id, err)
	}
	if err := r.gw.Del(ctx, workerKey(id), startedKey(id)); err != nil {
		return fmt.Errorf("failed to clear markers for worker %s: %w", id, err)
	}
	if err := r.counters.Clear(ctx, id); err != nil {
		return fmt.Errorf("failed to clear counters for worker %s: %w", id, err)
	}
	return nil
}

// WorkingOn records that id is currently holding payload. A nil payload
// records the idle state, used at startup and after each job completes.
func (r *Registry) WorkingOn(ctx context.Context, id string, payload *job.Payload) error {
	rec := workerRecord{Payload: payload}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal worker record for %s: %w", id, err)
	}
	return r.gw.Set(ctx, workerKey(id), string(data))
}

// DoneWorking clears id's current-job marker back to idle.
func (r *Registry) DoneWorking(ctx context.Context, id string) error {
	return r.WorkingOn(ctx, id, nil)
}

// CurrentJob returns the payload id is currently holding, or nil if idle
// or the record is missing.
func (r *Registry) CurrentJob(ctx context.Context, id string) (*job.Payload, error) {
	data, ok, err := r.gw.Get(ctx, workerKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read worker record for %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	var rec workerRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker record for %s: %w", id, err)
	}
	return rec.Payload, nil
}

// All returns every worker id currently in the registry.
func (r *Registry) All(ctx context.Context) ([]string, error) {
	return r.gw.SMembers(ctx, workersSetKey)
}

// Exists reports whether id is currently registered.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	return r.gw.SIsMember(ctx, workersSetKey, id)
}
