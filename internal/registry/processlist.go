package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/status"
)

// PruneDeadWorkers removes every registered worker whose host matches this
// host and whose pid no longer exists as a running process. Pruning is
// host-local by construction: a worker on another host isn't something
// this process can check via /proc, so its absence here is not evidence
// it's dead. Any job the dead worker was holding is marked FAILED with a
// dirty-exit cause before the worker record is removed, the same handling
// a worker gives its own crashed child.
func (r *Registry) PruneDeadWorkers(ctx context.Context, statusStore *status.Store, localHost string, ownPID int) (int, error) {
	ids, err := r.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list workers: %w", err)
	}

	localHost = job.CanonicalHost(localHost)
	pruned := 0
	for _, id := range ids {
		identity, err := job.ParseIdentity(id)
		if err != nil {
			r.log.Warn("skipping malformed worker id during prune", "id", id, "error", err)
			continue
		}
		if job.CanonicalHost(identity.Host) != localHost {
			continue
		}
		if identity.PID == ownPID {
			continue
		}
		alive, err := process.PidExistsWithContext(ctx, int32(identity.PID))
		if err != nil {
			r.log.Warn("failed to check process liveness during prune", "pid", identity.PID, "error", err)
			continue
		}
		if alive {
			continue
		}

		if statusStore != nil {
			if payload, err := r.CurrentJob(ctx, id); err != nil {
				r.log.Warn("failed to read current job for dead worker", "worker", id, "error", err)
			} else if payload != nil {
				cause := &status.Cause{
					Class:   payload.Class,
					Message: "worker exited without updating job status (dirty exit, detected during prune)",
					Queue:   payload.Queue,
				}
				if err := statusStore.SetFailed(ctx, payload.ID, cause); err != nil {
					r.log.Warn("failed to record dirty-exit status for pruned worker's job", "worker", id, "job", payload.ID, "error", err)
				}
			}
		}

		if err := r.Unregister(ctx, id); err != nil {
			r.log.Warn("failed to unregister dead worker", "worker", id, "error", err)
			continue
		}
		r.log.Info("pruned dead worker", "worker", id, "pid", identity.PID)
		pruned++
	}
	return pruned, nil
}

// Hostname returns the local canonical hostname, the host component every
// worker identity on this machine is registered under.
func Hostname() (string, error) {
	h, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to determine hostname: %w", err)
	}
	return job.CanonicalHost(h), nil
}
