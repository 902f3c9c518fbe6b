package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/emberqueue/ember/internal/child"
	ijob "github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/emberqueue/ember/internal/metrics"
	"github.com/emberqueue/ember/internal/queue"
	"github.com/emberqueue/ember/internal/redisgw"
	"github.com/emberqueue/ember/internal/registry"
	"github.com/emberqueue/ember/internal/signals"
	"github.com/emberqueue/ember/internal/stats"
	"github.com/emberqueue/ember/internal/status"
)

// Options configures a Worker.
type Options struct {
	Queues      []string // declared queue list, in priority order; "*" is the wildcard
	Blocking    bool     // use ReserveBlocking instead of polled Reserve
	Interval    time.Duration
	PerformFlag string        // argv flag the self-exec child recognizes, e.g. "--perform-job"
	JobTimeout  time.Duration // zero means no timeout
	ParentPID   int           // pid of the launching supervisor process, if any; 0 means this worker has no parent to monitor
}

// Worker runs the reserve -> fork -> execute -> reap -> account loop for
// one worker process. It owns exactly one child at a time, matching the
// original single-process-per-worker model.
type Worker struct {
	id       ijob.Identity
	opts     Options
	gw       *redisgw.Gateway
	queues   *queue.Queues
	reg      *registry.Registry
	statuses *status.Store
	counters *stats.Counters
	sup      *child.Supervisor
	log      logger.Logger

	shuttingDownNow      atomic.Bool
	shuttingDownGraceful atomic.Bool
	paused               atomic.Bool
}

// New builds a Worker bound to the given declared queues and identity.
func New(id ijob.Identity, opts Options, gw *redisgw.Gateway) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.PerformFlag == "" {
		opts.PerformFlag = "--perform-job"
	}
	return &Worker{
		id:       id,
		opts:     opts,
		gw:       gw,
		queues:   queue.New(gw),
		reg:      registry.New(gw),
		statuses: status.NewStore(gw, 0),
		counters: stats.New(gw),
		sup:      child.NewSupervisor(os.Args[0], opts.PerformFlag),
		log:      logger.Default().WithComponent(logger.ComponentWorker),
	}
}

// ControlHandlers returns the signals.Handlers that wire this worker's
// control plane to os/signal.
func (w *Worker) ControlHandlers() signals.Handlers {
	return signals.Handlers{
		ShutdownNow:      func() { w.shuttingDownNow.Store(true); _ = w.sup.Kill() },
		ShutdownGraceful: func() { w.shuttingDownGraceful.Store(true) },
		KillChild:        func() { _ = w.sup.Kill() },
		Pause:            func() { w.paused.Store(true) },
		Resume:           func() { w.paused.Store(false) },
	}
}

// Run executes the worker main loop until shut down. It registers the
// worker on entry and unregisters it on every exit path, including a
// shutdown mid-job, so the registry never retains a stale entry for a
// worker that is actually gone.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.reg.Register(ctx, w.id.String()); err != nil {
		return fmt.Errorf("failed to register worker %s: %w", w.id, err)
	}
	defer func() {
		if err := w.reg.Unregister(context.Background(), w.id.String()); err != nil {
			w.log.Warn("failed to unregister on exit", "worker", w.id.String(), "error", err)
		}
	}()

	w.log.Info("worker starting", "worker", w.id.String(), "queues", w.id.Queues, "blocking", w.opts.Blocking)

	for {
		if w.shuttingDownNow.Load() {
			w.log.Info("shutting down immediately", "worker", w.id.String())
			return nil
		}
		if w.shuttingDownGraceful.Load() {
			w.log.Info("graceful shutdown: no more jobs will be reserved", "worker", w.id.String())
			return nil
		}
		if w.paused.Load() {
			time.Sleep(w.opts.Interval)
			continue
		}

		if w.opts.ParentPID != 0 {
			if gone, err := w.parentGone(ctx); err != nil {
				w.log.Warn("failed to check parent process liveness", "parentPid", w.opts.ParentPID, "error", err)
			} else if gone {
				w.log.Info("parent process gone, shutting down", "worker", w.id.String(), "parentPid", w.opts.ParentPID)
				return nil
			}
		}

		if err := w.gw.Ping(ctx); err != nil {
			if redisgw.Disconnected(err) {
				w.log.Warn("redis connection lost, retrying", "error", err)
				time.Sleep(w.opts.Interval)
				continue
			}
			return fmt.Errorf("redis ping failed: %w", err)
		}

		payload, err := w.reserve(ctx)
		if err != nil {
			if redisgw.Disconnected(err) {
				w.log.Warn("redis error during reservation, retrying", "error", err)
				time.Sleep(w.opts.Interval)
				continue
			}
			return fmt.Errorf("reservation failed: %w", err)
		}
		if payload == nil {
			if !w.opts.Blocking {
				time.Sleep(w.opts.Interval)
			}
			continue
		}

		w.runOne(ctx, payload)
	}
}

// parentGone reports whether the supervisor process that launched this
// worker (opts.ParentPID) is no longer running, the same host-local
// liveness check the dead-worker pruner uses for other workers' pids.
func (w *Worker) parentGone(ctx context.Context) (bool, error) {
	alive, err := process.PidExistsWithContext(ctx, int32(w.opts.ParentPID))
	if err != nil {
		return false, err
	}
	return !alive, nil
}

func (w *Worker) reserve(ctx context.Context) (*ijob.Payload, error) {
	if w.opts.Blocking {
		return w.queues.ReserveBlocking(ctx, w.opts.Queues, w.opts.Interval)
	}
	return w.queues.Reserve(ctx, w.opts.Queues)
}

// runOne reserves having already happened; this executes payload through a
// child process and records its terminal outcome.
func (w *Worker) runOne(ctx context.Context, payload *ijob.Payload) {
	started := time.Now()
	id := w.id.String()

	if err := w.reg.WorkingOn(ctx, id, payload); err != nil {
		w.log.Warn("failed to record current job", "worker", id, "job", payload.ID, "error", err)
	}
	if err := w.statuses.SetRunning(ctx, payload.ID, started); err != nil {
		w.log.Warn("failed to record running status", "job", payload.ID, "error", err)
	}
	metrics.Default().RecordJobStarted(payload.Queue)

	runCtx := ctx
	var cancel context.CancelFunc
	if w.opts.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.opts.JobTimeout)
		defer cancel()
	}

	outcome, err := w.sup.RunJob(runCtx, payload)
	duration := time.Since(started)

	defer func() {
		if derr := w.reg.DoneWorking(ctx, id); derr != nil {
			w.log.Warn("failed to clear current job", "worker", id, "error", derr)
		}
	}()

	if err != nil {
		w.log.Error("failed to run child process", "job", payload.ID, "error", err)
		w.fail(ctx, payload, "worker failed to launch child process: "+err.Error())
		return
	}

	switch {
	case outcome.DirtyExit:
		w.log.Error("job exited without reporting a status", "job", payload.ID, "signal", outcome.Signal, "exitCode", outcome.ExitCode)
		cause := &status.Cause{
			Class:   payload.Class,
			Message: dirtyExitDetail(outcome),
			Queue:   payload.Queue,
		}
		if err := w.statuses.SetFailed(ctx, payload.ID, cause); err != nil {
			w.log.Warn("failed to record dirty-exit status", "job", payload.ID, "error", err)
		}
		w.recordFailed(ctx)
		w.pushFailedRecord(ctx, payload, cause.Message)
		metrics.Default().RecordJobFailed(duration)

	case outcome.Success:
		w.log.Info("job completed", "job", payload.ID, "duration", duration)
		if err := w.statuses.SetComplete(ctx, payload.ID, outcome.Result); err != nil {
			w.log.Warn("failed to record completed status", "job", payload.ID, "error", err)
		}
		w.recordProcessed(ctx)
		metrics.Default().RecordJobCompleted(duration)

	default:
		w.log.Warn("job failed", "job", payload.ID, "error", outcome.ErrorMessage)
		w.fail(ctx, payload, outcome.ErrorMessage)
		metrics.Default().RecordJobFailed(duration)
	}
}

func (w *Worker) fail(ctx context.Context, payload *ijob.Payload, msg string) {
	cause := &status.Cause{Class: payload.Class, Message: msg, Queue: payload.Queue}
	if err := w.statuses.SetFailed(ctx, payload.ID, cause); err != nil {
		w.log.Warn("failed to record failed status", "job", payload.ID, "error", err)
	}
	w.recordFailed(ctx)
	w.pushFailedRecord(ctx, payload, msg)
}

func (w *Worker) recordProcessed(ctx context.Context) {
	if err := w.counters.IncrProcessed(ctx, w.id.String()); err != nil {
		w.log.Warn("failed to increment processed counters", "error", err)
	}
}

func (w *Worker) recordFailed(ctx context.Context) {
	if err := w.counters.IncrFailed(ctx, w.id.String()); err != nil {
		w.log.Warn("failed to increment failed counters", "error", err)
	}
}

type failedRecord struct {
	JobID    string `json:"job_id"`
	Class    string `json:"class"`
	Queue    string `json:"queue"`
	Worker   string `json:"worker"`
	Error    string `json:"error"`
	FailedAt string `json:"failed_at"`
}

func (w *Worker) pushFailedRecord(ctx context.Context, payload *ijob.Payload, reason string) {
	data, err := json.Marshal(failedRecord{
		JobID:    payload.ID,
		Class:    payload.Class,
		Queue:    payload.Queue,
		Worker:   w.id.String(),
		Error:    reason,
		FailedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		w.log.Warn("failed to marshal failed record", "job", payload.ID, "error", err)
		return
	}
	if err := w.queues.PushFailed(ctx, string(data)); err != nil {
		w.log.Warn("failed to append to failed list", "job", payload.ID, "error", err)
	}
}

// dirtyExitDetail renders the cause message for a dirty exit: a non-zero
// exit code reports the code, a signaled or core-dumped child reports as
// having exited abnormally.
func dirtyExitDetail(outcome child.Outcome) string {
	if outcome.Signaled {
		return "Job exited abnormally"
	}
	return fmt.Sprintf("Job exited with exit code %d", outcome.ExitCode)
}
