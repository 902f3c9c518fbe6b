// Package main provides the ember-worker binary: the worker main loop in
// normal mode, and a --perform-job subprocess entrypoint that the worker
// re-execs itself into to run exactly one job in isolation.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/emberqueue/ember/internal/child"
	"github.com/emberqueue/ember/internal/config"
	ijob "github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/emberqueue/ember/internal/metrics"
	"github.com/emberqueue/ember/internal/redisgw"
	"github.com/emberqueue/ember/internal/registry"
	"github.com/emberqueue/ember/internal/signals"
	"github.com/emberqueue/ember/internal/status"
	"github.com/emberqueue/ember/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	workerCfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load worker config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(workerCfg, cfg)

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	if performJob {
		runPerformJob(workerCfg)
		return
	}

	runWorker(cfg, workerCfg)
}

var (
	performJob bool
	parentPID  int
)

// applyFlags parses the CLI surface and overrides env-derived defaults.
// Flag parsing happens after LoadWorkerConfig so env vars still supply
// defaults for flags the operator doesn't pass.
func applyFlags(workerCfg *config.WorkerConfig, cfg *config.Config) {
	fs := flag.NewFlagSet("ember-worker", flag.ExitOnError)

	var queues string
	fs.StringVar(&queues, "queues", strings.Join(workerCfg.Queues, ","), "comma-separated queue list, in priority order (\"*\" for all queues)")
	fs.BoolVar(&workerCfg.Blocking, "blocking", workerCfg.Blocking, "use BRPOP-based reservation instead of polled scanning")
	fs.DurationVar(&workerCfg.Interval, "interval", workerCfg.Interval, "poll sleep / BRPOP timeout")
	fs.IntVar(&workerCfg.Count, "count", workerCfg.Count, "number of worker processes to launch")
	fs.DurationVar(&workerCfg.JobTimeout, "job-timeout", workerCfg.JobTimeout, "per-job execution timeout (0 = no limit)")
	fs.StringVar(&workerCfg.RedisURL, "redis-url", workerCfg.RedisURL, "redis connection URL")
	fs.StringVar(&workerCfg.PerformFlag, "perform-flag", workerCfg.PerformFlag, "argv flag the self-exec child recognizes")
	fs.BoolVar(&performJob, "perform-job", false, "internal: run as a self-exec child performing one job read from stdin")
	fs.IntVar(&parentPID, "parent-pid", 0, "internal: pid of the launching worker process to monitor for orphaning (0 = none)")

	var logLevel, logFormat string
	fs.StringVar(&logLevel, "log-level", string(cfg.Logging.Level), "log level: debug, info, warn, error")
	fs.StringVar(&logFormat, "log-format", string(cfg.Logging.Format), "log format: text, json")

	_ = fs.Parse(os.Args[1:])

	if queues != "" {
		parts := strings.Split(queues, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if q := strings.TrimSpace(p); q != "" {
				trimmed = append(trimmed, q)
			}
		}
		workerCfg.Queues = trimmed
	}
	if logLevel != "" {
		cfg.Logging.Level = logger.LogLevel(logLevel)
	}
	if logFormat != "" {
		cfg.Logging.Format = logger.LogFormat(logFormat)
	}
	cfg.RedisURL = workerCfg.RedisURL

	if err := workerCfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid worker configuration: %v\n", err)
		os.Exit(1)
	}
}

// runPerformJob is the --perform-job subprocess entrypoint: read one job
// payload from stdin, run its registered handler, and write the terminal
// report as a JSON line to stdout. It never touches Redis directly.
func runPerformJob(workerCfg *config.WorkerConfig) {
	stdin, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read job payload from stdin: %v\n", err)
		os.Exit(1)
	}

	handlers := worker.NewHandlerRegistry()
	handlers.Register("count_items", worker.HandleCountItems)
	handlers.Register("send_email", worker.HandleSendEmail)
	handlers.Register("process_data", worker.HandleProcessData)

	report := child.Perform(context.Background(), stdin, workerCfg.JobTimeout, handlers.Execute)
	if _, err := os.Stdout.Write(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write job report: %v\n", err)
		os.Exit(1)
	}
}

// runWorker launches workerCfg.Count worker processes (this process is the
// first; additional ones are self-exec'd copies), each registering under
// its own pid and running the reserve/dispatch/account loop until a
// shutdown signal arrives.
func runWorker(cfg *config.Config, workerCfg *config.WorkerConfig) {
	log := logger.Default().WithComponent(logger.ComponentWorker).WithSource(logger.LogSourceInternal)

	if workerCfg.Count > 1 {
		launchAdditionalProcesses(workerCfg, log)
	}

	gw, err := redisgw.Dial(workerCfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Warn("failed to close redis connection", "error", err)
		}
	}()

	hostname, err := registry.Hostname()
	if err != nil {
		log.Error("failed to determine hostname", "error", err)
		os.Exit(1)
	}
	id := ijob.Identity{Host: hostname, PID: os.Getpid(), Queues: workerCfg.Queues}

	w := worker.New(id, worker.Options{
		Queues:      workerCfg.Queues,
		Blocking:    workerCfg.Blocking,
		Interval:    workerCfg.Interval,
		PerformFlag: workerCfg.PerformFlag,
		JobTimeout:  workerCfg.JobTimeout,
		ParentPID:   parentPID,
	}, gw)

	watcher := signals.Watch(w.ControlHandlers())
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(gw)
	statuses := status.NewStore(gw, cfg.StatusTTL)
	go runDeadWorkerPruner(ctx, reg, statuses, id, log)
	go logMetricsPeriodically(ctx, log)

	log.Info("worker starting", "worker", id.String(), "queues", workerCfg.Queues, "config", workerCfg.String())

	if err := w.Run(ctx); err != nil {
		log.Error("worker exited with error", "worker", id.String(), "error", err)
		os.Exit(1)
	}
	log.Info("worker shut down", "worker", id.String())
}

// launchAdditionalProcesses starts workerCfg.Count-1 more copies of this
// binary, each inheriting the same flags but left to generate its own pid
// at Identity construction time. Each additional process's lifetime is
// independent: this process does not wait on them, but each is told this
// process's pid so it can detect orphaning and shut itself down if this
// launching process dies first.
func launchAdditionalProcesses(workerCfg *config.WorkerConfig, log logger.Logger) {
	for i := 1; i < workerCfg.Count; i++ {
		args := append([]string{}, os.Args[1:]...)
		args = append(args, "-count", "1", "-parent-pid", fmt.Sprintf("%d", os.Getpid()))
		cmd := selfExecCommand(args)
		if err := cmd.Start(); err != nil {
			log.Error("failed to launch additional worker process", "index", i, "error", err)
			continue
		}
		log.Info("launched additional worker process", "index", i, "pid", cmd.Process.Pid)
	}
}

func runDeadWorkerPruner(ctx context.Context, reg *registry.Registry, statuses *status.Store, id ijob.Identity, log logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := reg.PruneDeadWorkers(ctx, statuses, id.Host, id.PID)
			if err != nil {
				log.Warn("dead-worker prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				log.Info("pruned dead workers", "count", pruned)
			}
		}
	}
}

func logMetricsPeriodically(ctx context.Context, log logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := metrics.GetMetrics()
			log.Info("system metrics",
				"jobs_processed", m.TotalJobsProcessed,
				"jobs_completed", m.TotalJobsCompleted,
				"jobs_failed", m.TotalJobsFailed,
				"avg_duration_ms", m.AvgJobDuration.Milliseconds(),
				"error_rate", fmt.Sprintf("%.2f%%", m.ErrorRate),
				"uptime", m.Uptime.String(),
			)
		}
	}
}

// selfExecCommand builds a Cmd that re-invokes this binary with args,
// sharing stdio with the parent so additional worker processes log
// visibly alongside the launching one.
func selfExecCommand(args []string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd
}
