// Package main provides the ember-scheduler binary: the periodic cron
// scheduler and the delayed-retry mover. Both run here, never inside the
// worker process, so a scheduler restart or crash never interrupts job
// reservation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberqueue/ember/internal/config"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/emberqueue/ember/internal/queue"
	"github.com/emberqueue/ember/internal/redisgw"
	"github.com/emberqueue/ember/internal/scheduler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

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

	schedulerLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceInternal)
	schedulerLog.Info("scheduler starting", "redis_url", cfg.RedisURL, "cron_enabled", cfg.CronSchedulerEnabled, "interval", cfg.CronSchedulerInterval)

	gw, err := connectWithRetry(cfg.RedisURL, 5, schedulerLog)
	if err != nil {
		schedulerLog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			schedulerLog.Error("failed to close redis connection", "error", err)
		}
	}()

	queues := queue.New(gw)
	retryMover := scheduler.NewRetryMover(gw.Client(), queues)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cronScheduler *scheduler.CronScheduler
	if cfg.CronSchedulerEnabled {
		registry := scheduler.NewRegistry()

		// Operators register their periodic job definitions here, e.g.:
		// registry.MustRegister(&scheduler.Schedule{
		// 	ID:       "daily-report",
		// 	Cron:     "0 0 * * *",
		// 	Class:    "generate_report",
		// 	Queue:    "default",
		// 	Timezone: "UTC",
		// 	Enabled:  true,
		// })

		cronScheduler = scheduler.NewCronScheduler(registry, queues, gw.Client(), cfg.CronSchedulerInterval)
		schedulerLog.Info("cron scheduler initialized", "schedules", registry.Count())
		go cronScheduler.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go runRetryMover(ctx, retryMover, cfg.CronSchedulerInterval, schedulerLog)

	sig := <-sigChan
	schedulerLog.Info("received shutdown signal", "signal", sig)
	cancel()
	time.Sleep(500 * time.Millisecond)
	schedulerLog.Info("scheduler shut down")
}

func runRetryMover(ctx context.Context, mover *scheduler.RetryMover, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("retry mover monitoring delayed retries")
	for {
		select {
		case <-ticker.C:
			count, err := mover.MoveDue(ctx)
			if err != nil {
				log.Error("error moving due retries", "error", err)
				continue
			}
			if count > 0 {
				log.Info("moved delayed retries to their origin queues", "count", count)
			}
		case <-ctx.Done():
			return
		}
	}
}

// connectWithRetry dials Redis with exponential backoff, since the
// scheduler typically starts alongside Redis in a compose/orchestration
// stack and shouldn't exit just because Redis isn't up yet.
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*redisgw.Gateway, error) {
	var gw *redisgw.Gateway
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		gw, err = redisgw.Dial(redisURL)
		if err == nil {
			return gw, nil
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		log.Warn("failed to connect to redis, retrying", "attempt", attempt+1, "max_attempts", maxRetries, "error", err, "retry_in", delay)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, err)
}
