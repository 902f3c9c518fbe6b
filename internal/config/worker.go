package config

import (
	"fmt"
	"strings"
	"time"
)

// WorkerConfig holds the configuration for a single `ember-worker` process:
// the queues it reserves from, how it reserves (polled or blocking), and
// the self-exec/job-timeout knobs that drive the child supervisor.
type WorkerConfig struct {
	// Queues is the declared queue list, in priority order. A single
	// entry of "*" means every queue currently known to Redis, resolved
	// fresh on each reservation.
	Queues []string

	// Blocking selects BRPOP-based reservation over the polled,
	// ordered-list-scan reservation. BRPOP serves the first non-empty
	// queue in declared order, so blocking mode keeps the same
	// priority order as polling.
	Blocking bool

	// Interval is the sleep between empty polled reservations, and the
	// BRPOP timeout in blocking mode.
	Interval time.Duration

	// Count is the number of worker processes this invocation should
	// launch, each registering under its own pid. Count > 1 is the Go
	// analogue of Resque's multi-process worker pool; each process
	// still owns exactly one child job at a time.
	Count int

	// JobTimeout bounds a single job's execution; zero means no limit.
	JobTimeout time.Duration

	// PerformFlag is the argv flag the self-exec child process
	// recognizes to enter perform-job mode instead of the worker loop.
	PerformFlag string

	// RedisURL overrides the ambient Config.RedisURL when set from a
	// worker-specific flag or environment variable.
	RedisURL string
}

// LoadWorkerConfig loads worker configuration from environment variables.
// Values are later overridden by CLI flags in cmd/ember-worker.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		Queues:      getEnvAsStringSlice("EMBER_QUEUES", []string{"default"}),
		Blocking:    getEnvAsBool("EMBER_BLOCKING", false),
		Interval:    getEnvAsDuration("EMBER_INTERVAL", 5*time.Second),
		Count:       getEnvAsInt("EMBER_COUNT", 1),
		JobTimeout:  getEnvAsDuration("JOB_TIMEOUT", 0),
		PerformFlag: getEnv("EMBER_PERFORM_FLAG", "--perform-job"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the worker configuration for obviously broken values.
func (c *WorkerConfig) Validate() error {
	if len(c.Queues) == 0 {
		return fmt.Errorf("worker must declare at least one queue (use \"*\" for all queues)")
	}
	for _, q := range c.Queues {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("queue name cannot be empty")
		}
	}
	if len(c.Queues) > 1 {
		for _, q := range c.Queues {
			if q == "*" {
				return fmt.Errorf("wildcard queue \"*\" cannot be combined with other queue names")
			}
		}
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 (got %v)", c.Interval)
	}
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1 (got %d)", c.Count)
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("job timeout cannot be negative")
	}
	if c.PerformFlag == "" || !strings.HasPrefix(c.PerformFlag, "--") {
		return fmt.Errorf("perform flag must be a long flag, e.g. --perform-job (got %q)", c.PerformFlag)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis URL cannot be empty")
	}
	return nil
}

// String returns a human-readable description of the worker config, logged
// once on startup.
func (c *WorkerConfig) String() string {
	mode := "polled"
	if c.Blocking {
		mode = "blocking"
	}
	return fmt.Sprintf(
		"WorkerConfig{queues=%s, mode=%s, interval=%v, count=%d, jobTimeout=%v}",
		strings.Join(c.Queues, ","), mode, c.Interval, c.Count, c.JobTimeout,
	)
}
