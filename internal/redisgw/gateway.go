// Package redisgw wraps go-redis/v9 in the narrow surface the worker
// runtime needs: connect once, expose the handful of commands the queue,
// status, registry, and stats components issue, and let callers tell a
// dropped connection apart from every other kind of failure so they can
// own their own reconnection policy.
package redisgw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gateway is a thin facade over a *redis.Client, sized for a long-running
// worker process: one connection pool, opened once at startup, reused for
// the life of the process.
type Gateway struct {
	client *redis.Client
}

// Dial parses redisURL and opens a connection pool tuned for a worker
// workload: a handful of blocking reservation calls, periodic registry and
// stats writes, and the occasional scheduler lock.
func Dial(redisURL string) (*Gateway, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opts.PoolSize = 25
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 10 * time.Minute
	opts.PoolTimeout = 5 * time.Second
	opts.MaxRetries = 0 // reconnection policy belongs to the worker loop, not the client
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 30 * time.Second // long enough to cover a BRPOP wait
	opts.WriteTimeout = 3 * time.Second
	opts.ContextTimeoutEnabled = true

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Gateway{client: client}, nil
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.client.Close()
}

// Ping checks liveness. The Worker Loop calls this on every iteration that
// is not paused, before reserving, to decide whether it has lost the
// connection.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Disconnected reports whether err represents a lost connection (as
// opposed to a command-level error like a type mismatch), the distinction
// the Worker Loop's reconnection logic needs.
func Disconnected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	// go-redis surfaces the raw network error text for connection-level
	// failures; anything that isn't its own typed "nil"/"redis:" protocol
	// error is treated as a dropped connection.
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return false
	}
	return !errors.Is(err, redis.Nil)
}

// Client exposes the underlying go-redis client for components (the
// scheduler's lock, cron state and retry mover, and the Result Backend)
// that need a command this facade doesn't wrap.
func (g *Gateway) Client() *redis.Client {
	return g.client
}
