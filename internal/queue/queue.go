// Package queue implements the Queue Reservation component: pushing job
// payloads onto per-queue Redis lists and reserving them back off in either
// polled priority order or a single blocking multi-key pop.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/emberqueue/ember/internal/redisgw"
)

const (
	queuesSetKey  = "queues"
	failedListKey = "failed"
)

func queueKey(name string) string {
	return "queue:" + name
}

// Queues wraps the Redis list/set layout the Resque wire protocol requires:
// one list per queue (queue:{name}), and a "queues" set recording every
// queue name that has ever been declared.
type Queues struct {
	gw  *redisgw.Gateway
	log logger.Logger
}

// New creates a Queues reservation/enqueue facade over gw.
func New(gw *redisgw.Gateway) *Queues {
	return &Queues{gw: gw, log: logger.Default().WithComponent(logger.ComponentQueue)}
}

// Enqueue pushes payload onto queue name, registering the queue name in the
// "queues" set if this is the first job ever pushed to it.
func (q *Queues) Enqueue(ctx context.Context, p *job.Payload) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := q.gw.SAdd(ctx, queuesSetKey, p.Queue); err != nil {
		return fmt.Errorf("failed to register queue %s: %w", p.Queue, err)
	}
	if err := q.gw.LPush(ctx, queueKey(p.Queue), string(data)); err != nil {
		return fmt.Errorf("failed to enqueue job %s to %s: %w", p.ID, p.Queue, err)
	}
	return nil
}

// PushFailed appends a failure record to the append-only "failed" list, the
// required Resque dead-letter log.
func (q *Queues) PushFailed(ctx context.Context, record string) error {
	return q.gw.LPush(ctx, failedListKey, record)
}

// resolveQueues expands a declared queue list, re-evaluating the literal
// "*" wildcard against the live "queues" set, lexically sorted, on every
// call, since queues may be declared after the worker starts.
func (q *Queues) resolveQueues(ctx context.Context, declared []string) ([]string, error) {
	hasWildcard := false
	for _, name := range declared {
		if name == "*" {
			hasWildcard = true
			break
		}
	}
	if !hasWildcard {
		return declared, nil
	}
	all, err := q.gw.SMembers(ctx, queuesSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wildcard queue list: %w", err)
	}
	sort.Strings(all)
	return all, nil
}

// Reserve polls the declared queues in order, popping from the first
// non-empty one. Lower-priority queues are starved by design: they are
// only checked once every higher-priority queue comes up empty.
func (q *Queues) Reserve(ctx context.Context, declared []string) (*job.Payload, error) {
	names, err := q.resolveQueues(ctx, declared)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		raw, ok, err := q.gw.RPop(ctx, queueKey(name))
		if err != nil {
			return nil, fmt.Errorf("failed to pop from queue %s: %w", name, err)
		}
		if !ok {
			continue
		}
		p, err := job.Decode([]byte(raw))
		if err != nil {
			q.log.Warn("discarding malformed payload", "queue", name, "error", err)
			continue
		}
		return p, nil
	}
	return nil, nil
}

// ReserveBlocking issues a single atomic multi-key blocking pop across all
// declared queues, passed in declared order; Redis serves the first
// non-empty one, so priority order is kept. Returns nil, nil if timeout
// elapses with nothing available.
func (q *Queues) ReserveBlocking(ctx context.Context, declared []string, timeout time.Duration) (*job.Payload, error) {
	names, err := q.resolveQueues(ctx, declared)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = queueKey(name)
	}
	_, raw, ok, err := q.gw.BRPop(ctx, timeout, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to blocking-pop from %s: %w", strings.Join(names, ","), err)
	}
	if !ok {
		return nil, nil
	}
	p, err := job.Decode([]byte(raw))
	if err != nil {
		q.log.Warn("discarding malformed payload", "error", err)
		return nil, nil
	}
	return p, nil
}
