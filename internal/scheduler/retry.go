package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/logger"
	"github.com/redis/go-redis/v9"
)

const retryScheduledKey = "ember:retry:scheduled"

// RetryMover promotes jobs whose exponential-backoff retry time has
// arrived from the delayed-retry sorted set back onto their origin queue.
// The member stored in the set is the job's full encoded Payload, scored
// by the unix timestamp it becomes eligible to run again - a re-enqueued
// attempt starts a fresh WAITING->RUNNING->terminal chain, so resetting a
// FAILED-pending-retry job back to WAITING does not violate the
// monotonic status invariant.
type RetryMover struct {
	client *redis.Client
	queue  Enqueuer
	log    logger.Logger
}

// NewRetryMover creates a RetryMover over client, re-enqueueing ready jobs
// through queue.
func NewRetryMover(client *redis.Client, queue Enqueuer) *RetryMover {
	return &RetryMover{
		client: client,
		queue:  queue,
		log:    logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// ScheduleRetry delays payload's re-enqueue by delay, recording it in the
// sorted set for a future MoveDue call to pick up.
func (m *RetryMover) ScheduleRetry(ctx context.Context, p *job.Payload, delay time.Duration) error {
	data, err := p.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode job for retry: %w", err)
	}
	readyAt := time.Now().Add(delay).Unix()
	if err := m.client.ZAdd(ctx, retryScheduledKey, redis.Z{
		Score:  float64(readyAt),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", p.ID, err)
	}
	return nil
}

// MoveDue re-enqueues every job whose retry time has arrived, returning the
// count moved.
func (m *RetryMover) MoveDue(ctx context.Context) (int, error) {
	now := time.Now().Unix()

	members, err := m.client.ZRangeByScore(ctx, retryScheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query due retries: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	moved := 0
	for _, raw := range members {
		p, err := job.Decode([]byte(raw))
		if err != nil {
			m.log.Warn("discarding malformed retry entry", "error", err)
			if remErr := m.client.ZRem(ctx, retryScheduledKey, raw).Err(); remErr != nil {
				m.log.Warn("failed to remove malformed retry entry", "error", remErr)
			}
			continue
		}

		if err := m.queue.Enqueue(ctx, p); err != nil {
			m.log.Error("failed to re-enqueue retried job", "job", p.ID, "error", err)
			continue
		}
		if err := m.client.ZRem(ctx, retryScheduledKey, raw).Err(); err != nil {
			m.log.Warn("failed to remove re-enqueued retry entry", "job", p.ID, "error", err)
			continue
		}

		m.log.Info("moved delayed retry back to queue", "job", p.ID, "queue", p.Queue)
		moved++
	}

	return moved, nil
}
