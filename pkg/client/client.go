// Package client is a minimal enqueue helper: it marshals job arguments to
// JSON and pushes a Payload onto a named queue through the same Redis key
// layout the worker reserves from. It exists to drive the worker end-to-end
// in tests and examples, not as a production producer SDK - any process
// that can write the wire protocol in internal/job can enqueue work.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/queue"
	"github.com/emberqueue/ember/internal/redisgw"
	"github.com/emberqueue/ember/internal/result"
)

// Client submits jobs onto ember queues and, optionally, reads their
// results back from the Result Backend.
type Client struct {
	gw            *redisgw.Gateway
	queue         *queue.Queues
	resultBackend result.Backend
}

// NewClient connects to redisURL and wires a Result Backend with standard
// TTLs (1h success, 24h failure).
func NewClient(redisURL string) (*Client, error) {
	return NewClientWithConfig(redisURL, time.Hour, 24*time.Hour)
}

// NewClientWithConfig connects to redisURL with custom Result Backend TTLs.
func NewClientWithConfig(redisURL string, successTTL, failureTTL time.Duration) (*Client, error) {
	gw, err := redisgw.Dial(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	backend := result.NewRedisBackend(gw.Client(), successTTL, failureTTL)

	return &Client{
		gw:            gw,
		queue:         queue.New(gw),
		resultBackend: backend,
	}, nil
}

// Enqueue marshals args to JSON and pushes a job of the given class onto
// queueName. Returns the generated job ID.
func (c *Client) Enqueue(ctx context.Context, class string, args interface{}, queueName string) (string, error) {
	p, err := job.NewPayload(class, args, queueName)
	if err != nil {
		return "", fmt.Errorf("failed to build payload: %w", err)
	}
	if err := c.queue.Enqueue(ctx, p); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return p.ID, nil
}

// GetResult retrieves the result of a completed job by its ID. Returns nil
// if the job hasn't completed yet or the result has expired.
func (c *Client) GetResult(ctx context.Context, jobID string) (*job.JobResult, error) {
	res, err := c.resultBackend.GetResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res, nil
}

// EnqueueAndWait submits a job and blocks until its result is available or
// timeout elapses. Convenience wrapper for RPC-style task execution.
func (c *Client) EnqueueAndWait(ctx context.Context, class string, args interface{}, queueName string, timeout time.Duration) (*job.JobResult, error) {
	jobID, err := c.Enqueue(ctx, class, args, queueName)
	if err != nil {
		return nil, err
	}

	res, err := c.resultBackend.WaitForResult(ctx, jobID, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for result: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("job did not complete within timeout of %v", timeout)
	}
	return res, nil
}

// Close closes the underlying Redis connections.
func (c *Client) Close() error {
	var resultErr error
	if c.resultBackend != nil {
		resultErr = c.resultBackend.Close()
	}
	if c.gw != nil {
		if err := c.gw.Close(); err != nil {
			return err
		}
	}
	return resultErr
}
