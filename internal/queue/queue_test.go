package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emberqueue/ember/internal/job"
	"github.com/emberqueue/ember/internal/redisgw"
)

func newTestQueues(t *testing.T) (*Queues, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	gw, err := redisgw.Dial("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return New(gw), s
}

func mustPayload(t *testing.T, class, queueName string) *job.Payload {
	t.Helper()
	p, err := job.NewPayload(class, nil, queueName)
	if err != nil {
		t.Fatalf("failed to build payload: %v", err)
	}
	return p
}

func TestQueues_EnqueueReserve(t *testing.T) {
	q, s := newTestQueues(t)
	ctx := context.Background()

	p := mustPayload(t, "send_email", "default")
	if err := q.Enqueue(ctx, p); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	isMember, err := s.SIsMember("queues", "default")
	if err != nil {
		t.Fatalf("failed to check queues set: %v", err)
	}
	if !isMember {
		t.Error("expected queue \"default\" registered in the queues set")
	}

	got, err := q.Reserve(ctx, []string{"default"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Fatalf("expected to reserve job %s, got %+v", p.ID, got)
	}
}

func TestQueues_Reserve_EmptyQueueReturnsNil(t *testing.T) {
	q, _ := newTestQueues(t)
	got, err := q.Reserve(context.Background(), []string{"default"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for an empty queue, got %+v", got)
	}
}

func TestQueues_Reserve_HigherPriorityQueueWinsFirst(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	low := mustPayload(t, "low_job", "low")
	high := mustPayload(t, "high_job", "high")
	if err := q.Enqueue(ctx, low); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, high); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := q.Reserve(ctx, []string{"high", "low"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if first == nil || first.ID != high.ID {
		t.Fatalf("expected high-priority job reserved first, got %+v", first)
	}

	second, err := q.Reserve(ctx, []string{"high", "low"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if second == nil || second.ID != low.ID {
		t.Fatalf("expected low-priority job reserved second, got %+v", second)
	}
}

func TestQueues_Reserve_WildcardResolvesAllDeclaredQueues(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	alpha := mustPayload(t, "job", "alpha")
	beta := mustPayload(t, "job", "beta")
	if err := q.Enqueue(ctx, alpha); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, beta); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := q.Reserve(ctx, []string{"*"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if first == nil || first.Queue != "alpha" {
		t.Fatalf("expected lexically-first queue alpha reserved first, got %+v", first)
	}
}

func TestQueues_Reserve_DiscardsMalformedPayload(t *testing.T) {
	q, s := newTestQueues(t)
	if _, err := s.Lpush("queue:default", "not valid json"); err != nil {
		t.Fatalf("failed to seed malformed payload: %v", err)
	}

	good := mustPayload(t, "job", "default")
	if err := q.Enqueue(context.Background(), good); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The malformed entry is popped first (oldest), discarded, and reported
	// as "no job"; the valid job stays queued for the next reservation.
	got, err := q.Reserve(context.Background(), []string{"default"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected the malformed entry discarded and no job returned, got %+v", got)
	}

	got, err = q.Reserve(context.Background(), []string{"default"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got == nil || got.ID != good.ID {
		t.Fatalf("expected the valid job returned after the malformed entry was removed, got %+v", got)
	}
}

func TestQueues_PushFailed(t *testing.T) {
	q, s := newTestQueues(t)
	if err := q.PushFailed(context.Background(), `{"job_id":"x","error":"boom"}`); err != nil {
		t.Fatalf("PushFailed failed: %v", err)
	}
	length, err := s.Llen("failed")
	if err != nil {
		t.Fatalf("failed to check failed list: %v", err)
	}
	if length != 1 {
		t.Errorf("expected 1 entry on the failed list, got %d", length)
	}
}

func TestQueues_ReserveBlocking(t *testing.T) {
	q, _ := newTestQueues(t)
	ctx := context.Background()

	p := mustPayload(t, "send_email", "default")
	if err := q.Enqueue(ctx, p); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := q.ReserveBlocking(ctx, []string{"default"}, time.Second)
	if err != nil {
		t.Fatalf("ReserveBlocking failed: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Fatalf("expected to reserve job %s, got %+v", p.ID, got)
	}
}

func TestQueues_ReserveBlocking_EmptyDeclaredListReturnsNil(t *testing.T) {
	q, _ := newTestQueues(t)
	got, err := q.ReserveBlocking(context.Background(), nil, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReserveBlocking failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for an empty declared list, got %+v", got)
	}
}
