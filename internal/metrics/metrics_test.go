package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/emberqueue/ember/internal/status"
)

func TestCollector_RecordJobStarted(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("high")
	c.RecordJobStarted("default")
	c.RecordJobStarted("high")

	m := c.GetMetrics()
	if m.TotalJobsProcessed != 3 {
		t.Errorf("expected 3 total jobs processed, got %d", m.TotalJobsProcessed)
	}
	if m.JobsByQueue["high"] != 2 {
		t.Errorf("expected 2 jobs on queue high, got %d", m.JobsByQueue["high"])
	}
	if m.JobsByQueue["default"] != 1 {
		t.Errorf("expected 1 job on queue default, got %d", m.JobsByQueue["default"])
	}
	if m.JobsByStatus[status.Running] != 3 {
		t.Errorf("expected 3 jobs running, got %d", m.JobsByStatus[status.Running])
	}
}

func TestCollector_RecordJobCompleted(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default")
	c.RecordJobCompleted(100 * time.Millisecond)

	m := c.GetMetrics()
	if m.TotalJobsCompleted != 1 {
		t.Errorf("expected 1 completed job, got %d", m.TotalJobsCompleted)
	}
	if m.JobsByStatus[status.Running] != 0 {
		t.Errorf("expected 0 jobs still running, got %d", m.JobsByStatus[status.Running])
	}
	if m.JobsByStatus[status.Complete] != 1 {
		t.Errorf("expected 1 job complete, got %d", m.JobsByStatus[status.Complete])
	}
	if m.AvgJobDuration != 100*time.Millisecond {
		t.Errorf("expected avg duration 100ms, got %v", m.AvgJobDuration)
	}
	if m.ErrorRate != 0 {
		t.Errorf("expected 0%% error rate, got %v", m.ErrorRate)
	}
}

func TestCollector_RecordJobFailed(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default")
	c.RecordJobFailed(50 * time.Millisecond)

	m := c.GetMetrics()
	if m.TotalJobsFailed != 1 {
		t.Errorf("expected 1 failed job, got %d", m.TotalJobsFailed)
	}
	if m.JobsByStatus[status.Failed] != 1 {
		t.Errorf("expected 1 job failed, got %d", m.JobsByStatus[status.Failed])
	}
	if m.ErrorRate != 100 {
		t.Errorf("expected 100%% error rate, got %v", m.ErrorRate)
	}
}

func TestCollector_AverageDurationAcrossMixedOutcomes(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("high")
	c.RecordJobCompleted(100 * time.Millisecond)
	c.RecordJobStarted("default")
	c.RecordJobCompleted(200 * time.Millisecond)
	c.RecordJobStarted("low")
	c.RecordJobFailed(300 * time.Millisecond)

	m := c.GetMetrics()
	if m.TotalJobsProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", m.TotalJobsProcessed)
	}
	if m.AvgJobDuration != 200*time.Millisecond {
		t.Errorf("expected avg duration 200ms, got %v", m.AvgJobDuration)
	}
	wantErrorRate := float64(1) / float64(3) * 100
	if m.ErrorRate != wantErrorRate {
		t.Errorf("expected error rate %.4f, got %.4f", wantErrorRate, m.ErrorRate)
	}
}

func TestCollector_RecordQueueDepth(t *testing.T) {
	c := NewCollector()

	c.RecordQueueDepth("high", 10)
	c.RecordQueueDepth("default", 25)
	c.RecordQueueDepth("low", 5)

	m := c.GetMetrics()
	if m.QueueDepths["high"] != 10 {
		t.Errorf("expected high depth 10, got %d", m.QueueDepths["high"])
	}
	if m.QueueDepths["default"] != 25 {
		t.Errorf("expected default depth 25, got %d", m.QueueDepths["default"])
	}
	if m.QueueDepths["low"] != 5 {
		t.Errorf("expected low depth 5, got %d", m.QueueDepths["low"])
	}
}

func TestCollector_RecordWorkerActivity(t *testing.T) {
	c := NewCollector()

	c.RecordWorkerActivity(3, 4)

	m := c.GetMetrics()
	if m.WorkerUtilization != 75 {
		t.Errorf("expected 75%% utilization, got %v", m.WorkerUtilization)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()

	c.RecordJobStarted("default")
	c.RecordJobCompleted(100 * time.Millisecond)
	c.RecordQueueDepth("default", 10)

	c.Reset()

	m := c.GetMetrics()
	if m.TotalJobsProcessed != 0 || m.TotalJobsCompleted != 0 || m.TotalJobsFailed != 0 {
		t.Error("expected all counters reset to zero")
	}
	if len(m.JobsByQueue) != 0 || len(m.QueueDepths) != 0 {
		t.Error("expected all maps reset to empty")
	}
}

func TestDefault_IsASingleton(t *testing.T) {
	ResetMetrics()
	defer ResetMetrics()

	Default().RecordJobStarted("high")
	Default().RecordJobCompleted(100 * time.Millisecond)

	m := GetMetrics()
	if m.TotalJobsProcessed != 1 {
		t.Errorf("expected 1 job recorded against the default collector, got %d", m.TotalJobsProcessed)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	const goroutines = 20
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordJobStarted("default")
			c.RecordJobCompleted(time.Millisecond)
		}()
	}
	wg.Wait()

	m := c.GetMetrics()
	if m.TotalJobsProcessed != goroutines {
		t.Errorf("expected %d jobs processed, got %d", goroutines, m.TotalJobsProcessed)
	}
	if m.TotalJobsCompleted != goroutines {
		t.Errorf("expected %d jobs completed, got %d", goroutines, m.TotalJobsCompleted)
	}
}
