package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_Schedule(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	executed := false
	var mu sync.Mutex

	err := s.Schedule("test1", time.Now().Add(50*time.Millisecond), func() {
		mu.Lock()
		executed = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if !executed {
		t.Error("Task was not executed")
	}
	mu.Unlock()
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	var executed atomic.Bool
	if err := s.Schedule("test1", time.Now().Add(100*time.Millisecond), func() {
		executed.Store(true)
	}); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if !s.Cancel("test1") {
		t.Error("Cancel returned false")
	}

	time.Sleep(200 * time.Millisecond)

	if executed.Load() {
		t.Error("Task was executed despite being cancelled")
	}
}

func TestScheduler_RescheduleExisting(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	var count atomic.Int32

	s.Schedule("test1", time.Now().Add(100*time.Millisecond), func() { count.Add(1) })
	// Same ID replaces the pending task
	s.Schedule("test1", time.Now().Add(50*time.Millisecond), func() { count.Add(10) })

	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 10 {
		t.Errorf("Expected count=10 (only second task), got %d", got)
	}
}

func TestScheduler_ScheduleAfterStop(t *testing.T) {
	s := NewScheduler()
	s.Start()
	s.Stop()

	err := s.Schedule("late", time.Now(), func() {})
	if err != ErrSchedulerStopped {
		t.Errorf("Expected ErrSchedulerStopped, got %v", err)
	}
}

func TestScheduler_Stats(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	s.Schedule("task1", time.Now().Add(1*time.Hour), func() {})
	s.Schedule("task2", time.Now().Add(2*time.Hour), func() {})
	s.Schedule("task3", time.Now().Add(3*time.Hour), func() {})

	if stats := s.Stats(); stats.ScheduledTasks != 3 {
		t.Errorf("Expected 3 scheduled tasks, got %d", stats.ScheduledTasks)
	}
}

func TestScheduler_RunRepeatsUntilCancelled(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	var runs atomic.Int32
	err := s.Run(ctx, "loop", func(ctx context.Context) time.Duration {
		runs.Add(1)
		return 20 * time.Millisecond
	})
	if err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}

	if n := runs.Load(); n < 3 {
		t.Errorf("Expected at least 3 runs, got %d", n)
	}
	if stats := s.Stats(); stats.ScheduledTasks != 0 {
		t.Errorf("Expected no pending tasks after Run returned, got %d", stats.ScheduledTasks)
	}
}

func TestScheduler_RunNeverOverlaps(t *testing.T) {
	s := NewScheduler()
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var active, maxActive atomic.Int32
	s.Run(ctx, "slow", func(ctx context.Context) time.Duration {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return time.Millisecond
	})

	if maxActive.Load() != 1 {
		t.Errorf("Expected runs to be sequential, saw %d concurrent", maxActive.Load())
	}
	if active.Load() != 0 {
		t.Errorf("Run returned while a run was still active")
	}
}
