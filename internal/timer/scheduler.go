package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Task is a callback scheduled for a point in time
type Task struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// taskHeap is a min-heap of Tasks ordered by ExpiryAt
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[0 : n-1]
	return task
}

// Scheduler runs callbacks at their expiry time. Tasks are keyed by ID;
// scheduling an existing ID replaces it.
type Scheduler struct {
	heap    taskHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	tasks   map[string]*Task
	running sync.WaitGroup
	stopped bool
	stopCh  chan struct{}
}

// NewScheduler creates a stopped scheduler; call Start before scheduling work
func NewScheduler() *Scheduler {
	s := &Scheduler{
		heap:   make(taskHeap, 0),
		wakeup: make(chan struct{}, 1),
		tasks:  make(map[string]*Task),
		stopCh: make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the dispatch loop
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts dispatching and waits for callbacks already running
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.running.Wait()
}

// Schedule adds a task to be executed at expiryAt
func (s *Scheduler) Schedule(id string, expiryAt time.Time, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.tasks[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, id)
	}

	task := &Task{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&s.heap, task)
	s.tasks[id] = task

	// Wake the dispatcher if this is now the earliest task
	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a pending task. It returns false if the task is not pending,
// which includes a task whose callback is already running.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&s.heap, task.index)
	delete(s.tasks, id)
	return true
}

// Run executes task immediately and then again after each delay it returns,
// until ctx is cancelled. A run is scheduled only after the previous one
// returns, so runs never overlap. Run blocks until the loop has ended and no
// run is in flight.
func (s *Scheduler) Run(ctx context.Context, id string, task func(ctx context.Context) time.Duration) error {
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	var step func()
	step = func() {
		if ctx.Err() != nil {
			finish()
			return
		}
		delay := task(ctx)
		if ctx.Err() != nil {
			finish()
			return
		}
		if err := s.Schedule(id, time.Now().Add(delay), step); err != nil {
			finish()
		}
	}

	if err := s.Schedule(id, time.Now(), step); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if s.Cancel(id) {
			return ctx.Err()
		}
		// A run is in flight; it observes ctx and finishes the loop
		select {
		case <-done:
		case <-s.stopCh:
		}
		return ctx.Err()
	case <-done:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrSchedulerStopped
	case <-s.stopCh:
		s.Cancel(id)
		return ErrSchedulerStopped
	}
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if s.heap.Len() == 0 {
			waitDuration = 24 * time.Hour
		} else {
			next := s.heap[0]
			waitDuration = time.Until(next.ExpiryAt)

			if waitDuration <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)

				s.running.Add(1)
				go func() {
					defer s.running.Done()
					task.Callback()
				}()

				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ScheduledTasks: len(s.tasks),
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	ScheduledTasks int
}

var (
	ErrSchedulerStopped = &SchedulerError{"scheduler is stopped"}
)

// SchedulerError represents a scheduler error
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string {
	return e.msg
}
