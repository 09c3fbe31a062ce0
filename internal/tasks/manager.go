// Package tasks provides a bounded-concurrency executor for named background
// work, with in-memory task status lookup. It is the process-local stand-in
// for an external job queue.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status of a background task. Transitions are linear:
// Pending -> Running -> {Completed | Failed}. Terminal tasks are immutable
// until Sweep removes them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrQueueFull is returned by Submit when the bounded queue is at
	// capacity. Rejecting is the documented choice here: callers get a
	// deterministic capacity error instead of unbounded growth.
	ErrQueueFull = errors.New("task queue is full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("task manager is closed")
)

// Work is a unit of background work. The context is cancelled when the
// manager shuts down.
type Work func(ctx context.Context) (any, error)

// Task is the transient record of one submitted unit of work. It is not
// persisted beyond the process lifetime.
type Task struct {
	ID          string
	Name        string
	Status      Status
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	Result      any
}

type job struct {
	id string
	fn Work
}

// Manager runs submitted work on a fixed-size worker pool. Construct one
// explicitly and pass it where needed; there is deliberately no package
// singleton.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	counter uint64
	queue   chan job
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager starts workers goroutines consuming a queue of queueSize
// pending submissions.
func NewManager(workers, queueSize int) *Manager {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tasks:  make(map[string]*Task),
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	slog.Info("Task manager initialized.", "workers", workers, "queueSize", queueSize)
	return m
}

// Submit enqueues fn for execution and returns the task id immediately. It
// fails fast with ErrQueueFull when the queue is at capacity.
func (m *Manager) Submit(fn Work, name string) (string, error) {
	// The whole submission happens under the lock so Close cannot close the
	// queue between the closed check and the send.
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}
	m.counter++
	id := fmt.Sprintf("task_%d_%s", m.counter, time.Now().Format("20060102150405"))

	select {
	case m.queue <- job{id: id, fn: fn}:
	default:
		return "", ErrQueueFull
	}

	m.tasks[id] = &Task{
		ID:        id,
		Name:      name,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	slog.Info("Task submitted.", "taskId", id, "name", name)
	return id, nil
}

// Status returns a snapshot of the task, or ok=false for an unknown id.
func (m *Manager) Status(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Sweep removes completed or failed tasks older than maxAge and returns the
// number removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, task := range m.tasks {
		if (task.Status == StatusCompleted || task.Status == StatusFailed) &&
			!task.CompletedAt.IsZero() && task.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Swept old tasks.", "removed", removed)
	}
	return removed
}

// Close stops accepting submissions, cancels in-flight work contexts and
// waits for the workers to drain the queue.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.queue)
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for j := range m.queue {
		m.execute(j)
	}
}

// execute runs one task. Panics are captured into the task record; a crashed
// worker would silently shrink pool capacity, so nothing may propagate out.
func (m *Manager) execute(j job) {
	m.mu.Lock()
	task, ok := m.tasks[j.id]
	if !ok {
		m.mu.Unlock()
		return
	}
	task.Status = StatusRunning
	task.StartedAt = time.Now()
	m.mu.Unlock()

	var result any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err = j.fn(m.ctx)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	task.CompletedAt = time.Now()
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		slog.Error("Task failed.", "taskId", task.ID, "name", task.Name, "error", err)
		return
	}
	task.Result = result
	task.Status = StatusCompleted
	slog.Info("Task completed.", "taskId", task.ID, "name", task.Name)
}
