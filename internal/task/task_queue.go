package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Keyed is implemented by tasks that act on one record. While a keyed task
// waits in the queue, further tasks with the same key are merged into it.
type Keyed interface {
	Key() string
}

// TaskQueue is a bounded channel of tasks that coalesces waiting tasks by
// key.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   chan Task
	waiting map[string]struct{}
	logger  *slog.Logger
	closed  bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		tasks:   make(chan Task, size),
		waiting: make(map[string]struct{}),
		logger:  logger,
	}
}

// Enqueue adds a task without blocking. A keyed task whose key is already
// waiting is dropped and reported as accepted.
func (q *TaskQueue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	key := taskKey(task)
	if key != "" {
		if _, ok := q.waiting[key]; ok {
			q.logger.Debug("task merged into waiting task",
				"task_type", task.Type(),
				"task_key", key)
			return nil
		}
	}

	select {
	case q.tasks <- task:
		if key != "" {
			q.waiting[key] = struct{}{}
		}
		q.logger.Debug("task enqueued",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Release marks a dequeued task as started, so its key accepts new work.
func (q *TaskQueue) Release(task Task) {
	key := taskKey(task)
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.waiting, key)
	q.mu.Unlock()
}

// Close closes the task queue, preventing further task submission. Tasks
// already queued are still delivered.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming tasks
func (q *TaskQueue) GetChannel() <-chan Task {
	return q.tasks
}

func taskKey(task Task) string {
	if k, ok := task.(Keyed); ok {
		return k.Key()
	}
	return ""
}
