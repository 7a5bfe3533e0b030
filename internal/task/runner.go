package task

import (
	"context"
	"log/slog"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	WorkerCount int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount: 2,
		QueueSize:   100,
		TaskTimeout: 5 * time.Minute,
	}
}

// Recoverer re-submits work whose durable state says it is unfinished.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// TaskRunner owns the queue and the worker pool.
type TaskRunner struct {
	queue  *TaskQueue
	pool   *WorkerPool
	logger *slog.Logger
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultTaskRunnerConfig().QueueSize
	}
	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{
		WorkerCount: config.WorkerCount,
		TaskTimeout: config.TaskTimeout,
	}, logger)
	return &TaskRunner{
		queue:  queue,
		pool:   pool,
		logger: logger.With("component", "task_runner"),
	}
}

// SetErrorHandler sets the handler called for failed tasks.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Submit adds a new task to the queue
func (r *TaskRunner) Submit(_ context.Context, task Task) error {
	return r.queue.Enqueue(task)
}

// Start begins processing and then asks each recoverer to resubmit
// unfinished work. Recovery failures are logged, not fatal.
func (r *TaskRunner) Start(ctx context.Context, recoverers ...Recoverer) {
	r.pool.Start()
	for _, rec := range recoverers {
		if err := rec.Recover(ctx); err != nil {
			r.logger.Error("failed to recover unfinished work", "error", err)
		}
	}
}

// Stop closes the queue and waits for queued tasks until ctx is done.
func (r *TaskRunner) Stop(ctx context.Context) {
	r.queue.Close()
	r.pool.Stop(ctx)
}
