package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/cadence-api/internal/events"
)

// Factory builds a task from a task request.
type Factory func(event *events.TaskRequestEvent) (Task, error)

// Submitter accepts tasks for execution.
type Submitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements events.EventHandler by turning task
// requests into tasks through the factory registered for their type.
type TaskFactoryEventHandler struct {
	mu        sync.RWMutex
	factories map[string]Factory
	runner    Submitter
	logger    *slog.Logger
}

var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)

// NewTaskFactoryEventHandler creates a handler that submits to runner.
func NewTaskFactoryEventHandler(runner Submitter, logger *slog.Logger) *TaskFactoryEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskFactoryEventHandler{
		factories: make(map[string]Factory),
		runner:    runner,
		logger:    logger.With("component", "task_factory_event_handler"),
	}
}

// Register sets the factory for taskType.
func (h *TaskFactoryEventHandler) Register(taskType string, f Factory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[taskType] = f
}

// HandleEvent creates and submits the task for event. Unknown types are
// ignored.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	h.mu.RLock()
	factory, ok := h.factories[event.Type]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	task, err := factory(event)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.runner.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Debug("task created and submitted",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"event_id", event.ID)
	return nil
}
