package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches events to registered handlers in the
// caller's goroutine.
type InMemoryEventEmitter struct {
	handlers       []EventHandler
	changeHandlers []ChangeHandler
	mu             sync.RWMutex
	logger         *slog.Logger
}

var (
	_ EventEmitter    = (*InMemoryEventEmitter)(nil)
	_ ChangePublisher = (*InMemoryEventEmitter)(nil)
)

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a task request handler.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// RegisterChangeHandler adds a change handler.
func (e *InMemoryEventEmitter) RegisterChangeHandler(handler ChangeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changeHandlers = append(e.changeHandlers, handler)
}

// EmitEvent publishes the given event to all registered handlers.
// If any handler returns an error, the event will still be sent to all other handlers,
// and the first error encountered will be returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskRequestEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PublishChange delivers each event to every change handler. Handler errors
// are logged and dropped.
func (e *InMemoryEventEmitter) PublishChange(ctx context.Context, events ...*ChangeEvent) {
	e.mu.RLock()
	handlers := make([]ChangeHandler, len(e.changeHandlers))
	copy(handlers, e.changeHandlers)
	e.mu.RUnlock()

	for _, event := range events {
		if event == nil {
			continue
		}
		for _, handler := range handlers {
			if err := handler.HandleChange(ctx, event); err != nil {
				e.logger.Warn("change handler failed",
					"error", err,
					"event_type", event.Type,
					"record_id", event.RecordID)
			}
		}
	}
}
