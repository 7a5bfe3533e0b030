package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	LastEvent    *TaskRequestEvent
	HandlerError error
	HandledCount int
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

type recordingChangeHandler struct {
	events []*ChangeEvent
	err    error
}

func (h *recordingChangeHandler) HandleChange(_ context.Context, event *ChangeEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		event, err := NewTaskRequestEvent(TaskTypeGenerationPoll, map[string]string{"content_id": "x"})
		require.NoError(t, err)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		ok := &recordingHandler{}
		failing := &recordingHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)

		event, err := NewTaskRequestEvent(TaskTypeThumbnailDerivative, map[string]string{"artwork_id": "x"})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.EqualError(t, err, "handler error")
		assert.Equal(t, 1, ok.HandledCount)
		assert.Equal(t, event, ok.LastEvent)
	})

	t.Run("publish change swallows handler errors", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		first := &recordingChangeHandler{err: errors.New("socket closed")}
		second := &recordingChangeHandler{}
		emitter.RegisterChangeHandler(first)
		emitter.RegisterChangeHandler(second)

		a := NewChangeEvent(KindTrack, "completed", uuid.New(), uuid.New(), "completed")
		b := NewChangeEvent(KindMusicGeneration, "completed", uuid.New(), a.ContentID, "completed")
		emitter.PublishChange(context.Background(), a, nil, b)

		assert.Len(t, first.events, 2)
		assert.Equal(t, []*ChangeEvent{a, b}, second.events)
	})
}
