package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/events"
)

// ErrEmptyContentID is returned for a poll request without a content.
var ErrEmptyContentID = errors.New("content ID cannot be empty")

// ContentRefresher reconciles every outstanding provider task of a content.
type ContentRefresher interface {
	RefreshContent(ctx context.Context, contentID uuid.UUID) error
}

// PollPayload is the task request payload for poll jobs.
type PollPayload struct {
	ContentID uuid.UUID `json:"content_id"`
}

// GenerationPollTask fetches outstanding provider tasks of one content.
type GenerationPollTask struct {
	*baseTask
	contentID uuid.UUID
	refresher ContentRefresher
}

// Key implements Keyed.
func (t *GenerationPollTask) Key() string { return "poll:" + t.contentID.String() }

// Execute implements Task.
func (t *GenerationPollTask) Execute(ctx context.Context) error {
	return t.run(func() error {
		return t.refresher.RefreshContent(ctx, t.contentID)
	})
}

// NewPollTaskFactory returns a Factory for events.TaskTypeGenerationPoll.
func NewPollTaskFactory(refresher ContentRefresher) Factory {
	return func(event *events.TaskRequestEvent) (Task, error) {
		var p PollPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return nil, fmt.Errorf("invalid poll payload: %w", err)
		}
		if p.ContentID == uuid.Nil {
			return nil, ErrEmptyContentID
		}
		return &GenerationPollTask{
			baseTask:  newBaseTask(events.TaskTypeGenerationPoll, event.Payload),
			contentID: p.ContentID,
			refresher: refresher,
		}, nil
	}
}
