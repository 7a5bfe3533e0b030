package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/events"
)

// ErrEmptyArtworkID is returned for a derivative request without an artwork.
var ErrEmptyArtworkID = errors.New("artwork ID cannot be empty")

// DerivativeGenerator produces the thumbnail derivative of an artwork.
type DerivativeGenerator interface {
	GenerateDerivative(ctx context.Context, artworkID uuid.UUID) error
}

// ThumbnailPayload is the task request payload for derivative jobs.
type ThumbnailPayload struct {
	ArtworkID uuid.UUID `json:"artwork_id"`
}

// ThumbnailDerivativeTask generates one artwork's youtube thumbnail.
type ThumbnailDerivativeTask struct {
	*baseTask
	artworkID uuid.UUID
	generator DerivativeGenerator
}

// ArtworkID returns the artwork this task works on.
func (t *ThumbnailDerivativeTask) ArtworkID() uuid.UUID { return t.artworkID }

// Key implements Keyed.
func (t *ThumbnailDerivativeTask) Key() string { return "thumbnail:" + t.artworkID.String() }

// Execute implements Task.
func (t *ThumbnailDerivativeTask) Execute(ctx context.Context) error {
	return t.run(func() error {
		return t.generator.GenerateDerivative(ctx, t.artworkID)
	})
}

// NewThumbnailTaskFactory returns a Factory for events.TaskTypeThumbnailDerivative.
func NewThumbnailTaskFactory(generator DerivativeGenerator) Factory {
	return func(event *events.TaskRequestEvent) (Task, error) {
		var p ThumbnailPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return nil, fmt.Errorf("invalid thumbnail payload: %w", err)
		}
		if p.ArtworkID == uuid.Nil {
			return nil, ErrEmptyArtworkID
		}
		return &ThumbnailDerivativeTask{
			baseTask:  newBaseTask(events.TaskTypeThumbnailDerivative, event.Payload),
			artworkID: p.ArtworkID,
			generator: generator,
		}, nil
	}
}
