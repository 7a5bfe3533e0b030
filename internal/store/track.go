package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
)

// TrackStore defines the interface for track persistence.
type TrackStore interface {
	// CreateMultiple saves placeholders in one statement batch.
	CreateMultiple(ctx context.Context, tracks []*domain.Track) error

	// GetByID retrieves a track by ID.
	// Returns ErrTrackNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Track, error)

	// CountByContent counts every track of a content regardless of status.
	CountByContent(ctx context.Context, contentID uuid.UUID) (int, error)

	// CountByContentAndStatus counts tracks of a content in status.
	CountByContentAndStatus(ctx context.Context, contentID uuid.UUID, status domain.Status) (int, error)

	// ListByContent returns tracks of a content ordered by creation then variant.
	ListByContent(ctx context.Context, contentID uuid.UUID) ([]*domain.Track, error)

	// ListByGeneration returns the sibling tracks of a generation ordered by
	// variant index.
	ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]*domain.Track, error)

	// Update persists status, audio and metadata fields.
	Update(ctx context.Context, track *domain.Track) error

	// Attach binds a reserved track to its generation.
	// Returns ErrTrackNotFound if no unattached track has id.
	Attach(ctx context.Context, id, generationID uuid.UUID) error

	// DeleteStaleReservations removes unattached pending tracks created
	// before cutoff and returns how many were removed.
	DeleteStaleReservations(ctx context.Context, cutoff time.Time) (int, error)

	// Delete removes a track. Returns ErrTrackNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
