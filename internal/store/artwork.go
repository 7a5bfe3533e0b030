package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
)

// ArtworkStore defines the interface for artwork persistence. An artwork is
// saved together with its full derivative set.
type ArtworkStore interface {
	// GetByContentID returns the artwork of a content.
	// Returns ErrArtworkNotFound if the content has none.
	GetByContentID(ctx context.Context, contentID uuid.UUID) (*domain.Artwork, error)

	// GetByIDForUpdate returns an artwork and locks it until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Artwork, error)

	// Save inserts or updates the artwork and replaces its derivative set.
	Save(ctx context.Context, artwork *domain.Artwork) error

	// ListByThumbnailStatus returns artworks whose thumbnail job is in any of
	// the given statuses.
	ListByThumbnailStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Artwork, error)
}
