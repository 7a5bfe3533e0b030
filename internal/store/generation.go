package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
)

// GenerationStore defines the interface for music generation persistence.
type GenerationStore interface {
	// Create saves a new generation. Returns ErrTaskIDExists when a generation
	// already tracks the same provider task.
	Create(ctx context.Context, gen *domain.MusicGeneration) error

	// GetByID retrieves a generation by ID.
	// Returns ErrGenerationNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MusicGeneration, error)

	// GetByTaskIDForUpdate retrieves the generation tracking taskID and holds
	// an exclusive lock on it until the unit of work ends.
	// Returns ErrGenerationNotFound if no generation tracks the task.
	GetByTaskIDForUpdate(ctx context.Context, taskID string) (*domain.MusicGeneration, error)

	// Update persists status, metadata and raw response.
	Update(ctx context.Context, gen *domain.MusicGeneration) error

	// ListByContent returns every generation of a content, oldest first.
	ListByContent(ctx context.Context, contentID uuid.UUID) ([]*domain.MusicGeneration, error)

	// ListUnresolved returns non-terminal generations last updated before
	// olderThan, oldest first, at most limit rows.
	ListUnresolved(ctx context.Context, olderThan time.Time, limit int) ([]*domain.MusicGeneration, error)

	// Delete removes a generation and, by cascade, its tracks.
	// Returns ErrGenerationNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
