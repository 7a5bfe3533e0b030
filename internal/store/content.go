package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
)

// ContentStore defines the interface for content persistence.
type ContentStore interface {
	// Create saves a new content.
	Create(ctx context.Context, content *domain.Content) error

	// GetByID retrieves a content by ID.
	// Returns ErrContentNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Content, error)

	// GetForUpdate retrieves a content and holds an exclusive lock on it until
	// the surrounding unit of work ends. Every quota reservation for the
	// content serializes on this lock.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Content, error)

	// UpdatePrompt stores a derived generation prompt.
	UpdatePrompt(ctx context.Context, id uuid.UUID, prompt string) error
}
