package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
)

// CredentialStore persists one YoutubeCredential per user.
type CredentialStore interface {
	// Get returns the credential of a user.
	// Returns ErrCredentialNotFound if the user has not connected.
	Get(ctx context.Context, userID uuid.UUID) (*domain.YoutubeCredential, error)

	// Upsert inserts or replaces the credential of cred.UserID.
	Upsert(ctx context.Context, cred *domain.YoutubeCredential) error

	// Delete removes the credential of a user.
	// Returns ErrCredentialNotFound if there is none.
	Delete(ctx context.Context, userID uuid.UUID) error
}
