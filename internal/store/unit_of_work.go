package store

import "context"

// Repos groups the stores that take part in one unit of work.
type Repos struct {
	Contents    ContentStore
	Generations GenerationStore
	Tracks      TrackStore
	Artworks    ArtworkStore
	Credentials CredentialStore
}

// UnitOfWork runs a function atomically against a consistent set of stores.
type UnitOfWork interface {
	// Do runs fn inside one atomic unit. The Repos passed to fn are bound to
	// that unit and must not be used after fn returns. If fn returns an error
	// every change made through them is discarded.
	Do(ctx context.Context, fn func(ctx context.Context, r Repos) error) error

	// Repos returns stores for standalone reads and single writes.
	Repos() Repos
}
