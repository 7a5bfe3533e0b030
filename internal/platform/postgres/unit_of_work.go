package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/cadence-api/internal/store"
)

// UnitOfWork implements store.UnitOfWork with one *sql.Tx per Do.
type UnitOfWork struct {
	db     *sql.DB
	sealer TokenSealer
	logger *slog.Logger
}

var _ store.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a UnitOfWork over db.
func NewUnitOfWork(db *sql.DB, sealer TokenSealer, logger *slog.Logger) *UnitOfWork {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnitOfWork{db: db, sealer: sealer, logger: logger}
}

// Do runs fn in a transaction via store.RunInTransaction.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	return store.RunInTransaction(ctx, u.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, u.repos(tx))
	})
}

// Repos returns stores bound to the connection pool.
func (u *UnitOfWork) Repos() store.Repos {
	return u.repos(u.db)
}

func (u *UnitOfWork) repos(db store.DBTX) store.Repos {
	return store.Repos{
		Contents:    NewPostgresContentStore(db, u.logger),
		Generations: NewPostgresGenerationStore(db, u.logger),
		Tracks:      NewPostgresTrackStore(db, u.logger),
		Artworks:    NewPostgresArtworkStore(db, u.logger),
		Credentials: NewPostgresCredentialStore(db, u.sealer, u.logger),
	}
}
