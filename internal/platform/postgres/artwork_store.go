package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/store"
)

// PostgresArtworkStore implements store.ArtworkStore over the artworks and
// artwork_derivatives tables. Save issues several statements and should run
// inside a UnitOfWork.
type PostgresArtworkStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ArtworkStore = (*PostgresArtworkStore)(nil)

// NewPostgresArtworkStore creates an artwork store on db.
func NewPostgresArtworkStore(db store.DBTX, logger *slog.Logger) *PostgresArtworkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresArtworkStore{
		db:     db,
		logger: logger.With(slog.String("component", "artwork_store")),
	}
}

// WithTx returns a store bound to tx.
func (s *PostgresArtworkStore) WithTx(tx *sql.Tx) *PostgresArtworkStore {
	return &PostgresArtworkStore{db: tx, logger: s.logger}
}

const artworkColumns = `id, content_id, thumbnail_generation_status, created_at, updated_at`

// GetByContentID implements store.ArtworkStore.
func (s *PostgresArtworkStore) GetByContentID(ctx context.Context, contentID uuid.UUID) (*domain.Artwork, error) {
	return s.load(ctx, `SELECT `+artworkColumns+` FROM artworks WHERE content_id = $1`, contentID)
}

// GetByIDForUpdate implements store.ArtworkStore with a row lock.
func (s *PostgresArtworkStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Artwork, error) {
	return s.load(ctx, `SELECT `+artworkColumns+` FROM artworks WHERE id = $1 FOR UPDATE`, id)
}

func scanArtwork(row rowScanner) (*domain.Artwork, error) {
	var (
		a      domain.Artwork
		status string
	)
	if err := row.Scan(&a.ID, &a.ContentID, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a.ThumbnailStatus = st
	a.Derivatives = map[domain.DerivativeType]domain.Derivative{}
	return &a, nil
}

func (s *PostgresArtworkStore) load(ctx context.Context, query string, arg uuid.UUID) (*domain.Artwork, error) {
	a, err := scanArtwork(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrArtworkNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load artwork",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	if err := s.loadDerivatives(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresArtworkStore) loadDerivatives(ctx context.Context, a *domain.Artwork) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT derivative_type, object_key, content_type, width, height, created_at
		FROM artwork_derivatives WHERE artwork_id = $1`, a.ID)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var d domain.Derivative
		var typ string
		if err := rows.Scan(&typ, &d.ObjectKey, &d.ContentType, &d.Width, &d.Height, &d.CreatedAt); err != nil {
			return err
		}
		d.Type = domain.DerivativeType(typ)
		a.Derivatives[d.Type] = d
	}
	return rows.Err()
}

// Save implements store.ArtworkStore.
func (s *PostgresArtworkStore) Save(ctx context.Context, a *domain.Artwork) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if err := a.Validate(); err != nil {
		return store.NewStoreError("artwork", "save", "validation failed", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artworks (`+artworkColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET thumbnail_generation_status = EXCLUDED.thumbnail_generation_status,
		    updated_at = EXCLUDED.updated_at`,
		a.ID, a.ContentID, string(a.ThumbnailStatus), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		log.Error("failed to save artwork",
			slog.String("error", err.Error()),
			slog.String("artwork_id", a.ID.String()))
		return store.NewStoreError("artwork", "save", "upsert failed", MapError(err))
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM artwork_derivatives WHERE artwork_id = $1`, a.ID); err != nil {
		return store.NewStoreError("artwork", "save", "derivative reset failed", MapError(err))
	}
	for _, d := range a.Derivatives {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO artwork_derivatives
				(artwork_id, derivative_type, object_key, content_type, width, height, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, string(d.Type), d.ObjectKey, d.ContentType, d.Width, d.Height, d.CreatedAt)
		if err != nil {
			return store.NewStoreError("artwork", "save", "derivative insert failed", MapError(err))
		}
	}
	return nil
}

// ListByThumbnailStatus implements store.ArtworkStore.
func (s *PostgresArtworkStore) ListByThumbnailStatus(
	ctx context.Context,
	statuses ...domain.Status,
) ([]*domain.Artwork, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+artworkColumns+` FROM artworks
		WHERE thumbnail_generation_status = ANY($1) ORDER BY created_at`, names)
	if err != nil {
		return nil, MapError(err)
	}

	var out []*domain.Artwork
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, a := range out {
		if err := s.loadDerivatives(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}
