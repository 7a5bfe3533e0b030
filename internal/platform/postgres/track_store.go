package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/store"
)

// PostgresTrackStore implements store.TrackStore.
type PostgresTrackStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.TrackStore = (*PostgresTrackStore)(nil)

// NewPostgresTrackStore creates a track store on db.
func NewPostgresTrackStore(db store.DBTX, logger *slog.Logger) *PostgresTrackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTrackStore{
		db:     db,
		logger: logger.With(slog.String("component", "track_store")),
	}
}

// WithTx returns a store bound to tx.
func (s *PostgresTrackStore) WithTx(tx *sql.Tx) *PostgresTrackStore {
	return &PostgresTrackStore{db: tx, logger: s.logger}
}

const trackColumns = `id, content_id, music_generation_id, status, variant_index, duration_seconds,
	title, tags, prompt, audio_url, failure_reason, created_at, updated_at`

func generationRef(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// CreateMultiple implements store.TrackStore.
func (s *PostgresTrackStore) CreateMultiple(ctx context.Context, tracks []*domain.Track) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return store.NewStoreError("track", "create", "validation failed", err)
		}
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO tracks (`+trackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range tracks {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.ContentID, generationRef(t.MusicGenerationID), string(t.Status), t.VariantIndex,
			t.DurationSeconds, t.Title, t.Tags, t.Prompt, t.AudioURL, t.FailureReason,
			t.CreatedAt, t.UpdatedAt)
		if err != nil {
			log.Error("failed to create track",
				slog.String("error", err.Error()),
				slog.String("track_id", t.ID.String()))
			return store.NewStoreError("track", "create", "insert failed", MapError(err))
		}
	}
	return nil
}

func scanTrack(row rowScanner) (*domain.Track, error) {
	var (
		t      domain.Track
		genID  uuid.NullUUID
		status string
	)
	if err := row.Scan(&t.ID, &t.ContentID, &genID, &status, &t.VariantIndex, &t.DurationSeconds,
		&t.Title, &t.Tags, &t.Prompt, &t.AudioURL, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	t.Status = st
	if genID.Valid {
		id := genID.UUID
		t.MusicGenerationID = &id
	}
	return &t, nil
}

// GetByID implements store.TrackStore.
func (s *PostgresTrackStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Track, error) {
	t, err := scanTrack(s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTrackNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// CountByContent implements store.TrackStore.
func (s *PostgresTrackStore) CountByContent(ctx context.Context, contentID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE content_id = $1`, contentID).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// CountByContentAndStatus implements store.TrackStore.
func (s *PostgresTrackStore) CountByContentAndStatus(
	ctx context.Context,
	contentID uuid.UUID,
	status domain.Status,
) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks WHERE content_id = $1 AND status = $2`,
		contentID, string(status)).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// ListByContent implements store.TrackStore.
func (s *PostgresTrackStore) ListByContent(ctx context.Context, contentID uuid.UUID) ([]*domain.Track, error) {
	return s.list(ctx, `SELECT `+trackColumns+` FROM tracks
		WHERE content_id = $1 ORDER BY created_at, variant_index`, contentID)
}

// ListByGeneration implements store.TrackStore.
func (s *PostgresTrackStore) ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]*domain.Track, error) {
	return s.list(ctx, `SELECT `+trackColumns+` FROM tracks
		WHERE music_generation_id = $1 ORDER BY variant_index`, generationID)
}

func (s *PostgresTrackStore) list(ctx context.Context, query string, args ...any) ([]*domain.Track, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update implements store.TrackStore.
func (s *PostgresTrackStore) Update(ctx context.Context, t *domain.Track) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracks
		SET status = $1, duration_seconds = $2, title = $3, tags = $4, prompt = $5,
		    audio_url = $6, failure_reason = $7, updated_at = $8
		WHERE id = $9`,
		string(t.Status), t.DurationSeconds, t.Title, t.Tags, t.Prompt,
		t.AudioURL, t.FailureReason, t.UpdatedAt, t.ID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update track",
			slog.String("error", err.Error()),
			slog.String("track_id", t.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrTrackNotFound)
}

// Attach implements store.TrackStore.
func (s *PostgresTrackStore) Attach(ctx context.Context, id, generationID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracks
		SET music_generation_id = $1, updated_at = $2
		WHERE id = $3 AND music_generation_id IS NULL`,
		generationID, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrTrackNotFound)
}

// DeleteStaleReservations implements store.TrackStore.
func (s *PostgresTrackStore) DeleteStaleReservations(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tracks
		WHERE music_generation_id IS NULL AND status = $1 AND created_at < $2`,
		string(domain.StatusPending), cutoff)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	return int(n), nil
}

// Delete implements store.TrackStore.
func (s *PostgresTrackStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrTrackNotFound)
}
