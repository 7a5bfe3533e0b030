package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/store"
)

// PostgresGenerationStore implements store.GenerationStore.
type PostgresGenerationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.GenerationStore = (*PostgresGenerationStore)(nil)

// NewPostgresGenerationStore creates a generation store on db.
func NewPostgresGenerationStore(db store.DBTX, logger *slog.Logger) *PostgresGenerationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGenerationStore{
		db:     db,
		logger: logger.With(slog.String("component", "generation_store")),
	}
}

// WithTx returns a store bound to tx.
func (s *PostgresGenerationStore) WithTx(tx *sql.Tx) *PostgresGenerationStore {
	return &PostgresGenerationStore{db: tx, logger: s.logger}
}

const generationColumns = `id, content_id, task_id, status, prompt, model, raw_response, metadata, created_at, updated_at`

// rawJSON returns nil for an empty payload so the column stays NULL.
func rawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Create implements store.GenerationStore.
func (s *PostgresGenerationStore) Create(ctx context.Context, g *domain.MusicGeneration) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if err := g.Validate(); err != nil {
		return store.NewStoreError("music generation", "create", "validation failed", err)
	}
	meta, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO music_generations (`+generationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		g.ID, g.ContentID, g.TaskID, string(g.Status), g.Prompt, g.Model,
		rawJSON(g.RawResponse), string(meta), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrTaskIDExists
		}
		log.Error("failed to create music generation",
			slog.String("error", err.Error()),
			slog.String("task_id", g.TaskID))
		return store.NewStoreError("music generation", "create", "insert failed", MapError(err))
	}
	return nil
}

// GetByID implements store.GenerationStore.
func (s *PostgresGenerationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MusicGeneration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM music_generations WHERE id = $1`, id)
	return s.scanOne(ctx, row)
}

// GetByTaskIDForUpdate implements store.GenerationStore with a row lock.
func (s *PostgresGenerationStore) GetByTaskIDForUpdate(
	ctx context.Context,
	taskID string,
) (*domain.MusicGeneration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM music_generations WHERE task_id = $1 FOR UPDATE`, taskID)
	return s.scanOne(ctx, row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*domain.MusicGeneration, error) {
	var (
		g      domain.MusicGeneration
		status string
		raw    []byte
		meta   []byte
	)
	if err := row.Scan(&g.ID, &g.ContentID, &g.TaskID, &status, &g.Prompt, &g.Model,
		&raw, &meta, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	g.Status = st
	if len(raw) > 0 {
		g.RawResponse = json.RawMessage(raw)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &g.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &g, nil
}

func (s *PostgresGenerationStore) scanOne(ctx context.Context, row *sql.Row) (*domain.MusicGeneration, error) {
	g, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrGenerationNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load music generation",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return g, nil
}

// Update implements store.GenerationStore.
func (s *PostgresGenerationStore) Update(ctx context.Context, g *domain.MusicGeneration) error {
	meta, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE music_generations
		SET status = $1, raw_response = COALESCE($2::jsonb, raw_response), metadata = $3, updated_at = $4
		WHERE id = $5`,
		string(g.Status), rawJSON(g.RawResponse), string(meta), g.UpdatedAt, g.ID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update music generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", g.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrGenerationNotFound)
}

// ListByContent implements store.GenerationStore.
func (s *PostgresGenerationStore) ListByContent(
	ctx context.Context,
	contentID uuid.UUID,
) ([]*domain.MusicGeneration, error) {
	return s.list(ctx, `SELECT `+generationColumns+` FROM music_generations
		WHERE content_id = $1 ORDER BY created_at, id`, contentID)
}

// ListUnresolved implements store.GenerationStore.
func (s *PostgresGenerationStore) ListUnresolved(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.MusicGeneration, error) {
	return s.list(ctx, `SELECT `+generationColumns+` FROM music_generations
		WHERE status IN ('pending', 'processing') AND updated_at < $1
		ORDER BY updated_at LIMIT $2`, olderThan, limit)
}

func (s *PostgresGenerationStore) list(ctx context.Context, query string, args ...any) ([]*domain.MusicGeneration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.MusicGeneration
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Delete implements store.GenerationStore. Tracks cascade.
func (s *PostgresGenerationStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM music_generations WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrGenerationNotFound)
}
