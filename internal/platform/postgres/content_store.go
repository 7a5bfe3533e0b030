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

// PostgresContentStore implements store.ContentStore.
type PostgresContentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ContentStore = (*PostgresContentStore)(nil)

// NewPostgresContentStore creates a content store on db.
func NewPostgresContentStore(db store.DBTX, logger *slog.Logger) *PostgresContentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresContentStore{
		db:     db,
		logger: logger.With(slog.String("component", "content_store")),
	}
}

// WithTx returns a store bound to tx.
func (s *PostgresContentStore) WithTx(tx *sql.Tx) *PostgresContentStore {
	return &PostgresContentStore{db: tx, logger: s.logger}
}

const contentColumns = `id, user_id, theme, duration_minutes, prompt, created_at, updated_at`

// Create implements store.ContentStore.
func (s *PostgresContentStore) Create(ctx context.Context, c *domain.Content) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if err := c.Validate(); err != nil {
		return store.NewStoreError("content", "create", "validation failed", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (`+contentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Theme, c.DurationMinutes, c.Prompt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		log.Error("failed to create content",
			slog.String("error", err.Error()),
			slog.String("content_id", c.ID.String()))
		return store.NewStoreError("content", "create", "insert failed", MapError(err))
	}
	return nil
}

// GetByID implements store.ContentStore.
func (s *PostgresContentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	return s.get(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id)
}

// GetForUpdate implements store.ContentStore with a row lock.
func (s *PostgresContentStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	return s.get(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1 FOR UPDATE`, id)
}

func (s *PostgresContentStore) get(ctx context.Context, query string, id uuid.UUID) (*domain.Content, error) {
	var c domain.Content
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Theme, &c.DurationMinutes, &c.Prompt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrContentNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get content",
			slog.String("error", err.Error()),
			slog.String("content_id", id.String()))
		return nil, MapError(err)
	}
	return &c, nil
}

// UpdatePrompt implements store.ContentStore.
func (s *PostgresContentStore) UpdatePrompt(ctx context.Context, id uuid.UUID, prompt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contents SET prompt = $1, updated_at = $2 WHERE id = $3`,
		prompt, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrContentNotFound)
}
