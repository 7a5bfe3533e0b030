package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/store"
)

// TokenSealer encrypts tokens at rest. additional binds a ciphertext to its owner.
type TokenSealer interface {
	Seal(plaintext string, additional []byte) ([]byte, error)
	Open(sealed []byte, additional []byte) (string, error)
}

// PostgresCredentialStore implements store.CredentialStore. Access and
// refresh tokens are sealed before they are written.
type PostgresCredentialStore struct {
	db     store.DBTX
	sealer TokenSealer
	logger *slog.Logger
}

var _ store.CredentialStore = (*PostgresCredentialStore)(nil)

// NewPostgresCredentialStore creates a credential store on db.
func NewPostgresCredentialStore(db store.DBTX, sealer TokenSealer, logger *slog.Logger) *PostgresCredentialStore {
	if sealer == nil {
		panic("sealer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCredentialStore{
		db:     db,
		sealer: sealer,
		logger: logger.With(slog.String("component", "credential_store")),
	}
}

// WithTx returns a store bound to tx.
func (s *PostgresCredentialStore) WithTx(tx *sql.Tx) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: tx, sealer: s.sealer, logger: s.logger}
}

// Get implements store.CredentialStore.
func (s *PostgresCredentialStore) Get(ctx context.Context, userID uuid.UUID) (*domain.YoutubeCredential, error) {
	var (
		c               domain.YoutubeCredential
		access, refresh []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, expires_at, scope, channel_id, channel_title,
		       created_at, updated_at
		FROM youtube_credentials WHERE user_id = $1`, userID).Scan(
		&c.UserID, &access, &refresh, &c.ExpiresAt, &c.Scope, &c.ChannelID, &c.ChannelTitle,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, MapError(err)
	}

	owner := []byte(userID.String())
	if c.AccessToken, err = s.sealer.Open(access, owner); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to open stored access token",
			slog.String("user_id", userID.String()))
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if c.RefreshToken, err = s.sealer.Open(refresh, owner); err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}
	return &c, nil
}

// Upsert implements store.CredentialStore.
func (s *PostgresCredentialStore) Upsert(ctx context.Context, c *domain.YoutubeCredential) error {
	if err := c.Validate(); err != nil {
		return store.NewStoreError("youtube credential", "upsert", "validation failed", err)
	}
	owner := []byte(c.UserID.String())
	access, err := s.sealer.Seal(c.AccessToken, owner)
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal(c.RefreshToken, owner)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO youtube_credentials
			(user_id, access_token, refresh_token, expires_at, scope, channel_id, channel_title,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    scope = EXCLUDED.scope,
		    channel_id = EXCLUDED.channel_id,
		    channel_title = EXCLUDED.channel_title,
		    updated_at = EXCLUDED.updated_at`,
		c.UserID, access, refresh, c.ExpiresAt, c.Scope, c.ChannelID, c.ChannelTitle,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to upsert youtube credential",
			slog.String("error", err.Error()),
			slog.String("user_id", c.UserID.String()))
		return store.NewStoreError("youtube credential", "upsert", "upsert failed", MapError(err))
	}
	return nil
}

// Delete implements store.CredentialStore.
func (s *PostgresCredentialStore) Delete(ctx context.Context, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM youtube_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(res, store.ErrCredentialNotFound)
}
