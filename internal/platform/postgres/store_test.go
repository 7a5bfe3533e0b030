package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainSealer struct{}

func (plainSealer) Seal(p string, _ []byte) ([]byte, error) { return []byte("sealed:" + p), nil }
func (plainSealer) Open(b []byte, _ []byte) (string, error) {
	return string(b[len("sealed:"):]), nil
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var generationCols = []string{
	"id", "content_id", "task_id", "status", "prompt", "model", "raw_response", "metadata", "created_at", "updated_at",
}

func TestGenerationStoreGetByTaskIDForUpdate(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresGenerationStore(db, nil)

	id, contentID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM music_generations WHERE task_id = $1 FOR UPDATE")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows(generationCols).AddRow(
			id.String(), contentID.String(), "task-1", "processing", "p", "V4", nil,
			[]byte(`{"audit":[{"at":"2025-06-01T00:00:00Z","event":"completed","reason":"dup"}]}`), now, now))

	g, err := s.GetByTaskIDForUpdate(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, id, g.ID)
	assert.Equal(t, domain.StatusProcessing, g.Status)
	assert.Nil(t, g.RawResponse)
	require.Len(t, g.Metadata.Audit, 1)
	assert.Equal(t, "dup", g.Metadata.Audit[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerationStoreGetByTaskIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresGenerationStore(db, nil)

	mock.ExpectQuery("FOR UPDATE").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := s.GetByTaskIDForUpdate(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrGenerationNotFound)
}

func TestGenerationStoreCreateDuplicateTask(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresGenerationStore(db, nil)

	g, err := domain.NewMusicGeneration(uuid.New(), "task-1", "p", "V4", []byte(`{"code":200}`))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO music_generations").
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	assert.ErrorIs(t, s.Create(context.Background(), g), store.ErrTaskIDExists)
}

func TestTrackStoreCounts(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTrackStore(db, nil)
	contentID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tracks WHERE content_id = $1")).
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(98))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tracks WHERE content_id = $1 AND status = $2")).
		WithArgs(contentID, "processing").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := s.CountByContent(context.Background(), contentID)
	require.NoError(t, err)
	assert.Equal(t, 98, n)

	n, err = s.CountByContentAndStatus(context.Background(), contentID, domain.StatusProcessing)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackStoreUpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTrackStore(db, nil)

	track, err := domain.NewTrackPlaceholder(uuid.New(), uuid.New(), 0)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE tracks").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Update(context.Background(), track), store.ErrTrackNotFound)
}

func TestTrackStoreAttachOnlyReserved(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTrackStore(db, nil)
	trackID, genID := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND music_generation_id IS NULL")).
		WithArgs(genID, sqlmock.AnyArg(), trackID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND music_generation_id IS NULL")).
		WithArgs(genID, sqlmock.AnyArg(), trackID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Attach(context.Background(), trackID, genID))
	assert.ErrorIs(t, s.Attach(context.Background(), trackID, genID), store.ErrTrackNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackStoreDeleteStaleReservations(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTrackStore(db, nil)
	cutoff := time.Now().Add(-time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("WHERE music_generation_id IS NULL AND status = $1 AND created_at < $2")).
		WithArgs("pending", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.DeleteStaleReservations(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	uow := NewUnitOfWork(db, plainSealer{}, nil)
	contentID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM contents WHERE id = \\$1 FOR UPDATE").
		WithArgs(contentID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "theme", "duration_minutes", "prompt", "created_at", "updated_at",
		}).AddRow(contentID.String(), uuid.New().String(), "ambient", 30, "", time.Now(), time.Now()))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100))
	mock.ExpectRollback()

	errFull := errors.New("full")
	err := uow.Do(context.Background(), func(ctx context.Context, r store.Repos) error {
		if _, err := r.Contents.GetForUpdate(ctx, contentID); err != nil {
			return err
		}
		n, err := r.Tracks.CountByContent(ctx, contentID)
		if err != nil {
			return err
		}
		if n >= domain.MaxTracksPerContent {
			return errFull
		}
		return nil
	})
	assert.ErrorIs(t, err, errFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStoreSealsTokens(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresCredentialStore(db, plainSealer{}, nil)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO youtube_credentials").
		WithArgs(userID, []byte("sealed:acc"), []byte("sealed:ref"), sqlmock.AnyArg(), "scope",
			"", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Upsert(context.Background(), &domain.YoutubeCredential{
		UserID: userID, AccessToken: "acc", RefreshToken: "ref", ExpiresAt: now, Scope: "scope",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	mock.ExpectQuery("FROM youtube_credentials WHERE user_id = \\$1").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "access_token", "refresh_token", "expires_at", "scope", "channel_id",
			"channel_title", "created_at", "updated_at",
		}).AddRow(userID.String(), []byte("sealed:acc"), []byte("sealed:ref"), now, "scope", "UC1", "Chan", now, now))

	c, err := s.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "acc", c.AccessToken)
	assert.Equal(t, "ref", c.RefreshToken)
	assert.Equal(t, "UC1", c.ChannelID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
