//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/tokencrypt"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("CADENCE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CADENCE_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, "up", nil))
	return db
}

func TestIntegrationQuotaRace(t *testing.T) {
	db := openTestDB(t)
	sealer, err := tokencrypt.New(testKey)
	require.NoError(t, err)
	uow := NewUnitOfWork(db, sealer, nil)
	ctx := context.Background()

	content, err := domain.NewContent(uuid.New(), "lofi rain", 30, "")
	require.NoError(t, err)
	require.NoError(t, uow.Repos().Contents.Create(ctx, content))

	seed, err := domain.NewMusicGeneration(content.ID, "seed-"+uuid.NewString(), "p", "V4", nil)
	require.NoError(t, err)
	require.NoError(t, uow.Repos().Generations.Create(ctx, seed))
	var filler []*domain.Track
	for i := 0; i < 49; i++ {
		a, _ := domain.NewTrackPlaceholder(content.ID, seed.ID, 0)
		a.MusicGenerationID = nil
		b, _ := domain.NewTrackPlaceholder(content.ID, seed.ID, 1)
		b.MusicGenerationID = nil
		filler = append(filler, a, b)
	}
	require.NoError(t, uow.Repos().Tracks.CreateMultiple(ctx, filler))

	errFull := errors.New("full")
	reserve := func() error {
		return uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
			if _, err := r.Contents.GetForUpdate(ctx, content.ID); err != nil {
				return err
			}
			n, err := r.Tracks.CountByContent(ctx, content.ID)
			if err != nil {
				return err
			}
			if n+domain.TracksPerGeneration > domain.MaxTracksPerContent {
				return errFull
			}
			g, err := domain.NewMusicGeneration(content.ID, uuid.NewString(), "p", "V4", nil)
			if err != nil {
				return err
			}
			if err := r.Generations.Create(ctx, g); err != nil {
				return err
			}
			a, _ := domain.NewTrackPlaceholder(content.ID, g.ID, 0)
			b, _ := domain.NewTrackPlaceholder(content.ID, g.ID, 1)
			return r.Tracks.CreateMultiple(ctx, []*domain.Track{a, b})
		})
	}

	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reserve()
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, errFull)
		}
	}
	assert.Equal(t, 1, succeeded)

	n, err := uow.Repos().Tracks.CountByContent(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxTracksPerContent, n)
}

func TestIntegrationCredentialRoundTrip(t *testing.T) {
	db := openTestDB(t)
	sealer, err := tokencrypt.New(testKey)
	require.NoError(t, err)
	repos := NewUnitOfWork(db, sealer, nil).Repos()
	ctx := context.Background()

	userID := uuid.New()
	cred := &domain.YoutubeCredential{UserID: userID, AccessToken: "a1", RefreshToken: "r1", Scope: "s"}
	require.NoError(t, repos.Credentials.Upsert(ctx, cred))

	var raw []byte
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT access_token FROM youtube_credentials WHERE user_id = $1`, userID).Scan(&raw))
	assert.NotContains(t, string(raw), "a1")

	got, err := repos.Credentials.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)

	require.NoError(t, repos.Credentials.Delete(ctx, userID))
	_, err = repos.Credentials.Get(ctx, userID)
	assert.ErrorIs(t, err, store.ErrCredentialNotFound)
}
