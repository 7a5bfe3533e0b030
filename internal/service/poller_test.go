package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/phrazzld/cadence-api/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerRefreshContent(t *testing.T) {
	ctx := context.Background()
	uow := memstore.New()
	userID := uuid.New()
	content := seedContent(t, uow, userID, 30, "p")
	provider := newFakeProvider()
	rec := &recorder{}
	d := newTestDispatcher(t, uow, provider, fixedPolicy(3), rec)
	r := newTestReconciler(t, uow, rec)

	_, err := d.DispatchAll(ctx, userID, content.ID)
	require.NoError(t, err)

	_, err = r.Apply(ctx, generation.TaskEvent{TaskID: "task-1", Status: domain.StatusFailed})
	require.NoError(t, err)

	done := completion("task-2", "https://cdn.example.com/a.mp3", "https://cdn.example.com/b.mp3")
	done.Source = ""
	provider.tasks["task-2"] = &done

	p, err := NewPoller(uow, provider, r, PollerConfig{Concurrency: 2}, nil)
	require.NoError(t, err)
	require.NoError(t, p.RefreshContent(ctx, content.ID))

	assert.ElementsMatch(t, []string{"task-2", "task-3"}, provider.fetched, "terminal generations are not fetched")
	gen, _ := generationTracks(t, uow, "task-2")
	assert.Equal(t, domain.StatusCompleted, gen.Status)
	gen, _ = generationTracks(t, uow, "task-3")
	assert.Equal(t, domain.StatusPending, gen.Status)
}

func TestPollerReportsFetchFailures(t *testing.T) {
	ctx := context.Background()
	uow, content, rec := dispatched(t, 2)
	provider := newFakeProvider()
	provider.fetchErr = generation.ErrNetwork

	p, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec), PollerConfig{}, nil)
	require.NoError(t, err)

	err = p.RefreshContent(ctx, content.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrNetwork)
	assert.Len(t, provider.fetched, 2)
}

func TestPollerPollStale(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 2)
	provider := newFakeProvider()
	failed := generation.TaskEvent{TaskID: "task-1", Status: domain.StatusFailed}
	provider.tasks["task-1"] = &failed

	fresh, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec), PollerConfig{StaleAfter: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.PollStale(ctx))
	assert.Empty(t, provider.fetched, "recent generations are left to webhooks")

	stale, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec), PollerConfig{StaleAfter: time.Nanosecond, BatchSize: 10}, nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	require.NoError(t, stale.PollStale(ctx))
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, provider.fetched)

	gen, _ := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusFailed, gen.Status)
	gen, _ = generationTracks(t, uow, "task-2")
	assert.Equal(t, domain.StatusPending, gen.Status)
}

func TestPollerRunStopsWithContext(t *testing.T) {
	uow, _, rec := dispatched(t, 1)
	provider := newFakeProvider()
	p, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec),
		PollerConfig{Interval: 5 * time.Millisecond, StaleAfter: time.Nanosecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return len(provider.fetched) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerFailsUnreachableTasks(t *testing.T) {
	ctx := context.Background()
	uow, content, rec := dispatched(t, 1)
	provider := newFakeProvider()
	provider.fetchErr = &generation.ProviderError{StatusCode: 503, Message: "upstream unavailable", Err: generation.ErrNetwork}

	p, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec), PollerConfig{MaxFetchFailures: 3}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, p.RefreshContent(ctx, content.ID), generation.ErrNetwork)
	}
	gen, _ := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusPending, gen.Status)
	assert.Equal(t, 2, gen.Metadata.FetchFailures)

	assert.ErrorIs(t, p.RefreshContent(ctx, content.ID), generation.ErrNetwork)
	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusFailed, gen.Status)
	assert.Contains(t, gen.Metadata.FailureReason, "unreachable after 3")
	require.Len(t, tracks, domain.TracksPerGeneration)
	for _, tr := range tracks {
		assert.Equal(t, domain.StatusFailed, tr.Status)
		assert.Equal(t, FailureGeneric, tr.FailureReason)
	}

	require.NoError(t, p.RefreshContent(ctx, content.ID), "failed generations are no longer fetched")
	assert.Len(t, provider.fetched, 3)
}

func TestPollerDoesNotCountRateLimits(t *testing.T) {
	ctx := context.Background()
	uow, content, rec := dispatched(t, 1)
	provider := newFakeProvider()
	provider.fetchErr = &generation.ProviderError{StatusCode: 429, Err: generation.ErrRateLimited}

	p, err := NewPoller(uow, provider, newTestReconciler(t, uow, rec), PollerConfig{MaxFetchFailures: 1}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, p.RefreshContent(ctx, content.ID), generation.ErrRateLimited)
	gen, _ := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusPending, gen.Status)
	assert.Zero(t, gen.Metadata.FetchFailures)
}

func TestPollerSweepsStaleReservations(t *testing.T) {
	ctx := context.Background()
	uow, content, rec := dispatched(t, 1)

	orphan, err := domain.NewTrackReservation(content.ID, 0)
	require.NoError(t, err)
	orphan.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	fresh, err := domain.NewTrackReservation(content.ID, 1)
	require.NoError(t, err)
	require.NoError(t, uow.Repos().Tracks.CreateMultiple(ctx, []*domain.Track{orphan, fresh}))

	p, err := NewPoller(uow, newFakeProvider(), newTestReconciler(t, uow, rec),
		PollerConfig{StaleAfter: time.Hour, ReservationTTL: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, p.PollStale(ctx))

	_, err = uow.Repos().Tracks.GetByID(ctx, orphan.ID)
	assert.ErrorIs(t, err, store.ErrTrackNotFound)
	_, err = uow.Repos().Tracks.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.TracksPerGeneration+1, trackCount(t, uow, content.ID))
}
