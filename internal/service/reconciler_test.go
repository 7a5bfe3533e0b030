package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/phrazzld/cadence-api/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatched returns a store holding one Content with n pending units whose
// task IDs are task-1..task-n.
func dispatched(t *testing.T, n int) (*memstore.UnitOfWork, *domain.Content, *recorder) {
	t.Helper()
	uow := memstore.New()
	userID := uuid.New()
	content := seedContent(t, uow, userID, 30, "p")
	rec := &recorder{}
	d := newTestDispatcher(t, uow, newFakeProvider(), fixedPolicy(n), rec)
	result, err := d.DispatchAll(context.Background(), userID, content.ID)
	require.NoError(t, err)
	require.Equal(t, n, result.Scheduled)
	rec.changes = nil
	return uow, content, rec
}

func generationTracks(t *testing.T, uow *memstore.UnitOfWork, taskID string) (*domain.MusicGeneration, []*domain.Track) {
	t.Helper()
	ctx := context.Background()
	var (
		gen    *domain.MusicGeneration
		tracks []*domain.Track
	)
	require.NoError(t, uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		gen, err = r.Generations.GetByTaskIDForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		tracks, err = r.Tracks.ListByGeneration(ctx, gen.ID)
		return err
	}))
	return gen, tracks
}

func TestReconcilerCompletion(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	outcome, err := r.Apply(ctx, completion("task-1", "https://cdn.example.com/0.mp3", "https://cdn.example.com/1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusCompleted, gen.Status)
	assert.JSONEq(t, `{"callbackType":"complete"}`, string(gen.RawResponse))
	for i, tr := range tracks {
		assert.Equal(t, domain.StatusCompleted, tr.Status)
		assert.Equal(t, i, tr.VariantIndex)
		assert.Equal(t, fmt.Sprintf("Variant %d", i), tr.Title)
		assert.InDelta(t, 180.5, tr.DurationSeconds, 0.001)
	}
	assert.Equal(t, "https://cdn.example.com/0.mp3", tracks[0].AudioURL)
	assert.Equal(t, "https://cdn.example.com/1.mp3", tracks[1].AudioURL)

	assert.Equal(t, []string{"track.completed", "track.completed", "music_generation.completed"}, rec.changeTypes())
}

func TestReconcilerDuplicateCompletionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)
	ev := completion("task-1", "https://cdn.example.com/0.mp3", "https://cdn.example.com/1.mp3")

	_, err := r.Apply(ctx, ev)
	require.NoError(t, err)
	_, before := generationTracks(t, uow, "task-1")
	published := len(rec.changeTypes())

	replay := completion("task-1", "https://cdn.example.com/other-0.mp3", "https://cdn.example.com/other-1.mp3")
	outcome, err := r.Apply(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	gen, after := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusCompleted, gen.Status)
	assert.Equal(t, before, after, "tracks are untouched by a replayed event")
	require.Len(t, gen.Metadata.Audit, 1)
	assert.Equal(t, "completed", gen.Metadata.Audit[0].Event)
	assert.Len(t, rec.changeTypes(), published, "duplicates publish nothing")
}

func TestReconcilerConcurrentDuplicatesApplyOnce(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)
	ev := completion("task-1", "https://cdn.example.com/0.mp3", "https://cdn.example.com/1.mp3")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := r.Apply(ctx, ev)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeApplied])
	assert.Equal(t, 7, outcomes[OutcomeDuplicate])
	gen, _ := generationTracks(t, uow, "task-1")
	assert.Len(t, gen.Metadata.Audit, 7)
}

func TestReconcilerPartialSuccess(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	_, err := r.Apply(ctx, completion("task-1", "https://cdn.example.com/0.mp3"))
	require.NoError(t, err)

	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusCompleted, gen.Status, "one completed sibling completes the generation")
	assert.Equal(t, domain.StatusCompleted, tracks[0].Status)
	assert.Equal(t, domain.StatusFailed, tracks[1].Status)
	assert.Equal(t, domain.FailureNoResult, tracks[1].FailureReason)
	assert.Empty(t, tracks[1].AudioURL)
}

func TestReconcilerMatchesResultsByVariant(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	_, err := r.Apply(ctx, completion("task-1", "", "https://cdn.example.com/1.mp3"))
	require.NoError(t, err)

	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusCompleted, gen.Status)
	require.Len(t, tracks, 2)
	assert.Equal(t, domain.StatusFailed, tracks[0].Status)
	assert.Equal(t, domain.FailureNoResult, tracks[0].FailureReason)
	assert.Equal(t, domain.StatusCompleted, tracks[1].Status)
	assert.Equal(t, "https://cdn.example.com/1.mp3", tracks[1].AudioURL)
	assert.Equal(t, "Variant 1", tracks[1].Title)
}

func TestReconcilerCompletionWithoutResultsFails(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	_, err := r.Apply(ctx, completion("task-1"))
	require.NoError(t, err)

	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusFailed, gen.Status)
	assert.Equal(t, domain.FailureNoResult, gen.Metadata.FailureReason)
	for _, tr := range tracks {
		assert.Equal(t, domain.StatusFailed, tr.Status)
	}
}

func TestReconcilerFailureHidesProviderText(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	providerText := "upstream model crashed: CUDA OOM on node gpu-17"
	outcome, err := r.Apply(ctx, generation.TaskEvent{
		TaskID: "task-1",
		Status: domain.StatusFailed,
		Error:  providerText,
		Source: generation.SourceWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusFailed, gen.Status)
	assert.Equal(t, providerText, gen.Metadata.FailureReason)
	for _, tr := range tracks {
		assert.Equal(t, domain.StatusFailed, tr.Status)
		assert.Equal(t, FailureGeneric, tr.FailureReason)
	}
	for _, c := range rec.changes {
		for _, v := range c.Fields {
			assert.NotEqual(t, providerText, v)
		}
	}
}

func TestReconcilerProgress(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)
	progress := generation.TaskEvent{TaskID: "task-1", Status: domain.StatusProcessing, Source: generation.SourcePoll}

	outcome, err := r.Apply(ctx, progress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	gen, tracks := generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusProcessing, gen.Status)
	for _, tr := range tracks {
		assert.Equal(t, domain.StatusProcessing, tr.Status)
	}

	outcome, err = r.Apply(ctx, progress)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	outcome, err = r.Apply(ctx, generation.TaskEvent{TaskID: "task-1", Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	gen, _ = generationTracks(t, uow, "task-1")
	assert.Equal(t, domain.StatusProcessing, gen.Status, "a late pending event never moves a record backwards")
}

func TestReconcilerDiscardsUnknownAndInvalidEvents(t *testing.T) {
	ctx := context.Background()
	uow, _, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)

	outcome, err := r.Apply(ctx, completion("task-never-issued", "https://cdn.example.com/x.mp3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownTask, outcome)

	outcome, err = r.Apply(ctx, generation.TaskEvent{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, outcome)

	outcome, err = r.Apply(ctx, generation.TaskEvent{TaskID: "task-1", Status: "SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, outcome)

	assert.Empty(t, rec.changeTypes())
}

func TestReconcilerEndToEnd(t *testing.T) {
	ctx := context.Background()
	uow := memstore.New()
	userID := uuid.New()
	content := seedContent(t, uow, userID, 30, "rainy afternoon")
	rec := &recorder{}
	d := newTestDispatcher(t, uow, newFakeProvider(), generation.AverageTrackPolicy(180), rec)
	r := newTestReconciler(t, uow, rec)

	result, err := d.DispatchAll(ctx, userID, content.ID)
	require.NoError(t, err)
	require.Equal(t, 5, result.Scheduled)
	assert.Equal(t, map[domain.Status]int{domain.StatusPending: 10}, statusCounts(t, uow, content.ID))

	for i := 1; i <= 4; i++ {
		taskID := fmt.Sprintf("task-%d", i)
		_, err := r.Apply(ctx, completion(taskID, "https://cdn.example.com/"+taskID+"-0.mp3", "https://cdn.example.com/"+taskID+"-1.mp3"))
		require.NoError(t, err)
	}
	_, err = r.Apply(ctx, generation.TaskEvent{TaskID: "task-5", Status: domain.StatusFailed, Error: "content policy"})
	require.NoError(t, err)

	assert.Equal(t, map[domain.Status]int{
		domain.StatusCompleted: 8,
		domain.StatusFailed:    2,
	}, statusCounts(t, uow, content.ID))
	assert.Equal(t, 10, trackCount(t, uow, content.ID))

	gens, err := uow.Repos().Generations.ListByContent(ctx, content.ID)
	require.NoError(t, err)
	byStatus := map[domain.Status]int{}
	for _, g := range gens {
		byStatus[g.Status]++
	}
	assert.Equal(t, map[domain.Status]int{domain.StatusCompleted: 4, domain.StatusFailed: 1}, byStatus)
}

func TestReconcilerEventForDeletedGeneration(t *testing.T) {
	ctx := context.Background()
	uow, content, rec := dispatched(t, 1)
	r := newTestReconciler(t, uow, rec)
	gen, _ := generationTracks(t, uow, "task-1")

	svc, err := NewContentService(uow, rec, rec, nil)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteGeneration(ctx, content.UserID, content.ID, gen.ID))

	outcome, err := r.Apply(ctx, completion("task-1", "https://cdn.example.com/0.mp3", "https://cdn.example.com/1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownTask, outcome)
	assert.Zero(t, trackCount(t, uow, content.ID))
}
