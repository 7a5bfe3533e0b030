package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/phrazzld/cadence-api/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

// fakeProvider accepts submissions with sequential task IDs. failAt makes
// the n-th submission (1-based) fail with failErr.
type fakeProvider struct {
	mu       sync.Mutex
	submits  []generation.Submission
	failAt   int
	failErr  error
	tasks    map[string]*generation.TaskEvent
	fetched  []string
	fetchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{tasks: make(map[string]*generation.TaskEvent)}
}

func (p *fakeProvider) Submit(_ context.Context, s generation.Submission) (*generation.Accepted, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits = append(p.submits, s)
	if p.failAt > 0 && len(p.submits) == p.failAt {
		return nil, p.failErr
	}
	id := fmt.Sprintf("task-%d", len(p.submits))
	return &generation.Accepted{TaskID: id, Raw: json.RawMessage(`{"taskId":"` + id + `"}`)}, nil
}

func (p *fakeProvider) FetchTask(_ context.Context, taskID string) (*generation.TaskEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched = append(p.fetched, taskID)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	ev, ok := p.tasks[taskID]
	if !ok {
		return &generation.TaskEvent{TaskID: taskID, Status: domain.StatusPending}, nil
	}
	cp := *ev
	return &cp, nil
}

func (p *fakeProvider) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submits)
}

// recorder captures committed changes and task requests.
type recorder struct {
	mu       sync.Mutex
	changes  []*events.ChangeEvent
	requests []*events.TaskRequestEvent
}

func (r *recorder) PublishChange(_ context.Context, evs ...*events.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, evs...)
}

func (r *recorder) EmitEvent(_ context.Context, ev *events.TaskRequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, ev)
	return nil
}

func (r *recorder) changeTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Type)
	}
	return out
}

func (r *recorder) requestCount(taskType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.requests {
		if ev.Type == taskType {
			n++
		}
	}
	return n
}

func seedContent(t *testing.T, uow *memstore.UnitOfWork, userID uuid.UUID, minutes int, prompt string) *domain.Content {
	t.Helper()
	c, err := domain.NewContent(userID, "late night drive", minutes, prompt)
	require.NoError(t, err)
	require.NoError(t, uow.Repos().Contents.Create(context.Background(), c))
	return c
}

// seedTracks inserts n completed tracks that belong to no generation.
func seedTracks(t *testing.T, uow *memstore.UnitOfWork, contentID uuid.UUID, n int) {
	t.Helper()
	tracks := make([]*domain.Track, 0, n)
	for i := 0; i < n; i++ {
		tracks = append(tracks, &domain.Track{
			ID:           uuid.New(),
			ContentID:    contentID,
			Status:       domain.StatusCompleted,
			VariantIndex: i % domain.TracksPerGeneration,
			AudioURL:     fmt.Sprintf("https://cdn.example.com/%d.mp3", i),
		})
	}
	require.NoError(t, uow.Repos().Tracks.CreateMultiple(context.Background(), tracks))
}

func trackCount(t *testing.T, uow store.UnitOfWork, contentID uuid.UUID) int {
	t.Helper()
	n, err := uow.Repos().Tracks.CountByContent(context.Background(), contentID)
	require.NoError(t, err)
	return n
}

func statusCounts(t *testing.T, uow store.UnitOfWork, contentID uuid.UUID) map[domain.Status]int {
	t.Helper()
	tracks, err := uow.Repos().Tracks.ListByContent(context.Background(), contentID)
	require.NoError(t, err)
	out := map[domain.Status]int{}
	for _, tr := range tracks {
		out[tr.Status]++
	}
	return out
}

func fixedPolicy(n int) generation.CountPolicy {
	return generation.CountPolicyFunc(func(int) int { return n })
}

func newTestDispatcher(
	t *testing.T,
	uow store.UnitOfWork,
	provider generation.Provider,
	policy generation.CountPolicy,
	rec *recorder,
	opts ...DispatcherOption,
) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(uow, provider, NewQuotaGuard(0, nil), policy, rec,
		DispatcherConfig{Model: "V4_5", CallbackURL: "https://api.example.com/api/webhooks/provider"}, nil, opts...)
	require.NoError(t, err)
	return d
}

func newTestReconciler(t *testing.T, uow store.UnitOfWork, rec *recorder) *Reconciler {
	t.Helper()
	r, err := NewReconciler(uow, rec, nil)
	require.NoError(t, err)
	return r
}

func completion(taskID string, urls ...string) generation.TaskEvent {
	ev := generation.TaskEvent{
		TaskID: taskID,
		Status: domain.StatusCompleted,
		Source: generation.SourceWebhook,
		Raw:    json.RawMessage(`{"callbackType":"complete"}`),
	}
	for i, u := range urls {
		ev.Results = append(ev.Results, generation.TrackResult{
			AudioURL:        u,
			DurationSeconds: 180.5,
			Title:           fmt.Sprintf("Variant %d", i),
			Tags:            "synthwave",
			Prompt:          "neon",
		})
	}
	return ev
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}
