// Package memstore is an in-memory store.UnitOfWork. A unit of work holds a
// single mutex for its whole duration, which gives the same serialization a
// row lock gives in Postgres, and restores a snapshot when it fails.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/store"
)

type state struct {
	contents    map[uuid.UUID]domain.Content
	generations map[uuid.UUID]domain.MusicGeneration
	tracks      map[uuid.UUID]domain.Track
	artworks    map[uuid.UUID]domain.Artwork
	credentials map[uuid.UUID]domain.YoutubeCredential
}

func newState() *state {
	return &state{
		contents:    map[uuid.UUID]domain.Content{},
		generations: map[uuid.UUID]domain.MusicGeneration{},
		tracks:      map[uuid.UUID]domain.Track{},
		artworks:    map[uuid.UUID]domain.Artwork{},
		credentials: map[uuid.UUID]domain.YoutubeCredential{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.contents {
		c.contents[k] = v
	}
	for k, v := range s.generations {
		c.generations[k] = copyGeneration(v)
	}
	for k, v := range s.tracks {
		c.tracks[k] = copyTrack(v)
	}
	for k, v := range s.artworks {
		c.artworks[k] = copyArtwork(v)
	}
	for k, v := range s.credentials {
		c.credentials[k] = v
	}
	return c
}

// UnitOfWork implements store.UnitOfWork in memory.
type UnitOfWork struct {
	mu sync.Mutex
	st *state
}

var _ store.UnitOfWork = (*UnitOfWork)(nil)

// New returns an empty in-memory store.
func New() *UnitOfWork {
	return &UnitOfWork{st: newState()}
}

// Do runs fn while holding the store lock and rolls back on error or panic.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) (err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := u.st.clone()
	defer func() {
		if p := recover(); p != nil {
			u.st = snapshot
			panic(p)
		}
		if err != nil {
			u.st = snapshot
		}
	}()

	return fn(ctx, u.repos(u.st))
}

// Repos returns stores that take the lock per call.
func (u *UnitOfWork) Repos() store.Repos {
	return u.repos(nil)
}

func (u *UnitOfWork) repos(tx *state) store.Repos {
	b := base{u: u, tx: tx}
	return store.Repos{
		Contents:    &contentRepo{b},
		Generations: &generationRepo{b},
		Tracks:      &trackRepo{b},
		Artworks:    &artworkRepo{b},
		Credentials: &credentialRepo{b},
	}
}

// base resolves the state a call operates on: the unit's state when bound
// to a unit of work, otherwise the shared state under the lock.
type base struct {
	u  *UnitOfWork
	tx *state
}

func (b base) with(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.u.mu.Lock()
	defer b.u.mu.Unlock()
	return fn(b.u.st)
}

func now() time.Time { return time.Now().UTC() }

func copyGeneration(g domain.MusicGeneration) domain.MusicGeneration {
	if g.RawResponse != nil {
		g.RawResponse = append([]byte(nil), g.RawResponse...)
	}
	if g.Metadata.Audit != nil {
		g.Metadata.Audit = append([]domain.AuditEntry(nil), g.Metadata.Audit...)
	}
	return g
}

func copyTrack(t domain.Track) domain.Track {
	if t.MusicGenerationID != nil {
		id := *t.MusicGenerationID
		t.MusicGenerationID = &id
	}
	return t
}

func copyArtwork(a domain.Artwork) domain.Artwork {
	derivs := make(map[domain.DerivativeType]domain.Derivative, len(a.Derivatives))
	for k, v := range a.Derivatives {
		derivs[k] = v
	}
	a.Derivatives = derivs
	return a
}

type contentRepo struct{ base }

func (r *contentRepo) Create(ctx context.Context, c *domain.Content) error {
	if err := c.Validate(); err != nil {
		return store.NewStoreError("content", "create", "validation failed", err)
	}
	return r.with(func(st *state) error {
		if _, ok := st.contents[c.ID]; ok {
			return store.ErrDuplicate
		}
		st.contents[c.ID] = *c
		return nil
	})
}

func (r *contentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	var out *domain.Content
	err := r.with(func(st *state) error {
		c, ok := st.contents[id]
		if !ok {
			return store.ErrContentNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID; the unit lock already excludes other writers.
func (r *contentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Content, error) {
	return r.GetByID(ctx, id)
}

func (r *contentRepo) UpdatePrompt(ctx context.Context, id uuid.UUID, prompt string) error {
	return r.with(func(st *state) error {
		c, ok := st.contents[id]
		if !ok {
			return store.ErrContentNotFound
		}
		c.Prompt = prompt
		c.UpdatedAt = now()
		st.contents[id] = c
		return nil
	})
}

type generationRepo struct{ base }

func (r *generationRepo) Create(ctx context.Context, g *domain.MusicGeneration) error {
	if err := g.Validate(); err != nil {
		return store.NewStoreError("music generation", "create", "validation failed", err)
	}
	return r.with(func(st *state) error {
		if _, ok := st.contents[g.ContentID]; !ok {
			return store.ErrContentNotFound
		}
		for _, existing := range st.generations {
			if existing.TaskID == g.TaskID {
				return store.ErrTaskIDExists
			}
		}
		st.generations[g.ID] = copyGeneration(*g)
		return nil
	})
}

func (r *generationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.MusicGeneration, error) {
	var out *domain.MusicGeneration
	err := r.with(func(st *state) error {
		g, ok := st.generations[id]
		if !ok {
			return store.ErrGenerationNotFound
		}
		g = copyGeneration(g)
		out = &g
		return nil
	})
	return out, err
}

func (r *generationRepo) GetByTaskIDForUpdate(ctx context.Context, taskID string) (*domain.MusicGeneration, error) {
	var out *domain.MusicGeneration
	err := r.with(func(st *state) error {
		for _, g := range st.generations {
			if g.TaskID == taskID {
				g = copyGeneration(g)
				out = &g
				return nil
			}
		}
		return store.ErrGenerationNotFound
	})
	return out, err
}

func (r *generationRepo) Update(ctx context.Context, g *domain.MusicGeneration) error {
	return r.with(func(st *state) error {
		if _, ok := st.generations[g.ID]; !ok {
			return store.ErrGenerationNotFound
		}
		st.generations[g.ID] = copyGeneration(*g)
		return nil
	})
}

func (r *generationRepo) ListByContent(ctx context.Context, contentID uuid.UUID) ([]*domain.MusicGeneration, error) {
	return r.list(func(g domain.MusicGeneration) bool { return g.ContentID == contentID }, 0)
}

func (r *generationRepo) ListUnresolved(
	ctx context.Context,
	olderThan time.Time,
	limit int,
) ([]*domain.MusicGeneration, error) {
	return r.list(func(g domain.MusicGeneration) bool {
		return !g.Status.IsTerminal() && g.UpdatedAt.Before(olderThan)
	}, limit)
}

func (r *generationRepo) list(match func(domain.MusicGeneration) bool, limit int) ([]*domain.MusicGeneration, error) {
	var out []*domain.MusicGeneration
	err := r.with(func(st *state) error {
		for _, g := range st.generations {
			if match(g) {
				g = copyGeneration(g)
				out = append(out, &g)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *generationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.with(func(st *state) error {
		if _, ok := st.generations[id]; !ok {
			return store.ErrGenerationNotFound
		}
		delete(st.generations, id)
		for tid, t := range st.tracks {
			if t.MusicGenerationID != nil && *t.MusicGenerationID == id {
				delete(st.tracks, tid)
			}
		}
		return nil
	})
}

type trackRepo struct{ base }

func (r *trackRepo) CreateMultiple(ctx context.Context, tracks []*domain.Track) error {
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return store.NewStoreError("track", "create", "validation failed", err)
		}
	}
	return r.with(func(st *state) error {
		for _, t := range tracks {
			if _, ok := st.contents[t.ContentID]; !ok {
				return store.ErrContentNotFound
			}
			if t.MusicGenerationID != nil {
				if _, ok := st.generations[*t.MusicGenerationID]; !ok {
					return store.ErrGenerationNotFound
				}
			}
		}
		for _, t := range tracks {
			st.tracks[t.ID] = copyTrack(*t)
		}
		return nil
	})
}

func (r *trackRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Track, error) {
	var out *domain.Track
	err := r.with(func(st *state) error {
		t, ok := st.tracks[id]
		if !ok {
			return store.ErrTrackNotFound
		}
		t = copyTrack(t)
		out = &t
		return nil
	})
	return out, err
}

func (r *trackRepo) CountByContent(ctx context.Context, contentID uuid.UUID) (int, error) {
	n := 0
	err := r.with(func(st *state) error {
		for _, t := range st.tracks {
			if t.ContentID == contentID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *trackRepo) CountByContentAndStatus(
	ctx context.Context,
	contentID uuid.UUID,
	status domain.Status,
) (int, error) {
	n := 0
	err := r.with(func(st *state) error {
		for _, t := range st.tracks {
			if t.ContentID == contentID && t.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *trackRepo) ListByContent(ctx context.Context, contentID uuid.UUID) ([]*domain.Track, error) {
	return r.list(func(t domain.Track) bool { return t.ContentID == contentID })
}

func (r *trackRepo) ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]*domain.Track, error) {
	return r.list(func(t domain.Track) bool {
		return t.MusicGenerationID != nil && *t.MusicGenerationID == generationID
	})
}

func (r *trackRepo) list(match func(domain.Track) bool) ([]*domain.Track, error) {
	var out []*domain.Track
	err := r.with(func(st *state) error {
		for _, t := range st.tracks {
			if match(t) {
				t = copyTrack(t)
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].VariantIndex < out[j].VariantIndex
	})
	return out, err
}

func (r *trackRepo) Update(ctx context.Context, t *domain.Track) error {
	return r.with(func(st *state) error {
		if _, ok := st.tracks[t.ID]; !ok {
			return store.ErrTrackNotFound
		}
		st.tracks[t.ID] = copyTrack(*t)
		return nil
	})
}

func (r *trackRepo) Attach(ctx context.Context, id, generationID uuid.UUID) error {
	return r.with(func(st *state) error {
		t, ok := st.tracks[id]
		if !ok || !t.Reserved() {
			return store.ErrTrackNotFound
		}
		if _, ok := st.generations[generationID]; !ok {
			return store.ErrGenerationNotFound
		}
		t.AttachTo(generationID)
		st.tracks[id] = t
		return nil
	})
}

func (r *trackRepo) DeleteStaleReservations(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := r.with(func(st *state) error {
		for id, t := range st.tracks {
			if t.Reserved() && t.Status == domain.StatusPending && t.CreatedAt.Before(cutoff) {
				delete(st.tracks, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *trackRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.with(func(st *state) error {
		if _, ok := st.tracks[id]; !ok {
			return store.ErrTrackNotFound
		}
		delete(st.tracks, id)
		return nil
	})
}

type artworkRepo struct{ base }

func (r *artworkRepo) GetByContentID(ctx context.Context, contentID uuid.UUID) (*domain.Artwork, error) {
	var out *domain.Artwork
	err := r.with(func(st *state) error {
		for _, a := range st.artworks {
			if a.ContentID == contentID {
				a = copyArtwork(a)
				out = &a
				return nil
			}
		}
		return store.ErrArtworkNotFound
	})
	return out, err
}

func (r *artworkRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Artwork, error) {
	var out *domain.Artwork
	err := r.with(func(st *state) error {
		a, ok := st.artworks[id]
		if !ok {
			return store.ErrArtworkNotFound
		}
		a = copyArtwork(a)
		out = &a
		return nil
	})
	return out, err
}

func (r *artworkRepo) Save(ctx context.Context, a *domain.Artwork) error {
	if err := a.Validate(); err != nil {
		return store.NewStoreError("artwork", "save", "validation failed", err)
	}
	return r.with(func(st *state) error {
		if _, ok := st.contents[a.ContentID]; !ok {
			return store.ErrContentNotFound
		}
		for id, existing := range st.artworks {
			if existing.ContentID == a.ContentID && id != a.ID {
				return store.ErrDuplicate
			}
		}
		st.artworks[a.ID] = copyArtwork(*a)
		return nil
	})
}

func (r *artworkRepo) ListByThumbnailStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.Artwork, error) {
	want := map[domain.Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []*domain.Artwork
	err := r.with(func(st *state) error {
		for _, a := range st.artworks {
			if want[a.ThumbnailStatus] {
				a = copyArtwork(a)
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type credentialRepo struct{ base }

func (r *credentialRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.YoutubeCredential, error) {
	var out *domain.YoutubeCredential
	err := r.with(func(st *state) error {
		c, ok := st.credentials[userID]
		if !ok {
			return store.ErrCredentialNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *credentialRepo) Upsert(ctx context.Context, c *domain.YoutubeCredential) error {
	if err := c.Validate(); err != nil {
		return store.NewStoreError("youtube credential", "upsert", "validation failed", err)
	}
	return r.with(func(st *state) error {
		cur := *c
		if existing, ok := st.credentials[c.UserID]; ok {
			cur.CreatedAt = existing.CreatedAt
		}
		st.credentials[c.UserID] = cur
		return nil
	})
}

func (r *credentialRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.with(func(st *state) error {
		if _, ok := st.credentials[userID]; !ok {
			return store.ErrCredentialNotFound
		}
		delete(st.credentials, userID)
		return nil
	})
}
