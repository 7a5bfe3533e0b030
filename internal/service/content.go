package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/phrazzld/cadence-api/internal/task"
)

// ContentDetails is a Content with everything it owns.
type ContentDetails struct {
	Content     *domain.Content           `json:"content"`
	Generations []*domain.MusicGeneration `json:"generations"`
	Tracks      []*domain.Track           `json:"tracks"`
	Artwork     *domain.Artwork           `json:"artwork,omitempty"`
	TrackCount  int                       `json:"track_count"`
	TrackLimit  int                       `json:"track_limit"`
}

// ContentService manages Contents and the records users may delete.
type ContentService struct {
	uow     store.UnitOfWork
	emitter events.EventEmitter
	changes events.ChangePublisher
	logger  *slog.Logger
}

// NewContentService creates a ContentService.
func NewContentService(
	uow store.UnitOfWork,
	emitter events.EventEmitter,
	changes events.ChangePublisher,
	logger *slog.Logger,
) (*ContentService, error) {
	switch {
	case uow == nil:
		return nil, &ServiceError{Operation: "create_content_service", Message: "unit of work cannot be nil"}
	case emitter == nil:
		return nil, &ServiceError{Operation: "create_content_service", Message: "event emitter cannot be nil"}
	case changes == nil:
		return nil, &ServiceError{Operation: "create_content_service", Message: "change publisher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentService{
		uow:     uow,
		emitter: emitter,
		changes: changes,
		logger:  logger.With("component", "content_service"),
	}, nil
}

// Create stores a new Content for userID.
func (s *ContentService) Create(
	ctx context.Context,
	userID uuid.UUID,
	theme string,
	durationMinutes int,
	prompt string,
) (*domain.Content, error) {
	content, err := domain.NewContent(userID, theme, durationMinutes, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.uow.Repos().Contents.Create(ctx, content); err != nil {
		s.logger.Error("failed to create content", "user_id", userID, "error", err)
		return nil, NewServiceError("create_content", "failed to save content", err)
	}
	s.logger.Info("content created", "content_id", content.ID, "duration_minutes", durationMinutes)
	return content, nil
}

// Details returns the Content with its generations, tracks and artwork.
func (s *ContentService) Details(ctx context.Context, userID, contentID uuid.UUID) (*ContentDetails, error) {
	repos := s.uow.Repos()
	content, err := s.owned(ctx, repos, userID, contentID)
	if err != nil {
		return nil, NewServiceError("content_details", "failed to load content", err)
	}

	gens, err := repos.Generations.ListByContent(ctx, contentID)
	if err != nil {
		return nil, NewServiceError("content_details", "failed to list generations", err)
	}
	tracks, err := repos.Tracks.ListByContent(ctx, contentID)
	if err != nil {
		return nil, NewServiceError("content_details", "failed to list tracks", err)
	}
	artwork, err := repos.Artworks.GetByContentID(ctx, contentID)
	if err != nil && !errors.Is(err, store.ErrArtworkNotFound) {
		return nil, NewServiceError("content_details", "failed to load artwork", err)
	}

	return &ContentDetails{
		Content:     content,
		Generations: gens,
		Tracks:      tracks,
		Artwork:     artwork,
		TrackCount:  len(tracks),
		TrackLimit:  domain.MaxTracksPerContent,
	}, nil
}

// DeleteTrack removes one Track in any status, freeing its quota slot.
func (s *ContentService) DeleteTrack(ctx context.Context, userID, contentID, trackID uuid.UUID) error {
	var deleted *domain.Track
	err := s.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := s.ownedForUpdate(ctx, r, userID, contentID); err != nil {
			return err
		}
		t, err := r.Tracks.GetByID(ctx, trackID)
		if err != nil {
			return err
		}
		if t.ContentID != contentID {
			return ErrTrackNotFound
		}
		deleted = t
		return r.Tracks.Delete(ctx, trackID)
	})
	if err != nil {
		return NewServiceError("delete_track", "failed to delete track", err)
	}

	s.changes.PublishChange(ctx,
		events.NewChangeEvent(events.KindTrack, "deleted", deleted.ID, contentID, string(deleted.Status)))
	return nil
}

// DeleteGeneration removes a MusicGeneration and its Tracks. Provider events
// that arrive later for its task are discarded as unknown.
func (s *ContentService) DeleteGeneration(ctx context.Context, userID, contentID, generationID uuid.UUID) error {
	var (
		gen    *domain.MusicGeneration
		tracks []*domain.Track
	)
	err := s.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		if _, err := s.ownedForUpdate(ctx, r, userID, contentID); err != nil {
			return err
		}
		var err error
		gen, err = r.Generations.GetByID(ctx, generationID)
		if err != nil {
			return err
		}
		if gen.ContentID != contentID {
			return ErrGenerationNotFound
		}
		tracks, err = r.Tracks.ListByGeneration(ctx, generationID)
		if err != nil {
			return err
		}
		return r.Generations.Delete(ctx, generationID)
	})
	if err != nil {
		return NewServiceError("delete_generation", "failed to delete generation", err)
	}

	changes := []*events.ChangeEvent{
		events.NewChangeEvent(events.KindMusicGeneration, "deleted", gen.ID, contentID, string(gen.Status)).
			With("task_id", gen.TaskID),
	}
	for _, t := range tracks {
		changes = append(changes,
			events.NewChangeEvent(events.KindTrack, "deleted", t.ID, contentID, string(t.Status)))
	}
	s.changes.PublishChange(ctx, changes...)
	s.logger.Info("generation deleted", "generation_id", gen.ID, "task_id", gen.TaskID, "tracks", len(tracks))
	return nil
}

// RequestRefresh schedules a poll of every outstanding provider task of the
// Content.
func (s *ContentService) RequestRefresh(ctx context.Context, userID, contentID uuid.UUID) error {
	if _, err := s.owned(ctx, s.uow.Repos(), userID, contentID); err != nil {
		return NewServiceError("request_refresh", "failed to load content", err)
	}
	ev, err := events.NewTaskRequestEvent(events.TaskTypeGenerationPoll, task.PollPayload{ContentID: contentID})
	if err != nil {
		return NewServiceError("request_refresh", "failed to build poll request", err)
	}
	if err := s.emitter.EmitEvent(ctx, ev); err != nil {
		return NewServiceError("request_refresh", "failed to schedule poll", err)
	}
	return nil
}

// Owns reports whether userID owns contentID. A missing Content returns
// ErrContentNotFound.
func (s *ContentService) Owns(ctx context.Context, userID, contentID uuid.UUID) error {
	_, err := s.owned(ctx, s.uow.Repos(), userID, contentID)
	return NewServiceError("owns", "failed to load content", err)
}

// OwnsRecord reports whether userID owns the Content a generation or track
// with recordID belongs to.
func (s *ContentService) OwnsRecord(ctx context.Context, userID, recordID uuid.UUID) error {
	repos := s.uow.Repos()
	var contentID uuid.UUID
	if gen, err := repos.Generations.GetByID(ctx, recordID); err == nil {
		contentID = gen.ContentID
	} else if !errors.Is(err, store.ErrGenerationNotFound) {
		return NewServiceError("owns_record", "failed to load generation", err)
	} else if t, err := repos.Tracks.GetByID(ctx, recordID); err == nil {
		contentID = t.ContentID
	} else {
		return NewServiceError("owns_record", "failed to load track", err)
	}
	return s.Owns(ctx, userID, contentID)
}

func (s *ContentService) owned(ctx context.Context, r store.Repos, userID, contentID uuid.UUID) (*domain.Content, error) {
	content, err := r.Contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !content.OwnedBy(userID) {
		return nil, ErrNotOwned
	}
	return content, nil
}

func (s *ContentService) ownedForUpdate(
	ctx context.Context,
	r store.Repos,
	userID, contentID uuid.UUID,
) (*domain.Content, error) {
	content, err := r.Contents.GetForUpdate(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !content.OwnedBy(userID) {
		return nil, ErrNotOwned
	}
	return content, nil
}
