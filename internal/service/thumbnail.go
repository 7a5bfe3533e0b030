package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/platform/objectstore"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/phrazzld/cadence-api/internal/task"
	"github.com/phrazzld/cadence-api/internal/thumbnail"
)

// ThumbnailPreview is the would-be youtube thumbnail of a Content's artwork.
// ThumbnailURL is an inline data URL; nothing is stored.
type ThumbnailPreview struct {
	OriginalURL  string `json:"original_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// ThumbnailService manages artwork originals and their youtube thumbnail
// derivative.
type ThumbnailService struct {
	uow     store.UnitOfWork
	objects objectstore.Store
	emitter events.EventEmitter
	changes events.ChangePublisher
	logger  *slog.Logger
}

// NewThumbnailService creates a ThumbnailService.
func NewThumbnailService(
	uow store.UnitOfWork,
	objects objectstore.Store,
	emitter events.EventEmitter,
	changes events.ChangePublisher,
	logger *slog.Logger,
) (*ThumbnailService, error) {
	switch {
	case uow == nil:
		return nil, &ServiceError{Operation: "create_thumbnail_service", Message: "unit of work cannot be nil"}
	case objects == nil:
		return nil, &ServiceError{Operation: "create_thumbnail_service", Message: "object store cannot be nil"}
	case emitter == nil:
		return nil, &ServiceError{Operation: "create_thumbnail_service", Message: "event emitter cannot be nil"}
	case changes == nil:
		return nil, &ServiceError{Operation: "create_thumbnail_service", Message: "change publisher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThumbnailService{
		uow:     uow,
		objects: objects,
		emitter: emitter,
		changes: changes,
		logger:  logger.With("component", "thumbnail_service"),
	}, nil
}

func objectKey(contentID uuid.UUID, kind domain.DerivativeType, ext string) string {
	return fmt.Sprintf("contents/%s/artwork/%s-%s.%s", contentID, kind, uuid.New(), ext)
}

// UploadOriginal stores a new original image for the Content, replacing any
// previous one. An eligible original schedules a derivative job.
func (s *ThumbnailService) UploadOriginal(
	ctx context.Context,
	userID, contentID uuid.UUID,
	data []byte,
) (*domain.Artwork, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("content_id", contentID)

	content, err := s.uow.Repos().Contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, NewServiceError("upload_original", "failed to load content", err)
	}
	if !content.OwnedBy(userID) {
		return nil, ErrNotOwned
	}

	info, err := thumbnail.Probe(data)
	if err != nil {
		log.Info("rejected artwork upload", "error", err)
		return nil, ErrInvalidImage
	}

	key := objectKey(contentID, domain.DerivativeOriginal, info.Format)
	if err := s.objects.Put(ctx, key, info.MIMEType(), data); err != nil {
		return nil, NewServiceError("upload_original", "failed to store original", err)
	}

	original := domain.Derivative{
		ObjectKey:   key,
		ContentType: info.MIMEType(),
		Width:       info.Width,
		Height:      info.Height,
	}

	var (
		artwork  *domain.Artwork
		replaced []string
	)
	err = s.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		existing, err := r.Artworks.GetByContentID(ctx, contentID)
		switch {
		case errors.Is(err, store.ErrArtworkNotFound):
			artwork, err = domain.NewArtwork(contentID, original)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			for _, d := range existing.Derivatives {
				replaced = append(replaced, d.ObjectKey)
			}
			if err := existing.ReplaceOriginal(original); err != nil {
				return err
			}
			artwork = existing
		}
		return r.Artworks.Save(ctx, artwork)
	})
	if err != nil {
		s.deleteObjects(ctx, key)
		return nil, NewServiceError("upload_original", "failed to save artwork", err)
	}

	s.deleteObjects(ctx, replaced...)
	s.changes.PublishChange(ctx,
		events.NewChangeEvent(events.KindArtwork, "uploaded", artwork.ID, contentID, string(artwork.ThumbnailStatus)).
			With("width", info.Width).
			With("height", info.Height).
			With("eligible", artwork.Eligible()))

	if artwork.Eligible() {
		if err := s.enqueue(ctx, artwork.ID); err != nil {
			log.Error("failed to schedule thumbnail derivative", "artwork_id", artwork.ID, "error", err)
		}
	} else {
		log.Debug("artwork not eligible for thumbnail", "width", info.Width, "height", info.Height)
	}
	return artwork, nil
}

func (s *ThumbnailService) enqueue(ctx context.Context, artworkID uuid.UUID) error {
	ev, err := events.NewTaskRequestEvent(events.TaskTypeThumbnailDerivative, task.ThumbnailPayload{ArtworkID: artworkID})
	if err != nil {
		return err
	}
	return s.emitter.EmitEvent(ctx, ev)
}

// Preview renders the thumbnail the current original would produce without
// touching stored derivatives or the thumbnail status.
func (s *ThumbnailService) Preview(ctx context.Context, userID, contentID uuid.UUID) (*ThumbnailPreview, error) {
	content, err := s.uow.Repos().Contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, NewServiceError("preview", "failed to load content", err)
	}
	if !content.OwnedBy(userID) {
		return nil, ErrNotOwned
	}

	artwork, err := s.uow.Repos().Artworks.GetByContentID(ctx, contentID)
	if err != nil {
		return nil, NewServiceError("preview", "failed to load artwork", err)
	}
	if !artwork.Eligible() {
		return nil, ErrNotEligible
	}

	original, _ := artwork.Original()
	src, err := s.objects.Get(ctx, original.ObjectKey)
	if err != nil {
		s.logger.Error("preview source unavailable", "artwork_id", artwork.ID, "error", redact.Error(err))
		return nil, ErrThumbnailGenerationFailed
	}
	out, err := thumbnail.Generate(src)
	if err != nil {
		s.logger.Error("preview generation failed", "artwork_id", artwork.ID, "error", err)
		return nil, ErrThumbnailGenerationFailed
	}

	return &ThumbnailPreview{
		OriginalURL:  s.objects.URL(original.ObjectKey),
		ThumbnailURL: "data:" + thumbnail.ContentType + ";base64," + base64.StdEncoding.EncodeToString(out),
	}, nil
}

// GenerateDerivative runs the derivative job for one artwork. Ineligible or
// already resolved artworks are skipped. A derivative produced for an
// original that was replaced in the meantime is discarded.
func (s *ThumbnailService) GenerateDerivative(ctx context.Context, artworkID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With("artwork_id", artworkID)

	var (
		original  domain.Derivative
		contentID uuid.UUID
		skip      bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		a, err := r.Artworks.GetByIDForUpdate(ctx, artworkID)
		if err != nil {
			return err
		}
		if !a.Eligible() || a.ThumbnailStatus.IsTerminal() {
			skip = true
			return nil
		}
		original, _ = a.Original()
		contentID = a.ContentID
		if a.ThumbnailStatus == domain.StatusPending {
			if err := a.TransitionThumbnail(domain.StatusProcessing); err != nil {
				return err
			}
			return r.Artworks.Save(ctx, a)
		}
		return nil
	})
	if err != nil {
		return NewServiceError("generate_derivative", "failed to start derivative job", err)
	}
	if skip {
		log.Debug("derivative job skipped")
		return nil
	}

	d, genErr := s.render(ctx, contentID, original)
	if genErr != nil {
		log.Error("derivative generation failed", "error", redact.Error(genErr))
		if err := s.finish(ctx, artworkID, original, nil); err != nil {
			return NewServiceError("generate_derivative", "failed to record derivative failure", err)
		}
		return fmt.Errorf("%w: %v", ErrThumbnailGenerationFailed, genErr)
	}

	if err := s.finish(ctx, artworkID, original, d); err != nil {
		s.deleteObjects(ctx, d.ObjectKey)
		return NewServiceError("generate_derivative", "failed to attach derivative", err)
	}
	log.Info("thumbnail derivative generated", "object_key", d.ObjectKey)
	return nil
}

func (s *ThumbnailService) render(
	ctx context.Context,
	contentID uuid.UUID,
	original domain.Derivative,
) (*domain.Derivative, error) {
	src, err := s.objects.Get(ctx, original.ObjectKey)
	if err != nil {
		return nil, err
	}
	out, err := thumbnail.Generate(src)
	if err != nil {
		return nil, err
	}

	key := objectKey(contentID, domain.DerivativeYoutubeThumbnail, "jpg")
	if err := s.objects.Put(ctx, key, thumbnail.ContentType, out); err != nil {
		return nil, err
	}
	return &domain.Derivative{
		Type:        domain.DerivativeYoutubeThumbnail,
		ObjectKey:   key,
		ContentType: thumbnail.ContentType,
		Width:       domain.ThumbnailWidth,
		Height:      domain.ThumbnailHeight,
	}, nil
}

// finish attaches d, or marks the job failed when d is nil, provided the
// artwork still has the same original and is processing.
func (s *ThumbnailService) finish(
	ctx context.Context,
	artworkID uuid.UUID,
	original domain.Derivative,
	d *domain.Derivative,
) error {
	var (
		stale  bool
		change *events.ChangeEvent
	)
	err := s.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		a, err := r.Artworks.GetByIDForUpdate(ctx, artworkID)
		if err != nil {
			return err
		}
		current, _ := a.Original()
		if current.ObjectKey != original.ObjectKey || a.ThumbnailStatus != domain.StatusProcessing {
			stale = true
			return nil
		}

		action := "thumbnail_failed"
		if d != nil {
			if err := a.AttachDerivative(*d); err != nil {
				return err
			}
			action = "thumbnail_completed"
		} else if err := a.TransitionThumbnail(domain.StatusFailed); err != nil {
			return err
		}
		if err := r.Artworks.Save(ctx, a); err != nil {
			return err
		}
		change = events.NewChangeEvent(events.KindArtwork, action, a.ID, a.ContentID, string(a.ThumbnailStatus))
		return nil
	})
	if err != nil {
		return err
	}

	if stale {
		s.logger.Info("discarding derivative for replaced original", "artwork_id", artworkID)
		if d != nil {
			s.deleteObjects(ctx, d.ObjectKey)
		}
		return nil
	}
	s.changes.PublishChange(ctx, change)
	return nil
}

// Recover re-schedules eligible artworks whose derivative job never
// finished, e.g. because the process stopped mid-job.
func (s *ThumbnailService) Recover(ctx context.Context) error {
	artworks, err := s.uow.Repos().Artworks.ListByThumbnailStatus(ctx, domain.StatusPending, domain.StatusProcessing)
	if err != nil {
		return NewServiceError("recover_thumbnails", "failed to list artworks", err)
	}

	scheduled := 0
	for _, a := range artworks {
		if !a.Eligible() {
			continue
		}
		if err := s.enqueue(ctx, a.ID); err != nil {
			return NewServiceError("recover_thumbnails", "failed to schedule derivative", err)
		}
		scheduled++
	}
	s.logger.Info("thumbnail recovery finished", "scheduled", scheduled)
	return nil
}

func (s *ThumbnailService) deleteObjects(ctx context.Context, keys ...string) {
	for _, k := range keys {
		if err := s.objects.Delete(ctx, k); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
			s.logger.Warn("failed to delete object", "object_key", k, "error", redact.Error(err))
		}
	}
}
