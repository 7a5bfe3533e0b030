package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/store"
)

// DispatcherConfig holds the provider submission settings.
type DispatcherConfig struct {
	Model        string
	CallbackURL  string
	Instrumental bool
}

// DispatchResult reports how many of the requested units were scheduled.
// Err is the error that stopped the batch early, if any.
type DispatchResult struct {
	Requested   int
	Scheduled   int
	Generations []*domain.MusicGeneration
	Err         error
}

// Complete reports whether every requested unit was scheduled.
func (r *DispatchResult) Complete() bool {
	return r.Scheduled == r.Requested
}

// Dispatcher turns a generation request into provider tasks plus pending
// MusicGeneration and Track records.
type Dispatcher struct {
	uow          store.UnitOfWork
	provider     generation.Provider
	quota        *QuotaGuard
	policy       generation.CountPolicy
	promptWriter generation.PromptWriter
	changes      events.ChangePublisher
	cfg          DispatcherConfig
	logger       *slog.Logger
}

// DispatcherOption configures optional Dispatcher collaborators.
type DispatcherOption func(*Dispatcher)

// WithPromptWriter derives prompts for Contents that have none.
func WithPromptWriter(w generation.PromptWriter) DispatcherOption {
	return func(d *Dispatcher) { d.promptWriter = w }
}

// NewDispatcher creates a Dispatcher. It returns an error if any of the
// required dependencies are nil.
func NewDispatcher(
	uow store.UnitOfWork,
	provider generation.Provider,
	quota *QuotaGuard,
	policy generation.CountPolicy,
	changes events.ChangePublisher,
	cfg DispatcherConfig,
	logger *slog.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	switch {
	case uow == nil:
		return nil, &ServiceError{Operation: "create_dispatcher", Message: "unit of work cannot be nil"}
	case provider == nil:
		return nil, &ServiceError{Operation: "create_dispatcher", Message: "provider cannot be nil"}
	case quota == nil:
		return nil, &ServiceError{Operation: "create_dispatcher", Message: "quota guard cannot be nil"}
	case policy == nil:
		return nil, &ServiceError{Operation: "create_dispatcher", Message: "count policy cannot be nil"}
	case changes == nil:
		return nil, &ServiceError{Operation: "create_dispatcher", Message: "change publisher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		uow:      uow,
		provider: provider,
		quota:    quota,
		policy:   policy,
		changes:  changes,
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DispatchAll schedules every unit the Content's duration calls for.
func (d *Dispatcher) DispatchAll(ctx context.Context, userID, contentID uuid.UUID) (*DispatchResult, error) {
	content, err := d.ownedContent(ctx, userID, contentID)
	if err != nil {
		return nil, NewServiceError("dispatch_all", "failed to load content", err)
	}
	units := d.policy.GenerationCount(content.DurationSeconds())
	return d.dispatch(ctx, "dispatch_all", content, units, nil)
}

// DispatchSingle schedules one unit. It is refused while any Track of the
// Content is processing.
func (d *Dispatcher) DispatchSingle(ctx context.Context, userID, contentID uuid.UUID) (*DispatchResult, error) {
	content, err := d.ownedContent(ctx, userID, contentID)
	if err != nil {
		return nil, NewServiceError("dispatch_single", "failed to load content", err)
	}

	inProgress := func(ctx context.Context, r store.Repos) error {
		n, err := r.Tracks.CountByContentAndStatus(ctx, content.ID, domain.StatusProcessing)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrGenerationInProgress
		}
		return nil
	}
	if err := inProgress(ctx, d.uow.Repos()); err != nil {
		return nil, NewServiceError("dispatch_single", "failed to check tracks in progress", err)
	}

	return d.dispatch(ctx, "dispatch_single", content, 1, inProgress)
}

func (d *Dispatcher) ownedContent(ctx context.Context, userID, contentID uuid.UUID) (*domain.Content, error) {
	content, err := d.uow.Repos().Contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !content.OwnedBy(userID) {
		return nil, ErrNotOwned
	}
	return content, nil
}

// dispatch reserves the whole batch's Track slots in one unit of work, so a
// batch is either granted in full or rejected. Units are then submitted one
// at a time with no lock held, and each accepted task is recorded by
// attaching its reserved slots. A failing unit aborts the rest and releases
// their slots; units already scheduled are kept.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	op string,
	content *domain.Content,
	units int,
	guard func(context.Context, store.Repos) error,
) (*DispatchResult, error) {
	log := logger.FromContextOrDefault(ctx, d.logger).With("content_id", content.ID, "units", units)

	if units < 1 {
		units = 1
	}
	result := &DispatchResult{Requested: units}

	// Rejected batches never reach the provider.
	slots, err := d.reserve(ctx, content.ID, units, guard)
	if err != nil {
		return result, NewServiceError(op, "quota reservation failed", err)
	}

	prompt := d.resolvePrompt(ctx, log, content)

	for i := 0; i < units; i++ {
		unit := slots[i*domain.TracksPerGeneration : (i+1)*domain.TracksPerGeneration]
		gen, err := d.scheduleUnit(ctx, log, content.ID, prompt, unit)
		if err != nil {
			result.Err = err
			log.Warn("dispatch stopped early",
				"unit", i+1,
				"scheduled", result.Scheduled,
				"transient", generation.IsTransient(err),
				"error", redact.Error(err))
			d.release(ctx, log, slots[i*domain.TracksPerGeneration:])
			break
		}

		result.Scheduled++
		result.Generations = append(result.Generations, gen)
		d.publishCreated(ctx, gen, unit)
	}

	log.Info("dispatch finished", "scheduled", result.Scheduled, "requested", result.Requested)

	if result.Scheduled == 0 && result.Err != nil {
		return result, NewServiceError(op, "no generation could be scheduled", result.Err)
	}
	return result, nil
}

// reserve locks the Content row, checks the quota for every unit and inserts
// one reserved Track per slot.
func (d *Dispatcher) reserve(
	ctx context.Context,
	contentID uuid.UUID,
	units int,
	guard func(context.Context, store.Repos) error,
) ([]*domain.Track, error) {
	slots := make([]*domain.Track, 0, units*domain.TracksPerGeneration)
	for u := 0; u < units; u++ {
		for v := 0; v < domain.TracksPerGeneration; v++ {
			t, err := domain.NewTrackReservation(contentID, v)
			if err != nil {
				return nil, err
			}
			slots = append(slots, t)
		}
	}

	err := d.uow.Do(ctx, func(ctx context.Context, r store.Repos) error {
		if err := d.quota.Reserve(ctx, r, contentID, len(slots)); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, r); err != nil {
				return err
			}
		}
		return r.Tracks.CreateMultiple(ctx, slots)
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// scheduleUnit submits one provider task and records it against its reserved
// slots. The task is recorded even if ctx ends after the provider accepted it.
func (d *Dispatcher) scheduleUnit(
	ctx context.Context,
	log *slog.Logger,
	contentID uuid.UUID,
	prompt string,
	slots []*domain.Track,
) (*domain.MusicGeneration, error) {
	accepted, err := d.provider.Submit(ctx, generation.Submission{
		Prompt:       prompt,
		Model:        d.cfg.Model,
		CallbackURL:  d.cfg.CallbackURL,
		Instrumental: d.cfg.Instrumental,
	})
	if err != nil {
		return nil, err
	}

	gen, err := domain.NewMusicGeneration(contentID, accepted.TaskID, prompt, d.cfg.Model, accepted.Raw)
	if err == nil {
		err = d.uow.Do(context.WithoutCancel(ctx), func(ctx context.Context, r store.Repos) error {
			if err := r.Generations.Create(ctx, gen); err != nil {
				return err
			}
			for _, t := range slots {
				if err := r.Tracks.Attach(ctx, t.ID, gen.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err != nil {
		log.Error("provider task accepted but not recorded",
			"task_id", accepted.TaskID,
			"error", redact.Error(err))
		return nil, err
	}

	for _, t := range slots {
		t.AttachTo(gen.ID)
	}
	return gen, nil
}

// release deletes reserved slots that will not be scheduled. Slots it cannot
// delete are left for the stale reservation sweep.
func (d *Dispatcher) release(ctx context.Context, log *slog.Logger, slots []*domain.Track) {
	if len(slots) == 0 {
		return
	}
	err := d.uow.Do(context.WithoutCancel(ctx), func(ctx context.Context, r store.Repos) error {
		for _, t := range slots {
			if err := r.Tracks.Delete(ctx, t.ID); err != nil && !errors.Is(err, store.ErrTrackNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to release reserved tracks", "tracks", len(slots), "error", redact.Error(err))
	}
}

// resolvePrompt returns the Content prompt, deriving and storing one from the
// theme when it is empty. Any failure falls back to the theme text.
func (d *Dispatcher) resolvePrompt(ctx context.Context, log *slog.Logger, content *domain.Content) string {
	if content.Prompt != "" {
		return content.Prompt
	}
	if d.promptWriter == nil {
		return content.Theme
	}

	prompt, err := d.promptWriter.WritePrompt(ctx, content.Theme, content.DurationMinutes)
	if err != nil || prompt == "" {
		if err == nil {
			err = errors.New("empty prompt")
		}
		log.Warn("prompt writer failed, using theme", "error", redact.Error(err))
		return content.Theme
	}

	if err := d.uow.Repos().Contents.UpdatePrompt(ctx, content.ID, prompt); err != nil {
		log.Warn("failed to store generated prompt", "error", redact.Error(err))
	} else {
		content.Prompt = prompt
	}
	return prompt
}

func (d *Dispatcher) publishCreated(ctx context.Context, gen *domain.MusicGeneration, tracks []*domain.Track) {
	changes := make([]*events.ChangeEvent, 0, len(tracks)+1)
	changes = append(changes,
		events.NewChangeEvent(events.KindMusicGeneration, "created", gen.ID, gen.ContentID, string(gen.Status)).
			With("task_id", gen.TaskID))
	for _, t := range tracks {
		changes = append(changes,
			events.NewChangeEvent(events.KindTrack, "created", t.ID, t.ContentID, string(t.Status)).
				With("music_generation_id", gen.ID).
				With("variant_index", t.VariantIndex))
	}
	d.changes.PublishChange(ctx, changes...)
}
