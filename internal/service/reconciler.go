package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/store"
)

// Outcome describes what the Reconciler did with an event.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeApplied     Outcome = "applied"
	OutcomeNoop        Outcome = "noop"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnknownTask Outcome = "unknown_task"
	OutcomeInvalid     Outcome = "invalid"
)

// FailureGeneric is the reason stored on Tracks of a failed provider task.
// Provider error text is kept in generation metadata and logs only.
const FailureGeneric = "generation failed"

// Reconciler applies provider task events to MusicGeneration and Track
// records. Each event runs in its own unit of work holding the generation
// row lock, so events for one task are serialized and events for different
// tasks proceed in parallel.
type Reconciler struct {
	uow     store.UnitOfWork
	changes events.ChangePublisher
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(uow store.UnitOfWork, changes events.ChangePublisher, logger *slog.Logger) (*Reconciler, error) {
	if uow == nil {
		return nil, &ServiceError{Operation: "create_reconciler", Message: "unit of work cannot be nil"}
	}
	if changes == nil {
		return nil, &ServiceError{Operation: "create_reconciler", Message: "change publisher cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{uow: uow, changes: changes, logger: logger.With("component", "reconciler")}, nil
}

// Apply reconciles one event. Malformed events, unknown tasks and events for
// terminal generations are logged and discarded; only storage failures are
// returned.
func (r *Reconciler) Apply(ctx context.Context, ev generation.TaskEvent) (Outcome, error) {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		"task_id", ev.TaskID,
		"event_status", ev.Status,
		"source", ev.Source)

	if err := ev.Validate(); err != nil {
		log.Warn("discarding invalid provider event", "error", err)
		return OutcomeInvalid, nil
	}

	var (
		outcome Outcome
		changes []*events.ChangeEvent
	)
	err := r.uow.Do(ctx, func(ctx context.Context, repos store.Repos) error {
		outcome, changes = OutcomeNoop, nil

		gen, err := repos.Generations.GetByTaskIDForUpdate(ctx, ev.TaskID)
		if errors.Is(err, store.ErrGenerationNotFound) {
			outcome = OutcomeUnknownTask
			return nil
		}
		if err != nil {
			return err
		}

		if gen.Status.IsTerminal() {
			outcome = OutcomeDuplicate
			gen.AppendAudit(string(ev.Status), fmt.Sprintf("%s event after %s", ev.Source, gen.Status))
			return repos.Generations.Update(ctx, gen)
		}

		a := &application{repos: repos, gen: gen, ev: ev}
		if err := a.run(ctx); err != nil {
			return err
		}
		outcome, changes = a.outcome, a.changes
		return nil
	})
	if err != nil {
		log.Error("failed to reconcile provider event", "error", redact.Error(err))
		return "", NewServiceError("apply_event", "failed to reconcile provider event", err)
	}

	switch outcome {
	case OutcomeUnknownTask:
		log.Info("discarding event for unknown task")
	case OutcomeDuplicate:
		log.Info("discarding event for terminal generation")
	case OutcomeApplied:
		log.Debug("provider event applied", "changes", len(changes))
	case OutcomeNoop, OutcomeInvalid:
	}

	if len(changes) > 0 {
		r.changes.PublishChange(ctx, changes...)
	}
	return outcome, nil
}

// RecordFetchFailure counts a failed fetch of the task's provider record and
// returns the total. Unknown tasks and terminal generations return zero.
func (r *Reconciler) RecordFetchFailure(ctx context.Context, taskID string) (int, error) {
	n := 0
	err := r.uow.Do(ctx, func(ctx context.Context, repos store.Repos) error {
		gen, err := repos.Generations.GetByTaskIDForUpdate(ctx, taskID)
		if errors.Is(err, store.ErrGenerationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if gen.Status.IsTerminal() {
			return nil
		}
		n = gen.RecordFetchFailure()
		return repos.Generations.Update(ctx, gen)
	})
	if err != nil {
		return 0, NewServiceError("record_fetch_failure", "failed to record fetch failure", err)
	}
	return n, nil
}

// application carries the state of one event being applied to one locked,
// non-terminal generation.
type application struct {
	repos   store.Repos
	gen     *domain.MusicGeneration
	tracks  []*domain.Track
	ev      generation.TaskEvent
	outcome Outcome
	changes []*events.ChangeEvent
}

func (a *application) run(ctx context.Context) error {
	tracks, err := a.repos.Tracks.ListByGeneration(ctx, a.gen.ID)
	if err != nil {
		return err
	}
	a.tracks = tracks
	a.outcome = OutcomeNoop

	switch a.ev.Status {
	case domain.StatusPending:
		return nil
	case domain.StatusProcessing:
		return a.progress(ctx)
	case domain.StatusCompleted:
		return a.complete(ctx)
	case domain.StatusFailed:
		return a.fail(ctx)
	default:
		return nil
	}
}

// progress moves the generation and its pending siblings to processing.
// Repeated progress events are no-ops.
func (a *application) progress(ctx context.Context) error {
	if a.gen.Status == domain.StatusPending {
		if err := a.gen.TransitionTo(domain.StatusProcessing); err != nil {
			return err
		}
		if err := a.saveGeneration(ctx, "processing"); err != nil {
			return err
		}
	}
	for _, t := range a.tracks {
		if t.Status != domain.StatusPending {
			continue
		}
		if err := t.TransitionTo(domain.StatusProcessing); err != nil {
			return err
		}
		if err := a.saveTrack(ctx, t, "processing"); err != nil {
			return err
		}
	}
	return nil
}

// complete attaches results to placeholders by variant. Placeholders with no
// matching result fail. The generation completes when at least one sibling
// completed.
func (a *application) complete(ctx context.Context) error {
	completed := 0
	for _, t := range a.tracks {
		if t.Status.IsTerminal() {
			if t.Status == domain.StatusCompleted {
				completed++
			}
			continue
		}
		if err := stepToProcessing(t.Status, t.TransitionTo); err != nil {
			return err
		}

		if t.VariantIndex < len(a.ev.Results) && a.ev.Results[t.VariantIndex].AudioURL != "" {
			if err := t.Complete(a.ev.Results[t.VariantIndex].Audio()); err != nil {
				return err
			}
			completed++
			if err := a.saveTrack(ctx, t, "completed"); err != nil {
				return err
			}
			continue
		}

		if err := t.Fail(domain.FailureNoResult); err != nil {
			return err
		}
		if err := a.saveTrack(ctx, t, "failed"); err != nil {
			return err
		}
	}

	if err := stepToProcessing(a.gen.Status, a.gen.TransitionTo); err != nil {
		return err
	}
	a.gen.RawResponse = a.ev.Raw
	if completed == 0 {
		if err := a.gen.Fail(domain.FailureNoResult); err != nil {
			return err
		}
		return a.saveGeneration(ctx, "failed")
	}
	if err := a.gen.TransitionTo(domain.StatusCompleted); err != nil {
		return err
	}
	return a.saveGeneration(ctx, "completed")
}

// fail marks every unresolved sibling and the generation failed. The
// provider's error text stays in generation metadata.
func (a *application) fail(ctx context.Context) error {
	for _, t := range a.tracks {
		if t.Status.IsTerminal() {
			continue
		}
		if err := stepToProcessing(t.Status, t.TransitionTo); err != nil {
			return err
		}
		if err := t.Fail(FailureGeneric); err != nil {
			return err
		}
		if err := a.saveTrack(ctx, t, "failed"); err != nil {
			return err
		}
	}

	if err := stepToProcessing(a.gen.Status, a.gen.TransitionTo); err != nil {
		return err
	}
	a.gen.RawResponse = a.ev.Raw
	reason := a.ev.Error
	if reason == "" {
		reason = generation.ErrTaskFailed.Error()
	}
	if err := a.gen.Fail(reason); err != nil {
		return err
	}
	return a.saveGeneration(ctx, "failed")
}

func (a *application) saveTrack(ctx context.Context, t *domain.Track, action string) error {
	if err := a.repos.Tracks.Update(ctx, t); err != nil {
		return err
	}
	a.outcome = OutcomeApplied
	change := events.NewChangeEvent(events.KindTrack, action, t.ID, t.ContentID, string(t.Status)).
		With("music_generation_id", a.gen.ID).
		With("variant_index", t.VariantIndex)
	if t.Status == domain.StatusCompleted {
		change.With("audio_url", t.AudioURL).With("title", t.Title)
	}
	a.changes = append(a.changes, change)
	return nil
}

func (a *application) saveGeneration(ctx context.Context, action string) error {
	if err := a.repos.Generations.Update(ctx, a.gen); err != nil {
		return err
	}
	a.outcome = OutcomeApplied
	a.changes = append(a.changes,
		events.NewChangeEvent(events.KindMusicGeneration, action, a.gen.ID, a.gen.ContentID, string(a.gen.Status)).
			With("task_id", a.gen.TaskID))
	return nil
}

// stepToProcessing applies the intermediate steps a pending record needs
// before it can take a terminal transition.
func stepToProcessing(from domain.Status, transition func(domain.Status) error) error {
	path, err := domain.TransitionPath(from, domain.StatusCompleted)
	if err != nil {
		return err
	}
	for _, step := range path[:len(path)-1] {
		if err := transition(step); err != nil {
			return err
		}
	}
	return nil
}
