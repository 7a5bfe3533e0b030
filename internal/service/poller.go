package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// PollerConfig controls how outstanding provider tasks are polled.
type PollerConfig struct {
	// Interval between sweeps in Run. Zero disables the periodic sweep.
	Interval time.Duration
	// StaleAfter is how long a generation may go without an update before a
	// sweep fetches it.
	StaleAfter time.Duration
	// BatchSize caps the generations fetched per sweep.
	BatchSize int
	// Concurrency caps parallel provider fetches.
	Concurrency int
	// MaxFetchFailures is how many failed fetches of one task are tolerated
	// before its generation is failed.
	MaxFetchFailures int
	// ReservationTTL is how long a reserved Track may wait for its
	// generation before a sweep deletes it.
	ReservationTTL time.Duration
}

// Poller fetches the provider record of non-terminal generations and feeds
// it to the Reconciler. It covers webhooks that never arrive.
type Poller struct {
	uow        store.UnitOfWork
	provider   generation.Provider
	reconciler *Reconciler
	cfg        PollerConfig
	logger     *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(
	uow store.UnitOfWork,
	provider generation.Provider,
	reconciler *Reconciler,
	cfg PollerConfig,
	logger *slog.Logger,
) (*Poller, error) {
	switch {
	case uow == nil:
		return nil, &ServiceError{Operation: "create_poller", Message: "unit of work cannot be nil"}
	case provider == nil:
		return nil, &ServiceError{Operation: "create_poller", Message: "provider cannot be nil"}
	case reconciler == nil:
		return nil, &ServiceError{Operation: "create_poller", Message: "reconciler cannot be nil"}
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxFetchFailures <= 0 {
		cfg.MaxFetchFailures = 5
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		uow:        uow,
		provider:   provider,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger.With("component", "poller"),
	}, nil
}

// RefreshContent polls every non-terminal generation of a Content.
func (p *Poller) RefreshContent(ctx context.Context, contentID uuid.UUID) error {
	gens, err := p.uow.Repos().Generations.ListByContent(ctx, contentID)
	if err != nil {
		return NewServiceError("refresh_content", "failed to list generations", err)
	}

	pending := gens[:0]
	for _, g := range gens {
		if !g.Status.IsTerminal() {
			pending = append(pending, g)
		}
	}
	return p.poll(ctx, pending)
}

// PollStale polls generations that have not changed for StaleAfter and
// deletes Track reservations older than ReservationTTL.
func (p *Poller) PollStale(ctx context.Context) error {
	now := time.Now().UTC()
	released, err := p.uow.Repos().Tracks.DeleteStaleReservations(ctx, now.Add(-p.cfg.ReservationTTL))
	if err != nil {
		return NewServiceError("poll_stale", "failed to delete stale reservations", err)
	}
	if released > 0 {
		p.logger.Warn("deleted stale track reservations", "tracks", released)
	}

	gens, err := p.uow.Repos().Generations.ListUnresolved(ctx, now.Add(-p.cfg.StaleAfter), p.cfg.BatchSize)
	if err != nil {
		return NewServiceError("poll_stale", "failed to list unresolved generations", err)
	}
	return p.poll(ctx, gens)
}

// Run sweeps stale generations every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	if p.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			if err := p.PollStale(ctx); err != nil {
				p.logger.Error("poll sweep failed", "error", redact.Error(err))
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context, gens []*domain.MusicGeneration) error {
	if len(gens) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, gen := range gens {
		taskID := gen.TaskID
		g.Go(func() error {
			if err := p.pollOne(ctx, taskID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("poll finished", "generations", len(gens), "failures", len(errs))
	return errors.Join(errs...)
}

func (p *Poller) pollOne(ctx context.Context, taskID string) error {
	ev, err := p.provider.FetchTask(ctx, taskID)
	if err != nil {
		p.logger.Warn("failed to fetch provider task",
			"task_id", taskID,
			"transient", generation.IsTransient(err),
			"error", redact.Error(err))
		if ferr := p.countFetchFailure(ctx, taskID, err); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}

	ev.Source = generation.SourcePoll
	if ev.TaskID == "" {
		ev.TaskID = taskID
	}
	_, err = p.reconciler.Apply(ctx, *ev)
	return err
}

// countFetchFailure records a failed fetch and fails the generation once the
// task has been unreachable MaxFetchFailures times. Rate limiting and bad
// credentials affect every task alike and are not counted.
func (p *Poller) countFetchFailure(ctx context.Context, taskID string, fetchErr error) error {
	if errors.Is(fetchErr, generation.ErrRateLimited) ||
		errors.Is(fetchErr, generation.ErrAuthentication) ||
		errors.Is(fetchErr, context.Canceled) {
		return nil
	}

	n, err := p.reconciler.RecordFetchFailure(ctx, taskID)
	if err != nil || n < p.cfg.MaxFetchFailures {
		return err
	}

	p.logger.Warn("giving up on unreachable provider task", "task_id", taskID, "attempts", n)
	_, err = p.reconciler.Apply(ctx, generation.TaskEvent{
		TaskID: taskID,
		Status: domain.StatusFailed,
		Source: generation.SourcePoll,
		Error:  fmt.Sprintf("provider task unreachable after %d fetch attempts", n),
	})
	return err
}
