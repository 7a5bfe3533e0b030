package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/store"
)

// QuotaGuard enforces the per-Content track cap. Reserve must run inside a
// store.UnitOfWork so that the row lock it takes covers the Track inserts
// that follow.
type QuotaGuard struct {
	limit  int
	logger *slog.Logger
}

// NewQuotaGuard returns a guard for the given cap. A non-positive limit uses
// domain.MaxTracksPerContent.
func NewQuotaGuard(limit int, logger *slog.Logger) *QuotaGuard {
	if limit <= 0 {
		limit = domain.MaxTracksPerContent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaGuard{limit: limit, logger: logger.With("component", "quota_guard")}
}

// Limit returns the configured cap.
func (q *QuotaGuard) Limit() int { return q.limit }

// Reserve locks the Content row and grants n slots only if the current track
// count plus n stays within the cap. The decision is all-or-nothing. The
// caller inserts the reserved tracks using the same repos before the unit
// commits.
func (q *QuotaGuard) Reserve(ctx context.Context, repos store.Repos, contentID uuid.UUID, n int) error {
	if n <= 0 {
		return fmt.Errorf("reserve %d tracks: %w", n, domain.ErrValidation)
	}

	if _, err := repos.Contents.GetForUpdate(ctx, contentID); err != nil {
		return err
	}

	current, err := repos.Tracks.CountByContent(ctx, contentID)
	if err != nil {
		return err
	}

	if current+n > q.limit {
		q.logger.Info("quota reservation rejected",
			"content_id", contentID,
			"current", current,
			"requested", n,
			"limit", q.limit)
		return &QuotaExceededError{
			ContentID: contentID.String(),
			Current:   current,
			Requested: n,
			Limit:     q.limit,
		}
	}
	return nil
}
