package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
)

// Notifier turns committed change events into topic messages.
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger
}

var _ events.ChangeHandler = (*Notifier)(nil)

// NewNotifier creates a Notifier publishing through p.
func NewNotifier(p Publisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{publisher: p, logger: logger.With(slog.String("component", "realtime_notifier"))}
}

// Topics returns the topics a change is published to. Track and generation
// changes reach all three; artwork changes skip the tracks topic.
func Topics(e *events.ChangeEvent) []string {
	topics := make([]string, 0, 3)
	if e.Kind == events.KindTrack || e.Kind == events.KindMusicGeneration {
		topics = append(topics, TracksTopic(e.ContentID))
	}
	return append(topics, NotificationsTopic(e.ContentID), RecordTopic(e.RecordID))
}

// Payload renders the wire message: event_type, record_id, status and the
// event's extra fields at the top level.
func Payload(e *events.ChangeEvent) ([]byte, error) {
	msg := make(map[string]any, len(e.Fields)+5)
	for k, v := range e.Fields {
		msg[k] = v
	}
	msg["event_type"] = e.Type
	msg["record_id"] = e.RecordID
	msg["content_id"] = e.ContentID
	msg["status"] = e.Status
	msg["occurred_at"] = e.OccurredAt
	return json.Marshal(msg)
}

// HandleChange implements events.ChangeHandler. Every topic is attempted;
// the first failure is returned.
func (n *Notifier) HandleChange(ctx context.Context, e *events.ChangeEvent) error {
	payload, err := Payload(e)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	var firstErr error
	for _, topic := range Topics(e) {
		if err := n.publisher.Publish(ctx, topic, payload); err != nil {
			logger.FromContextOrDefault(ctx, n.logger).Warn("failed to publish change",
				slog.String("topic", topic),
				slog.String("event_type", e.Type),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
