package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTopic is returned for a topic name that is not recognized.
var ErrInvalidTopic = errors.New("invalid topic")

// TopicKind distinguishes the three topic shapes.
type TopicKind int

// Topic kinds.
const (
	TopicTracks TopicKind = iota + 1
	TopicNotifications
	TopicRecord
)

// TracksTopic is the content-scoped track topic.
func TracksTopic(contentID uuid.UUID) string {
	return fmt.Sprintf("content_%s_tracks", contentID)
}

// NotificationsTopic is the content-scoped notification topic.
func NotificationsTopic(contentID uuid.UUID) string {
	return fmt.Sprintf("content_%s_notifications", contentID)
}

// RecordTopic is the per-record topic.
func RecordTopic(recordID uuid.UUID) string {
	return fmt.Sprintf("record_%s", recordID)
}

// ParseTopic splits a topic name into its kind and ID.
func ParseTopic(topic string) (TopicKind, uuid.UUID, error) {
	if rest, ok := strings.CutPrefix(topic, "record_"); ok {
		id, err := uuid.Parse(rest)
		if err != nil {
			return 0, uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
		return TopicRecord, id, nil
	}

	rest, ok := strings.CutPrefix(topic, "content_")
	if !ok {
		return 0, uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	var (
		kind   TopicKind
		idPart string
	)
	switch {
	case strings.HasSuffix(rest, "_tracks"):
		kind, idPart = TopicTracks, strings.TrimSuffix(rest, "_tracks")
	case strings.HasSuffix(rest, "_notifications"):
		kind, idPart = TopicNotifications, strings.TrimSuffix(rest, "_notifications")
	default:
		return 0, uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return kind, id, nil
}
