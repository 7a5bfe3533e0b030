package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task request types.
const (
	TaskTypeThumbnailDerivative = "thumbnail_derivative"
	TaskTypeGenerationPoll      = "generation_poll"
)

// TaskRequestEvent represents a request to create a background task.
type TaskRequestEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates a TaskRequestEvent with a JSON encoded payload.
func NewTaskRequestEvent(eventType string, payload any) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RecordKind names the entity a ChangeEvent is about.
type RecordKind string

// Record kinds.
const (
	KindTrack           RecordKind = "track"
	KindMusicGeneration RecordKind = "music_generation"
	KindArtwork         RecordKind = "artwork"
)

// ChangeEvent announces a committed change. Subscribers treat it as a hint
// to refetch, not as authoritative state.
type ChangeEvent struct {
	Type       string         `json:"event_type"`
	Kind       RecordKind     `json:"kind"`
	RecordID   uuid.UUID      `json:"record_id"`
	ContentID  uuid.UUID      `json:"content_id"`
	Status     string         `json:"status"`
	Fields     map[string]any `json:"fields,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewChangeEvent creates a ChangeEvent stamped with the current time. The
// event type is "<kind>.<action>", e.g. "track.completed".
func NewChangeEvent(kind RecordKind, action string, recordID, contentID uuid.UUID, status string) *ChangeEvent {
	return &ChangeEvent{
		Type:       string(kind) + "." + action,
		Kind:       kind,
		RecordID:   recordID,
		ContentID:  contentID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
}

// With sets an extra field and returns the event.
func (e *ChangeEvent) With(key string, value any) *ChangeEvent {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// EventHandler handles task requests.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter publishes task requests.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}

// ChangeHandler receives committed state changes.
type ChangeHandler interface {
	HandleChange(ctx context.Context, event *ChangeEvent) error
}

// ChangePublisher publishes committed state changes. Publishing never fails
// the caller.
type ChangePublisher interface {
	PublishChange(ctx context.Context, events ...*ChangeEvent)
}
