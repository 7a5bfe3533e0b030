package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phrazzld/cadence-api/internal/domain"
)

// Submission is one outbound task request.
type Submission struct {
	Prompt       string
	Model        string
	CallbackURL  string
	Instrumental bool
}

// Accepted is the synchronous answer to a Submission.
type Accepted struct {
	TaskID string
	Raw    json.RawMessage
}

// TrackResult is one generated variant reported by the provider.
type TrackResult struct {
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration"`
	Title           string  `json:"title"`
	Tags            string  `json:"tags"`
	Prompt          string  `json:"prompt"`
}

// Audio converts a result into the domain value attached to a Track.
func (r TrackResult) Audio() domain.TrackAudio {
	return domain.TrackAudio{
		AudioURL:        r.AudioURL,
		DurationSeconds: r.DurationSeconds,
		Title:           r.Title,
		Tags:            r.Tags,
		Prompt:          r.Prompt,
	}
}

// EventSource names where a TaskEvent came from.
type EventSource string

// Known event sources.
const (
	SourceWebhook EventSource = "webhook"
	SourcePoll    EventSource = "poll"
)

// TaskEvent is a provider status report for one task, delivered by webhook
// or obtained by polling. Delivery is at-least-once and unordered.
type TaskEvent struct {
	TaskID  string
	Status  domain.Status
	Results []TrackResult
	Error   string
	Source  EventSource
	Raw     json.RawMessage
}

// ErrInvalidEvent is returned for events that cannot be reconciled.
var ErrInvalidEvent = errors.New("invalid task event")

// Validate checks the event carries a task ID and a known status.
func (e TaskEvent) Validate() error {
	if e.TaskID == "" {
		return fmt.Errorf("%w: missing task id", ErrInvalidEvent)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidEvent, e.Status)
	}
	return nil
}

// Provider submits generation tasks and reports their state.
type Provider interface {
	// Submit requests a new task. It returns once the provider has accepted
	// the task; it never waits for completion.
	Submit(ctx context.Context, s Submission) (*Accepted, error)

	// FetchTask returns the current state of a task.
	FetchTask(ctx context.Context, taskID string) (*TaskEvent, error)
}

// PromptWriter turns a content theme into a provider prompt.
type PromptWriter interface {
	WritePrompt(ctx context.Context, theme string, durationMinutes int) (string, error)
}
