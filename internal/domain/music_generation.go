package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for MusicGeneration.
var (
	ErrEmptyGenerationID        = errors.New("music generation ID cannot be empty")
	ErrEmptyGenerationContentID = errors.New("music generation content ID cannot be empty")
	ErrEmptyGenerationTaskID    = errors.New("music generation task ID cannot be empty")
)

// AuditEntry records an event that was received for a generation but not
// applied, such as a duplicate webhook for a terminal task.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Reason string    `json:"reason"`
}

// GenerationMetadata is the free-form metadata stored with a generation.
// Audit holds discarded transitions and is the only field appended after the
// generation becomes terminal.
type GenerationMetadata struct {
	Audit         []AuditEntry `json:"audit,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	FetchFailures int          `json:"fetch_failures,omitempty"`
}

// MusicGeneration is one external provider task. It owns exactly
// TracksPerGeneration Track placeholders.
type MusicGeneration struct {
	ID          uuid.UUID          `json:"id"`
	ContentID   uuid.UUID          `json:"content_id"`
	TaskID      string             `json:"task_id"`
	Status      Status             `json:"status"`
	Prompt      string             `json:"prompt"`
	Model       string             `json:"model"`
	RawResponse json.RawMessage    `json:"raw_response,omitempty"`
	Metadata    GenerationMetadata `json:"metadata"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewMusicGeneration creates a pending generation for an accepted provider task.
func NewMusicGeneration(
	contentID uuid.UUID,
	taskID, prompt, model string,
	raw json.RawMessage,
) (*MusicGeneration, error) {
	now := time.Now().UTC()
	g := &MusicGeneration{
		ID:          uuid.New(),
		ContentID:   contentID,
		TaskID:      taskID,
		Status:      StatusPending,
		Prompt:      prompt,
		Model:       model,
		RawResponse: raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks if the MusicGeneration has valid data.
func (g *MusicGeneration) Validate() error {
	if g.ID == uuid.Nil {
		return ErrEmptyGenerationID
	}
	if g.ContentID == uuid.Nil {
		return ErrEmptyGenerationContentID
	}
	if g.TaskID == "" {
		return ErrEmptyGenerationTaskID
	}
	if !g.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TransitionTo applies one enumerated transition.
func (g *MusicGeneration) TransitionTo(next Status) error {
	if err := checkTransition(g.Status, next); err != nil {
		return err
	}
	g.Status = next
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves a processing generation to failed and records the reason.
func (g *MusicGeneration) Fail(reason string) error {
	if err := g.TransitionTo(StatusFailed); err != nil {
		return err
	}
	g.Metadata.FailureReason = reason
	return nil
}

// RecordFetchFailure counts one failed attempt to fetch the provider record
// and returns the total so far.
func (g *MusicGeneration) RecordFetchFailure() int {
	g.Metadata.FetchFailures++
	g.UpdatedAt = time.Now().UTC()
	return g.Metadata.FetchFailures
}

// AppendAudit records a discarded event. It is permitted on terminal records.
func (g *MusicGeneration) AppendAudit(event, reason string) {
	now := time.Now().UTC()
	g.Metadata.Audit = append(g.Metadata.Audit, AuditEntry{At: now, Event: event, Reason: reason})
	g.UpdatedAt = now
}
