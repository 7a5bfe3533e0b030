package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FailureNoResult is recorded on a placeholder the provider returned no
// output for.
const FailureNoResult = "no result returned"

// Common validation errors for Track.
var (
	ErrEmptyTrackID        = errors.New("track ID cannot be empty")
	ErrEmptyTrackContentID = errors.New("track content ID cannot be empty")
	ErrInvalidVariantIndex = errors.New("track variant index is out of range")
	ErrEmptyTrackAudio     = errors.New("completed track requires an audio reference")
)

// TrackAudio is the provider output attached to a completed Track.
type TrackAudio struct {
	AudioURL        string
	DurationSeconds float64
	Title           string
	Tags            string
	Prompt          string
}

// Track is one generated audio variant belonging to a MusicGeneration.
type Track struct {
	ID                uuid.UUID  `json:"id"`
	ContentID         uuid.UUID  `json:"content_id"`
	MusicGenerationID *uuid.UUID `json:"music_generation_id,omitempty"`
	Status            Status     `json:"status"`
	VariantIndex      int        `json:"variant_index"`
	DurationSeconds   float64    `json:"duration_seconds"`
	Title             string     `json:"title"`
	Tags              string     `json:"tags"`
	Prompt            string     `json:"prompt"`
	AudioURL          string     `json:"audio_url,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewTrackPlaceholder creates a pending Track for one variant of a generation.
func NewTrackPlaceholder(contentID, generationID uuid.UUID, variantIndex int) (*Track, error) {
	t, err := NewTrackReservation(contentID, variantIndex)
	if err != nil {
		return nil, err
	}
	t.AttachTo(generationID)
	return t, nil
}

// NewTrackReservation creates a pending Track that holds a quota slot before
// its generation exists.
func NewTrackReservation(contentID uuid.UUID, variantIndex int) (*Track, error) {
	now := time.Now().UTC()
	t := &Track{
		ID:           uuid.New(),
		ContentID:    contentID,
		Status:       StatusPending,
		VariantIndex: variantIndex,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reserved reports whether the Track is still waiting for its generation.
func (t *Track) Reserved() bool {
	return t.MusicGenerationID == nil
}

// AttachTo binds a reserved Track to its generation.
func (t *Track) AttachTo(generationID uuid.UUID) {
	id := generationID
	t.MusicGenerationID = &id
	t.UpdatedAt = time.Now().UTC()
}

// Validate checks if the Track has valid data.
func (t *Track) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTrackID
	}
	if t.ContentID == uuid.Nil {
		return ErrEmptyTrackContentID
	}
	if t.VariantIndex < 0 || t.VariantIndex >= TracksPerGeneration {
		return ErrInvalidVariantIndex
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TransitionTo applies one enumerated transition.
func (t *Track) TransitionTo(next Status) error {
	if err := checkTransition(t.Status, next); err != nil {
		return err
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete attaches the provider output and marks a processing Track completed.
func (t *Track) Complete(audio TrackAudio) error {
	if audio.AudioURL == "" {
		return ErrEmptyTrackAudio
	}
	if err := t.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	t.AudioURL = audio.AudioURL
	t.DurationSeconds = audio.DurationSeconds
	t.Title = audio.Title
	t.Tags = audio.Tags
	t.Prompt = audio.Prompt
	return nil
}

// Fail marks a processing Track failed with reason.
func (t *Track) Fail(reason string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}
