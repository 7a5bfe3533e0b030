package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTracksPerContent caps the number of Track rows a Content may own,
	// counting every status.
	MaxTracksPerContent = 100

	// TracksPerGeneration is the number of Track variants one provider task
	// produces.
	TracksPerGeneration = 2

	// MaxContentDurationMinutes bounds the requested playlist length.
	MaxContentDurationMinutes = 600
)

// Common validation errors for Content.
var (
	ErrEmptyContentID       = errors.New("content ID cannot be empty")
	ErrEmptyContentUserID   = errors.New("content user ID cannot be empty")
	ErrEmptyContentTheme    = errors.New("content theme cannot be empty")
	ErrInvalidContentLength = errors.New("content duration is out of range")
)

// Content is the user-owned unit of work that requests a themed set of
// generated tracks plus artwork.
type Content struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Theme           string    `json:"theme"`
	DurationMinutes int       `json:"duration_minutes"`
	Prompt          string    `json:"prompt"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewContent creates a validated Content owned by userID.
func NewContent(userID uuid.UUID, theme string, durationMinutes int, prompt string) (*Content, error) {
	now := time.Now().UTC()
	c := &Content{
		ID:              uuid.New(),
		UserID:          userID,
		Theme:           strings.TrimSpace(theme),
		DurationMinutes: durationMinutes,
		Prompt:          strings.TrimSpace(prompt),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the Content has valid data.
func (c *Content) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyContentID
	}
	if c.UserID == uuid.Nil {
		return ErrEmptyContentUserID
	}
	if c.Theme == "" {
		return ErrEmptyContentTheme
	}
	if c.DurationMinutes <= 0 || c.DurationMinutes > MaxContentDurationMinutes {
		return ErrInvalidContentLength
	}
	return nil
}

// DurationSeconds returns the requested duration in seconds.
func (c *Content) DurationSeconds() int {
	return c.DurationMinutes * 60
}

// OwnedBy reports whether userID owns the Content.
func (c *Content) OwnedBy(userID uuid.UUID) bool {
	return c.UserID == userID
}
