package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DerivativeType identifies a processed variant of an uploaded image.
type DerivativeType string

// Known derivative types.
const (
	DerivativeOriginal         DerivativeType = "original"
	DerivativeYoutubeThumbnail DerivativeType = "youtube_thumbnail"
)

// Thumbnail geometry. Only originals of exactly the eligible size produce a
// youtube_thumbnail derivative.
const (
	ThumbnailEligibleWidth  = 1920
	ThumbnailEligibleHeight = 1080
	ThumbnailWidth          = 1280
	ThumbnailHeight         = 720
)

// Common validation errors for Artwork.
var (
	ErrEmptyArtworkID        = errors.New("artwork ID cannot be empty")
	ErrEmptyArtworkContentID = errors.New("artwork content ID cannot be empty")
	ErrEmptyArtworkObject    = errors.New("artwork object key cannot be empty")
	ErrInvalidDimensions     = errors.New("artwork dimensions must be positive")
)

// Derivative is one stored image variant.
type Derivative struct {
	Type        DerivativeType `json:"type"`
	ObjectKey   string         `json:"object_key"`
	ContentType string         `json:"content_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Artwork is the cover image of a Content plus its derivative set.
type Artwork struct {
	ID              uuid.UUID                     `json:"id"`
	ContentID       uuid.UUID                     `json:"content_id"`
	ThumbnailStatus Status                        `json:"thumbnail_generation_status"`
	Derivatives     map[DerivativeType]Derivative `json:"derivatives"`
	CreatedAt       time.Time                     `json:"created_at"`
	UpdatedAt       time.Time                     `json:"updated_at"`
}

// IsThumbnailEligible reports whether an original of the given size can
// produce a youtube_thumbnail derivative. The match is exact.
func IsThumbnailEligible(width, height int) bool {
	return width == ThumbnailEligibleWidth && height == ThumbnailEligibleHeight
}

// NewArtwork creates an Artwork for a freshly uploaded original.
func NewArtwork(contentID uuid.UUID, original Derivative) (*Artwork, error) {
	now := time.Now().UTC()
	a := &Artwork{
		ID:          uuid.New(),
		ContentID:   contentID,
		Derivatives: map[DerivativeType]Derivative{},
		CreatedAt:   now,
	}
	if err := a.ReplaceOriginal(original); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks if the Artwork has valid data.
func (a *Artwork) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyArtworkID
	}
	if a.ContentID == uuid.Nil {
		return ErrEmptyArtworkContentID
	}
	if !a.ThumbnailStatus.Valid() {
		return ErrInvalidStatus
	}
	if _, ok := a.Original(); !ok {
		return ErrEmptyArtworkObject
	}
	return nil
}

// Original returns the original image derivative.
func (a *Artwork) Original() (Derivative, bool) {
	d, ok := a.Derivatives[DerivativeOriginal]
	return d, ok
}

// Eligible reports whether the current original qualifies for a
// youtube_thumbnail derivative.
func (a *Artwork) Eligible() bool {
	orig, ok := a.Original()
	return ok && IsThumbnailEligible(orig.Width, orig.Height)
}

// ReplaceOriginal swaps the original image, drops every other derivative and
// resets the thumbnail status to pending.
func (a *Artwork) ReplaceOriginal(original Derivative) error {
	if original.ObjectKey == "" {
		return ErrEmptyArtworkObject
	}
	if original.Width <= 0 || original.Height <= 0 {
		return ErrInvalidDimensions
	}
	now := time.Now().UTC()
	original.Type = DerivativeOriginal
	if original.CreatedAt.IsZero() {
		original.CreatedAt = now
	}
	a.Derivatives = map[DerivativeType]Derivative{DerivativeOriginal: original}
	a.ThumbnailStatus = StatusPending
	a.UpdatedAt = now
	return nil
}

// TransitionThumbnail applies one enumerated transition to the thumbnail job.
func (a *Artwork) TransitionThumbnail(next Status) error {
	if err := checkTransition(a.ThumbnailStatus, next); err != nil {
		return err
	}
	a.ThumbnailStatus = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// AttachDerivative stores a generated derivative and completes the thumbnail job.
func (a *Artwork) AttachDerivative(d Derivative) error {
	if d.ObjectKey == "" {
		return ErrEmptyArtworkObject
	}
	if err := a.TransitionThumbnail(StatusCompleted); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = a.UpdatedAt
	}
	a.Derivatives[d.Type] = d
	return nil
}
