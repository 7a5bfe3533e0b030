package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/service"
)

// CreateContentRequest defines the payload for POST /api/contents.
type CreateContentRequest struct {
	Theme           string `json:"theme"            validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0,max=600"`
	Prompt          string `json:"prompt"           validate:"max=2000"`
}

// ContentResponse is the public view of a Content.
type ContentResponse struct {
	ID              uuid.UUID `json:"id"`
	Theme           string    `json:"theme"`
	DurationMinutes int       `json:"duration_minutes"`
	Prompt          string    `json:"prompt"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TrackResponse is the public view of a Track.
type TrackResponse struct {
	ID                uuid.UUID  `json:"id"`
	MusicGenerationID *uuid.UUID `json:"music_generation_id,omitempty"`
	Status            string     `json:"status"`
	VariantIndex      int        `json:"variant_index"`
	DurationSeconds   float64    `json:"duration_seconds"`
	Title             string     `json:"title,omitempty"`
	Tags              string     `json:"tags,omitempty"`
	Prompt            string     `json:"prompt,omitempty"`
	AudioURL          string     `json:"audio_url,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// GenerationResponse is the public view of a MusicGeneration. Provider
// payloads and provider error text stay server side.
type GenerationResponse struct {
	ID        uuid.UUID `json:"id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtworkResponse is the public view of an Artwork.
type ArtworkResponse struct {
	ID              uuid.UUID `json:"id"`
	ThumbnailStatus string    `json:"thumbnail_generation_status"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	HasThumbnail    bool      `json:"has_thumbnail"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ContentDetailsResponse is the response of GET /api/contents/{id}.
type ContentDetailsResponse struct {
	Content     ContentResponse      `json:"content"`
	Generations []GenerationResponse `json:"generations"`
	Tracks      []TrackResponse      `json:"tracks"`
	Artwork     *ArtworkResponse     `json:"artwork,omitempty"`
	TrackCount  int                  `json:"track_count"`
	TrackLimit  int                  `json:"track_limit"`
}

// DispatchResponse reports how many generation units were scheduled.
type DispatchResponse struct {
	Scheduled     int         `json:"scheduled"`
	Requested     int         `json:"requested"`
	GenerationIDs []uuid.UUID `json:"generation_ids"`
}

// AuthorizeResponse carries the consent URL for clients that follow the
// redirect themselves.
type AuthorizeResponse struct {
	URL string `json:"url"`
}

// StatusResponse is a minimal acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}

func contentToResponse(c *domain.Content) ContentResponse {
	return ContentResponse{
		ID:              c.ID,
		Theme:           c.Theme,
		DurationMinutes: c.DurationMinutes,
		Prompt:          c.Prompt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func trackToResponse(t *domain.Track) TrackResponse {
	return TrackResponse{
		ID:                t.ID,
		MusicGenerationID: t.MusicGenerationID,
		Status:            string(t.Status),
		VariantIndex:      t.VariantIndex,
		DurationSeconds:   t.DurationSeconds,
		Title:             t.Title,
		Tags:              t.Tags,
		Prompt:            t.Prompt,
		AudioURL:          t.AudioURL,
		FailureReason:     t.FailureReason,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func generationToResponse(g *domain.MusicGeneration) GenerationResponse {
	return GenerationResponse{
		ID:        g.ID,
		TaskID:    g.TaskID,
		Status:    string(g.Status),
		Prompt:    g.Prompt,
		Model:     g.Model,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func artworkToResponse(a *domain.Artwork) *ArtworkResponse {
	if a == nil {
		return nil
	}
	resp := &ArtworkResponse{
		ID:              a.ID,
		ThumbnailStatus: string(a.ThumbnailStatus),
		UpdatedAt:       a.UpdatedAt,
	}
	if original, ok := a.Derivatives[domain.DerivativeOriginal]; ok {
		resp.Width = original.Width
		resp.Height = original.Height
	}
	_, resp.HasThumbnail = a.Derivatives[domain.DerivativeYoutubeThumbnail]
	return resp
}

func detailsToResponse(d *service.ContentDetails) ContentDetailsResponse {
	resp := ContentDetailsResponse{
		Content:     contentToResponse(d.Content),
		Generations: make([]GenerationResponse, 0, len(d.Generations)),
		Tracks:      make([]TrackResponse, 0, len(d.Tracks)),
		Artwork:     artworkToResponse(d.Artwork),
		TrackCount:  d.TrackCount,
		TrackLimit:  d.TrackLimit,
	}
	for _, g := range d.Generations {
		resp.Generations = append(resp.Generations, generationToResponse(g))
	}
	for _, t := range d.Tracks {
		resp.Tracks = append(resp.Tracks, trackToResponse(t))
	}
	return resp
}

func dispatchToResponse(r *service.DispatchResult) DispatchResponse {
	resp := DispatchResponse{
		Scheduled:     r.Scheduled,
		Requested:     r.Requested,
		GenerationIDs: make([]uuid.UUID, 0, len(r.Generations)),
	}
	for _, g := range r.Generations {
		resp.GenerationIDs = append(resp.GenerationIDs, g.ID)
	}
	return resp
}
