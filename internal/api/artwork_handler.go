package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/service"
)

// MaxArtworkBytes caps artwork uploads.
const MaxArtworkBytes = 20 << 20

// artworkFormField is the multipart field carrying the image.
const artworkFormField = "image"

// ArtworkService stores artwork originals and previews their thumbnail.
type ArtworkService interface {
	UploadOriginal(ctx context.Context, userID, contentID uuid.UUID, data []byte) (*domain.Artwork, error)
	Preview(ctx context.Context, userID, contentID uuid.UUID) (*service.ThumbnailPreview, error)
}

// ArtworkHandler handles artwork upload and preview requests.
type ArtworkHandler struct {
	artworks ArtworkService
	logger   *slog.Logger
}

// NewArtworkHandler creates a new ArtworkHandler.
func NewArtworkHandler(artworks ArtworkService, logger *slog.Logger) *ArtworkHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ArtworkHandler")
	}
	return &ArtworkHandler{
		artworks: artworks,
		logger:   logger.With(slog.String("component", "artwork_handler")),
	}
}

// UploadArtwork handles PUT /api/contents/{id}/artwork.
func (h *ArtworkHandler) UploadArtwork(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, contentID, ok := handleUserIDAndPathUUID(w, r, ParamContentID, log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxArtworkBytes)
	file, _, err := r.FormFile(artworkFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "Image is too large", err,
				shared.WithErrorCode(CodeInvalidImage))
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Multipart field \"image\" is required", err,
			shared.WithErrorCode(CodeValidation))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Failed to read image", err,
			shared.WithErrorCode(CodeInvalidImage))
		return
	}

	artwork, err := h.artworks.UploadOriginal(r.Context(), userID, contentID, data)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload artwork")
		return
	}

	log.Info("artwork uploaded",
		slog.String("content_id", contentID.String()),
		slog.String("artwork_id", artwork.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, artworkToResponse(artwork))
}

// PreviewThumbnail handles GET /api/contents/{id}/artwork/preview.
func (h *ArtworkHandler) PreviewThumbnail(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, contentID, ok := handleUserIDAndPathUUID(w, r, ParamContentID, log)
	if !ok {
		return
	}

	preview, err := h.artworks.Preview(r.Context(), userID, contentID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate thumbnail preview")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, preview)
}
