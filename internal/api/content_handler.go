package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/service"
)

// ContentService is the content lifecycle the handler depends on.
type ContentService interface {
	Create(ctx context.Context, userID uuid.UUID, theme string, durationMinutes int, prompt string) (*domain.Content, error)
	Details(ctx context.Context, userID, contentID uuid.UUID) (*service.ContentDetails, error)
	DeleteTrack(ctx context.Context, userID, contentID, trackID uuid.UUID) error
	DeleteGeneration(ctx context.Context, userID, contentID, generationID uuid.UUID) error
	RequestRefresh(ctx context.Context, userID, contentID uuid.UUID) error
}

// GenerationDispatcher schedules provider generation tasks.
type GenerationDispatcher interface {
	DispatchAll(ctx context.Context, userID, contentID uuid.UUID) (*service.DispatchResult, error)
	DispatchSingle(ctx context.Context, userID, contentID uuid.UUID) (*service.DispatchResult, error)
}

// ContentHandler handles content and generation requests.
type ContentHandler struct {
	contents   ContentService
	dispatcher GenerationDispatcher
	logger     *slog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(contents ContentService, dispatcher GenerationDispatcher, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ContentHandler")
	}
	return &ContentHandler{
		contents:   contents,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "content_handler")),
	}
}

// CreateContent handles POST /api/contents.
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req CreateContentRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err,
			shared.WithErrorCode(CodeValidation))
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err,
			shared.WithErrorCode(CodeValidation))
		return
	}

	content, err := h.contents.Create(r.Context(), userID, req.Theme, req.DurationMinutes, req.Prompt)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create content")
		return
	}

	log.Info("content created", slog.String("content_id", content.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, contentToResponse(content))
}

// GetContent handles GET /api/contents/{id}.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, contentID, ok := handleUserIDAndPathUUID(w, r, ParamContentID, log)
	if !ok {
		return
	}

	details, err := h.contents.Details(r.Context(), userID, contentID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get content")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, detailsToResponse(details))
}

// DispatchAll handles POST /api/contents/{id}/generations.
func (h *ContentHandler) DispatchAll(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "dispatch_all", h.dispatcher.DispatchAll)
}

// DispatchSingle handles POST /api/contents/{id}/generations/single.
func (h *ContentHandler) DispatchSingle(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "dispatch_single", h.dispatcher.DispatchSingle)
}

func (h *ContentHandler) dispatch(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(context.Context, uuid.UUID, uuid.UUID) (*service.DispatchResult, error),
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, contentID, ok := handleUserIDAndPathUUID(w, r, ParamContentID, log)
	if !ok {
		return
	}

	result, err := fn(r.Context(), userID, contentID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to schedule generation")
		return
	}

	if !result.Complete() {
		log.Warn("generation batch partially scheduled",
			slog.String("operation", op),
			slog.Int("scheduled", result.Scheduled),
			slog.Int("requested", result.Requested),
			slog.String("error", redact.Error(result.Err)))
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, dispatchToResponse(result))
}

// RefreshGenerations handles POST /api/contents/{id}/generations/refresh.
func (h *ContentHandler) RefreshGenerations(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, contentID, ok := handleUserIDAndPathUUID(w, r, ParamContentID, log)
	if !ok {
		return
	}

	if err := h.contents.RequestRefresh(r.Context(), userID, contentID); err != nil {
		HandleAPIError(w, r, err, "Failed to refresh generations")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, StatusResponse{Status: "scheduled"})
}

// DeleteGeneration handles DELETE /api/contents/{id}/generations/{generationID}.
func (h *ContentHandler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ids, ok := handleUserIDAndPathUUIDs(w, r, log, ParamContentID, ParamGenerationID)
	if !ok {
		return
	}

	if err := h.contents.DeleteGeneration(r.Context(), userID, ids[0], ids[1]); err != nil {
		HandleAPIError(w, r, err, "Failed to delete generation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTrack handles DELETE /api/contents/{id}/tracks/{trackID}.
func (h *ContentHandler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ids, ok := handleUserIDAndPathUUIDs(w, r, log, ParamContentID, ParamTrackID)
	if !ok {
		return
	}

	if err := h.contents.DeleteTrack(r.Context(), userID, ids[0], ids[1]); err != nil {
		HandleAPIError(w, r, err, "Failed to delete track")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
