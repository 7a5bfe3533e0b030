package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newContentHandler() (*ContentHandler, *mockContentService, *mockDispatcher) {
	contents := &mockContentService{}
	dispatcher := &mockDispatcher{}
	return NewContentHandler(contents, dispatcher, testLogger()), contents, dispatcher
}

func TestCreateContent(t *testing.T) {
	userID := uuid.New()

	t.Run("created", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		content, err := domain.NewContent(userID, "rainy cafe", 60, "")
		require.NoError(t, err)
		contents.On("Create", mock.Anything, userID, "rainy cafe", 60, "").Return(content, nil)

		req := newRequest(t, http.MethodPost, "/api/contents", userID,
			map[string]interface{}{"theme": "rainy cafe", "duration_minutes": 60})
		rec := serve(http.MethodPost, "/api/contents", h.CreateContent, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp ContentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, content.ID, resp.ID)
		assert.Equal(t, 60, resp.DurationMinutes)
	})

	t.Run("missing theme", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		req := newRequest(t, http.MethodPost, "/api/contents", userID,
			map[string]interface{}{"duration_minutes": 60})
		rec := serve(http.MethodPost, "/api/contents", h.CreateContent, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid Theme: required field", decodeError(t, rec).Error)
		contents.AssertNotCalled(t, "Create")
	})

	t.Run("unknown field", func(t *testing.T) {
		h, _, _ := newContentHandler()
		req := newRequest(t, http.MethodPost, "/api/contents", userID,
			map[string]interface{}{"theme": "x", "duration_minutes": 5, "owner": "someone"})
		rec := serve(http.MethodPost, "/api/contents", h.CreateContent, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h, _, _ := newContentHandler()
		req := newRequest(t, http.MethodPost, "/api/contents", uuid.Nil,
			map[string]interface{}{"theme": "x", "duration_minutes": 5})
		rec := serve(http.MethodPost, "/api/contents", h.CreateContent, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetContentHidesProviderPayloads(t *testing.T) {
	h, contents, _ := newContentHandler()
	userID := uuid.New()
	content, err := domain.NewContent(userID, "forest", 10, "birdsong")
	require.NoError(t, err)

	gen, err := domain.NewMusicGeneration(content.ID, "task-1", "birdsong", "V4_5",
		json.RawMessage(`{"secret":"provider-internal"}`))
	require.NoError(t, err)
	gen.Metadata.FailureReason = "upstream said: key sk-live-123 is invalid"

	track, err := domain.NewTrackPlaceholder(content.ID, gen.ID, 0)
	require.NoError(t, err)

	contents.On("Details", mock.Anything, userID, content.ID).Return(&service.ContentDetails{
		Content:     content,
		Generations: []*domain.MusicGeneration{gen},
		Tracks:      []*domain.Track{track},
		TrackCount:  1,
		TrackLimit:  domain.MaxTracksPerContent,
	}, nil)

	req := newRequest(t, http.MethodGet, "/api/contents/"+content.ID.String(), userID, nil)
	rec := serve(http.MethodGet, "/api/contents/{id}", h.GetContent, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "provider-internal")
	assert.NotContains(t, body, "sk-live-123")

	var resp ContentDetailsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Generations, 1)
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, "pending", resp.Tracks[0].Status)
	assert.Equal(t, domain.MaxTracksPerContent, resp.TrackLimit)
}

func TestGetContentErrors(t *testing.T) {
	userID := uuid.New()
	contentID := uuid.New()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", service.ErrContentNotFound, http.StatusNotFound},
		{"not owned", service.ErrNotOwned, http.StatusForbidden},
		{"internal", errors.New("db down at 10.0.0.3"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, contents, _ := newContentHandler()
			contents.On("Details", mock.Anything, userID, contentID).Return(nil, tc.err)

			req := newRequest(t, http.MethodGet, "/api/contents/"+contentID.String(), userID, nil)
			rec := serve(http.MethodGet, "/api/contents/{id}", h.GetContent, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "10.0.0.3")
		})
	}

	t.Run("malformed id", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		req := newRequest(t, http.MethodGet, "/api/contents/not-a-uuid", userID, nil)
		rec := serve(http.MethodGet, "/api/contents/{id}", h.GetContent, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		contents.AssertNotCalled(t, "Details")
	})
}

func TestDispatch(t *testing.T) {
	userID := uuid.New()
	contentID := uuid.New()
	target := "/api/contents/" + contentID.String() + "/generations"

	t.Run("full batch accepted", func(t *testing.T) {
		h, _, dispatcher := newContentHandler()
		gens := []*domain.MusicGeneration{{ID: uuid.New()}, {ID: uuid.New()}}
		dispatcher.On("DispatchAll", mock.Anything, userID, contentID).
			Return(&service.DispatchResult{Requested: 2, Scheduled: 2, Generations: gens}, nil)

		rec := serve(http.MethodPost, "/api/contents/{id}/generations", h.DispatchAll,
			newRequest(t, http.MethodPost, target, userID, nil))

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp DispatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Scheduled)
		assert.Equal(t, 2, resp.Requested)
		assert.Equal(t, []uuid.UUID{gens[0].ID, gens[1].ID}, resp.GenerationIDs)
	})

	t.Run("partial batch reports counts", func(t *testing.T) {
		h, _, dispatcher := newContentHandler()
		dispatcher.On("DispatchAll", mock.Anything, userID, contentID).
			Return(&service.DispatchResult{
				Requested:   3,
				Scheduled:   1,
				Generations: []*domain.MusicGeneration{{ID: uuid.New()}},
				Err:         generation.ErrRateLimited,
			}, nil)

		rec := serve(http.MethodPost, "/api/contents/{id}/generations", h.DispatchAll,
			newRequest(t, http.MethodPost, target, userID, nil))

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp DispatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Scheduled)
		assert.Equal(t, 3, resp.Requested)
	})

	t.Run("quota exceeded", func(t *testing.T) {
		h, _, dispatcher := newContentHandler()
		dispatcher.On("DispatchAll", mock.Anything, userID, contentID).
			Return(&service.DispatchResult{Requested: 1}, &service.QuotaExceededError{Limit: 100, Current: 100})

		rec := serve(http.MethodPost, "/api/contents/{id}/generations", h.DispatchAll,
			newRequest(t, http.MethodPost, target, userID, nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeQuotaExceeded, decodeError(t, rec).Code)
	})

	t.Run("single refused while processing", func(t *testing.T) {
		h, _, dispatcher := newContentHandler()
		dispatcher.On("DispatchSingle", mock.Anything, userID, contentID).
			Return(nil, service.ErrGenerationInProgress)

		rec := serve(http.MethodPost, "/api/contents/{id}/generations/single", h.DispatchSingle,
			newRequest(t, http.MethodPost, target+"/single", userID, nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeGenerationInProgress, decodeError(t, rec).Code)
	})

	t.Run("provider unavailable", func(t *testing.T) {
		h, _, dispatcher := newContentHandler()
		dispatcher.On("DispatchSingle", mock.Anything, userID, contentID).
			Return(&service.DispatchResult{Requested: 1}, service.NewServiceError("dispatch_single", "no generation", generation.ErrTimeout))

		rec := serve(http.MethodPost, "/api/contents/{id}/generations/single", h.DispatchSingle,
			newRequest(t, http.MethodPost, target+"/single", userID, nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, CodeProviderUnavailable, decodeError(t, rec).Code)
	})
}

func TestRefreshGenerations(t *testing.T) {
	h, contents, _ := newContentHandler()
	userID := uuid.New()
	contentID := uuid.New()
	contents.On("RequestRefresh", mock.Anything, userID, contentID).Return(nil)

	rec := serve(http.MethodPost, "/api/contents/{id}/generations/refresh", h.RefreshGenerations,
		newRequest(t, http.MethodPost, "/api/contents/"+contentID.String()+"/generations/refresh", userID, nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"scheduled"`))
	contents.AssertExpectations(t)
}

func TestDeleteRecords(t *testing.T) {
	userID := uuid.New()
	contentID := uuid.New()
	recordID := uuid.New()

	t.Run("track", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		contents.On("DeleteTrack", mock.Anything, userID, contentID, recordID).Return(nil)

		rec := serve(http.MethodDelete, "/api/contents/{id}/tracks/{trackID}", h.DeleteTrack,
			newRequest(t, http.MethodDelete, "/api/contents/"+contentID.String()+"/tracks/"+recordID.String(), userID, nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		contents.AssertExpectations(t)
	})

	t.Run("generation not found", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		contents.On("DeleteGeneration", mock.Anything, userID, contentID, recordID).
			Return(service.ErrGenerationNotFound)

		rec := serve(http.MethodDelete, "/api/contents/{id}/generations/{generationID}", h.DeleteGeneration,
			newRequest(t, http.MethodDelete,
				"/api/contents/"+contentID.String()+"/generations/"+recordID.String(), userID, nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Generation not found", decodeError(t, rec).Error)
	})

	t.Run("malformed track id", func(t *testing.T) {
		h, contents, _ := newContentHandler()
		rec := serve(http.MethodDelete, "/api/contents/{id}/tracks/{trackID}", h.DeleteTrack,
			newRequest(t, http.MethodDelete, "/api/contents/"+contentID.String()+"/tracks/nope", userID, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		contents.AssertNotCalled(t, "DeleteTrack")
	})
}
