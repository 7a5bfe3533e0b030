package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/musicapi"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testWebhookSecret = "webhook-secret-0123456789"

const completeCallback = `{"code":200,"msg":"All generated successfully.","data":{
	"callbackType":"complete","task_id":"task-42","data":[
		{"audio_url":"https://cdn.example.com/a.mp3","title":"A","tags":"lofi","prompt":"rain","duration":181.2},
		{"audio_url":"https://cdn.example.com/b.mp3","title":"B","tags":"lofi","prompt":"rain","duration":176.9}
	]}}`

func postCallback(h *WebhookHandler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/provider?token="+token, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(http.MethodPost, "/api/webhooks/provider", h.ProviderCallback, req)
}

func TestProviderCallback(t *testing.T) {
	t.Run("applies completion", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())
		reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(ev generation.TaskEvent) bool {
			return ev.TaskID == "task-42" &&
				ev.Status == domain.StatusCompleted &&
				len(ev.Results) == 2 &&
				ev.Source == generation.SourceWebhook
		})).Return(service.OutcomeApplied, nil)

		rec := postCallback(h, testWebhookSecret, completeCallback)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())
		reconciler.AssertExpectations(t)
	})

	t.Run("wrong token", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())

		rec := postCallback(h, "guess", completeCallback)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		reconciler.AssertNotCalled(t, "Apply")
	})

	t.Run("missing token", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())

		rec := postCallback(h, "", completeCallback)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unparseable body is acknowledged", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())

		rec := postCallback(h, testWebhookSecret, `{not json`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())
		reconciler.AssertNotCalled(t, "Apply")
	})

	t.Run("unknown task is acknowledged", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())
		reconciler.On("Apply", mock.Anything, mock.Anything).Return(service.OutcomeUnknownTask, nil)

		rec := postCallback(h, testWebhookSecret, completeCallback)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reconcile failure is acknowledged", func(t *testing.T) {
		reconciler := &mockReconciler{}
		h := NewWebhookHandler(testWebhookSecret, musicapi.ParseCallback, reconciler, testLogger())
		reconciler.On("Apply", mock.Anything, mock.Anything).Return(service.Outcome(""), errors.New("db down"))

		rec := postCallback(h, testWebhookSecret, completeCallback)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}
