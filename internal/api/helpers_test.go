package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve routes req through a chi router holding a single route so that path
// parameters resolve the way they do in production.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newRequest(t *testing.T, method, target string, userID uuid.UUID, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != uuid.Nil {
		req = req.WithContext(shared.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

type mockContentService struct {
	mock.Mock
}

func (m *mockContentService) Create(
	ctx context.Context,
	userID uuid.UUID,
	theme string,
	durationMinutes int,
	prompt string,
) (*domain.Content, error) {
	args := m.Called(ctx, userID, theme, durationMinutes, prompt)
	c, _ := args.Get(0).(*domain.Content)
	return c, args.Error(1)
}

func (m *mockContentService) Details(ctx context.Context, userID, contentID uuid.UUID) (*service.ContentDetails, error) {
	args := m.Called(ctx, userID, contentID)
	d, _ := args.Get(0).(*service.ContentDetails)
	return d, args.Error(1)
}

func (m *mockContentService) DeleteTrack(ctx context.Context, userID, contentID, trackID uuid.UUID) error {
	return m.Called(ctx, userID, contentID, trackID).Error(0)
}

func (m *mockContentService) DeleteGeneration(ctx context.Context, userID, contentID, generationID uuid.UUID) error {
	return m.Called(ctx, userID, contentID, generationID).Error(0)
}

func (m *mockContentService) RequestRefresh(ctx context.Context, userID, contentID uuid.UUID) error {
	return m.Called(ctx, userID, contentID).Error(0)
}

func (m *mockContentService) Owns(ctx context.Context, userID, contentID uuid.UUID) error {
	return m.Called(ctx, userID, contentID).Error(0)
}

func (m *mockContentService) OwnsRecord(ctx context.Context, userID, recordID uuid.UUID) error {
	return m.Called(ctx, userID, recordID).Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchAll(ctx context.Context, userID, contentID uuid.UUID) (*service.DispatchResult, error) {
	args := m.Called(ctx, userID, contentID)
	r, _ := args.Get(0).(*service.DispatchResult)
	return r, args.Error(1)
}

func (m *mockDispatcher) DispatchSingle(ctx context.Context, userID, contentID uuid.UUID) (*service.DispatchResult, error) {
	args := m.Called(ctx, userID, contentID)
	r, _ := args.Get(0).(*service.DispatchResult)
	return r, args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Apply(ctx context.Context, ev generation.TaskEvent) (service.Outcome, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(service.Outcome), args.Error(1)
}
