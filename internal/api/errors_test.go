package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/phrazzld/cadence-api/internal/service/auth"
	"github.com/phrazzld/cadence-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"nil error", nil, http.StatusInternalServerError, CodeInternal},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, CodeUnauthorized},
		{"wrapped expired token", fmt.Errorf("authenticate: %w", auth.ErrExpiredToken), http.StatusUnauthorized, CodeUnauthorized},
		{"not owned", service.ErrNotOwned, http.StatusForbidden, CodeForbidden},
		{"content not found", service.ErrContentNotFound, http.StatusNotFound, CodeNotFound},
		{"store not found", fmt.Errorf("load: %w", store.ErrTrackNotFound), http.StatusNotFound, CodeNotFound},
		{"not connected", service.ErrNotConnected, http.StatusNotFound, CodeNotConnected},
		{"reauthorize", service.ErrReauthorizationRequired, http.StatusUnauthorized, CodeReauthorize},
		{
			"quota exceeded",
			&service.QuotaExceededError{Limit: domain.MaxTracksPerContent},
			http.StatusConflict,
			CodeQuotaExceeded,
		},
		{"in progress", service.ErrGenerationInProgress, http.StatusConflict, CodeGenerationInProgress},
		{"duplicate", store.ErrTaskIDExists, http.StatusConflict, CodeConflict},
		{"not eligible", service.ErrNotEligible, http.StatusUnprocessableEntity, CodeNotEligible},
		{"invalid image", service.ErrInvalidImage, http.StatusBadRequest, CodeInvalidImage},
		{
			"validation",
			fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyContentTheme),
			http.StatusBadRequest,
			CodeValidation,
		},
		{"credits", generation.ErrInsufficientCredits, http.StatusPaymentRequired, CodeInsufficientCredits},
		{"rate limited", generation.ErrRateLimited, http.StatusTooManyRequests, CodeProviderUnavailable},
		{"network", generation.ErrNetwork, http.StatusBadGateway, CodeProviderUnavailable},
		{"thumbnail failed", service.ErrThumbnailGenerationFailed, http.StatusInternalServerError, CodeGenerationFailed},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
		{
			"service error wrapping store error",
			service.NewServiceError("details", "failed", store.ErrContentNotFound),
			http.StatusNotFound,
			CodeNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedStatus, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.expectedCode, ErrorCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"not owned", service.ErrNotOwned, "You do not have access to this resource"},
		{"not eligible", service.ErrNotEligible, "Artwork must be exactly 1920x1080 for a thumbnail"},
		{"quota", generation.ErrQuotaExceeded, "This content has reached its track limit"},
		{"timeout", fmt.Errorf("submit: %w", generation.ErrTimeout), "Generation service unavailable"},
		{
			"internal detail",
			fmt.Errorf("dial tcp 10.0.0.5:5432: password=hunter2"),
			"An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := GetSafeErrorMessage(tc.err)
			assert.Equal(t, tc.expected, msg)
			assert.NotContains(t, msg, "hunter2")
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	err := errors.New("Key: 'CreateContentRequest.Theme' Error:Field validation for 'Theme' failed on the 'required' tag")
	assert.Equal(t, "Invalid Theme: required field", SanitizeValidationError(err))

	err = errors.New("Key: 'CreateContentRequest.DurationMinutes' Error:Field validation for 'DurationMinutes' failed on the 'max' tag")
	assert.Equal(t, "Invalid DurationMinutes: too large", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
