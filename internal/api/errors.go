package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/phrazzld/cadence-api/internal/service/auth"
	"github.com/phrazzld/cadence-api/internal/store"
)

// Stable error codes returned alongside the generic message.
const (
	CodeNotFound             = "not_found"
	CodeForbidden            = "forbidden"
	CodeUnauthorized         = "unauthorized"
	CodeValidation           = "validation_error"
	CodeConflict             = "conflict"
	CodeQuotaExceeded        = "quota_exceeded"
	CodeGenerationInProgress = "generation_in_progress"
	CodeNotEligible          = "not_eligible"
	CodeGenerationFailed     = "generation_failed"
	CodeInvalidImage         = "invalid_image"
	CodeNotConnected         = "not_connected"
	CodeReauthorize          = "reauthorization_required"
	CodeProviderUnavailable  = "provider_unavailable"
	CodeInsufficientCredits  = "insufficient_credits"
	CodeInternal             = "internal_error"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, service.ErrReauthorizationRequired):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	case errors.Is(err, service.ErrContentNotFound),
		errors.Is(err, service.ErrGenerationNotFound),
		errors.Is(err, service.ErrTrackNotFound),
		errors.Is(err, service.ErrArtworkNotFound),
		errors.Is(err, service.ErrNotConnected),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, generation.ErrQuotaExceeded),
		errors.Is(err, service.ErrGenerationInProgress),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, service.ErrNotEligible):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, service.ErrInvalidImage):
		return http.StatusBadRequest

	case errors.Is(err, generation.ErrInsufficientCredits):
		return http.StatusPaymentRequired

	case errors.Is(err, generation.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, generation.ErrNetwork),
		errors.Is(err, generation.ErrTimeout),
		errors.Is(err, generation.ErrAuthentication),
		errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, generation.ErrInvalidRequest):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, service.ErrReauthorizationRequired):
		return "YouTube authorization must be renewed"

	case errors.Is(err, service.ErrNotOwned):
		return "You do not have access to this resource"

	case errors.Is(err, service.ErrContentNotFound):
		return "Content not found"
	case errors.Is(err, service.ErrGenerationNotFound):
		return "Generation not found"
	case errors.Is(err, service.ErrTrackNotFound):
		return "Track not found"
	case errors.Is(err, service.ErrArtworkNotFound):
		return "Artwork not found"
	case errors.Is(err, service.ErrNotConnected):
		return "YouTube account is not connected"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, generation.ErrQuotaExceeded):
		return "This content has reached its track limit"
	case errors.Is(err, service.ErrGenerationInProgress):
		return "A generation is already in progress"

	case errors.Is(err, service.ErrNotEligible):
		return "Artwork must be exactly 1920x1080 for a thumbnail"
	case errors.Is(err, service.ErrInvalidImage):
		return "Unsupported or corrupt image"
	case errors.Is(err, service.ErrThumbnailGenerationFailed):
		return "Thumbnail generation failed"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, generation.ErrInsufficientCredits):
		return "Generation credits exhausted"
	case errors.Is(err, generation.ErrRateLimited):
		return "Generation service is busy, try again later"
	case generation.IsTransient(err),
		errors.Is(err, generation.ErrAuthentication),
		errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, generation.ErrInvalidRequest):
		return "Generation service unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// ErrorCode returns the stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrReauthorizationRequired):
		return CodeReauthorize
	case errors.Is(err, service.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, service.ErrNotOwned):
		return CodeForbidden
	case errors.Is(err, generation.ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, service.ErrGenerationInProgress):
		return CodeGenerationInProgress
	case errors.Is(err, service.ErrNotEligible):
		return CodeNotEligible
	case errors.Is(err, service.ErrThumbnailGenerationFailed):
		return CodeGenerationFailed
	case errors.Is(err, service.ErrInvalidImage):
		return CodeInvalidImage
	case errors.Is(err, generation.ErrInsufficientCredits):
		return CodeInsufficientCredits
	}
	switch MapErrorToStatusCode(err) {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusConflict:
		return CodeConflict
	case http.StatusBadGateway, http.StatusTooManyRequests:
		return CodeProviderUnavailable
	default:
		return CodeInternal
	}
}

// HandleAPIError writes the mapped status, safe message and code for err.
// A non-empty message overrides the safe message for 5xx responses only, so
// specific client errors keep their own text.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	safe := GetSafeErrorMessage(err)
	if message != "" && status >= http.StatusInternalServerError {
		safe = message
	}
	var opts []shared.ResponseOption
	opts = append(opts, shared.WithErrorCode(ErrorCode(err)))
	if status == http.StatusForbidden || status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, safe, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example: "Key: 'CreateContentRequest.Theme' Error:Field validation for 'Theme' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
