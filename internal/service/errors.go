package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/store"
)

// Sentinel errors returned by the services. The API layer maps them to HTTP
// status codes and generic messages.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the
	// one making the request.
	ErrNotOwned = errors.New("resource is owned by another user")

	ErrContentNotFound    = errors.New("content not found")
	ErrGenerationNotFound = errors.New("music generation not found")
	ErrTrackNotFound      = errors.New("track not found")
	ErrArtworkNotFound    = errors.New("artwork not found")

	// ErrGenerationInProgress is returned when a single-unit request arrives
	// while a Track of the Content is still processing.
	ErrGenerationInProgress = errors.New("a generation is already in progress")

	// ErrNotEligible is returned by the thumbnail preview when the original
	// is not exactly 1920x1080.
	ErrNotEligible = errors.New("artwork is not eligible for a thumbnail")

	// ErrThumbnailGenerationFailed covers unexpected derivative pipeline
	// failures.
	ErrThumbnailGenerationFailed = errors.New("thumbnail generation failed")

	ErrInvalidImage = errors.New("unsupported or corrupt image")

	ErrNotConnected = errors.New("youtube account is not connected")

	// ErrReauthorizationRequired means the stored credential could not be
	// refreshed and was removed; the user must authorize again.
	ErrReauthorizationRequired = errors.New("youtube authorization must be renewed")
)

// ServiceError wraps unexpected errors from a service operation.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "dispatch", "apply_event")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// sentinels are returned as-is instead of being wrapped.
var sentinels = []error{
	ErrNotOwned,
	ErrContentNotFound,
	ErrGenerationNotFound,
	ErrTrackNotFound,
	ErrArtworkNotFound,
	ErrGenerationInProgress,
	ErrNotEligible,
	ErrThumbnailGenerationFailed,
	ErrInvalidImage,
	ErrNotConnected,
	ErrReauthorizationRequired,
}

// NewServiceError creates a new ServiceError. Service sentinels and
// store-level not-found errors are returned directly without wrapping, and
// a QuotaExceededError passes through untouched.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s
		}
	}

	switch {
	case errors.Is(err, store.ErrContentNotFound):
		return ErrContentNotFound
	case errors.Is(err, store.ErrGenerationNotFound):
		return ErrGenerationNotFound
	case errors.Is(err, store.ErrTrackNotFound):
		return ErrTrackNotFound
	case errors.Is(err, store.ErrArtworkNotFound):
		return ErrArtworkNotFound
	case errors.Is(err, store.ErrCredentialNotFound):
		return ErrNotConnected
	}

	var quota *QuotaExceededError
	if errors.As(err, &quota) {
		return quota
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// QuotaExceededError reports a rejected reservation. It matches
// generation.ErrQuotaExceeded.
type QuotaExceededError struct {
	ContentID string
	Current   int
	Requested int
	Limit     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf(
		"%v: content %s has %d of %d tracks, %d requested",
		generation.ErrQuotaExceeded, e.ContentID, e.Current, e.Limit, e.Requested,
	)
}

// Is reports whether target is generation.ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool {
	return target == generation.ErrQuotaExceeded
}
