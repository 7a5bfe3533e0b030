package generation

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every external integration. Transient errors may
// be retried with bounded backoff; everything else is fatal.
var (
	// ErrAuthentication is returned when credentials are rejected. Fatal.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited is returned when the provider throttles requests. Transient.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInsufficientCredits is returned when the provider account has no
	// credits left. Fatal to the current batch.
	ErrInsufficientCredits = errors.New("insufficient provider credits")

	// ErrNetwork is returned for connection failures and 5xx answers. Transient.
	ErrNetwork = errors.New("provider network error")

	// ErrTimeout is returned when a provider request exceeds its deadline. Transient.
	ErrTimeout = errors.New("provider request timed out")

	// ErrTaskFailed is returned when the provider reports a task as failed. Terminal.
	ErrTaskFailed = errors.New("provider task failed")

	// ErrQuotaExceeded is raised locally before any external call when a
	// request would push a content past its track cap.
	ErrQuotaExceeded = errors.New("track quota exceeded")

	// ErrInvalidResponse is returned when a provider payload cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrInvalidRequest is returned when the provider rejects the request body.
	ErrInvalidRequest = errors.New("provider rejected request")

	// ErrInvalidConfig is returned when a client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout)
}

// ProviderError carries the provider's own status and message for operator
// logs. Its Error text must never reach end users.
type ProviderError struct {
	StatusCode int
	Code       int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v (http %d, code %d): %s", e.Err, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%v (code %d): %s", e.Err, e.Code, e.Message)
}

// Unwrap returns the taxonomy sentinel.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
