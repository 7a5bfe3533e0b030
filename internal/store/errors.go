package store

import (
	"errors"
	"fmt"
)

// Sentinels shared by every store implementation. Entity-specific not-found
// errors wrap ErrNotFound so callers can match either.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed marks a unit of work that could not begin or
	// commit, or lost a lock race inside the database.
	ErrTransactionFailed = errors.New("transaction failed")

	ErrContentNotFound    = fmt.Errorf("%w: content", ErrNotFound)
	ErrGenerationNotFound = fmt.Errorf("%w: music generation", ErrNotFound)
	ErrTrackNotFound      = fmt.Errorf("%w: track", ErrNotFound)
	ErrArtworkNotFound    = fmt.Errorf("%w: artwork", ErrNotFound)
	ErrCredentialNotFound = fmt.Errorf("%w: youtube credential", ErrNotFound)

	// ErrTaskIDExists indicates a generation for the provider task already exists.
	ErrTaskIDExists = fmt.Errorf("%w: task id", ErrDuplicate)
)

// StoreError adds the entity and operation to a persistence failure.
type StoreError struct {
	Entity    string // e.g. "track", "artwork"
	Operation string // e.g. "create", "lock"
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError wrapping err.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
