// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidStatus is returned when a status string is not one of the
	// enumerated lifecycle states.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition is returned when a status change is not part of the
	// lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTerminalStatus is returned when a transition targets a record that is
	// already completed or failed.
	ErrTerminalStatus = errors.New("record is in a terminal status")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
