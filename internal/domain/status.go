package domain

import "fmt"

// Status is the lifecycle state shared by music generations, tracks and
// artwork thumbnail jobs.
type Status string

// Lifecycle states. Completed and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus converts a stored or wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Valid reports whether s is one of the enumerated states.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition may be applied.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is an enumerated transition.
//
//	pending    -> processing
//	processing -> processing (progress ping, no-op)
//	processing -> completed | failed
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		switch next {
		case StatusProcessing, StatusCompleted, StatusFailed:
			return true
		case StatusPending:
			return false
		default:
			return false
		}
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// TransitionPath returns the ordered steps that move a record from s to
// target using only enumerated transitions. A pending record receiving a
// terminal outcome steps through processing first. The returned slice is
// empty when s already equals target and target is processing.
func TransitionPath(from, target Status) ([]Status, error) {
	if !from.Valid() || !target.Valid() {
		return nil, ErrInvalidStatus
	}
	if from.IsTerminal() {
		return nil, ErrTerminalStatus
	}

	switch {
	case from == StatusProcessing && target == StatusProcessing:
		return nil, nil
	case from.CanTransitionTo(target):
		return []Status{target}, nil
	case from == StatusPending && StatusProcessing.CanTransitionTo(target):
		return []Status{StatusProcessing, target}, nil
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
	}
}

// checkTransition validates a single step and returns a descriptive error.
func checkTransition(from, next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	if !from.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	return nil
}
