package session

import "errors"

var (
	// ErrNotConfirmed is returned when the operator declines a bulk action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrReleased is returned by operations on a released session.
	ErrReleased = errors.New("session released")
	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrUnknownNode is returned when a command names a node outside the fleet.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownAlert is returned when resolving an alert that is not pending.
	ErrUnknownAlert = errors.New("unknown alert")
	// ErrInvalidSegment is returned for a segment index out of range.
	ErrInvalidSegment = errors.New("invalid segment")

	errUnknownDecision = errors.New("unknown decision")
)
