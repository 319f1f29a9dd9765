package domain

import "errors"

// Sentinel errors shared across services and adapters. Callers match with
// errors.Is; adapters translate them to their transport's status codes.
var (
	// ErrNotFound is returned when an addressed device or chip is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed or out-of-sequence
	// messages, e.g. a stream whose first frame is not initial_info.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable is returned when a transport is not connected or has
	// already shut down.
	ErrUnavailable = errors.New("unavailable")

	// ErrClosed is returned by writes on a session that has transitioned
	// to the Closed state.
	ErrClosed = errors.New("session closed")
)
