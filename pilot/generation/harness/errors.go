package harness

import "errors"

var (
	// ErrUnauthenticated is returned when no valid bearer token could be
	// obtained. It is joined with the underlying auth error.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrBackendRequestFailed is fatal to the current turn.
	ErrBackendRequestFailed = errors.New("chat backend request failed")

	// ErrRunInProgress rejects a Run overlapping another on one orchestrator.
	ErrRunInProgress = errors.New("a run is already in progress")
)
