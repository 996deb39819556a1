package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrBusy indicates a long-running operation is already in flight
	ErrBusy = errors.New("operation already running")

	// ErrNoBackend indicates no playback backend could open the track
	ErrNoBackend = errors.New("no playback backend available")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
