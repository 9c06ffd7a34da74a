package transport

import "errors"

// Sentinel errors for the persistent transport
var (
	// ErrNotConnected is returned by Emit when no session is open
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyRunning is returned when Connect is called on a running manager
	ErrAlreadyRunning = errors.New("transport: already running")

	// ErrUnauthorized is returned when the server rejects the bearer credential
	ErrUnauthorized = errors.New("transport: credential rejected")

	// ErrInvalidConfig is returned for unusable transport settings
	ErrInvalidConfig = errors.New("transport: invalid configuration")
)
