package pendingapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the pending-list endpoint cannot be reached
	ErrUnavailable = errors.New("pending list endpoint unavailable")

	// ErrRequestFailed is returned when the endpoint answers with a non-2xx status
	ErrRequestFailed = errors.New("pending list request failed")

	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid pending api configuration")
)

// PollError describes a failed snapshot fetch
type PollError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *PollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("poll failed: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("poll failed: %s", e.Message)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
