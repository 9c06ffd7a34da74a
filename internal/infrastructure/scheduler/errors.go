package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSchedulerRunning is returned when Run is called on a running scheduler
	ErrSchedulerRunning = errors.New("scheduler is already running")

	// ErrPollInFlight is returned when a fetch is already outstanding
	ErrPollInFlight = errors.New("poll already in flight")
)
