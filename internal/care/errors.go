package care

import "errors"

// Domain errors.
var (
	// ErrInvalidSchedule is returned when a refresh schedule cannot be parsed.
	ErrInvalidSchedule = errors.New("care: invalid refresh schedule")

	// ErrSchedulerRunning is returned when Start is called twice.
	ErrSchedulerRunning = errors.New("care: scheduler already running")
)
