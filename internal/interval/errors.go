package interval

import "errors"

var (
	// ErrLocked is returned when a detector, generator or orchestrator is
	// modified or re-entered while it is processing a sample.
	ErrLocked = errors.New("interval: locked while running")

	// ErrInvalidConfig is wrapped by every configuration validation error.
	ErrInvalidConfig = errors.New("interval: invalid configuration")
)
