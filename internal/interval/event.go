package interval

import (
	"fmt"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Status is the state of a detector.
type Status int

const (
	Initializing Status = iota
	InitializationCompleted
	StaticInterval
	DynamicInterval
	Failed
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case InitializationCompleted:
		return "INITIALIZATION_COMPLETED"
	case StaticInterval:
		return "STATIC_INTERVAL"
	case DynamicInterval:
		return "DYNAMIC_INTERVAL"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrorReason tells why initialization failed.
type ErrorReason int

const (
	NoError ErrorReason = iota
	// SuddenExcessiveMovement: the window noise level jumped above the
	// accumulated noise level while the device should have been still.
	SuddenExcessiveMovement
	// OverallExcessiveMovement: the base noise level is above the absolute
	// threshold.
	OverallExcessiveMovement
)

func (r ErrorReason) String() string {
	switch r {
	case NoError:
		return "none"
	case SuddenExcessiveMovement:
		return "sudden_excessive_movement"
	case OverallExcessiveMovement:
		return "overall_excessive_movement"
	default:
		return fmt.Sprintf("ErrorReason(%d)", int(r))
	}
}

// EventKind identifies a detector notification.
type EventKind int

const (
	EventInitializationStarted EventKind = iota
	EventInitializationCompleted
	EventError
	EventStaticIntervalDetected
	EventDynamicIntervalDetected
	EventStaticIntervalSkipped
	EventDynamicIntervalSkipped
	EventStaticIntervalCompleted
	EventDynamicIntervalCompleted
	EventReset
)

var eventKindNames = [...]string{
	EventInitializationStarted:    "initialization_started",
	EventInitializationCompleted:  "initialization_completed",
	EventError:                    "error",
	EventStaticIntervalDetected:   "static_interval_detected",
	EventDynamicIntervalDetected:  "dynamic_interval_detected",
	EventStaticIntervalSkipped:    "static_interval_skipped",
	EventDynamicIntervalSkipped:   "dynamic_interval_skipped",
	EventStaticIntervalCompleted:  "static_interval_completed",
	EventDynamicIntervalCompleted: "dynamic_interval_completed",
	EventReset:                    "reset",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered synchronously from Process and Reset.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Error
	Reason                  ErrorReason
	AccumulatedNoiseLevel   float64
	InstantaneousNoiseLevel float64

	// InitializationCompleted, Error
	BaseNoiseLevel float64
	Threshold      float64

	// StaticIntervalCompleted: mean and per-axis deviation of the interval.
	Mean   imu.Triad
	StdDev imu.Triad

	// DynamicIntervalCompleted: static mean the motion started from.
	Reference imu.Triad

	// Number of samples in the interval that was completed or skipped.
	Samples int
}

func (s Status) MarshalText() ([]byte, error)      { return []byte(s.String()), nil }
func (r ErrorReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (k EventKind) MarshalText() ([]byte, error)   { return []byte(k.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for v := Initializing; v <= Failed; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

func (r *ErrorReason) UnmarshalText(b []byte) error {
	for v := NoError; v <= OverallExcessiveMovement; v++ {
		if v.String() == string(b) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown error reason %q", b)
}
