// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package measurement turns the intervals found by interval detectors into
// calibration measurements: static means for the accelerometer and the
// magnetometer, and dynamic sequences for the gyroscope.
package measurement

import (
	"fmt"
	"log/slog"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/orientation"
)

// Channel identifies one sensor of a combined sample.
type Channel int

const (
	Accelerometer Channel = iota
	Gyroscope
	Magnetometer
)

// Channels lists the channels in processing order.
var Channels = [...]Channel{Accelerometer, Gyroscope, Magnetometer}

func (c Channel) String() string {
	switch c {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Channel) UnmarshalText(b []byte) error {
	ch, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}

// ParseChannel returns the channel with the given name.
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Kind identifies a listener notification.
type Kind int

const (
	InitializationStarted Kind = iota
	InitializationCompleted
	Error
	StaticIntervalDetected
	DynamicIntervalDetected
	StaticIntervalSkipped
	DynamicIntervalSkipped
	GeneratedMeasurement
	Reset
)

var kindNames = [...]string{
	InitializationStarted:   "initialization_started",
	InitializationCompleted: "initialization_completed",
	Error:                   "error",
	StaticIntervalDetected:  "static_interval_detected",
	DynamicIntervalDetected: "dynamic_interval_detected",
	StaticIntervalSkipped:   "static_interval_skipped",
	DynamicIntervalSkipped:  "dynamic_interval_skipped",
	GeneratedMeasurement:    "generated_measurement",
	Reset:                   "reset",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// StaticMeasurement summarizes one completed static interval of the
// accelerometer or the magnetometer.
type StaticMeasurement struct {
	Channel Channel   `json:"channel" yaml:"channel"`
	Mean    imu.Triad `json:"mean" yaml:"mean"`
	StdDev  imu.Triad `json:"stddev" yaml:"stddev"`
	Samples int       `json:"samples" yaml:"samples"`

	// Sample indices of the interval, end exclusive.
	StartIndex int64 `json:"start_index" yaml:"start_index"`
	EndIndex   int64 `json:"end_index" yaml:"end_index"`

	// Elapsed is the stream time at the end of the interval, in seconds.
	Elapsed float64 `json:"elapsed" yaml:"elapsed"`

	Pose     *orientation.Pose `json:"pose,omitempty" yaml:"pose,omitempty"`
	Position *imu.Position     `json:"position,omitempty" yaml:"position,omitempty"`
}

// DynamicItem is one gyroscope sample inside a dynamic interval.
type DynamicItem struct {
	Rate         imu.Triad `json:"rate" yaml:"rate"`     // rad/s
	TimeInterval float64   `json:"dt" yaml:"dt"`         // s
	StdDev       imu.Triad `json:"stddev" yaml:"stddev"` // window deviation, rad/s
}

// DynamicSequence is the gyroscope record of one completed dynamic interval.
type DynamicSequence struct {
	Items []DynamicItem `json:"items" yaml:"items"`

	// Before is the static angular rate the motion started from.
	Before imu.Triad `json:"before" yaml:"before"`

	StartIndex int64   `json:"start_index" yaml:"start_index"`
	EndIndex   int64   `json:"end_index" yaml:"end_index"`
	Elapsed    float64 `json:"elapsed" yaml:"elapsed"`
}

// Len returns the number of samples in the sequence.
func (s *DynamicSequence) Len() int { return len(s.Items) }

// Duration returns the summed time intervals of the sequence, in seconds.
func (s *DynamicSequence) Duration() float64 {
	var d float64
	for _, it := range s.Items {
		d += it.TimeInterval
	}
	return d
}

// Emitter is implemented by every generator and by Combined.
type Emitter interface {
	Status() interval.Status
	Running() bool
}

// Event is delivered to a Listener. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind    Kind    `json:"kind"`
	Channel Channel `json:"channel"`
	Source  Emitter `json:"-"`

	Reason         interval.ErrorReason `json:"reason,omitempty"`
	BaseNoiseLevel float64              `json:"base_noise_level,omitempty"`
	Threshold      float64              `json:"threshold,omitempty"`
	Samples        int                  `json:"samples,omitempty"`

	Static  *StaticMeasurement `json:"static,omitempty"`
	Dynamic *DynamicSequence   `json:"dynamic,omitempty"`
}

// Listener receives events synchronously from Process and Reset. Calling
// back into the emitter from Handle fails with interval.ErrLocked.
type Listener interface {
	Handle(Event)
}

// The ListenerFunc type is an adapter to allow the use of ordinary
// functions as listeners.
type ListenerFunc func(Event)

func (f ListenerFunc) Handle(e Event) { f(e) }

// PositionSource provides the position attached to magnetometer
// measurements.
type PositionSource interface {
	Position() (imu.Position, bool)
}

// ChannelPolicy decides what Combined does with the remaining channels
// once one of them rejects a sample.
type ChannelPolicy int

const (
	// StopOnFirstFailure feeds accelerometer, gyroscope and magnetometer in
	// that order and stops at the first channel that rejects the sample.
	StopOnFirstFailure ChannelPolicy = iota
	// ProcessAllChannels always feeds every channel.
	ProcessAllChannels
)

func (p ChannelPolicy) String() string {
	switch p {
	case StopOnFirstFailure:
		return "stop_on_first_failure"
	case ProcessAllChannels:
		return "process_all"
	default:
		return fmt.Sprintf("ChannelPolicy(%d)", int(p))
	}
}

// ParseChannelPolicy parses the String form of a policy.
func ParseChannelPolicy(s string) (ChannelPolicy, error) {
	switch s {
	case "stop_on_first_failure", "":
		return StopOnFirstFailure, nil
	case "process_all":
		return ProcessAllChannels, nil
	}
	return 0, fmt.Errorf("unknown channel policy %q", s)
}

type options struct {
	logger    *slog.Logger
	positions PositionSource
	policy    ChannelPolicy
}

// Option configures a generator or Combined.
type Option func(*options)

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPositionSource attaches positions to magnetometer measurements.
func WithPositionSource(p PositionSource) Option {
	return func(o *options) { o.positions = p }
}

// WithChannelPolicy selects how Combined handles a rejected sample.
// Ignored by single channel generators.
func WithChannelPolicy(p ChannelPolicy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
