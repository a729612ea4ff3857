// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package interval detects static and dynamic intervals in a stream of
// triad samples of one sensor channel.
//
// A Detector first estimates the base noise level of the channel while the
// device is held still, then classifies every following sample as static or
// dynamic by comparing its deviation from a reference mean against
// threshold = baseNoiseLevel * ThresholdFactor.
//
// Detectors are single-threaded. The running flag only rejects re-entrant
// calls made from an event handler; it does not make a Detector safe for
// concurrent use.
package interval

import (
	"math"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/stats"
)

// Detector is the static/dynamic interval state machine of one channel.
type Detector struct {
	cfg     Config
	handler func(Event)

	window    *stats.Window
	initAcc   stats.Accumulator
	staticAcc stats.Accumulator

	status  Status
	reason  ErrorReason
	started bool
	running bool

	accumulatedNoiseLevel   float64
	instantaneousNoiseLevel float64
	baseNoiseLevel          float64
	threshold               float64
	deviation               float64

	// reference is the last known static mean.
	reference    imu.Triad
	dynamicCount int

	staticSkipped  bool
	dynamicSkipped bool

	processedStatic  int
	processedDynamic int
}

// NewDetector returns a detector in the Initializing state. handler
// receives every event and may be nil.
func NewDetector(cfg Config, handler func(Event)) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:     cfg,
		handler: handler,
		window:  stats.NewWindow(cfg.WindowSize),
	}, nil
}

// Configure replaces the detector parameters. A new window size discards
// the samples held in the window. When initialization is already complete
// the threshold is recomputed from the new threshold factor.
func (d *Detector) Configure(cfg Config) error {
	if d.running {
		return ErrLocked
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.WindowSize != d.cfg.WindowSize {
		d.window = stats.NewWindow(cfg.WindowSize)
	}
	d.cfg = cfg
	if d.status == StaticInterval || d.status == DynamicInterval {
		d.threshold = d.baseNoiseLevel * cfg.ThresholdFactor
	}
	return nil
}

// Process consumes one sample. It returns false when the sample was not
// accepted: the detector has failed, or the sample made it fail.
// ErrLocked is returned on re-entrant calls.
func (d *Detector) Process(t imu.Triad) (bool, error) {
	if d.running {
		return false, ErrLocked
	}
	if d.status == Failed {
		return false, nil
	}
	d.running = true
	defer func() { d.running = false }()

	if !d.started {
		d.started = true
		d.emit(Event{Kind: EventInitializationStarted})
	}

	d.window.Push(t)
	d.instantaneousNoiseLevel = d.window.StdDevNorm()

	switch d.status {
	case Initializing:
		return d.processInitializing(t), nil
	case StaticInterval:
		d.processStatic(t)
	case DynamicInterval:
		d.processDynamic(t)
	}
	return true, nil
}

func (d *Detector) processInitializing(t imu.Triad) bool {
	// The window is compared against the samples before t, once they span
	// at least a full window.
	if d.window.Full() && d.initAcc.Count() >= d.cfg.WindowSize &&
		d.instantaneousNoiseLevel > d.accumulatedNoiseLevel*d.cfg.InstantaneousNoiseLevelFactor {
		d.fail(SuddenExcessiveMovement)
		return false
	}

	d.initAcc.Add(t)
	d.accumulatedNoiseLevel = d.initAcc.StdDevNorm()

	if d.initAcc.Count() < d.cfg.InitialStaticSamples {
		d.processedStatic++
		return true
	}

	d.baseNoiseLevel = d.accumulatedNoiseLevel
	d.threshold = d.baseNoiseLevel * d.cfg.ThresholdFactor
	if d.baseNoiseLevel > d.cfg.BaseNoiseLevelAbsoluteThreshold {
		d.fail(OverallExcessiveMovement)
		return false
	}

	d.processedStatic++
	d.reference = d.initAcc.Mean()
	d.status = InitializationCompleted
	d.emit(Event{
		Kind:           EventInitializationCompleted,
		BaseNoiseLevel: d.baseNoiseLevel,
		Threshold:      d.threshold,
	})
	d.enterStatic()
	return true
}

func (d *Detector) processStatic(t imu.Triad) {
	if d.staticAcc.Count() == 0 {
		d.deviation = 0
		d.staticAcc.Add(t)
		d.processedStatic++
		return
	}

	d.deviation = t.Sub(d.staticAcc.Mean()).Norm()
	if d.deviation <= d.threshold {
		d.staticAcc.Add(t)
		d.processedStatic++
		return
	}

	n := d.staticAcc.Count()
	if n >= d.cfg.MinStaticSamples {
		d.staticSkipped = false
		d.reference = d.staticAcc.Mean()
		d.emit(Event{
			Kind:    EventStaticIntervalCompleted,
			Mean:    d.staticAcc.Mean(),
			StdDev:  d.staticAcc.StdDev(),
			Samples: n,
		})
	} else {
		d.staticSkipped = true
		d.emit(Event{Kind: EventStaticIntervalSkipped, Samples: n})
	}
	d.staticAcc.Reset()

	d.status = DynamicInterval
	d.dynamicCount = 1
	d.processedDynamic++
	d.emit(Event{Kind: EventDynamicIntervalDetected, Reference: d.reference})
}

func (d *Detector) processDynamic(t imu.Triad) {
	d.deviation = t.Sub(d.reference).Norm()
	if d.deviation > d.threshold {
		d.dynamicCount++
		d.processedDynamic++
		if d.dynamicCount > d.cfg.MaxDynamicSamples {
			d.dynamicSkipped = true
			d.emit(Event{Kind: EventDynamicIntervalSkipped, Samples: d.dynamicCount - 1})
			d.enterStatic()
		}
		return
	}

	d.dynamicSkipped = false
	d.emit(Event{
		Kind:      EventDynamicIntervalCompleted,
		Reference: d.reference,
		Samples:   d.dynamicCount,
	})
	d.enterStatic()
	d.staticAcc.Add(t)
	d.processedStatic++
}

// enterStatic opens an empty static interval.
func (d *Detector) enterStatic() {
	d.staticAcc.Reset()
	d.dynamicCount = 0
	d.status = StaticInterval
	d.emit(Event{Kind: EventStaticIntervalDetected})
}

func (d *Detector) fail(reason ErrorReason) {
	d.status = Failed
	d.reason = reason
	d.emit(Event{
		Kind:                    EventError,
		Reason:                  reason,
		AccumulatedNoiseLevel:   d.accumulatedNoiseLevel,
		InstantaneousNoiseLevel: d.instantaneousNoiseLevel,
		BaseNoiseLevel:          d.baseNoiseLevel,
		Threshold:               d.threshold,
	})
}

func (d *Detector) emit(e Event) {
	if d.handler != nil {
		d.handler(e)
	}
}

// Reset returns the detector to Initializing, discarding every window and
// accumulator. The configuration is kept.
func (d *Detector) Reset() error {
	if d.running {
		return ErrLocked
	}
	d.running = true
	defer func() { d.running = false }()

	d.window.Reset()
	d.initAcc.Reset()
	d.staticAcc.Reset()
	d.status = Initializing
	d.reason = NoError
	d.started = false
	d.accumulatedNoiseLevel = 0
	d.instantaneousNoiseLevel = 0
	d.baseNoiseLevel = 0
	d.threshold = 0
	d.deviation = 0
	d.reference = imu.Triad{}
	d.dynamicCount = 0
	d.staticSkipped = false
	d.dynamicSkipped = false
	d.processedStatic = 0
	d.processedDynamic = 0

	d.emit(Event{Kind: EventReset})
	return nil
}

func (d *Detector) Config() Config      { return d.cfg }
func (d *Detector) Status() Status      { return d.status }
func (d *Detector) Running() bool       { return d.running }
func (d *Detector) Reason() ErrorReason { return d.reason }

// BaseNoiseLevel is the noise level estimated during initialization.
// Zero until initialization completes.
func (d *Detector) BaseNoiseLevel() float64 { return d.baseNoiseLevel }

// BaseNoiseLevelPSD returns the noise power spectral density derived from
// the base noise level, in (channel unit)²·s.
func (d *Detector) BaseNoiseLevelPSD() float64 {
	return d.baseNoiseLevel * d.baseNoiseLevel * d.cfg.TimeInterval
}

// BaseNoiseLevelRootPSD returns the square root of BaseNoiseLevelPSD.
func (d *Detector) BaseNoiseLevelRootPSD() float64 {
	return d.baseNoiseLevel * math.Sqrt(d.cfg.TimeInterval)
}

// Threshold is the static/dynamic decision threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// AccumulatedNoiseLevel is the noise level of the samples seen so far
// during initialization.
func (d *Detector) AccumulatedNoiseLevel() float64 { return d.accumulatedNoiseLevel }

// InstantaneousNoiseLevel is the noise level of the current window.
func (d *Detector) InstantaneousNoiseLevel() float64 { return d.instantaneousNoiseLevel }

// Deviation is the norm of the last sample's deviation from the mean it was
// compared against.
func (d *Detector) Deviation() float64 { return d.deviation }

// WindowMean and WindowStdDev describe the current window.
func (d *Detector) WindowMean() imu.Triad   { return d.window.Mean() }
func (d *Detector) WindowStdDev() imu.Triad { return d.window.StdDev() }

// InitialMean and InitialStdDev describe the samples seen during
// initialization.
func (d *Detector) InitialMean() imu.Triad   { return d.initAcc.Mean() }
func (d *Detector) InitialStdDev() imu.Triad { return d.initAcc.StdDev() }

// Reference is the last known static mean.
func (d *Detector) Reference() imu.Triad { return d.reference }

// DynamicSamples is the length of the open dynamic interval.
func (d *Detector) DynamicSamples() int { return d.dynamicCount }

// StaticIntervalSkipped reports whether the last closed static interval was
// too short to produce a measurement.
func (d *Detector) StaticIntervalSkipped() bool { return d.staticSkipped }

// DynamicIntervalSkipped reports whether the last closed dynamic interval
// was too long to produce a measurement.
func (d *Detector) DynamicIntervalSkipped() bool { return d.dynamicSkipped }

// ProcessedStaticSamples counts accepted samples classified as initializing
// or static since the last reset.
func (d *Detector) ProcessedStaticSamples() int { return d.processedStatic }

// ProcessedDynamicSamples counts accepted samples classified as dynamic
// since the last reset.
func (d *Detector) ProcessedDynamicSamples() int { return d.processedDynamic }
