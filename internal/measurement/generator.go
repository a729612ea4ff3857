// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package measurement

import (
	"log/slog"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
)

// ChannelStatus is a snapshot of the detector state of one channel.
type ChannelStatus struct {
	Channel Channel              `json:"channel"`
	Status  interval.Status      `json:"status"`
	Reason  interval.ErrorReason `json:"reason"`

	BaseNoiseLevel        float64 `json:"base_noise_level"`
	BaseNoiseLevelPSD     float64 `json:"base_noise_level_psd"`
	BaseNoiseLevelRootPSD float64 `json:"base_noise_level_root_psd"`
	Threshold             float64 `json:"threshold"`

	AccumulatedNoiseLevel   float64 `json:"accumulated_noise_level"`
	InstantaneousNoiseLevel float64 `json:"instantaneous_noise_level"`

	ProcessedStaticSamples  int  `json:"processed_static_samples"`
	ProcessedDynamicSamples int  `json:"processed_dynamic_samples"`
	StaticIntervalSkipped   bool `json:"static_interval_skipped"`
	DynamicIntervalSkipped  bool `json:"dynamic_interval_skipped"`
}

// generator is the part shared by the three channel generators. It wraps
// one detector and turns its events into listener events.
type generator struct {
	params

	channel  Channel
	self     Emitter
	detector *interval.Detector
	listener Listener
	log      *slog.Logger
	running  bool

	index   int64   // index of the sample being processed
	elapsed float64 // stream time before the sample being processed, s

	// static measurements are produced when emitStatic is set and passed
	// through decorate before being emitted
	emitStatic bool
	decorate   func(*StaticMeasurement)

	// dynamic sequences are collected when collectDynamic is set
	collectDynamic bool
	sequence       *DynamicSequence
}

func newGenerator(ch Channel, cfg interval.Config, l Listener, o options) (*generator, error) {
	g := &generator{
		channel:  ch,
		listener: l,
		log:      o.logger.With("component", "measurement", "channel", ch.String()),
	}
	d, err := interval.NewDetector(cfg, g.onDetectorEvent)
	if err != nil {
		return nil, err
	}
	g.detector = d
	g.params = params{get: d.Config, set: g.Configure}
	return g, nil
}

// Configure replaces every parameter at once.
func (g *generator) Configure(cfg interval.Config) error {
	if g.running {
		return interval.ErrLocked
	}
	return g.detector.Configure(cfg)
}

func (g *generator) Config() interval.Config { return g.detector.Config() }

// Process consumes one sample of the channel. It returns false when the
// sample was rejected by a failed detector.
func (g *generator) Process(t imu.TimedTriad) (bool, error) {
	if g.running {
		return false, interval.ErrLocked
	}
	g.running = true
	defer func() { g.running = false }()

	dt := t.TimeInterval
	if dt <= 0 {
		dt = g.detector.Config().TimeInterval
	}

	ok, err := g.detector.Process(t.Triad)
	if err != nil {
		return false, err
	}
	if ok && g.sequence != nil && g.detector.Status() == interval.DynamicInterval {
		g.sequence.Items = append(g.sequence.Items, DynamicItem{
			Rate:         t.Triad,
			TimeInterval: dt,
			StdDev:       g.detector.WindowStdDev(),
		})
	}

	g.index++
	g.elapsed += dt
	return ok, nil
}

// Reset returns the generator to its initial state. The configuration is
// kept.
func (g *generator) Reset() error {
	if g.running {
		return interval.ErrLocked
	}
	g.running = true
	defer func() { g.running = false }()

	g.index = 0
	g.elapsed = 0
	g.sequence = nil
	return g.detector.Reset()
}

func (g *generator) onDetectorEvent(e interval.Event) {
	switch e.Kind {
	case interval.EventInitializationStarted:
		g.log.Debug("initialization started", "samples", g.detector.Config().InitialStaticSamples)
		g.emit(Event{Kind: InitializationStarted})

	case interval.EventInitializationCompleted:
		g.log.Info("initialization completed", "base_noise_level", e.BaseNoiseLevel, "threshold", e.Threshold)
		g.emit(Event{Kind: InitializationCompleted, BaseNoiseLevel: e.BaseNoiseLevel, Threshold: e.Threshold})

	case interval.EventError:
		g.log.Warn("initialization failed",
			"reason", e.Reason,
			"accumulated_noise_level", e.AccumulatedNoiseLevel,
			"instantaneous_noise_level", e.InstantaneousNoiseLevel,
			"base_noise_level", e.BaseNoiseLevel)
		g.emit(Event{Kind: Error, Reason: e.Reason, BaseNoiseLevel: e.BaseNoiseLevel, Threshold: e.Threshold})

	case interval.EventStaticIntervalDetected:
		g.emit(Event{Kind: StaticIntervalDetected})

	case interval.EventDynamicIntervalDetected:
		if g.collectDynamic {
			g.sequence = &DynamicSequence{Before: e.Reference, StartIndex: g.index}
		}
		g.emit(Event{Kind: DynamicIntervalDetected})

	case interval.EventStaticIntervalSkipped:
		g.log.Debug("static interval skipped", "samples", e.Samples)
		g.emit(Event{Kind: StaticIntervalSkipped, Samples: e.Samples})

	case interval.EventDynamicIntervalSkipped:
		g.log.Debug("dynamic interval skipped", "samples", e.Samples)
		g.sequence = nil
		g.emit(Event{Kind: DynamicIntervalSkipped, Samples: e.Samples})

	case interval.EventStaticIntervalCompleted:
		if !g.emitStatic {
			return
		}
		m := &StaticMeasurement{
			Channel:    g.channel,
			Mean:       e.Mean,
			StdDev:     e.StdDev,
			Samples:    e.Samples,
			StartIndex: g.index - int64(e.Samples),
			EndIndex:   g.index,
			Elapsed:    g.elapsed,
		}
		if g.decorate != nil {
			g.decorate(m)
		}
		g.log.Info("static measurement", "samples", m.Samples, "mean", m.Mean)
		g.emit(Event{Kind: GeneratedMeasurement, Samples: m.Samples, Static: m})

	case interval.EventDynamicIntervalCompleted:
		seq := g.sequence
		g.sequence = nil
		if seq == nil {
			return
		}
		seq.EndIndex = g.index
		seq.Elapsed = g.elapsed
		g.log.Info("dynamic sequence", "samples", seq.Len(), "duration", seq.Duration())
		g.emit(Event{Kind: GeneratedMeasurement, Samples: seq.Len(), Dynamic: seq})

	case interval.EventReset:
		g.emit(Event{Kind: Reset})
	}
}

func (g *generator) emit(e Event) {
	if g.listener == nil {
		return
	}
	e.Channel = g.channel
	e.Source = g.self
	g.listener.Handle(e)
}

func (g *generator) Channel() Channel { return g.channel }

func (g *generator) Status() interval.Status { return g.detector.Status() }

// Running reports whether Process or Reset is in progress.
func (g *generator) Running() bool { return g.running }

func (g *generator) Reason() interval.ErrorReason { return g.detector.Reason() }

func (g *generator) BaseNoiseLevel() float64        { return g.detector.BaseNoiseLevel() }
func (g *generator) BaseNoiseLevelPSD() float64     { return g.detector.BaseNoiseLevelPSD() }
func (g *generator) BaseNoiseLevelRootPSD() float64 { return g.detector.BaseNoiseLevelRootPSD() }
func (g *generator) Threshold() float64             { return g.detector.Threshold() }

func (g *generator) AccumulatedNoiseLevel() float64   { return g.detector.AccumulatedNoiseLevel() }
func (g *generator) InstantaneousNoiseLevel() float64 { return g.detector.InstantaneousNoiseLevel() }

func (g *generator) ProcessedStaticSamples() int  { return g.detector.ProcessedStaticSamples() }
func (g *generator) ProcessedDynamicSamples() int { return g.detector.ProcessedDynamicSamples() }

func (g *generator) StaticIntervalSkipped() bool  { return g.detector.StaticIntervalSkipped() }
func (g *generator) DynamicIntervalSkipped() bool { return g.detector.DynamicIntervalSkipped() }

// ProcessedSamples counts every sample given to Process since the last
// reset, rejected ones included.
func (g *generator) ProcessedSamples() int64 { return g.index }

// Snapshot returns the current detector state.
func (g *generator) Snapshot() ChannelStatus {
	d := g.detector
	return ChannelStatus{
		Channel:                 g.channel,
		Status:                  d.Status(),
		Reason:                  d.Reason(),
		BaseNoiseLevel:          d.BaseNoiseLevel(),
		BaseNoiseLevelPSD:       d.BaseNoiseLevelPSD(),
		BaseNoiseLevelRootPSD:   d.BaseNoiseLevelRootPSD(),
		Threshold:               d.Threshold(),
		AccumulatedNoiseLevel:   d.AccumulatedNoiseLevel(),
		InstantaneousNoiseLevel: d.InstantaneousNoiseLevel(),
		ProcessedStaticSamples:  d.ProcessedStaticSamples(),
		ProcessedDynamicSamples: d.ProcessedDynamicSamples(),
		StaticIntervalSkipped:   d.StaticIntervalSkipped(),
		DynamicIntervalSkipped:  d.DynamicIntervalSkipped(),
	}
}
