// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package measurement

import (
	"log/slog"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/orientation"
	"github.com/relabs-tech/inertial_intervals/internal/units"
)

// Combined drives one generator per channel over a stream of combined
// samples. All three generators share one configuration, owned by
// Combined, and report through a single listener.
//
// Only a subset of the channel events is forwarded, since the three
// detectors run the same policy on correlated signals:
//   - Error from the accelerometer,
//   - lifecycle and interval events from the magnetometer,
//   - GeneratedMeasurement from every channel,
//   - Reset once per Reset call.
//
// Forwarded events have Source set to the Combined instance and Channel set
// to the originating channel.
//
// Like the generators, Combined is single-threaded. The running flag only
// rejects calls made from the listener.
type Combined struct {
	params

	cfg      interval.Config
	accel    *AccelerometerGenerator
	gyro     *GyroscopeGenerator
	mag      *MagnetometerGenerator
	listener Listener
	policy   ChannelPolicy
	log      *slog.Logger
	running  bool

	// mean specific force of the last accelerometer measurement, used to
	// attach a heading to magnetometer measurements
	gravity *imu.Triad
}

// NewCombined returns an orchestrator reporting to l, which may be nil.
func NewCombined(cfg interval.Config, l Listener, opts ...Option) (*Combined, error) {
	o := buildOptions(opts)
	c := &Combined{
		cfg:      cfg,
		listener: l,
		policy:   o.policy,
		log:      o.logger.With("component", "measurement", "channel", "combined"),
	}

	var err error
	if c.accel, err = NewAccelerometerGenerator(cfg, ListenerFunc(c.relay), opts...); err != nil {
		return nil, err
	}
	if c.gyro, err = NewGyroscopeGenerator(cfg, ListenerFunc(c.relay), opts...); err != nil {
		return nil, err
	}
	if c.mag, err = NewMagnetometerGenerator(cfg, ListenerFunc(c.relay), opts...); err != nil {
		return nil, err
	}
	c.params = params{get: c.accel.Config, set: c.Configure}
	return c, nil
}

func (c *Combined) generators() [3]*generator {
	return [3]*generator{c.accel.generator, c.gyro.generator, c.mag.generator}
}

// Configure applies cfg to every channel.
func (c *Combined) Configure(cfg interval.Config) error {
	if c.running {
		return interval.ErrLocked
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, g := range c.generators() {
		if err := g.Configure(cfg); err != nil {
			return err
		}
	}
	c.cfg = cfg
	c.log.Debug("configured", "window_size", cfg.WindowSize, "threshold_factor", cfg.ThresholdFactor)
	return nil
}

// Config returns the shared configuration.
func (c *Combined) Config() interval.Config { return c.cfg }

// Policy returns the channel policy.
func (c *Combined) Policy() ChannelPolicy { return c.policy }

// SetPolicy changes the channel policy.
func (c *Combined) SetPolicy(p ChannelPolicy) error {
	if c.running {
		return interval.ErrLocked
	}
	c.policy = p
	return nil
}

// SetPositionSource replaces the source of magnetometer positions.
func (c *Combined) SetPositionSource(p PositionSource) error {
	if c.running {
		return interval.ErrLocked
	}
	return c.mag.SetPositionSource(p)
}

// Process feeds s to the accelerometer, gyroscope and magnetometer
// generators in that order. It returns true only when every channel
// accepted the sample.
//
// With StopOnFirstFailure a channel rejecting the sample prevents the
// following channels from seeing it. With ProcessAllChannels every channel
// sees every sample.
func (c *Combined) Process(s imu.TimedSample) (bool, error) {
	if c.running {
		return false, interval.ErrLocked
	}
	c.running = true
	defer func() { c.running = false }()

	views := [3]imu.TimedTriad{s.Accelerometer(), s.Gyroscope(), s.Magnetometer()}
	all := true
	for i, g := range c.generators() {
		ok, err := g.Process(views[i])
		if err != nil {
			return false, err
		}
		if !ok {
			all = false
			if c.policy == StopOnFirstFailure {
				return false, nil
			}
		}
	}
	return all, nil
}

// Reset resets every channel and notifies the listener once.
func (c *Combined) Reset() error {
	if c.running {
		return interval.ErrLocked
	}
	c.running = true
	defer func() { c.running = false }()

	for _, g := range c.generators() {
		if err := g.Reset(); err != nil {
			return err
		}
	}
	c.gravity = nil
	c.log.Info("reset")
	c.emit(Event{Kind: Reset})
	return nil
}

func (c *Combined) relay(e Event) {
	switch e.Kind {
	case Error:
		if e.Channel != Accelerometer {
			return
		}
	case InitializationStarted, InitializationCompleted,
		StaticIntervalDetected, DynamicIntervalDetected,
		StaticIntervalSkipped, DynamicIntervalSkipped:
		if e.Channel != Magnetometer {
			return
		}
	case GeneratedMeasurement:
		if m := e.Static; m != nil {
			switch e.Channel {
			case Accelerometer:
				f := m.Mean
				c.gravity = &f
			case Magnetometer:
				if c.gravity != nil {
					p := orientation.FromGravityAndField(*c.gravity, m.Mean)
					m.Pose = &p
				}
			}
		}
	case Reset:
		return
	}
	c.emit(e)
}

func (c *Combined) emit(e Event) {
	if c.listener == nil {
		return
	}
	e.Source = c
	c.listener.Handle(e)
}

// Status returns Failed when any channel has failed, and the accelerometer
// status otherwise.
func (c *Combined) Status() interval.Status {
	if _, _, failed := c.Failed(); failed {
		return interval.Failed
	}
	return c.accel.Status()
}

// Running reports whether Process or Reset is in progress.
func (c *Combined) Running() bool { return c.running }

// Failed returns the first failed channel, if any.
func (c *Combined) Failed() (Channel, interval.ErrorReason, bool) {
	for _, g := range c.generators() {
		if g.Status() == interval.Failed {
			return g.channel, g.Reason(), true
		}
	}
	return 0, interval.NoError, false
}

// ProcessedStaticSamples and ProcessedDynamicSamples report the
// accelerometer counters.
func (c *Combined) ProcessedStaticSamples() int  { return c.accel.ProcessedStaticSamples() }
func (c *Combined) ProcessedDynamicSamples() int { return c.accel.ProcessedDynamicSamples() }

// StaticIntervalSkipped and DynamicIntervalSkipped report the accelerometer
// skip flags.
func (c *Combined) StaticIntervalSkipped() bool  { return c.accel.StaticIntervalSkipped() }
func (c *Combined) DynamicIntervalSkipped() bool { return c.accel.DynamicIntervalSkipped() }

// Channel returns the state of one channel.
func (c *Combined) Channel(ch Channel) ChannelStatus {
	switch ch {
	case Gyroscope:
		return c.gyro.Snapshot()
	case Magnetometer:
		return c.mag.Snapshot()
	default:
		return c.accel.Snapshot()
	}
}

// Snapshot returns the state of every channel in processing order.
func (c *Combined) Snapshot() [3]ChannelStatus {
	return [3]ChannelStatus{c.accel.Snapshot(), c.gyro.Snapshot(), c.mag.Snapshot()}
}

func (c *Combined) AccelerometerBaseNoiseLevel() units.Acceleration {
	return c.accel.BaseNoiseLevelAcceleration()
}

func (c *Combined) AccelerometerThreshold() units.Acceleration {
	return c.accel.ThresholdAcceleration()
}

func (c *Combined) AccelerometerBaseNoiseLevelPSD() float64 { return c.accel.BaseNoiseLevelPSD() }

func (c *Combined) AccelerometerBaseNoiseLevelRootPSD() float64 {
	return c.accel.BaseNoiseLevelRootPSD()
}

func (c *Combined) GyroscopeBaseNoiseLevel() units.AngularSpeed {
	return c.gyro.BaseNoiseLevelAngularSpeed()
}

func (c *Combined) GyroscopeThreshold() units.AngularSpeed { return c.gyro.ThresholdAngularSpeed() }

func (c *Combined) GyroscopeBaseNoiseLevelPSD() float64 { return c.gyro.BaseNoiseLevelPSD() }

func (c *Combined) GyroscopeBaseNoiseLevelRootPSD() float64 { return c.gyro.BaseNoiseLevelRootPSD() }

// GyroscopeInitialAngularRateMean is the gyroscope bias estimate taken
// during initialization.
func (c *Combined) GyroscopeInitialAngularRateMean() imu.Triad {
	return c.gyro.InitialAngularRateMean()
}

func (c *Combined) GyroscopeInitialAngularRateStdDev() imu.Triad {
	return c.gyro.InitialAngularRateStdDev()
}

// MagnetometerBaseNoiseLevel is in T.
func (c *Combined) MagnetometerBaseNoiseLevel() float64 { return c.mag.BaseNoiseLevel() }

func (c *Combined) MagnetometerThreshold() float64 { return c.mag.Threshold() }

func (c *Combined) MagnetometerBaseNoiseLevelPSD() float64 { return c.mag.BaseNoiseLevelPSD() }

func (c *Combined) MagnetometerBaseNoiseLevelRootPSD() float64 {
	return c.mag.BaseNoiseLevelRootPSD()
}

func (c *Combined) SetBaseNoiseLevelAbsoluteThresholdAcceleration(v units.Acceleration) error {
	return c.SetBaseNoiseLevelAbsoluteThreshold(v.MetersPerSquaredSecond())
}

func (c *Combined) BaseNoiseLevelAbsoluteThresholdAcceleration() units.Acceleration {
	return units.NewAcceleration(c.BaseNoiseLevelAbsoluteThreshold())
}
