package measurement

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/units"
)

// params exposes the fields of an interval.Config as individual getters
// and setters. Every setter goes through set, so validation and the
// running guard apply to each of them.
type params struct {
	get func() interval.Config
	set func(interval.Config) error
}

func (p params) update(f func(*interval.Config)) error {
	cfg := p.get()
	f(&cfg)
	return p.set(cfg)
}

// TimeInterval returns the nominal sample interval in seconds.
func (p params) TimeInterval() float64 { return p.get().TimeInterval }

// SetTimeInterval sets the nominal sample interval in seconds.
func (p params) SetTimeInterval(seconds float64) error {
	return p.update(func(c *interval.Config) { c.TimeInterval = seconds })
}

func (p params) TimeIntervalDuration() time.Duration { return units.Duration(p.TimeInterval()) }

func (p params) SetTimeIntervalDuration(d time.Duration) error {
	return p.SetTimeInterval(units.Seconds(d))
}

// SampleRate returns the sampling frequency matching the time interval.
func (p params) SampleRate() physic.Frequency { return units.SampleRate(p.TimeInterval()) }

func (p params) SetSampleRate(f physic.Frequency) error {
	return p.SetTimeInterval(units.TimeIntervalFromRate(f))
}

func (p params) MinStaticSamples() int { return p.get().MinStaticSamples }

func (p params) SetMinStaticSamples(n int) error {
	return p.update(func(c *interval.Config) { c.MinStaticSamples = n })
}

func (p params) MaxDynamicSamples() int { return p.get().MaxDynamicSamples }

func (p params) SetMaxDynamicSamples(n int) error {
	return p.update(func(c *interval.Config) { c.MaxDynamicSamples = n })
}

func (p params) WindowSize() int { return p.get().WindowSize }

func (p params) SetWindowSize(n int) error {
	return p.update(func(c *interval.Config) { c.WindowSize = n })
}

func (p params) InitialStaticSamples() int { return p.get().InitialStaticSamples }

func (p params) SetInitialStaticSamples(n int) error {
	return p.update(func(c *interval.Config) { c.InitialStaticSamples = n })
}

// InitialStaticDuration is how long the device must be held still at the
// start of a capture.
func (p params) InitialStaticDuration() time.Duration {
	cfg := p.get()
	return units.Duration(float64(cfg.InitialStaticSamples) * cfg.TimeInterval)
}

func (p params) ThresholdFactor() float64 { return p.get().ThresholdFactor }

func (p params) SetThresholdFactor(f float64) error {
	return p.update(func(c *interval.Config) { c.ThresholdFactor = f })
}

func (p params) InstantaneousNoiseLevelFactor() float64 {
	return p.get().InstantaneousNoiseLevelFactor
}

func (p params) SetInstantaneousNoiseLevelFactor(f float64) error {
	return p.update(func(c *interval.Config) { c.InstantaneousNoiseLevelFactor = f })
}

func (p params) BaseNoiseLevelAbsoluteThreshold() float64 {
	return p.get().BaseNoiseLevelAbsoluteThreshold
}

func (p params) SetBaseNoiseLevelAbsoluteThreshold(v float64) error {
	return p.update(func(c *interval.Config) { c.BaseNoiseLevelAbsoluteThreshold = v })
}
