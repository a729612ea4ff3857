// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package interval

import "fmt"

// Config holds the parameters shared by every detector of a capture.
// It is a plain value: one copy is owned by the orchestrator and handed to
// each detector through Configure so all channels always agree.
type Config struct {
	// TimeInterval is the nominal time between samples, in seconds.
	TimeInterval float64 `json:"time_interval" yaml:"time_interval"`

	// MinStaticSamples is the minimum length of a static interval for it to
	// produce a measurement.
	MinStaticSamples int `json:"min_static_samples" yaml:"min_static_samples"`

	// MaxDynamicSamples is the maximum length of a dynamic interval. Longer
	// intervals are skipped.
	MaxDynamicSamples int `json:"max_dynamic_samples" yaml:"max_dynamic_samples"`

	// WindowSize is the number of samples in the sliding window. Must be odd.
	WindowSize int `json:"window_size" yaml:"window_size"`

	// InitialStaticSamples is the number of samples used to estimate the base
	// noise level while the device is held still. Must exceed WindowSize.
	InitialStaticSamples int `json:"initial_static_samples" yaml:"initial_static_samples"`

	ThresholdFactor               float64 `json:"threshold_factor" yaml:"threshold_factor"`
	InstantaneousNoiseLevelFactor float64 `json:"instantaneous_noise_level_factor" yaml:"instantaneous_noise_level_factor"`

	// BaseNoiseLevelAbsoluteThreshold is the largest base noise level
	// accepted at the end of initialization, in channel units.
	BaseNoiseLevelAbsoluteThreshold float64 `json:"base_noise_level_absolute_threshold" yaml:"base_noise_level_absolute_threshold"`
}

const (
	DefaultTimeInterval                    = 0.02
	DefaultMinStaticSamples                = 25
	DefaultMaxDynamicSamples               = 10000
	DefaultWindowSize                      = 101
	DefaultInitialStaticSamples            = 5000
	DefaultThresholdFactor                 = 2.0
	DefaultInstantaneousNoiseLevelFactor   = 3.0
	DefaultBaseNoiseLevelAbsoluteThreshold = 1e-5

	MinWindowSize           = 3
	MinMinStaticSamples     = 2
	MinMaxDynamicSamples    = 2
	MinInitialStaticSamples = 2
)

// DefaultConfig returns the default detector parameters.
func DefaultConfig() Config {
	return Config{
		TimeInterval:                    DefaultTimeInterval,
		MinStaticSamples:                DefaultMinStaticSamples,
		MaxDynamicSamples:               DefaultMaxDynamicSamples,
		WindowSize:                      DefaultWindowSize,
		InitialStaticSamples:            DefaultInitialStaticSamples,
		ThresholdFactor:                 DefaultThresholdFactor,
		InstantaneousNoiseLevelFactor:   DefaultInstantaneousNoiseLevelFactor,
		BaseNoiseLevelAbsoluteThreshold: DefaultBaseNoiseLevelAbsoluteThreshold,
	}
}

// Validate checks every parameter. The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.TimeInterval < 0:
		return fmt.Errorf("%w: time interval %g must not be negative", ErrInvalidConfig, c.TimeInterval)
	case c.WindowSize < MinWindowSize || c.WindowSize%2 == 0:
		return fmt.Errorf("%w: window size %d must be odd and at least %d", ErrInvalidConfig, c.WindowSize, MinWindowSize)
	case c.MinStaticSamples < MinMinStaticSamples:
		return fmt.Errorf("%w: min static samples %d must be at least %d", ErrInvalidConfig, c.MinStaticSamples, MinMinStaticSamples)
	case c.MaxDynamicSamples < MinMaxDynamicSamples:
		return fmt.Errorf("%w: max dynamic samples %d must be at least %d", ErrInvalidConfig, c.MaxDynamicSamples, MinMaxDynamicSamples)
	case c.InitialStaticSamples < MinInitialStaticSamples:
		return fmt.Errorf("%w: initial static samples %d must be at least %d", ErrInvalidConfig, c.InitialStaticSamples, MinInitialStaticSamples)
	case c.InitialStaticSamples <= c.WindowSize:
		return fmt.Errorf("%w: initial static samples %d must exceed the window size %d", ErrInvalidConfig, c.InitialStaticSamples, c.WindowSize)
	case c.ThresholdFactor <= 0:
		return fmt.Errorf("%w: threshold factor %g must be positive", ErrInvalidConfig, c.ThresholdFactor)
	case c.InstantaneousNoiseLevelFactor <= 0:
		return fmt.Errorf("%w: instantaneous noise level factor %g must be positive", ErrInvalidConfig, c.InstantaneousNoiseLevelFactor)
	case c.BaseNoiseLevelAbsoluteThreshold <= 0:
		return fmt.Errorf("%w: base noise level absolute threshold %g must be positive", ErrInvalidConfig, c.BaseNoiseLevelAbsoluteThreshold)
	}
	return nil
}
