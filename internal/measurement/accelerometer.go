package measurement

import (
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/orientation"
	"github.com/relabs-tech/inertial_intervals/internal/units"
)

// AccelerometerGenerator produces one StaticMeasurement of mean specific
// force per static interval. Each measurement carries the tilt implied by
// its mean.
type AccelerometerGenerator struct {
	*generator
}

// NewAccelerometerGenerator returns a generator reporting to l, which may
// be nil.
func NewAccelerometerGenerator(cfg interval.Config, l Listener, opts ...Option) (*AccelerometerGenerator, error) {
	g, err := newGenerator(Accelerometer, cfg, l, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	a := &AccelerometerGenerator{generator: g}
	g.self = a
	g.emitStatic = true
	g.decorate = func(m *StaticMeasurement) {
		p := orientation.FromGravity(m.Mean)
		m.Pose = &p
	}
	return a, nil
}

func (a *AccelerometerGenerator) BaseNoiseLevelAcceleration() units.Acceleration {
	return units.NewAcceleration(a.BaseNoiseLevel())
}

func (a *AccelerometerGenerator) ThresholdAcceleration() units.Acceleration {
	return units.NewAcceleration(a.Threshold())
}

func (a *AccelerometerGenerator) BaseNoiseLevelAbsoluteThresholdAcceleration() units.Acceleration {
	return units.NewAcceleration(a.BaseNoiseLevelAbsoluteThreshold())
}

func (a *AccelerometerGenerator) SetBaseNoiseLevelAbsoluteThresholdAcceleration(v units.Acceleration) error {
	return a.SetBaseNoiseLevelAbsoluteThreshold(v.MetersPerSquaredSecond())
}
