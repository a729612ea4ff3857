package measurement

import (
	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/units"
)

// GyroscopeGenerator produces one DynamicSequence of angular rates per
// dynamic interval.
type GyroscopeGenerator struct {
	*generator
}

// NewGyroscopeGenerator returns a generator reporting to l, which may be
// nil.
func NewGyroscopeGenerator(cfg interval.Config, l Listener, opts ...Option) (*GyroscopeGenerator, error) {
	g, err := newGenerator(Gyroscope, cfg, l, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	gy := &GyroscopeGenerator{generator: g}
	g.self = gy
	g.collectDynamic = true
	return gy, nil
}

// InitialAngularRateMean is the mean angular rate measured during
// initialization. With the device at rest it approximates the gyroscope
// bias.
func (gy *GyroscopeGenerator) InitialAngularRateMean() imu.Triad {
	return gy.detector.InitialMean()
}

// InitialAngularRateStdDev is the per-axis deviation of the angular rate
// measured during initialization.
func (gy *GyroscopeGenerator) InitialAngularRateStdDev() imu.Triad {
	return gy.detector.InitialStdDev()
}

// InitialAngularSpeedMean returns the norm of InitialAngularRateMean.
func (gy *GyroscopeGenerator) InitialAngularSpeedMean() units.AngularSpeed {
	return units.NewAngularSpeed(gy.InitialAngularRateMean().Norm())
}

// InitialAngularSpeedStdDev returns the norm of InitialAngularRateStdDev.
func (gy *GyroscopeGenerator) InitialAngularSpeedStdDev() units.AngularSpeed {
	return units.NewAngularSpeed(gy.InitialAngularRateStdDev().Norm())
}

func (gy *GyroscopeGenerator) BaseNoiseLevelAngularSpeed() units.AngularSpeed {
	return units.NewAngularSpeed(gy.BaseNoiseLevel())
}

func (gy *GyroscopeGenerator) ThresholdAngularSpeed() units.AngularSpeed {
	return units.NewAngularSpeed(gy.Threshold())
}

func (gy *GyroscopeGenerator) BaseNoiseLevelAbsoluteThresholdAngularSpeed() units.AngularSpeed {
	return units.NewAngularSpeed(gy.BaseNoiseLevelAbsoluteThreshold())
}

func (gy *GyroscopeGenerator) SetBaseNoiseLevelAbsoluteThresholdAngularSpeed(v units.AngularSpeed) error {
	return gy.SetBaseNoiseLevelAbsoluteThreshold(v.RadiansPerSecond())
}
