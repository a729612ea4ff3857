package measurement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/units"
)

var (
	gravity      = imu.Triad{Z: units.StandardGravity}
	tilted       = imu.Triad{X: 0.5, Y: -0.25, Z: units.StandardGravity}
	stillRate    = imu.Triad{}
	turningRate  = imu.Triad{Z: 0.5}
	northField   = imu.Triad{X: 20e-6, Z: 40e-6}
	rotatedField = imu.Triad{Y: -20e-6, Z: 40e-6}
)

func testConfig() interval.Config {
	cfg := interval.DefaultConfig()
	cfg.WindowSize = 5
	cfg.InitialStaticSamples = 50
	cfg.MinStaticSamples = 10
	cfg.MaxDynamicSamples = 20
	cfg.BaseNoiseLevelAbsoluteThreshold = 1
	return cfg
}

type eventLog struct {
	events []Event
}

func (l *eventLog) Handle(e Event) { l.events = append(l.events, e) }

func (l *eventLog) count(k Kind) int {
	n := 0
	for _, e := range l.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func (l *eventLog) measurements(ch Channel) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Kind == GeneratedMeasurement && e.Channel == ch {
			out = append(out, e)
		}
	}
	return out
}

type fixedPosition struct {
	p imu.Position
}

func (f fixedPosition) Position() (imu.Position, bool) { return f.p, f.p.Valid }

type triadProcessor interface {
	Process(imu.TimedTriad) (bool, error)
}

func feedTriad(t *testing.T, g triadProcessor, v imu.Triad, n int) {
	t.Helper()
	for range n {
		ok, err := g.Process(imu.TimedTriad{Triad: v, TimeInterval: 0.02})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestGyroscopeGenerator_SequenceSpansMotion(t *testing.T) {
	cfg := testConfig()
	l := &eventLog{}
	g, err := NewGyroscopeGenerator(cfg, l)
	require.NoError(t, err)

	feedTriad(t, g, stillRate, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	feedTriad(t, g, turningRate, 15)
	feedTriad(t, g, stillRate, cfg.MinStaticSamples)

	ms := l.measurements(Gyroscope)
	require.Len(t, ms, 1)
	seq := ms[0].Dynamic
	require.NotNil(t, seq)
	assert.Nil(t, ms[0].Static)
	assert.Same(t, g, ms[0].Source.(*GyroscopeGenerator))

	assert.Equal(t, 15, seq.Len())
	assert.InDelta(t, 15*0.02, seq.Duration(), 1e-12)
	assert.Equal(t, stillRate, seq.Before)
	start := int64(cfg.InitialStaticSamples + cfg.MinStaticSamples)
	assert.Equal(t, start, seq.StartIndex)
	assert.Equal(t, start+15, seq.EndIndex)
	for _, it := range seq.Items {
		assert.Equal(t, turningRate, it.Rate)
		assert.Equal(t, 0.02, it.TimeInterval)
	}

	assert.Equal(t, 0, l.count(StaticIntervalSkipped))
	assert.Equal(t, 0, l.count(DynamicIntervalSkipped))
	assert.Equal(t, 0, l.count(Error))
	assert.Equal(t, stillRate, g.InitialAngularRateMean())
	assert.Equal(t, 0.0, g.InitialAngularSpeedStdDev().RadiansPerSecond())
}

func TestGyroscopeGenerator_TooLongMotionIsSkipped(t *testing.T) {
	cfg := testConfig()
	l := &eventLog{}
	g, err := NewGyroscopeGenerator(cfg, l)
	require.NoError(t, err)

	feedTriad(t, g, stillRate, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	feedTriad(t, g, turningRate, cfg.MaxDynamicSamples+1)
	feedTriad(t, g, stillRate, cfg.MinStaticSamples)

	assert.Equal(t, 1, l.count(DynamicIntervalSkipped))
	assert.Empty(t, l.measurements(Gyroscope))
	assert.True(t, g.DynamicIntervalSkipped())
}

func TestGyroscopeGenerator_UsesConfiguredIntervalWhenMissing(t *testing.T) {
	cfg := testConfig()
	cfg.TimeInterval = 0.01
	l := &eventLog{}
	g, err := NewGyroscopeGenerator(cfg, l)
	require.NoError(t, err)

	step := func(v imu.Triad, n int) {
		for range n {
			_, err := g.Process(imu.TimedTriad{Triad: v})
			require.NoError(t, err)
		}
	}
	step(stillRate, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	step(turningRate, 4)
	step(stillRate, 1)

	ms := l.measurements(Gyroscope)
	require.Len(t, ms, 1)
	assert.InDelta(t, 0.04, ms[0].Dynamic.Duration(), 1e-12)
	assert.InDelta(t, float64(cfg.InitialStaticSamples+cfg.MinStaticSamples)*0.01, ms[0].Dynamic.Elapsed-0.04, 1e-9)
}

func TestAccelerometerGenerator_StaticMeasurement(t *testing.T) {
	cfg := testConfig()
	l := &eventLog{}
	a, err := NewAccelerometerGenerator(cfg, l)
	require.NoError(t, err)

	feedTriad(t, a, gravity, cfg.InitialStaticSamples+12)
	feedTriad(t, a, tilted, 5)

	ms := l.measurements(Accelerometer)
	require.Len(t, ms, 1)
	m := ms[0].Static
	require.NotNil(t, m)
	assert.Equal(t, Accelerometer, m.Channel)
	assert.Equal(t, gravity, m.Mean)
	assert.Equal(t, imu.Triad{}, m.StdDev)
	assert.Equal(t, 12, m.Samples)
	assert.Equal(t, int64(cfg.InitialStaticSamples), m.StartIndex)
	assert.Equal(t, int64(cfg.InitialStaticSamples+12), m.EndIndex)
	assert.InDelta(t, float64(cfg.InitialStaticSamples+12)*0.02, m.Elapsed, 1e-9)
	require.NotNil(t, m.Pose)
	assert.InDelta(t, 0, m.Pose.Roll, 1e-9)
	assert.InDelta(t, 0, m.Pose.Pitch, 1e-9)
	assert.Nil(t, m.Position)
}

func TestMagnetometerGenerator_AttachesPosition(t *testing.T) {
	cfg := testConfig()
	pos := imu.Position{Latitude: 41.38, Longitude: 2.17, Altitude: 12, Valid: true}

	tests := []struct {
		name   string
		source PositionSource
		want   *imu.Position
	}{
		{"no source", nil, nil},
		{"invalid fix", fixedPosition{}, nil},
		{"valid fix", fixedPosition{p: pos}, &pos},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &eventLog{}
			m, err := NewMagnetometerGenerator(cfg, l, WithPositionSource(tt.source))
			require.NoError(t, err)

			feedTriad(t, m, northField, cfg.InitialStaticSamples+cfg.MinStaticSamples)
			feedTriad(t, m, rotatedField, 1)

			ms := l.measurements(Magnetometer)
			require.Len(t, ms, 1)
			assert.Equal(t, tt.want, ms[0].Static.Position)
			assert.Equal(t, northField, ms[0].Static.Mean)
		})
	}
}

func TestGenerator_Parameters(t *testing.T) {
	a, err := NewAccelerometerGenerator(testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, a.SetWindowSize(7))
	assert.Equal(t, 7, a.WindowSize())
	assert.ErrorIs(t, a.SetWindowSize(8), interval.ErrInvalidConfig)
	assert.Equal(t, 7, a.WindowSize())

	require.NoError(t, a.SetTimeIntervalDuration(10*time.Millisecond))
	assert.InDelta(t, 0.01, a.TimeInterval(), 1e-15)
	assert.Equal(t, 100*physic.Hertz, a.SampleRate())
	require.NoError(t, a.SetSampleRate(50*physic.Hertz))
	assert.Equal(t, 20*time.Millisecond, a.TimeIntervalDuration())
	assert.Equal(t, time.Second, a.InitialStaticDuration())

	require.NoError(t, a.SetMinStaticSamples(30))
	require.NoError(t, a.SetMaxDynamicSamples(300))
	require.NoError(t, a.SetInitialStaticSamples(100))
	require.NoError(t, a.SetThresholdFactor(3))
	require.NoError(t, a.SetInstantaneousNoiseLevelFactor(4))
	require.NoError(t, a.SetBaseNoiseLevelAbsoluteThresholdAcceleration(units.Acceleration{Value: 0.01, Unit: units.G}))

	cfg := a.Config()
	assert.Equal(t, 30, cfg.MinStaticSamples)
	assert.Equal(t, 300, cfg.MaxDynamicSamples)
	assert.Equal(t, 100, cfg.InitialStaticSamples)
	assert.Equal(t, 3.0, a.ThresholdFactor())
	assert.Equal(t, 4.0, a.InstantaneousNoiseLevelFactor())
	assert.InDelta(t, 0.0980665, a.BaseNoiseLevelAbsoluteThreshold(), 1e-12)
	assert.InDelta(t, 0.01, a.BaseNoiseLevelAbsoluteThresholdAcceleration().G(), 1e-12)

	gy, err := NewGyroscopeGenerator(testConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, gy.SetBaseNoiseLevelAbsoluteThresholdAngularSpeed(units.AngularSpeed{Value: 1, Unit: units.DegreesPerSecond}))
	assert.InDelta(t, 1, gy.BaseNoiseLevelAbsoluteThresholdAngularSpeed().DegreesPerSecond(), 1e-12)
}

func TestGenerator_ListenerCannotReenter(t *testing.T) {
	cfg := testConfig()
	var g *AccelerometerGenerator
	var errs []error
	l := ListenerFunc(func(e Event) {
		if e.Kind != InitializationCompleted && e.Kind != Reset {
			return
		}
		_, err := g.Process(imu.TimedTriad{Triad: gravity})
		errs = append(errs, err)
		errs = append(errs, g.SetThresholdFactor(5))
		errs = append(errs, g.Reset())
		assert.True(t, g.Running())
	})
	var err error
	g, err = NewAccelerometerGenerator(cfg, l)
	require.NoError(t, err)

	feedTriad(t, g, gravity, cfg.InitialStaticSamples)
	require.NoError(t, g.Reset())

	require.Len(t, errs, 6)
	for _, err := range errs {
		assert.ErrorIs(t, err, interval.ErrLocked)
	}
	assert.Equal(t, cfg.ThresholdFactor, g.ThresholdFactor())
	assert.False(t, g.Running())
}

func TestGenerator_ResetClearsState(t *testing.T) {
	cfg := testConfig()
	l := &eventLog{}
	g, err := NewGyroscopeGenerator(cfg, l)
	require.NoError(t, err)

	feedTriad(t, g, stillRate, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	feedTriad(t, g, turningRate, 3)

	require.NoError(t, g.Reset())
	require.NoError(t, g.Reset())

	assert.Equal(t, interval.Initializing, g.Status())
	assert.Equal(t, int64(0), g.ProcessedSamples())
	assert.Equal(t, 0, g.ProcessedStaticSamples())
	assert.Equal(t, 0, g.ProcessedDynamicSamples())
	assert.Equal(t, 2, l.count(Reset))
	assert.Equal(t, cfg, g.Config())

	// an interval opened before the reset must not leak into the next run
	l.events = nil
	feedTriad(t, g, stillRate, cfg.InitialStaticSamples+1)
	assert.Empty(t, l.measurements(Gyroscope))
}
