package interval

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

var (
	rest  = imu.Triad{X: 0, Y: 0, Z: 9.80665}
	moved = imu.Triad{X: 0.5, Y: -0.25, Z: 9.80665}
)

type recorder struct {
	events []Event
}

func (r *recorder) handle(e Event) { r.events = append(r.events, e) }

func (r *recorder) count(k EventKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func (r *recorder) last(k EventKind) (Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == k {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowSize = 5
	cfg.InitialStaticSamples = 50
	cfg.MinStaticSamples = 10
	cfg.MaxDynamicSamples = 20
	cfg.BaseNoiseLevelAbsoluteThreshold = 1
	return cfg
}

func newDetector(t *testing.T, cfg Config) (*Detector, *recorder) {
	t.Helper()
	r := &recorder{}
	d, err := NewDetector(cfg, r.handle)
	require.NoError(t, err)
	return d, r
}

func feed(t *testing.T, d *Detector, v imu.Triad, n int) {
	t.Helper()
	for range n {
		ok, err := d.Process(v)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func noisy(r *rand.Rand, base imu.Triad, sigma float64) imu.Triad {
	return imu.Triad{
		X: base.X + r.NormFloat64()*sigma,
		Y: base.Y + r.NormFloat64()*sigma,
		Z: base.Z + r.NormFloat64()*sigma,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"zero time interval", func(c *Config) { c.TimeInterval = 0 }, true},
		{"negative time interval", func(c *Config) { c.TimeInterval = -0.01 }, false},
		{"even window", func(c *Config) { c.WindowSize = 10 }, false},
		{"window too small", func(c *Config) { c.WindowSize = 1 }, false},
		{"smallest window", func(c *Config) { c.WindowSize = 3 }, true},
		{"min static too small", func(c *Config) { c.MinStaticSamples = 1 }, false},
		{"max dynamic too small", func(c *Config) { c.MaxDynamicSamples = 1 }, false},
		{"initial static too small", func(c *Config) { c.InitialStaticSamples = 0 }, false},
		{"initial static equal to window", func(c *Config) { c.InitialStaticSamples = c.WindowSize }, false},
		{"initial static below window", func(c *Config) { c.WindowSize, c.InitialStaticSamples = 101, 50 }, false},
		{"initial static just above window", func(c *Config) { c.InitialStaticSamples = c.WindowSize + 1 }, true},
		{"zero threshold factor", func(c *Config) { c.ThresholdFactor = 0 }, false},
		{"negative instantaneous factor", func(c *Config) { c.InstantaneousNoiseLevelFactor = -1 }, false},
		{"zero absolute threshold", func(c *Config) { c.BaseNoiseLevelAbsoluteThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestNewDetector_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 4
	_, err := NewDetector(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetector_Configure(t *testing.T) {
	d, _ := newDetector(t, testConfig())

	bad := testConfig()
	bad.WindowSize = 2
	require.ErrorIs(t, d.Configure(bad), ErrInvalidConfig)
	assert.Equal(t, testConfig(), d.Config(), "a rejected configuration must not be applied")

	cfg := testConfig()
	cfg.WindowSize = 7
	require.NoError(t, d.Configure(cfg))
	assert.Equal(t, 7, d.Config().WindowSize)
}

func TestDetector_ZeroNoiseRoundTrip(t *testing.T) {
	cfg := testConfig()
	d, r := newDetector(t, cfg)

	feed(t, d, rest, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	assert.Equal(t, StaticInterval, d.Status())
	assert.Equal(t, 0.0, d.BaseNoiseLevel())
	assert.Equal(t, 0.0, d.Threshold())

	feed(t, d, moved, cfg.MinStaticSamples)
	assert.Equal(t, DynamicInterval, d.Status())

	feed(t, d, rest, cfg.MinStaticSamples)
	assert.Equal(t, StaticInterval, d.Status())

	assert.Equal(t, 1, r.count(EventInitializationStarted))
	assert.Equal(t, 1, r.count(EventInitializationCompleted))
	assert.Equal(t, 2, r.count(EventStaticIntervalDetected))
	assert.Equal(t, 1, r.count(EventDynamicIntervalDetected))
	assert.Equal(t, 0, r.count(EventError))
	assert.Equal(t, 0, r.count(EventStaticIntervalSkipped))
	assert.Equal(t, 0, r.count(EventDynamicIntervalSkipped))

	static, ok := r.last(EventStaticIntervalCompleted)
	require.True(t, ok)
	assert.Equal(t, cfg.MinStaticSamples, static.Samples)
	assert.Equal(t, rest, static.Mean)
	assert.Equal(t, imu.Triad{}, static.StdDev)

	dynamic, ok := r.last(EventDynamicIntervalCompleted)
	require.True(t, ok)
	assert.Equal(t, cfg.MinStaticSamples, dynamic.Samples)
	assert.Equal(t, rest, dynamic.Reference)

	assert.Equal(t, cfg.InitialStaticSamples+2*cfg.MinStaticSamples, d.ProcessedStaticSamples())
	assert.Equal(t, cfg.MinStaticSamples, d.ProcessedDynamicSamples())
	assert.False(t, d.StaticIntervalSkipped())
	assert.False(t, d.DynamicIntervalSkipped())
}

func TestDetector_BaseNoiseLevelMatchesReference(t *testing.T) {
	for _, window := range []int{5, 11, 101} {
		cfg := testConfig()
		cfg.WindowSize = window
		cfg.InitialStaticSamples = 400
		d, r := newDetector(t, cfg)

		rng := rand.New(rand.NewSource(int64(window)))
		samples := make([]imu.Triad, cfg.InitialStaticSamples)
		for i := range samples {
			samples[i] = noisy(rng, rest, 0.01)
		}
		for _, s := range samples {
			ok, err := d.Process(s)
			require.NoError(t, err)
			require.True(t, ok)
		}

		var mean imu.Triad
		for _, s := range samples {
			mean = mean.Add(s)
		}
		mean = mean.Scale(1 / float64(len(samples)))
		var variance float64
		for _, s := range samples {
			dev := s.Sub(mean)
			variance += dev.X*dev.X + dev.Y*dev.Y + dev.Z*dev.Z
		}
		want := math.Sqrt(variance / float64(len(samples)))

		assert.InDelta(t, want, d.BaseNoiseLevel(), 1e-12, "window %d", window)
		assert.InDelta(t, want*cfg.ThresholdFactor, d.Threshold(), 1e-12)
		assert.InDelta(t, want*want*cfg.TimeInterval, d.BaseNoiseLevelPSD(), 1e-15)
		assert.InDelta(t, want*math.Sqrt(cfg.TimeInterval), d.BaseNoiseLevelRootPSD(), 1e-12)

		completed, ok := r.last(EventInitializationCompleted)
		require.True(t, ok)
		assert.Equal(t, d.BaseNoiseLevel(), completed.BaseNoiseLevel)
		assert.Equal(t, StaticInterval, d.Status())
	}
}

func TestDetector_SuddenMovementDuringInitialization(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 11
	cfg.InitialStaticSamples = 500
	d, r := newDetector(t, cfg)

	rng := rand.New(rand.NewSource(1))
	for range 300 {
		ok, err := d.Process(noisy(rng, rest, 1e-3))
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := d.Process(rest.Add(imu.Triad{X: 1}))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Failed, d.Status())
	assert.Equal(t, SuddenExcessiveMovement, d.Reason())

	e, found := r.last(EventError)
	require.True(t, found)
	assert.Equal(t, SuddenExcessiveMovement, e.Reason)
	assert.Greater(t, e.InstantaneousNoiseLevel, e.AccumulatedNoiseLevel*cfg.InstantaneousNoiseLevelFactor)

	static := d.ProcessedStaticSamples()
	for range 50 {
		ok, err := d.Process(rest)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, static, d.ProcessedStaticSamples())
	assert.Equal(t, 1, r.count(EventError))
}

func TestDetector_SpikeAfterZeroNoiseStart(t *testing.T) {
	for _, spike := range []float64{1e-3, 1, 1e6} {
		cfg := testConfig()
		d, r := newDetector(t, cfg)

		feed(t, d, rest, 20)
		ok, err := d.Process(rest.Add(imu.Triad{X: spike}))
		require.NoError(t, err)
		assert.False(t, ok, "spike %g", spike)
		assert.Equal(t, Failed, d.Status())
		assert.Equal(t, SuddenExcessiveMovement, d.Reason())
		assert.Equal(t, 20, d.ProcessedStaticSamples())

		e, found := r.last(EventError)
		require.True(t, found)
		assert.Zero(t, e.AccumulatedNoiseLevel)
		assert.Positive(t, e.InstantaneousNoiseLevel)
	}
}

func TestDetector_SpikeBeforeFullWindowHistoryIsAccepted(t *testing.T) {
	cfg := testConfig()
	d, _ := newDetector(t, cfg)

	// the window is full but not yet backed by a window of earlier samples
	feed(t, d, rest, cfg.WindowSize-1)
	ok, err := d.Process(rest.Add(imu.Triad{X: 1}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Initializing, d.Status())
}

func TestNewDetector_RejectsWindowLargerThanInitialization(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 101
	cfg.InitialStaticSamples = 50
	_, err := NewDetector(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetector_OverallExcessiveMovement(t *testing.T) {
	cfg := testConfig()
	cfg.BaseNoiseLevelAbsoluteThreshold = 1e-5
	d, r := newDetector(t, cfg)

	rng := rand.New(rand.NewSource(2))
	var ok bool
	var err error
	for range cfg.InitialStaticSamples {
		ok, err = d.Process(noisy(rng, rest, 0.01))
		require.NoError(t, err)
	}
	assert.False(t, ok, "the sample completing initialization reports the failure")
	assert.Equal(t, Failed, d.Status())
	assert.Equal(t, OverallExcessiveMovement, d.Reason())
	assert.Greater(t, d.BaseNoiseLevel(), cfg.BaseNoiseLevelAbsoluteThreshold)
	assert.Equal(t, 0, r.count(EventInitializationCompleted))
	assert.Equal(t, cfg.InitialStaticSamples-1, d.ProcessedStaticSamples())
}

func TestDetector_DynamicIntervalLimit(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		completed int
		skipped   int
	}{
		{"at limit", 20, 1, 0},
		{"one past limit", 21, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			require.Equal(t, 20, cfg.MaxDynamicSamples)
			d, r := newDetector(t, cfg)

			feed(t, d, rest, cfg.InitialStaticSamples+cfg.MinStaticSamples)
			feed(t, d, moved, tt.length)
			feed(t, d, rest, cfg.MinStaticSamples)

			assert.Equal(t, tt.completed, r.count(EventDynamicIntervalCompleted))
			assert.Equal(t, tt.skipped, r.count(EventDynamicIntervalSkipped))
			assert.Equal(t, tt.skipped == 1, d.DynamicIntervalSkipped())
			assert.Equal(t, StaticInterval, d.Status())
			assert.Equal(t, tt.length, d.ProcessedDynamicSamples())

			if tt.skipped == 1 {
				e, _ := r.last(EventDynamicIntervalSkipped)
				assert.Equal(t, cfg.MaxDynamicSamples, e.Samples)
			}
		})
	}
}

func TestDetector_ShortStaticIntervalSkipped(t *testing.T) {
	cfg := testConfig()
	d, r := newDetector(t, cfg)

	feed(t, d, rest, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	feed(t, d, moved, 5)
	feed(t, d, rest, 3)
	feed(t, d, moved, 5)

	e, ok := r.last(EventStaticIntervalSkipped)
	require.True(t, ok)
	assert.Equal(t, 3, e.Samples)
	assert.True(t, d.StaticIntervalSkipped())
	assert.Equal(t, 1, r.count(EventStaticIntervalCompleted))
	assert.Equal(t, rest, d.Reference(), "a skipped interval keeps the previous reference")
}

func TestDetector_ResetIsIdempotent(t *testing.T) {
	cfg := testConfig()
	d, r := newDetector(t, cfg)

	feed(t, d, rest, cfg.InitialStaticSamples+cfg.MinStaticSamples)
	feed(t, d, moved, 3)

	require.NoError(t, d.Reset())
	require.NoError(t, d.Reset())

	assert.Equal(t, Initializing, d.Status())
	assert.Equal(t, 0, d.ProcessedStaticSamples())
	assert.Equal(t, 0, d.ProcessedDynamicSamples())
	assert.Equal(t, 0.0, d.BaseNoiseLevel())
	assert.Equal(t, 0.0, d.Threshold())
	assert.False(t, d.StaticIntervalSkipped())
	assert.False(t, d.DynamicIntervalSkipped())
	assert.Equal(t, cfg, d.Config())
	assert.Equal(t, 2, r.count(EventReset))

	r.events = nil
	feed(t, d, rest, 1)
	assert.Equal(t, 1, r.count(EventInitializationStarted))
}

func TestDetector_ReentrantCallsAreLocked(t *testing.T) {
	cfg := testConfig()
	var d *Detector
	var errs []error
	handler := func(e Event) {
		if e.Kind != EventStaticIntervalDetected {
			return
		}
		_, err := d.Process(rest)
		errs = append(errs, err)
		errs = append(errs, d.Configure(cfg))
		errs = append(errs, d.Reset())
	}
	var err error
	d, err = NewDetector(cfg, handler)
	require.NoError(t, err)

	feed(t, d, rest, cfg.InitialStaticSamples)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrLocked))
	}
	assert.Equal(t, StaticInterval, d.Status())
	assert.False(t, d.Running())
}

func TestDetector_ThresholdFactorReducesDynamicIntervals(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 11
	cfg.InitialStaticSamples = 200
	cfg.MinStaticSamples = 5
	cfg.MaxDynamicSamples = 1000

	rng := rand.New(rand.NewSource(11))
	samples := make([]imu.Triad, cfg.InitialStaticSamples+2000)
	for i := range samples {
		samples[i] = noisy(rng, rest, 0.01)
	}

	d, r := newDetector(t, cfg)
	run := func(factor float64) int {
		require.NoError(t, d.Reset())
		c := cfg
		c.ThresholdFactor = factor
		require.NoError(t, d.Configure(c))
		r.events = nil
		for _, s := range samples {
			ok, err := d.Process(s)
			require.NoError(t, err)
			require.True(t, ok)
		}
		return r.count(EventDynamicIntervalDetected)
	}

	small := run(0.5)
	large := run(5)
	assert.Greater(t, small, 0)
	assert.Less(t, large, small)
}

func TestDetector_CountersAreMonotonic(t *testing.T) {
	cfg := testConfig()
	d, _ := newDetector(t, cfg)

	rng := rand.New(rand.NewSource(5))
	prevStatic, prevDynamic := 0, 0
	for i := range 2000 {
		base := rest
		if i > cfg.InitialStaticSamples && (i/40)%2 == 1 {
			base = moved
		}
		_, err := d.Process(noisy(rng, base, 1e-4))
		require.NoError(t, err)

		require.GreaterOrEqual(t, d.ProcessedStaticSamples(), prevStatic)
		require.GreaterOrEqual(t, d.ProcessedDynamicSamples(), prevDynamic)
		prevStatic, prevDynamic = d.ProcessedStaticSamples(), d.ProcessedDynamicSamples()
	}
	assert.Greater(t, prevDynamic, 0)
}

func TestDetector_ConfigureRecomputesThreshold(t *testing.T) {
	cfg := testConfig()
	d, _ := newDetector(t, cfg)

	rng := rand.New(rand.NewSource(9))
	for range cfg.InitialStaticSamples {
		_, err := d.Process(noisy(rng, rest, 1e-3))
		require.NoError(t, err)
	}
	require.Equal(t, StaticInterval, d.Status())

	cfg.ThresholdFactor = 4
	require.NoError(t, d.Configure(cfg))
	assert.InDelta(t, d.BaseNoiseLevel()*4, d.Threshold(), 1e-15)
}
