package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
	"github.com/relabs-tech/inertial_intervals/internal/orientation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	cfg := interval.DefaultConfig()
	cfg.WindowSize = 51
	started := time.Unix(1700000000, 0)

	id, err := s.BeginRun("left", cfg, started)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	run, err := s.Run(id)
	require.NoError(t, err)
	assert.Equal(t, "left", run.IMU)
	assert.Equal(t, cfg, run.Config)
	assert.True(t, run.Started.Equal(started))
	assert.True(t, run.Finished.IsZero())

	statuses := []measurement.ChannelStatus{
		{Channel: measurement.Accelerometer, Status: interval.StaticInterval, BaseNoiseLevel: 0.01, ProcessedStaticSamples: 100},
		{Channel: measurement.Gyroscope, Status: interval.Failed, Reason: interval.SuddenExcessiveMovement},
	}
	finished := started.Add(time.Minute)
	require.NoError(t, s.FinishRun(id, finished, statuses))

	run, err = s.Run(id)
	require.NoError(t, err)
	assert.True(t, run.Finished.Equal(finished))

	got, err := s.ChannelStatuses(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, statuses, got)
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Run(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.FinishRun(uuid.New(), time.Now(), nil), ErrNotFound)
}

func TestRunsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	cfg := interval.DefaultConfig()

	first, err := s.BeginRun("left", cfg, time.Unix(100, 0))
	require.NoError(t, err)
	second, err := s.BeginRun("right", cfg, time.Unix(200, 0))
	require.NoError(t, err)

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestStaticMeasurements(t *testing.T) {
	s := openTestStore(t)
	id, err := s.BeginRun("left", interval.DefaultConfig(), time.Now())
	require.NoError(t, err)

	accel := &measurement.StaticMeasurement{
		Channel:    measurement.Accelerometer,
		Mean:       imu.Triad{X: 0.1, Y: -0.2, Z: 9.8},
		StdDev:     imu.Triad{X: 0.01, Y: 0.02, Z: 0.03},
		Samples:    120,
		StartIndex: 5000,
		EndIndex:   5120,
		Elapsed:    102.4,
		Pose:       &orientation.Pose{Roll: 1.5, Pitch: -0.5},
	}
	mag := &measurement.StaticMeasurement{
		Channel: measurement.Magnetometer,
		Mean:    imu.Triad{X: 2e-5, Y: 1e-6, Z: 4e-5},
		Samples: 120,
		Position: &imu.Position{
			Latitude:  48.1173,
			Longitude: 11.5167,
			Altitude:  545.4,
			Time:      time.Date(2025, 12, 6, 12, 35, 19, 0, time.UTC),
			Valid:     true,
		},
	}

	_, err = s.InsertStatic(id, accel)
	require.NoError(t, err)
	_, err = s.InsertStatic(id, mag)
	require.NoError(t, err)

	got, err := s.StaticMeasurements(id, measurement.Accelerometer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *accel, got[0])

	got, err = s.StaticMeasurements(id, measurement.Magnetometer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Pose)
	require.NotNil(t, got[0].Position)
	assert.InDelta(t, 48.1173, got[0].Position.Latitude, 1e-12)
	assert.True(t, got[0].Position.Time.Equal(mag.Position.Time))

	got, err = s.StaticMeasurements(id, measurement.Gyroscope)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDynamicSequences(t *testing.T) {
	s := openTestStore(t)
	id, err := s.BeginRun("left", interval.DefaultConfig(), time.Now())
	require.NoError(t, err)

	seq := &measurement.DynamicSequence{
		Items: []measurement.DynamicItem{
			{Rate: imu.Triad{Z: 0.5}, TimeInterval: 0.02, StdDev: imu.Triad{Z: 0.1}},
			{Rate: imu.Triad{Z: 0.7}, TimeInterval: 0.02, StdDev: imu.Triad{Z: 0.2}},
		},
		Before:     imu.Triad{X: 1e-4},
		StartIndex: 6000,
		EndIndex:   6002,
		Elapsed:    120.04,
	}
	_, err = s.InsertDynamic(id, seq)
	require.NoError(t, err)

	got, err := s.DynamicSequences(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *seq, got[0])
	assert.InDelta(t, 0.04, got[0].Duration(), 1e-12)
}
