// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors reads raw samples from the MPU9250 over SPI.
package sensors

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

var (
	accelRangeG   = []int{2, 4, 8, 16}
	gyroRangeDegS = []int{250, 500, 1000, 2000}
)

type imuSource struct {
	name string // "left" or "right"
	dev  *mpu9250.MPU9250
	now  func() time.Time
}

// NewIMUSource initializes the IMU named "left" or "right" using the
// global configuration.
func NewIMUSource(name string, log *slog.Logger) (imu.IMURawSource, error) {
	cfg := config.Get()
	switch name {
	case "left":
		return newIMUSource(name, cfg.IMULeftSPIDevice, cfg.IMULeftCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange, log)
	case "right":
		return newIMUSource(name, cfg.IMURightSPIDevice, cfg.IMURightCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange, log)
	}
	return nil, fmt.Errorf("unknown IMU %q", name)
}

func newIMUSource(name, spiDev, csPin string, accelRange, gyroRange byte, log *slog.Logger) (*imuSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Info("imu ready",
		"imu", name,
		"spi", spiDev,
		"accel_range_g", accelRangeG[accelRange&3],
		"gyro_range_dps", gyroRangeDegS[gyroRange&3])

	return &imuSource{name: name, dev: dev, now: time.Now}, nil
}

// NextRaw reads accelerometer and gyroscope data from this IMU. The
// magnetometer fields are left at zero.
func (s *imuSource) NextRaw() (imu.IMURaw, error) {
	ts := s.now().UnixNano()

	// Read accelerometer
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	// Read gyroscope
	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source:      s.name,
		TimestampNs: ts,
		Ax:          ax,
		Ay:          ay,
		Az:          az,
		Gx:          gx,
		Gy:          gy,
		Gz:          gz,
	}, nil
}
