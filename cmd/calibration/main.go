// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided static/dynamic interval capture on a local MPU-9250.
// The device is kept still for initialization, then moved between still
// poses. Every still pose becomes an accelerometer and magnetometer static
// measurement, every motion between them a gyroscope sequence.
//
// Output:
//
//	Writes <imu>_<unix>_inertial_intervals.json (or .yaml) under EXPORT_PATH,
//	or the current directory when EXPORT_PATH is empty.
//
// Run:
//
//	go run ./cmd/calibration -imu left
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/inertial_intervals/internal/app"
	"github.com/relabs-tech/inertial_intervals/internal/config"
)

func main() {
	configPath := flag.String("config", "inertial_config.txt", "Path to configuration file")
	imuName := flag.String("imu", "", "IMU to capture from: left or right (default INTERVALS_IMU)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	name := *imuName
	if name == "" {
		name = config.Get().IntervalsIMU
	}

	if err := app.RunCalibration(os.Stdin, name); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
