// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/export"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
	"github.com/relabs-tech/inertial_intervals/internal/sensors"
	"github.com/relabs-tech/inertial_intervals/internal/store"
)

// RunCalibration runs a guided capture on a local IMU: the user keeps the
// device still for initialization, then alternates motions and still poses
// until ENTER. The interval pipeline runs in-process and the run is
// exported when the capture ends.
func RunCalibration(in io.Reader, imuName string) error {
	cfg := config.Get()
	log := NewLogger(cfg.LogLevel)
	reader := bufio.NewReader(in)

	policy, err := measurement.ParseChannelPolicy(cfg.ChannelPolicy)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return err
	}

	src, err := sensors.NewIMUSource(imuName, log)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.StorePath != "" {
		if st, err = store.Open(cfg.StorePath); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
	}

	p, err := NewPipeline(PipelineOptions{
		IMU:         imuName,
		Detector:    cfg.Detector(),
		Policy:      policy,
		RetryFactor: cfg.ThresholdRetryFactor,
		MaxRetries:  cfg.ThresholdMaxRetries,
		Store:       st,
		Observer: measurement.ListenerFunc(func(ev measurement.Event) {
			printIntervalEvent(os.Stdout, ev)
		}),
		Logger: log,
	})
	if err != nil {
		return err
	}

	det := cfg.Detector()
	initDur := time.Duration(float64(det.InitialStaticSamples) * det.TimeInterval * float64(time.Second))
	minStill := time.Duration(float64(det.MinStaticSamples) * det.TimeInterval * float64(time.Second))

	fmt.Println("=== Guided static/dynamic interval capture ===")
	fmt.Printf("IMU: %s\n\n", imuName)
	fmt.Println("Step 1/2: Initialization")
	fmt.Println("Place the device on a stable surface and do not touch it.")
	waitEnter(reader, fmt.Sprintf("Press ENTER to start initialization (%s)...", initDur.Round(time.Second)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		report *export.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := p.Run(ctx)
		done <- result{r, err}
	}()

	feedErr := make(chan error, 1)
	go func() {
		sc := &sampler{scale: imu.Scale{AccelRange: cfg.IMUAccelRange, GyroRange: cfg.IMUGyroRange}}
		feedErr <- feed(ctx, src, cfg.IMUSampleDuration(), sc, p, log)
	}()

	if err := waitInitialized(ctx, p, feedErr); err != nil {
		cancel()
		<-done
		return err
	}

	fmt.Println("\nStep 2/2: Static and dynamic intervals")
	fmt.Println("Move the device to a new orientation, then hold it still.")
	fmt.Printf("Each still pose must last at least %s. Repeat as many times as you like.\n", minStill.Round(100*time.Millisecond))
	waitEnter(reader, "Press ENTER to finish the capture...")

	cancel()
	res := <-done
	if res.err != nil {
		return res.err
	}

	fmt.Printf("\nCaptured %d static measurements and %d dynamic sequences (retries: %d)\n",
		len(res.report.Static), len(res.report.Dynamic), res.report.Retries)
	logExport(log, cfg.ExportPath, res.report, format)
	return nil
}

// waitInitialized polls the pipeline until initialization completes or the
// retries are exhausted.
func waitInitialized(ctx context.Context, p *Pipeline, feedErr <-chan error) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-feedErr:
			if err == nil {
				return errors.New("IMU capture stopped")
			}
			return fmt.Errorf("IMU capture stopped: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		st := p.Status()
		if st.GaveUp {
			for _, ch := range st.Channels {
				if ch.Status == interval.Failed {
					return fmt.Errorf("initialization failed after %d retries: %s %s", st.Retries, ch.Channel, ch.Reason)
				}
			}
			return fmt.Errorf("initialization failed after %d retries", st.Retries)
		}
		if st.Status != interval.Initializing && st.Status != interval.Failed {
			return nil
		}
	}
}

// feed reads src every interval and submits the converted samples until
// ctx is done.
func feed(ctx context.Context, src imu.IMURawSource, every time.Duration, sc *sampler, p *Pipeline, log *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		raw, err := src.NextRaw()
		if err != nil {
			log.Warn("IMU read error", "error", err)
			continue
		}
		if err := p.Submit(ctx, sc.sample(raw)); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrPipelineStopped) {
				return nil
			}
			return err
		}
	}
}

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}
