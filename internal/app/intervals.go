// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/export"
	"github.com/relabs-tech/inertial_intervals/internal/gps"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
	"github.com/relabs-tech/inertial_intervals/internal/store"
)

// gpsMaxAge is how long a GPS fix stays attached to measurements.
const gpsMaxAge = 30 * time.Second

// RunIntervalGenerator subscribes to the configured IMU topic and runs the
// static/dynamic interval pipeline on it until SIGINT or SIGTERM. Events and
// measurements go to MQTT, the store and the WebSocket clients. The run is
// exported on shutdown.
func RunIntervalGenerator(configPath string) error {
	cfg := config.Get()
	log := NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := measurement.ParseChannelPolicy(cfg.ChannelPolicy)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.StorePath != "" {
		if st, err = store.Open(cfg.StorePath); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		log.Info("store opened", "path", cfg.StorePath)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDIntervals, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	hub := NewHub()
	tracker := gps.NewTracker(gpsMaxAge)
	p, err := NewPipeline(PipelineOptions{
		IMU:         cfg.IntervalsIMU,
		Detector:    cfg.Detector(),
		Policy:      policy,
		RetryFactor: cfg.ThresholdRetryFactor,
		MaxRetries:  cfg.ThresholdMaxRetries,
		TopicPrefix: cfg.TopicIntervalsPrefix,
		Publisher:   mqttPublisher{client: client, timeout: time.Second},
		Store:       st,
		Positions:   tracker,
		Observer:    hub,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	sc := &sampler{scale: imu.Scale{AccelRange: cfg.IMUAccelRange, GyroRange: cfg.IMUGyroRange}}
	err = subscribe(client, cfg.IntervalsTopic(), imuHandler(sc, log, func(s imu.TimedSample) {
		if err := p.Submit(ctx, s); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrPipelineStopped) {
			log.Warn("submit sample", "error", err)
		}
	}), log)
	if err != nil {
		return err
	}
	if err := subscribe(client, cfg.TopicGPS, gpsHandler(tracker, log), log); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/intervals/status", HandleIntervalsStatus(p, log))
	mux.HandleFunc("/ws/intervals", HandleIntervalsWS(p, hub, log))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.WebServerPort), Handler: mux}
	go func() {
		log.Info("web server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("web server", "error", err)
			stop()
		}
	}()

	if cfg.DisplayI2CAddr != 0 {
		go func() {
			every := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
			if err := RunDisplay(ctx, p, cfg.DisplayI2CAddr, every, log); err != nil {
				log.Warn("display disabled", "error", err)
			}
		}()
	}

	go func() {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			if err := p.Reconfigure(ctx, next.Detector()); err != nil {
				log.Warn("config reload rejected", "error", err)
			}
		}, func(err error) {
			log.Warn("config reload", "error", err)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watch disabled", "error", err)
		}
	}()

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	if cfg.ExportPath != "" {
		logExport(log, cfg.ExportPath, report, format)
	}
	log.Info("interval generator stopped")
	return nil
}

func logExport(log *slog.Logger, dir string, r *export.Report, f export.Format) {
	path, err := export.Write(dir, r, f)
	if err != nil {
		log.Error("export", "error", err)
		return
	}
	log.Info("run exported", "path", path)
}
