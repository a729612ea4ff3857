package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/sensors"
)

// RunIMUProducer reads the left and right IMUs every IMU_SAMPLE_INTERVAL and
// publishes the raw samples on their MQTT topics. A missing right IMU is
// not an error.
func RunIMUProducer() error {
	cfg := config.Get()
	log := NewLogger(cfg.LogLevel).With("component", "imu_producer")
	log.Info("starting IMU producer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	left, err := sensors.NewIMUSource("left", log)
	if err != nil {
		return fmt.Errorf("failed to initialize left IMU: %w", err)
	}
	right, err := sensors.NewIMUSource("right", log)
	if err != nil {
		log.Warn("right IMU not available", "error", err)
		right = nil
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	log.Info("starting publish loop", "interval", cfg.IMUSampleDuration())

	ticker := time.NewTicker(cfg.IMUSampleDuration())
	defer ticker.Stop()

	var published int
	lastLog := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info("IMU producer stopped", "published", published)
			return nil
		case <-ticker.C:
		}

		if publishRaw(client, left, cfg.TopicIMULeft, log) {
			published++
		}
		if right != nil {
			publishRaw(client, right, cfg.TopicIMURight, log)
		}

		if time.Since(lastLog) >= time.Duration(cfg.ConsoleLogInterval)*time.Millisecond {
			log.Info("tick", "published", published)
			lastLog = time.Now()
		}
	}
}

func publishRaw(client mqtt.Client, src imu.IMURawSource, topic string, log *slog.Logger) bool {
	raw, err := src.NextRaw()
	if err != nil {
		log.Warn("IMU read error", "topic", topic, "error", err)
		return false
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		log.Warn("IMU marshal error", "error", err)
		return false
	}
	if token := client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		log.Warn("MQTT publish error", "topic", topic, "error", token.Error())
		return false
	}
	return true
}
