package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_intervals/internal/gps"
	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// connectMQTT connects a client and waits for the connection.
func connectMQTT(broker, clientID string, log *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("MQTT connection lost", "error", err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	log.Info("connected to MQTT broker", "broker", broker, "client_id", clientID)
	return client, nil
}

func subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler, log *slog.Logger) error {
	token := client.Subscribe(topic, 0, handler)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Info("subscribed", "topic", topic)
	return nil
}

// mqttPublisher adapts a paho client to Publisher.
type mqttPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

func (m mqttPublisher) Publish(topic string, retained bool, payload []byte) error {
	token := m.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

// sampler converts raw counts into SI samples. The time interval comes from
// the producer timestamps when two consecutive samples carry one, and is
// left zero otherwise so the generators fall back to the configured value.
type sampler struct {
	scale  imu.Scale
	lastNs int64
}

func (s *sampler) sample(r imu.IMURaw) imu.TimedSample {
	var dt float64
	if r.TimestampNs > 0 && s.lastNs > 0 && r.TimestampNs > s.lastNs {
		dt = float64(r.TimestampNs-s.lastNs) / float64(time.Second)
	}
	if r.TimestampNs > 0 {
		s.lastNs = r.TimestampNs
	}
	return s.scale.Sample(r, dt)
}

// imuHandler decodes IMURaw payloads and passes the converted samples to fn.
func imuHandler(sc *sampler, log *slog.Logger, fn func(imu.TimedSample)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var raw imu.IMURaw
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			log.Warn("IMU payload unmarshal error", "topic", msg.Topic(), "error", err)
			return
		}
		fn(sc.sample(raw))
	}
}

// gpsHandler decodes Fix payloads into the tracker.
func gpsHandler(t *gps.Tracker, log *slog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Warn("GPS payload unmarshal error", "error", err)
			return
		}
		t.Update(f)
	}
}
