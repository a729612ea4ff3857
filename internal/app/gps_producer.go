package app

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as JSON to TOPIC_GPS.
func RunGPSProducer() error {
	cfg := config.Get()
	log := NewLogger(cfg.LogLevel).With("component", "gps_producer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	log.Info("GPS serial port opened", "port", cfg.GPSSerialPort, "baud", cfg.GPSBaudRate)

	// closing the port unblocks the reader
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = gps.Scan(ctx, port, log, func(f gps.Fix) {
		payload, err := json.Marshal(f)
		if err != nil {
			log.Warn("GPS JSON marshal error", "error", err)
			return
		}
		if token := client.Publish(cfg.TopicGPS, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Warn("GPS publish error", "error", token.Error())
			return
		}
		log.Debug("published GPS fix", "lat", f.Latitude, "lon", f.Longitude, "valid", f.Valid(), "satellites", f.Satellites)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
