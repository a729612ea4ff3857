package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_intervals/internal/config"
	"github.com/relabs-tech/inertial_intervals/internal/gps"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
)

// RunConsoleMQTT prints interval events, measurements and GPS fixes until
// SIGINT or SIGTERM.
func RunConsoleMQTT() error {
	cfg := config.Get()
	log := NewLogger(cfg.LogLevel).With("component", "console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	printEvent := func(_ mqtt.Client, msg mqtt.Message) {
		var ev eventMessage
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Warn("event unmarshal error", "topic", msg.Topic(), "error", err)
			return
		}
		printIntervalEvent(os.Stdout, ev.Event)
	}

	prefix := cfg.TopicIntervalsPrefix
	if err := subscribe(client, prefix+"/events", printEvent, log); err != nil {
		return err
	}
	if err := subscribe(client, prefix+"/measurements/+", printEvent, log); err != nil {
		return err
	}

	err = subscribe(client, cfg.TopicGPS, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Warn("gps unmarshal error", "error", err)
			return
		}
		fmt.Printf(
			"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f alt=%.1fm sats=%d validity=%s\n",
			f.Time, f.Date, f.Latitude, f.Longitude, f.Altitude, f.Satellites, f.Validity,
		)
	}, log)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// printIntervalEvent writes one console line for ev.
func printIntervalEvent(w io.Writer, ev measurement.Event) {
	tag := strings.ToUpper(ev.Channel.String()[:3])
	switch {
	case ev.Static != nil:
		m := ev.Static
		fmt.Fprintf(w, "[STAT %s] n=%4d mean=(% .5f % .5f % .5f) std=(%.5f %.5f %.5f)",
			tag, m.Samples, m.Mean.X, m.Mean.Y, m.Mean.Z, m.StdDev.X, m.StdDev.Y, m.StdDev.Z)
		if m.Pose != nil {
			fmt.Fprintf(w, " roll=%.1f pitch=%.1f yaw=%.1f", m.Pose.Roll, m.Pose.Pitch, m.Pose.Yaw)
		}
		if m.Position != nil {
			fmt.Fprintf(w, " lat=%.6f lon=%.6f", m.Position.Latitude, m.Position.Longitude)
		}
		fmt.Fprintln(w)
	case ev.Dynamic != nil:
		d := ev.Dynamic
		fmt.Fprintf(w, "[DYN  %s] n=%4d duration=%.3fs\n", tag, d.Len(), d.Duration())
	case ev.Kind == measurement.Error:
		fmt.Fprintf(w, "[ERR  %s] %s\n", tag, ev.Reason)
	case ev.Kind == measurement.InitializationCompleted:
		fmt.Fprintf(w, "[INIT %s] completed base=%.6g threshold=%.6g\n", tag, ev.BaseNoiseLevel, ev.Threshold)
	case ev.Samples > 0:
		fmt.Fprintf(w, "[EVT  %s] %s samples=%d\n", tag, ev.Kind, ev.Samples)
	default:
		fmt.Fprintf(w, "[EVT  %s] %s\n", tag, ev.Kind)
	}
}
