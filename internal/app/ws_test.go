package app

import (
	"context"
	"encoding/json"
	"image"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
)

// startPipeline runs a pipeline until the test ends.
func startPipeline(t *testing.T, o PipelineOptions) *Pipeline {
	t.Helper()
	p, err := NewPipeline(o)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var resp WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == typ {
			return resp
		}
	}
}

func TestIntervalsWS(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	hub := NewHub()
	p := startPipeline(t, PipelineOptions{IMU: "left", Detector: testDetector(), Observer: hub})

	srv := httptest.NewServer(HandleIntervalsWS(p, hub, log))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readUntil(t, conn, "status")
	require.NotNil(t, first.Status)
	assert.Equal(t, "left", first.Status.IMU)
	assert.Equal(t, interval.Initializing, first.Status.Status)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "threshold_factor", Value: 3.5}))
	ok := readUntil(t, conn, "ok")
	assert.Equal(t, "threshold_factor", ok.Message)
	assert.Equal(t, 3.5, p.Status().Config.ThresholdFactor)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "threshold_factor", Value: -1}))
	bad := readUntil(t, conn, "error")
	assert.Contains(t, bad.Message, "invalid")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "spin"}))
	unknown := readUntil(t, conn, "error")
	assert.Contains(t, unknown.Message, "unknown action")

	// samples reach the client as events
	for _, s := range motionSequence(50, 20, 5) {
		require.NoError(t, p.Submit(context.Background(), s))
	}
	for {
		ev := readUntil(t, conn, "event")
		require.NotNil(t, ev.Event)
		if ev.Event.Kind == measurement.GeneratedMeasurement {
			break
		}
	}
}

func TestIntervalsStatusHandler(t *testing.T) {
	p := startPipeline(t, PipelineOptions{IMU: "right", Detector: testDetector()})

	rec := httptest.NewRecorder()
	HandleIntervalsStatus(p, slog.New(slog.DiscardHandler))(rec, httptest.NewRequest(http.MethodGet, "/api/intervals/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "right", st.IMU)
	assert.Equal(t, interval.Initializing, st.Status)
	assert.Equal(t, testDetector(), st.Config)
	assert.Equal(t, measurement.Magnetometer, st.Channels[2].Channel)
}

func TestHub_DropsForSlowClients(t *testing.T) {
	hub := NewHub()
	c := hub.subscribe()
	for i := 0; i < 100; i++ {
		hub.Handle(measurement.Event{Kind: measurement.Reset})
	}
	assert.Len(t, c, cap(c))

	hub.unsubscribe(c)
	hub.Handle(measurement.Event{Kind: measurement.Reset})
	assert.Len(t, c, cap(c))
}

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderStatus(t *testing.T) {
	st := Status{IMU: "left", Config: testDetector()}
	st.Channels[0].Threshold = 0.0123

	for _, status := range []interval.Status{interval.Initializing, interval.StaticInterval, interval.DynamicInterval, interval.Failed} {
		t.Run(status.String(), func(t *testing.T) {
			st.Status = status
			img := renderStatus(st)
			assert.Equal(t, image.Rect(0, 0, 128, 64), img.Bounds())
			assert.Positive(t, litPixels(img))
		})
	}

	assert.Positive(t, litPixels(renderSplash()))
}

func TestPrintIntervalEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   measurement.Event
		want string
	}{
		{
			name: "static",
			ev: measurement.Event{
				Kind:    measurement.GeneratedMeasurement,
				Channel: measurement.Accelerometer,
				Static:  &measurement.StaticMeasurement{Samples: 42, Mean: imu.Triad{Z: 9.81}},
			},
			want: "[STAT ACC] n=  42",
		},
		{
			name: "dynamic",
			ev: measurement.Event{
				Kind:    measurement.GeneratedMeasurement,
				Channel: measurement.Gyroscope,
				Dynamic: &measurement.DynamicSequence{Items: make([]measurement.DynamicItem, 3)},
			},
			want: "[DYN  GYR] n=   3",
		},
		{
			name: "error",
			ev:   measurement.Event{Kind: measurement.Error, Reason: interval.SuddenExcessiveMovement},
			want: "[ERR  ACC] sudden_excessive_movement",
		},
		{
			name: "skipped",
			ev:   measurement.Event{Kind: measurement.StaticIntervalSkipped, Channel: measurement.Magnetometer, Samples: 4},
			want: "[EVT  MAG] static_interval_skipped samples=4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			printIntervalEvent(&b, tt.ev)
			assert.Contains(t, b.String(), tt.want)
		})
	}
}
