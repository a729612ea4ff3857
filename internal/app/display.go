package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_intervals/internal/interval"
)

// RunDisplay shows the pipeline status on an SSD1306 OLED until ctx is done.
func RunDisplay(ctx context.Context, p *Pipeline, addr uint16, every time.Duration, log *slog.Logger) error {
	log = log.With("component", "display")

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, addr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Info("display initialized", "addr", fmt.Sprintf("0x%02X", addr))

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Warn("error showing splash", "error", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return dev.Halt()
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), renderStatus(p.Status()), image.Point{}); err != nil {
				log.Warn("error updating display", "error", err)
			}
		}
	}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLine(d *font.Drawer, y int, s string) {
	d.Dot = fixed.P(0, y)
	d.DrawBytes([]byte(s))
}

// renderStatus draws four lines: status, sample counters, measurements and
// the threshold of the accelerometer channel.
func renderStatus(st Status) *image1bit.VerticalLSB {
	img, d := newFrame()

	accel := st.Channels[0]
	switch st.Status {
	case interval.Initializing:
		drawLine(d, 13, "Init "+st.IMU)
		drawLine(d, 26, fmt.Sprintf("%d/%d", accel.ProcessedStaticSamples, st.Config.InitialStaticSamples))
		drawLine(d, 39, "Keep still...")
	case interval.Failed:
		drawLine(d, 13, "FAILED "+st.IMU)
		for _, ch := range st.Channels {
			if ch.Status == interval.Failed {
				drawLine(d, 26, fmt.Sprintf("%.3s %s", ch.Channel, ch.Reason))
				break
			}
		}
		drawLine(d, 39, fmt.Sprintf("Retries: %d", st.Retries))
	default:
		label := "STATIC"
		if st.Status == interval.DynamicInterval {
			label = "DYNAMIC"
		}
		drawLine(d, 13, label+" "+st.IMU)
		drawLine(d, 26, fmt.Sprintf("S:%d D:%d", accel.ProcessedStaticSamples, accel.ProcessedDynamicSamples))
		drawLine(d, 39, fmt.Sprintf("M:%d Q:%d", st.Static, st.Dynamic))
	}
	drawLine(d, 52, fmt.Sprintf("T:%.4f", accel.Threshold))

	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, d := newFrame()

	d.Dot = fixed.P(10, 26)
	d.DrawBytes([]byte("Inertial Pi"))

	d.Dot = fixed.P(5, 43)
	d.DrawBytes([]byte("Static/Dynamic"))

	d.Dot = fixed.P(25, 56)
	d.DrawBytes([]byte("Intervals"))

	return img
}
