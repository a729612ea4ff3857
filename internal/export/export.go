// Package export writes the measurements of a capture run to a file.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/inertial_intervals/internal/interval"
	"github.com/relabs-tech/inertial_intervals/internal/measurement"
)

// Version of the report layout.
const Version = 1

// Format is the encoding of an export file.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml". Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Report is everything generated during one run.
type Report struct {
	Version   int       `json:"version" yaml:"version"`
	RunID     string    `json:"run_id" yaml:"run_id"`
	IMU       string    `json:"imu" yaml:"imu"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	Config   interval.Config                 `json:"config" yaml:"config"`
	Channels []measurement.ChannelStatus     `json:"channels" yaml:"channels"`
	Static   []measurement.StaticMeasurement `json:"static" yaml:"static"`
	Dynamic  []measurement.DynamicSequence   `json:"dynamic" yaml:"dynamic"`

	// Retries is the number of threshold retries the run needed.
	Retries int `json:"retries" yaml:"retries"`
}

// Add appends a generated measurement event to the report. Other events
// are ignored.
func (r *Report) Add(ev measurement.Event) {
	if ev.Kind != measurement.GeneratedMeasurement {
		return
	}
	if ev.Static != nil {
		r.Static = append(r.Static, *ev.Static)
	}
	if ev.Dynamic != nil {
		r.Dynamic = append(r.Dynamic, *ev.Dynamic)
	}
}

// Filename returns the default file name of the report.
func (r *Report) Filename(f Format) string {
	return fmt.Sprintf("%s_%d_inertial_intervals.%s", r.IMU, r.Timestamp.Unix(), f)
}

// Marshal encodes the report.
func Marshal(r *Report, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return json.MarshalIndent(r, "", "  ")
	case YAML:
		return yaml.Marshal(r)
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// Unmarshal decodes a report.
func Unmarshal(data []byte, f Format) (*Report, error) {
	var r Report
	var err error
	switch f {
	case JSON:
		err = json.Unmarshal(data, &r)
	case YAML:
		err = yaml.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Write saves the report under dir and returns the path written.
func Write(dir string, r *Report, f Format) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = cwd
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := Marshal(r, f)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, r.Filename(f))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
