package gps

import (
	"time"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string    `json:"time"`        // e.g. "12:34:56.0000"
	Date       string    `json:"date"`        // e.g. "06/12/25"
	Timestamp  time.Time `json:"timestamp"`   // UTC, zero until RMC carries a date
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	Altitude   float64   `json:"alt"`         // metres above mean sea level, from GGA
	SpeedKnots float64   `json:"speed_knots"` // speed over ground
	CourseDeg  float64   `json:"course_deg"`  // course over ground
	Validity   string    `json:"validity"`    // "A" (valid) / "V" (void), etc.
	Satellites int64     `json:"satellites"`  // from GGA
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool { return f.Validity == "A" }

// Position converts the fix into the position attached to measurements.
func (f Fix) Position() imu.Position {
	return imu.Position{
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Altitude:  f.Altitude,
		Time:      f.Timestamp,
		Valid:     f.Valid(),
	}
}
