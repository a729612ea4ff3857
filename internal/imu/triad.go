package imu

import (
	"math"
	"time"
)

// Triad is a 3-component measurement along the instrument x/y/z axes.
type Triad struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean norm of the triad.
func (t Triad) Norm() float64 {
	return math.Sqrt(t.X*t.X + t.Y*t.Y + t.Z*t.Z)
}

// Sub returns t - o.
func (t Triad) Sub(o Triad) Triad {
	return Triad{X: t.X - o.X, Y: t.Y - o.Y, Z: t.Z - o.Z}
}

// Add returns t + o.
func (t Triad) Add(o Triad) Triad {
	return Triad{X: t.X + o.X, Y: t.Y + o.Y, Z: t.Z + o.Z}
}

// Scale returns t multiplied by k.
func (t Triad) Scale(k float64) Triad {
	return Triad{X: t.X * k, Y: t.Y * k, Z: t.Z * k}
}

// TimedTriad is the view of one sensor channel at one instant.
type TimedTriad struct {
	Triad
	// TimeInterval is the time elapsed since the previous sample, in seconds.
	TimeInterval float64 `json:"dt"`
}

// TimedSample holds the accelerometer, gyroscope and magnetometer triads
// captured at the same instant.
type TimedSample struct {
	Accel Triad `json:"accel"` // specific force, m/s²
	Gyro  Triad `json:"gyro"`  // angular rate, rad/s
	Mag   Triad `json:"mag"`   // magnetic flux density, T

	TimeInterval float64 `json:"dt"` // seconds since the previous sample
}

// Accelerometer returns the accelerometer view of the sample.
func (s TimedSample) Accelerometer() TimedTriad {
	return TimedTriad{Triad: s.Accel, TimeInterval: s.TimeInterval}
}

// Gyroscope returns the gyroscope view of the sample.
func (s TimedSample) Gyroscope() TimedTriad {
	return TimedTriad{Triad: s.Gyro, TimeInterval: s.TimeInterval}
}

// Magnetometer returns the magnetometer view of the sample.
func (s TimedSample) Magnetometer() TimedTriad {
	return TimedTriad{Triad: s.Mag, TimeInterval: s.TimeInterval}
}

// Position is the geodetic context attached to magnetometer measurements.
// It is passed through unchanged.
type Position struct {
	Latitude  float64   `json:"lat"`  // decimal degrees
	Longitude float64   `json:"lon"`  // decimal degrees
	Altitude  float64   `json:"alt"`  // metres above mean sea level
	Time      time.Time `json:"time"` // fix time
	Valid     bool      `json:"valid"`
}
