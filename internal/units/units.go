// Package units provides the unit-aware value types accepted by the
// measurement generators alongside plain SI numbers.
package units

import (
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

// StandardGravity is the conventional value of g in m/s².
const StandardGravity = 9.80665

// AccelerationUnit identifies the unit of an Acceleration value.
type AccelerationUnit int

const (
	MetersPerSquaredSecond AccelerationUnit = iota
	G
)

func (u AccelerationUnit) String() string {
	switch u {
	case MetersPerSquaredSecond:
		return "m/s²"
	case G:
		return "g"
	default:
		return fmt.Sprintf("AccelerationUnit(%d)", int(u))
	}
}

// Acceleration is a magnitude expressed in an explicit unit.
type Acceleration struct {
	Value float64
	Unit  AccelerationUnit
}

// NewAcceleration returns an acceleration in m/s².
func NewAcceleration(metersPerSquaredSecond float64) Acceleration {
	return Acceleration{Value: metersPerSquaredSecond, Unit: MetersPerSquaredSecond}
}

// MetersPerSquaredSecond returns the value converted to m/s².
func (a Acceleration) MetersPerSquaredSecond() float64 {
	if a.Unit == G {
		return a.Value * StandardGravity
	}
	return a.Value
}

// G returns the value converted to multiples of standard gravity.
func (a Acceleration) G() float64 {
	return a.MetersPerSquaredSecond() / StandardGravity
}

func (a Acceleration) String() string {
	return fmt.Sprintf("%g %s", a.Value, a.Unit)
}

// AngularSpeedUnit identifies the unit of an AngularSpeed value.
type AngularSpeedUnit int

const (
	RadiansPerSecond AngularSpeedUnit = iota
	DegreesPerSecond
)

func (u AngularSpeedUnit) String() string {
	switch u {
	case RadiansPerSecond:
		return "rad/s"
	case DegreesPerSecond:
		return "°/s"
	default:
		return fmt.Sprintf("AngularSpeedUnit(%d)", int(u))
	}
}

// AngularSpeed is an angular rate expressed in an explicit unit.
type AngularSpeed struct {
	Value float64
	Unit  AngularSpeedUnit
}

// NewAngularSpeed returns an angular speed in rad/s.
func NewAngularSpeed(radiansPerSecond float64) AngularSpeed {
	return AngularSpeed{Value: radiansPerSecond, Unit: RadiansPerSecond}
}

// RadiansPerSecond returns the value converted to rad/s.
func (w AngularSpeed) RadiansPerSecond() float64 {
	if w.Unit == DegreesPerSecond {
		return w.Value * math.Pi / 180
	}
	return w.Value
}

// DegreesPerSecond returns the value converted to °/s.
func (w AngularSpeed) DegreesPerSecond() float64 {
	return w.RadiansPerSecond() * 180 / math.Pi
}

func (w AngularSpeed) String() string {
	return fmt.Sprintf("%g %s", w.Value, w.Unit)
}

// Seconds converts a duration into fractional seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Duration converts fractional seconds into a duration, rounded to the
// nearest nanosecond.
func Duration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// SampleRate returns the sampling frequency matching a sample interval in
// seconds. A non-positive interval yields zero.
func SampleRate(timeInterval float64) physic.Frequency {
	if timeInterval <= 0 {
		return 0
	}
	return physic.Frequency(math.Round(float64(physic.Hertz) / timeInterval))
}

// TimeIntervalFromRate returns the sample interval in seconds matching a
// sampling frequency. A non-positive frequency yields zero.
func TimeIntervalFromRate(f physic.Frequency) float64 {
	if f <= 0 {
		return 0
	}
	return float64(physic.Hertz) / float64(f)
}
