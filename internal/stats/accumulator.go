package stats

import (
	"math"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Accumulator tracks count, mean and sum of squared deviations of a stream
// of triads using Welford's update.
type Accumulator struct {
	n    int
	mean imu.Triad
	m2   imu.Triad
}

// Add includes one sample.
func (a *Accumulator) Add(t imu.Triad) {
	a.n++
	n := float64(a.n)

	d := t.Sub(a.mean)
	a.mean = a.mean.Add(d.Scale(1 / n))
	d2 := t.Sub(a.mean)

	a.m2.X += d.X * d2.X
	a.m2.Y += d.Y * d2.Y
	a.m2.Z += d.Z * d2.Z
}

// Count returns the number of samples added since the last reset.
func (a *Accumulator) Count() int { return a.n }

// Mean returns the per-axis mean.
func (a *Accumulator) Mean() imu.Triad { return a.mean }

// Variance returns the per-axis population variance.
func (a *Accumulator) Variance() imu.Triad {
	if a.n == 0 {
		return imu.Triad{}
	}
	return a.m2.Scale(1 / float64(a.n))
}

// StdDev returns the per-axis population standard deviation.
func (a *Accumulator) StdDev() imu.Triad {
	v := a.Variance()
	return imu.Triad{X: math.Sqrt(v.X), Y: math.Sqrt(v.Y), Z: math.Sqrt(v.Z)}
}

// StdDevNorm returns the norm of the per-axis standard deviation.
func (a *Accumulator) StdDevNorm() float64 {
	v := a.Variance()
	return math.Sqrt(v.X + v.Y + v.Z)
}

// Reset discards all samples.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}
