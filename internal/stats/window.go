// Package stats implements the online statistics used by the interval
// detector: a bounded sliding window and a Welford accumulator. Every
// standard deviation is a population estimator so values coming from
// either type can be compared directly.
package stats

import (
	"math"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Window keeps the most recent samples of one channel and reports their mean
// and standard deviation per axis.
//
// Sums are kept relative to a shift value (the first sample seen after the
// last rebuild) so a constant signal produces exactly zero variance. The sums
// are rebuilt from the ring every time the write position wraps around,
// which keeps Push amortized O(1) while bounding rounding drift.
type Window struct {
	buf  []imu.Triad
	head int // next write position
	n    int

	shift imu.Triad
	sum   [3]float64
	sumSq [3]float64
}

// NewWindow returns a window holding at most size samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]imu.Triad, size)}
}

// Push appends a sample, evicting the oldest one when the window is full,
// and returns the resulting mean and standard deviation.
func (w *Window) Push(t imu.Triad) (mean, std imu.Triad) {
	if w.n == 0 {
		w.shift = t
	}

	if w.n == len(w.buf) {
		w.remove(w.buf[w.head])
	} else {
		w.n++
	}
	w.buf[w.head] = t
	w.add(t)

	w.head++
	if w.head == len(w.buf) {
		w.head = 0
		w.rebuild()
	}
	return w.Mean(), w.StdDev()
}

func (w *Window) add(t imu.Triad) {
	d := t.Sub(w.shift)
	w.sum[0] += d.X
	w.sum[1] += d.Y
	w.sum[2] += d.Z
	w.sumSq[0] += d.X * d.X
	w.sumSq[1] += d.Y * d.Y
	w.sumSq[2] += d.Z * d.Z
}

func (w *Window) remove(t imu.Triad) {
	d := t.Sub(w.shift)
	w.sum[0] -= d.X
	w.sum[1] -= d.Y
	w.sum[2] -= d.Z
	w.sumSq[0] -= d.X * d.X
	w.sumSq[1] -= d.Y * d.Y
	w.sumSq[2] -= d.Z * d.Z
}

// rebuild recomputes the sums from the stored samples, re-centred on the
// oldest sample in the ring.
func (w *Window) rebuild() {
	w.shift = w.buf[w.oldest()]
	w.sum = [3]float64{}
	w.sumSq = [3]float64{}
	for i := 0; i < w.n; i++ {
		w.add(w.buf[i])
	}
}

func (w *Window) oldest() int {
	if w.n < len(w.buf) {
		return 0
	}
	return w.head
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.n }

// Size returns the window capacity.
func (w *Window) Size() int { return len(w.buf) }

// Full reports whether the window holds Size samples.
func (w *Window) Full() bool { return w.n == len(w.buf) }

// Mean returns the per-axis mean. Zero when the window is empty.
func (w *Window) Mean() imu.Triad {
	if w.n == 0 {
		return imu.Triad{}
	}
	n := float64(w.n)
	return imu.Triad{
		X: w.shift.X + w.sum[0]/n,
		Y: w.shift.Y + w.sum[1]/n,
		Z: w.shift.Z + w.sum[2]/n,
	}
}

// Variance returns the per-axis population variance.
func (w *Window) Variance() imu.Triad {
	if w.n == 0 {
		return imu.Triad{}
	}
	n := float64(w.n)
	v := func(i int) float64 {
		m := w.sum[i] / n
		return math.Max(0, w.sumSq[i]/n-m*m)
	}
	return imu.Triad{X: v(0), Y: v(1), Z: v(2)}
}

// StdDev returns the per-axis population standard deviation.
func (w *Window) StdDev() imu.Triad {
	v := w.Variance()
	return imu.Triad{X: math.Sqrt(v.X), Y: math.Sqrt(v.Y), Z: math.Sqrt(v.Z)}
}

// StdDevNorm returns the norm of the per-axis standard deviation, which is
// the window noise level.
func (w *Window) StdDevNorm() float64 {
	v := w.Variance()
	return math.Sqrt(v.X + v.Y + v.Z)
}

// Reset empties the window. The capacity is kept.
func (w *Window) Reset() {
	w.head = 0
	w.n = 0
	w.shift = imu.Triad{}
	w.sum = [3]float64{}
	w.sumSq = [3]float64{}
}
