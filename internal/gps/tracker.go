package gps

import (
	"sync"
	"time"

	"github.com/relabs-tech/inertial_intervals/internal/imu"
)

// Tracker keeps the latest fix and serves it as the position of
// magnetometer measurements. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	fix    Fix
	seenAt time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewTracker returns a tracker whose fixes expire after maxAge. A zero
// maxAge keeps fixes forever.
func NewTracker(maxAge time.Duration) *Tracker {
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Update records a new fix.
func (t *Tracker) Update(f Fix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fix = f
	t.seenAt = t.now()
}

// Fix returns the latest fix and whether one was seen.
func (t *Tracker) Fix() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fix, !t.seenAt.IsZero()
}

// Position returns the latest valid, non-expired position.
func (t *Tracker) Position() (imu.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.seenAt.IsZero() || !t.fix.Valid() {
		return imu.Position{}, false
	}
	if t.maxAge > 0 && t.now().Sub(t.seenAt) > t.maxAge {
		return imu.Position{}, false
	}
	return t.fix.Position(), true
}
