package measurement

import (
	"github.com/relabs-tech/inertial_intervals/internal/interval"
)

// MagnetometerGenerator produces one StaticMeasurement of mean magnetic
// flux density per static interval, tagged with the position reported by
// the configured PositionSource.
type MagnetometerGenerator struct {
	*generator
	positions PositionSource
}

// NewMagnetometerGenerator returns a generator reporting to l, which may be
// nil.
func NewMagnetometerGenerator(cfg interval.Config, l Listener, opts ...Option) (*MagnetometerGenerator, error) {
	o := buildOptions(opts)
	g, err := newGenerator(Magnetometer, cfg, l, o)
	if err != nil {
		return nil, err
	}
	m := &MagnetometerGenerator{generator: g, positions: o.positions}
	g.self = m
	g.emitStatic = true
	g.decorate = m.attachPosition
	return m, nil
}

func (m *MagnetometerGenerator) attachPosition(sm *StaticMeasurement) {
	if m.positions == nil {
		return
	}
	if p, ok := m.positions.Position(); ok {
		sm.Position = &p
	}
}

// SetPositionSource replaces the position source. nil disables positions.
func (m *MagnetometerGenerator) SetPositionSource(p PositionSource) error {
	if m.running {
		return interval.ErrLocked
	}
	m.positions = p
	return nil
}
