package stream

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Meter derives an instantaneous processing rate from the interval between
// consecutive published results.
type Meter struct {
	clk     clock.Clock
	mu      sync.Mutex
	last    time.Time
	instant float64
}

func NewMeter(clk clock.Clock) *Meter {
	if clk == nil {
		clk = clock.New()
	}
	return &Meter{clk: clk}
}

// Tick records one completed pipeline run and returns the current rate in
// frames per second. The first tick only arms the meter.
func (m *Meter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	if !m.last.IsZero() {
		if dt := now.Sub(m.last); dt > 0 {
			m.instant = float64(time.Second) / float64(dt)
		}
	}
	m.last = now
	return m.instant
}

// FPS returns the most recent instantaneous rate.
func (m *Meter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instant
}
