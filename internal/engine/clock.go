package engine

import (
	"sync/atomic"
	"time"
)

// DefaultTickRate is the tick frequency used when none is configured.
const DefaultTickRate = 60

// Clock is the simulation's logical clock: a tick counter plus a fixed
// delta.
//
// The first tick is a warm-up tick with delta 0; every later tick reports
// 1/tickRate seconds. Wall-clock time never feeds the delta, so a replay
// steps through identical deltas regardless of host speed.
//
// Thread-safety: Tick may be read from any goroutine. Advance is called
// only by the sim goroutine.
type Clock struct {
	tick     atomic.Uint64
	tickRate float64
	delta    float32
}

// NewClock creates a clock at tick 0. A non-positive rate falls back to
// DefaultTickRate.
func NewClock(tickRate float64) *Clock {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	return &Clock{
		tickRate: tickRate,
		delta:    float32(1 / tickRate),
	}
}

// Advance moves to the next tick and returns it with its delta.
func (c *Clock) Advance() (uint64, float32) {
	tick := c.tick.Add(1)
	return tick, c.DeltaAt(tick)
}

// Tick returns the current tick without advancing.
func (c *Clock) Tick() uint64 {
	return c.tick.Load()
}

// DeltaAt returns the fixed delta that applies on tick.
func (c *Clock) DeltaAt(tick uint64) float32 {
	if tick <= 1 {
		return 0
	}
	return c.delta
}

// TickRate returns the configured ticks per second.
func (c *Clock) TickRate() float64 {
	return c.tickRate
}

// Interval is the wall-clock pause between ticks for real-time runs.
func (c *Clock) Interval() time.Duration {
	return time.Duration(float64(time.Second) / c.tickRate)
}
