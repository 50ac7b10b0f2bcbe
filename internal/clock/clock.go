// Package clock provides the simulated time source shared by the world and its agents.
// One tick advances simulated time by one minute.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock is a source of the current simulated time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

// Sim is a tick-driven clock. Reads are safe during the concurrent agent phase;
// only the world loop advances it.
type Sim struct {
	mu      sync.RWMutex
	start   time.Time
	tick    uint64
	perTick time.Duration
}

// NewSim creates a clock at start that advances one minute per tick.
func NewSim(start time.Time) *Sim {
	return &Sim{start: start, perTick: time.Minute}
}

// DefaultStart returns 08:00 on the given day.
func DefaultStart(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 8, 0, 0, 0, time.UTC)
}

// Now returns the simulated time for the current tick.
func (c *Sim) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start.Add(time.Duration(c.tick) * c.perTick)
}

// Tick returns the number of ticks elapsed.
func (c *Sim) Tick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

// Advance moves the clock forward one tick and returns the new tick number.
func (c *Sim) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.tick
}

// Restore sets the tick counter, used when resuming a saved world.
func (c *Sim) Restore(tick uint64) {
	c.mu.Lock()
	c.tick = tick
	c.mu.Unlock()
}

// Start returns the simulated time at tick zero.
func (c *Sim) Start() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start
}

// Period is a coarse time-of-day bucket.
type Period string

const (
	Morning   Period = "morning"   // 06:00–12:00
	Afternoon Period = "afternoon" // 12:00–18:00
	Evening   Period = "evening"   // 18:00–22:00
	Night     Period = "night"
)

// PeriodOf returns the time-of-day bucket for t.
func PeriodOf(t time.Time) Period {
	h := t.Hour()
	switch {
	case h >= 6 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	case h >= 18 && h < 22:
		return Evening
	default:
		return Night
	}
}

// Format returns a human-readable simulated time, e.g. "Day 3, 14:05".
func Format(start, now time.Time) string {
	day := int(now.Sub(start).Hours()/24) + 1
	return fmt.Sprintf("Day %d, %d:%02d", day, now.Hour(), now.Minute())
}
