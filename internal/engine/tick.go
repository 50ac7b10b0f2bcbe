// Package engine runs the town: the World step loop and the Engine that paces it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/clock"
)

// Tick schedule. One tick is one simulated minute.
const (
	TicksPerSimHour = 60
	TicksPerSimDay  = 1440
)

const pausePoll = 100 * time.Millisecond

// Engine paces World steps in wall-clock time.
type Engine struct {
	World    *World
	Interval time.Duration // base tick interval at speed 1

	// Callbacks, populated during setup.
	OnTick func(tick uint64, results map[string]agents.Result)
	OnHour func(tick uint64)
	OnDay  func(tick uint64)
	OnStop func(stats Stats)

	mu      sync.Mutex
	speed   float64
	running bool
	cancel  context.CancelFunc
}

// NewEngine creates an engine for w ticking once a second at speed 1.
func NewEngine(w *World) *Engine {
	return &Engine{World: w, Interval: time.Second, speed: 1}
}

// Speed returns the pacing multiplier. Zero means paused.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the pacing multiplier. Negative values pause.
func (e *Engine) SetSpeed(s float64) {
	if s < 0 {
		s = 0
	}
	e.mu.Lock()
	e.speed = s
	e.mu.Unlock()
}

// Running reports whether a run loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run steps the world until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	e.RunSimulation(ctx, 0)
}

// RunSimulation steps the world until duration of simulated time has passed,
// ctx is done, or Stop is called. A zero duration runs without limit.
// Final statistics are logged and handed to OnStop however the run ends.
func (e *Engine) RunSimulation(ctx context.Context, duration time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	clk := e.World.Clock()
	startAt := clk.Now()
	slog.Info("simulation started", "tick", clk.Tick(), "time", clock.Format(clk.Start(), startAt),
		"agents", len(e.World.Agents()), "speed", e.Speed())

	defer func() {
		cancel()
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()

		st := e.World.Stats()
		slog.Info("simulation stopped",
			"ticks", st.Ticks,
			"interactions", st.TotalInteractions,
			"movements", st.TotalMovements,
			"conversations", st.TotalConversations,
			"agent_errors", st.AgentErrors,
			"degraded_steps", st.DegradedSteps,
		)
		if e.OnStop != nil {
			e.OnStop(st)
		}
	}()

	for ctx.Err() == nil {
		speed := e.Speed()
		if speed <= 0 {
			if !sleep(ctx, pausePoll) {
				return
			}
			continue
		}

		began := time.Now()
		e.step(ctx)

		if duration > 0 && clk.Now().Sub(startAt) >= duration {
			return
		}

		target := time.Duration(float64(e.Interval) / speed)
		if wait := target - time.Since(began); wait > 0 && !sleep(ctx, wait) {
			return
		}
	}
}

// Stop ends an active run after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// step advances the world one tick and fires the hooks due at that tick.
func (e *Engine) step(ctx context.Context) {
	results := e.World.Step(ctx)
	tick := e.World.Clock().Tick()

	if e.OnTick != nil {
		e.OnTick(tick, results)
	}
	if tick%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(tick)
	}
	if tick%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(tick)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
