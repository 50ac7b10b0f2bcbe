package engine

import (
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/world"
)

const subscriberBuffer = 4

// WorldState is the shared view agents perceive. Nearby is filled only when
// the state is built for a specific agent.
type WorldState struct {
	Tick   uint64                `json:"tick"`
	Time   time.Time             `json:"time"`
	Agents []world.AgentLocation `json:"agents"`
	Events []events.Event        `json:"events"`
	Nearby []world.NearbyAgent   `json:"nearby,omitempty"`
}

// WorldState assembles the shared view, plus the nearby list for agentID
// when it names a known agent. Repeated calls between steps agree.
func (w *World) WorldState(agentID string) WorldState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	locs := w.locationsLocked()
	return w.stateLocked(w.index[agentID], locs)
}

func (w *World) locationsLocked() []world.AgentLocation {
	locs := make([]world.AgentLocation, len(w.agents))
	for i, a := range w.agents {
		locs[i] = world.AgentLocation{ID: a.ID, Name: a.Name, Position: a.Position()}
	}
	return locs
}

func (w *World) stateLocked(a *agents.Agent, locs []world.AgentLocation) WorldState {
	st := WorldState{
		Tick:   w.clock.Tick(),
		Time:   w.clock.Now(),
		Agents: locs,
		Events: append([]events.Event(nil), w.live...),
	}
	if a == nil {
		return st
	}
	pos := a.Position()
	for _, n := range w.Map.NearbyAgents(pos.X, pos.Y, a.PerceptionRadius(), locs) {
		if n.ID != a.ID {
			st.Nearby = append(st.Nearby, n)
		}
	}
	return st
}

// Snapshot is the read-only frame published after every step.
type Snapshot struct {
	Tick   uint64          `json:"tick"`
	Time   time.Time       `json:"time"`
	Clock  string          `json:"clock"`
	Agents []agents.Status `json:"agents"`
	Events []events.View   `json:"events"`
	Map    world.View      `json:"map"`
	Stats  Stats           `json:"stats"`
}

func (w *World) snapshotLocked(now time.Time) *Snapshot {
	s := &Snapshot{
		Tick:  w.clock.Tick(),
		Time:  now,
		Clock: clock.Format(w.clock.Start(), now),
		Map:   w.Map.View(),
		Stats: w.statsLocked(),
	}
	for _, a := range w.agents {
		s.Agents = append(s.Agents, a.Status())
	}
	for _, e := range w.live {
		s.Events = append(s.Events, w.opts.Registry.View(e, e.Remaining(now)))
	}
	return s
}

// Snapshot returns the latest published frame, building one if no step has run.
func (w *World) Snapshot() *Snapshot {
	if s := w.snap.Load(); s != nil {
		return s
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshotLocked(w.clock.Now())
}

func (w *World) publish(s *Snapshot) {
	w.snap.Store(s)

	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- s:
		default: // slow subscriber, drop the frame
		}
	}
}

// Subscribe returns a channel receiving every published snapshot and a
// function that ends the subscription and closes the channel.
func (w *World) Subscribe() (<-chan *Snapshot, func()) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	id := w.nextSub
	w.nextSub++
	ch := make(chan *Snapshot, subscriberBuffer)
	w.subs[id] = ch

	var once bool
	return ch, func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(w.subs, id)
		close(ch)
	}
}
