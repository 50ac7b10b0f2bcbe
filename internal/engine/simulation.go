// Simulation ties the map, the agents and the event log together and runs
// them one tick at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/world"
)

const (
	moveEventMinutes         = 1
	conversationEventMinutes = 5
	interactionEventMinutes  = 3
	activityEventMinutes     = 10
	archiveTimeout           = 5 * time.Second
)

// Options tunes a World. Zero values select defaults.
type Options struct {
	MaxLiveEvents       int           // default 100
	HistorySize         int           // default 1000
	StepTimeout         time.Duration // per agent, default 10s
	Concurrency         int           // agents stepped at once, default GOMAXPROCS
	InteractionRadius   float64       // default 2.0
	InteractionCooldown time.Duration // per pair, default 10m
	InteractionRate     float64       // base trigger probability, default 0.08

	Registry *events.Registry
	Rand     entropy.Source
	Recorder Recorder
	Sink     EventSink // receives events leaving the live set; optional
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		MaxLiveEvents:       100,
		HistorySize:         1000,
		StepTimeout:         10 * time.Second,
		Concurrency:         runtime.GOMAXPROCS(0),
		InteractionRadius:   2.0,
		InteractionCooldown: 10 * time.Minute,
		InteractionRate:     0.08,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxLiveEvents <= 0 {
		o.MaxLiveEvents = d.MaxLiveEvents
	}
	if o.HistorySize <= 0 {
		o.HistorySize = d.HistorySize
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = d.StepTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.InteractionRadius <= 0 {
		o.InteractionRadius = d.InteractionRadius
	}
	if o.InteractionCooldown <= 0 {
		o.InteractionCooldown = d.InteractionCooldown
	}
	if o.InteractionRate <= 0 {
		o.InteractionRate = d.InteractionRate
	}
	if o.Registry == nil {
		o.Registry = events.DefaultRegistry()
	}
	if o.Rand == nil {
		o.Rand = entropy.Crypto{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// EventSink durably keeps events once they leave the live set.
type EventSink interface {
	Archive(ctx context.Context, evs []events.Event) error
}

// Stats is the running tally of what the world has done.
type Stats struct {
	Ticks              uint64         `json:"ticks"`
	TotalInteractions  int            `json:"total_interactions"`
	TotalMovements     int            `json:"total_movements"`
	TotalConversations int            `json:"total_conversations"`
	DroppedActions     int            `json:"dropped_actions"`
	AgentErrors        int            `json:"agent_errors"`
	DegradedSteps      int            `json:"degraded_steps"`
	ActionCounts       map[string]int `json:"action_counts"`
	LiveEvents         int            `json:"live_events"`
	HistoryEvents      int            `json:"history_events"`
}

func (s Stats) clone() Stats {
	c := s
	c.ActionCounts = make(map[string]int, len(s.ActionCounts))
	for k, v := range s.ActionCounts {
		c.ActionCounts[k] = v
	}
	return c
}

type route struct {
	target world.Position
	steps  []world.Coord
}

// World owns the map, the agents, and the live event set.
// Only Step mutates them; everything else reads.
type World struct {
	Map   *world.Map
	clock *clock.Sim
	opts  Options

	stepMu sync.Mutex // serializes Step

	mu        sync.RWMutex
	agents    []*agents.Agent
	index     map[string]*agents.Agent
	inside    map[string]string // agent id -> building id
	routes    map[string]*route
	live      []events.Event
	history   []events.Event
	cooldowns map[[2]string]time.Time
	stats     Stats

	snap    atomic.Pointer[Snapshot]
	subMu   sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// NewWorld creates an empty world over m, driven by clk.
func NewWorld(m *world.Map, clk *clock.Sim, opts Options) *World {
	return &World{
		Map:       m,
		clock:     clk,
		opts:      opts.withDefaults(),
		index:     make(map[string]*agents.Agent),
		inside:    make(map[string]string),
		routes:    make(map[string]*route),
		cooldowns: make(map[[2]string]time.Time),
		stats:     Stats{ActionCounts: make(map[string]int)},
		subs:      make(map[int]chan *Snapshot),
	}
}

// AddAgent places an agent in the world. An agent standing inside a building
// joins its occupants when there is room.
func (w *World) AddAgent(a *agents.Agent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.index[a.ID]; dup {
		return fmt.Errorf("agent %q already in world", a.ID)
	}
	w.agents = append(w.agents, a)
	w.index[a.ID] = a

	c := a.Position().Tile()
	if t := w.Map.Tile(c.X, c.Y); t != nil && t.BuildingID != "" {
		if w.Map.AddAgentToBuilding(t.BuildingID, a.ID) {
			w.inside[a.ID] = t.BuildingID
		}
	}
	return nil
}

// Agent returns the agent with id, or nil.
func (w *World) Agent(id string) *agents.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.index[id]
}

// Agents returns the agents in insertion order.
func (w *World) Agents() []*agents.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*agents.Agent(nil), w.agents...)
}

// Clock returns the world's simulated clock.
func (w *World) Clock() *clock.Sim { return w.clock }

// Registry returns the event metadata registry.
func (w *World) Registry() *events.Registry { return w.opts.Registry }

// Step advances the world one tick and returns each agent's action result.
func (w *World) Step(ctx context.Context) map[string]agents.Result {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	started := time.Now()
	tick := w.clock.Advance()
	now := w.clock.Now()

	w.mu.Lock()
	w.stats.Ticks = tick
	w.expireLocked(ctx, now)
	roster := append([]*agents.Agent(nil), w.agents...)
	percepts := make([]agents.Perception, len(roster))
	locs := w.locationsLocked()
	for i, a := range roster {
		st := w.stateLocked(a, locs)
		percepts[i] = agents.Perception{Tick: tick, Nearby: st.Nearby, Events: st.Events}
	}
	w.mu.Unlock()

	results := w.runAgents(ctx, roster, percepts)

	w.mu.Lock()
	out := make(map[string]agents.Result, len(results))
	for _, r := range results {
		w.apply(ctx, r, now)
		out[r.AgentID] = r
	}
	w.resolveInteractionsLocked(ctx, now)
	snap := w.snapshotLocked(now)
	w.mu.Unlock()

	w.publish(snap)
	w.opts.Recorder.TickDone(time.Since(started), snap.Stats.LiveEvents)
	return out
}

// runAgents steps every agent concurrently and joins them before returning.
func (w *World) runAgents(ctx context.Context, roster []*agents.Agent, percepts []agents.Perception) []agents.Result {
	results := make([]agents.Result, len(roster))
	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for i, a := range roster {
		g.Go(func() error {
			results[i] = w.stepAgent(ctx, a, percepts[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type stepOutcome struct {
	turn agents.Turn
	err  error
}

// stepAgent isolates one agent: panics and errors become an error result.
// A step that overruns StepTimeout, or is still running from an earlier
// tick, is settled by the rule-based planner instead.
func (w *World) stepAgent(ctx context.Context, a *agents.Agent, p agents.Perception) agents.Result {
	if a.Busy() {
		return fallback(a, p, agents.ErrStepRunning)
	}
	sctx, cancel := context.WithTimeout(ctx, w.opts.StepTimeout)
	defer cancel()

	done := make(chan stepOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		turn, err := a.Step(sctx, p)
		done <- stepOutcome{turn: turn, err: err}
	}()

	var o stepOutcome
	select {
	case o = <-done:
	case <-sctx.Done():
		return fallback(a, p, fmt.Errorf("step timed out: %w", sctx.Err()))
	}
	if errors.Is(o.err, agents.ErrStepRunning) || (o.err != nil && sctx.Err() != nil) {
		return fallback(a, p, o.err)
	}
	if o.err == nil && o.turn.Action == nil {
		o.err = errors.New("step produced no action")
	}
	if o.err != nil {
		return agents.Result{AgentID: a.ID, Action: agents.Failure{Err: o.err.Error()}, Err: o.err}
	}
	return agents.Result{AgentID: a.ID, Action: o.turn.Action, Ongoing: !o.turn.Started}
}

func fallback(a *agents.Agent, p agents.Perception, cause error) agents.Result {
	turn := a.Fallback(p)
	return agents.Result{AgentID: a.ID, Action: turn.Action, Ongoing: !turn.Started, Degraded: cause.Error()}
}

// apply materializes one result. Callers hold w.mu.
func (w *World) apply(ctx context.Context, r agents.Result, now time.Time) {
	a := w.index[r.AgentID]
	if a == nil {
		return
	}
	if r.Err != nil {
		w.stats.AgentErrors++
		w.stats.ActionCounts[string(agents.KindError)]++
		w.opts.Recorder.AgentFailed()
		slog.Warn("agent step failed", "agent", a.ID, "error", r.Err)
		return
	}
	if r.Degraded != "" {
		w.stats.DegradedSteps++
		w.opts.Recorder.AgentFailed()
		slog.Warn("agent step fell back to rules", "agent", a.ID, "reason", r.Degraded)
	}

	fresh := !r.Ongoing
	switch act := r.Action.(type) {
	case agents.Move:
		w.applyMove(ctx, a, act, fresh, now)
	case agents.Talk:
		if fresh {
			w.applyTalk(ctx, a, act, now)
		}
	case agents.Work, agents.Socialize, agents.Generic:
		if fresh {
			w.applyActivity(ctx, a, act, now)
		}
	case agents.Failure:
		w.stats.AgentErrors++
		w.opts.Recorder.AgentFailed()
		slog.Warn("agent reported failure", "agent", a.ID, "error", act.Err)
	}
	if fresh {
		kind := string(r.Action.Kind())
		w.stats.ActionCounts[kind]++
		w.opts.Recorder.ActionApplied(kind)
	}
}

func (w *World) applyMove(ctx context.Context, a *agents.Agent, mv agents.Move, fresh bool, now time.Time) {
	pos := a.Position()
	rt := w.routes[a.ID]
	if fresh || rt == nil || rt.target != mv.Target {
		rt = w.plotRoute(pos, mv.Target)
		if rt == nil {
			delete(w.routes, a.ID)
			w.drop(a, agents.KindMove, "no path")
			a.Relocate(pos, agents.MoveBlocked)
			return
		}
		w.routes[a.ID] = rt
	}

	if len(rt.steps) == 0 {
		delete(w.routes, a.ID)
		if mv.Target.Area != "" {
			pos.Area = mv.Target.Area
		}
		a.Relocate(pos, agents.MoveArrived)
		return
	}

	next := rt.steps[0]
	if !w.enterLocked(a.ID, next) {
		delete(w.routes, a.ID)
		w.drop(a, agents.KindMove, "building full")
		a.Relocate(pos, agents.MoveBlocked)
		return
	}
	rt.steps = rt.steps[1:]

	to := world.Position{X: float64(next.X), Y: float64(next.Y), Area: pos.Area}
	outcome := agents.MoveProgress
	if len(rt.steps) == 0 {
		delete(w.routes, a.ID)
		outcome = agents.MoveArrived
		if mv.Target.Area != "" {
			to.Area = mv.Target.Area
		}
	}
	a.Relocate(to, outcome)
	w.stats.TotalMovements++

	fields := map[string]string{"agent_name": a.Name, "to_area": w.Map.AreaName(next.X, next.Y)}
	meta := mv.Fields()
	meta["from_x"] = fmt.Sprint(pos.X)
	meta["from_y"] = fmt.Sprint(pos.Y)
	w.emitLocked(ctx, events.New(now, events.TypeMovement, w.opts.Registry.Describe(events.TypeMovement, fields),
		to, []string{a.ID}, meta, moveEventMinutes))
}

// plotRoute finds the tiles between pos and target. Targets inside a building
// resolve to its entrance. It returns nil when no route exists.
func (w *World) plotRoute(pos, target world.Position) *route {
	goal := w.Map.Approach(target.Tile())
	path := w.Map.FindPath(pos.Tile(), goal)
	if len(path) == 0 {
		return nil
	}
	return &route{target: target, steps: path[1:]}
}

// enterLocked updates building membership for an agent stepping onto c.
// It reports false, with no change, when the building is full.
func (w *World) enterLocked(agentID string, c world.Coord) bool {
	var into string
	if t := w.Map.Tile(c.X, c.Y); t != nil {
		into = t.BuildingID
	}
	from := w.inside[agentID]
	if into == from {
		return true
	}
	if into != "" && !w.Map.AddAgentToBuilding(into, agentID) {
		return false
	}
	if from != "" {
		w.Map.RemoveAgentFromBuilding(from, agentID)
	}
	if into == "" {
		delete(w.inside, agentID)
	} else {
		w.inside[agentID] = into
	}
	return true
}

func (w *World) applyTalk(ctx context.Context, speaker *agents.Agent, t agents.Talk, now time.Time) {
	listener := w.index[t.TargetID]
	if listener == nil || listener == speaker {
		w.drop(speaker, agents.KindTalk, "unknown listener")
		return
	}
	from, to := speaker.Position(), listener.Position()
	if from.DistanceTo(to) > listener.ConversationRadius() {
		w.drop(speaker, agents.KindTalk, "out of range")
		return
	}

	listener.ReceiveMessage(speaker.ID, speaker.Name, t.Message)
	w.stats.TotalConversations++

	fields := map[string]string{"agent_name": speaker.Name, "target_name": listener.Name}
	meta := map[string]string{"speaker": speaker.ID, "listener": listener.ID, "message": t.Message}
	w.emitLocked(ctx, events.New(now, events.TypeConversation, w.opts.Registry.Describe(events.TypeConversation, fields),
		from, []string{speaker.ID, listener.ID}, meta, conversationEventMinutes))
}

func (w *World) applyActivity(ctx context.Context, a *agents.Agent, act agents.Action, now time.Time) {
	meta := act.Fields()
	meta[events.ClassKey] = events.TypeActivity

	fields := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		fields[k] = v
	}
	fields["agent_name"] = a.Name

	kind := string(act.Kind())
	w.emitLocked(ctx, events.New(now, kind, w.opts.Registry.Describe(kind, fields),
		a.Position(), []string{a.ID}, meta, activityEventMinutes))
}

func (w *World) drop(a *agents.Agent, kind agents.Kind, reason string) {
	w.stats.DroppedActions++
	w.opts.Recorder.ActionDropped(string(kind))
	slog.Debug("action dropped", "agent", a.ID, "kind", kind, "reason", reason)
}

// emitLocked adds a live event, retiring the oldest when over the cap.
func (w *World) emitLocked(ctx context.Context, e events.Event) {
	w.live = append(w.live, e)
	if over := len(w.live) - w.opts.MaxLiveEvents; over > 0 {
		oldest := append([]events.Event(nil), w.live[:over]...)
		w.live = append(w.live[:0:0], w.live[over:]...)
		w.retireLocked(ctx, oldest)
	}
}

// expireLocked moves finished events into history and forgets stale cooldowns.
func (w *World) expireLocked(ctx context.Context, now time.Time) {
	var keep, done []events.Event
	for _, e := range w.live {
		if e.Expired(now) {
			done = append(done, e)
		} else {
			keep = append(keep, e)
		}
	}
	w.live = keep
	w.retireLocked(ctx, done)

	for k, at := range w.cooldowns {
		if now.Sub(at) >= w.opts.InteractionCooldown {
			delete(w.cooldowns, k)
		}
	}
}

func (w *World) retireLocked(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	w.history = append(w.history, evs...)
	if over := len(w.history) - w.opts.HistorySize; over > 0 {
		w.history = append(w.history[:0:0], w.history[over:]...)
	}
	if w.opts.Sink == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := w.opts.Sink.Archive(actx, evs); err != nil {
		slog.Warn("archiving events failed", "events", len(evs), "error", err)
	}
}

// LiveEvents returns the events currently in the world.
func (w *World) LiveEvents() []events.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]events.Event(nil), w.live...)
}

// History returns up to limit retired events, newest last. limit <= 0 returns all.
func (w *World) History(limit int) []events.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h := w.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]events.Event(nil), h...)
}

// Stats returns a copy of the running tally.
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.statsLocked()
}

func (w *World) statsLocked() Stats {
	s := w.stats.clone()
	s.LiveEvents = len(w.live)
	s.HistoryEvents = len(w.history)
	return s
}
