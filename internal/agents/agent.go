package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

const (
	DefaultPerceptionRadius   = 5.0
	DefaultConversationRadius = 2.0
	DefaultDecideTimeout      = 5 * time.Second

	selfImportance    = 9
	nearbyImportance  = 2
	messageImportance = 4
	replanImportance  = 7
	reflectionWindow  = 50
	contextMemories   = 10
)

// ErrStepRunning is returned by Step while an earlier Step is still in flight.
var ErrStepRunning = errors.New("previous step still running")

// Personality holds Big Five scalars in [0, 1].
type Personality struct {
	Openness          float64 `json:"openness" yaml:"openness"`
	Conscientiousness float64 `json:"conscientiousness" yaml:"conscientiousness"`
	Extraversion      float64 `json:"extraversion" yaml:"extraversion"`
	Agreeableness     float64 `json:"agreeableness" yaml:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism" yaml:"neuroticism"`
}

// NeutralPersonality is the midpoint on every trait.
func NeutralPersonality() Personality {
	return Personality{0.5, 0.5, 0.5, 0.5, 0.5}
}

// Config describes one resident.
type Config struct {
	ID                 string         `yaml:"id"`
	Name               string         `yaml:"name"`
	Age                int            `yaml:"age"`
	Occupation         string         `yaml:"occupation"`
	Role               string         `yaml:"role"`
	Background         string         `yaml:"background"`
	Personality        Personality    `yaml:"personality"`
	Position           world.Position `yaml:"position"`
	HomeID             string         `yaml:"home"`
	WorkID             string         `yaml:"work"`
	PerceptionRadius   float64        `yaml:"perception_radius"`
	ConversationRadius float64        `yaml:"conversation_radius"`
}

// Deps are the collaborators shared by every agent.
type Deps struct {
	Clock         clock.Clock
	Registry      *events.Registry
	Rand          entropy.Source
	Map           *world.Map
	Decider       Decider // optional
	DecideTimeout time.Duration
	Memory        memory.Options
}

// Perception is the read-only world snapshot an agent steps against.
type Perception struct {
	Tick   uint64
	Nearby []world.NearbyAgent
	Events []events.Event
}

// Turn is an agent's output for one tick.
type Turn struct {
	Action Action
	// Started is set on the first tick of Action. Non-move actions only
	// produce world events when they start.
	Started bool
}

// MoveOutcome is the world's answer to one tick of a Move.
type MoveOutcome int

const (
	MoveProgress MoveOutcome = iota
	MoveArrived
	MoveBlocked
)

// Agent runs the perceive, remember, reflect, plan, act, update cycle.
type Agent struct {
	ID          string
	Name        string
	Age         int
	Occupation  string
	Background  string
	Personality Personality

	perceptionRadius   float64
	conversationRadius float64

	role     Role
	handlers map[Kind]Handler
	memory   *memory.Stream
	planner  *Planner
	deps     Deps
	stepping atomic.Bool

	mu          sync.RWMutex
	position    world.Position
	state       State
	energy      float64
	mood        float64
	current     Action
	started     time.Time
	moveDone    bool
	lastPlanned time.Time
	lastStep    time.Time
	seenEvents  map[string]struct{}
	seenAgents  map[string]struct{}
}

// NewAgent constructs an agent and records its self-introduction memory.
func NewAgent(cfg Config, deps Deps) (*Agent, error) {
	if cfg.ID == "" || cfg.Name == "" {
		return nil, errors.New("agent needs an id and a name")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Func(time.Now)
	}
	if deps.Registry == nil {
		deps.Registry = events.DefaultRegistry()
	}
	if deps.Rand == nil {
		deps.Rand = entropy.Crypto{}
	}
	if deps.DecideTimeout <= 0 {
		deps.DecideTimeout = DefaultDecideTimeout
	}
	if cfg.PerceptionRadius <= 0 {
		cfg.PerceptionRadius = DefaultPerceptionRadius
	}
	if cfg.ConversationRadius <= 0 {
		cfg.ConversationRadius = DefaultConversationRadius
	}
	if cfg.Personality == (Personality{}) {
		cfg.Personality = NeutralPersonality()
	}
	if cfg.Occupation == "" {
		cfg.Occupation = "resident"
	}

	role := RoleFor(cfg.Role)
	memOpts := deps.Memory
	memOpts.Clock = deps.Clock

	a := &Agent{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Age:                cfg.Age,
		Occupation:         cfg.Occupation,
		Background:         cfg.Background,
		Personality:        cfg.Personality,
		perceptionRadius:   cfg.PerceptionRadius,
		conversationRadius: cfg.ConversationRadius,
		role:               role,
		handlers:           buildHandlers(role),
		memory:             memory.NewStream(cfg.ID, memOpts),
		planner: NewPlanner(PlannerConfig{
			Occupation: cfg.Occupation,
			Landmarks:  LandmarksFor(deps.Map, cfg.HomeID, cfg.WorkID, role.WorkArea),
			Clock:      deps.Clock,
			Rand:       deps.Rand,
		}),
		deps:       deps,
		position:   cfg.Position,
		state:      StateIdle,
		energy:     100,
		seenEvents: make(map[string]struct{}),
		seenAgents: make(map[string]struct{}),
	}

	a.memory.AddObservation(memory.Observation{
		Timestamp:   deps.Clock.Now(),
		ObserverID:  a.ID,
		EventType:   "self_reflection",
		Description: fmt.Sprintf("I am %s, %d years old. %s", a.Name, a.Age, a.Background),
		Location:    a.position,
		Importance:  selfImportance,
	})
	return a, nil
}

// Memory exposes the agent's memory stream.
func (a *Agent) Memory() *memory.Stream { return a.memory }

// Planner exposes the agent's planner.
func (a *Agent) Planner() *Planner { return a.planner }

// PerceptionRadius is the distance within which the agent senses others.
func (a *Agent) PerceptionRadius() float64 { return a.perceptionRadius }

// ConversationRadius is the distance within which the agent can be spoken to.
func (a *Agent) ConversationRadius() float64 { return a.conversationRadius }

// Position returns the agent's current position.
func (a *Agent) Position() world.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.position
}

// State returns what the agent is doing.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Step runs one cognitive cycle. It touches only the agent's own state.
// If ctx ends before the cycle commits, the decision is discarded and the
// agent is left as it was.
func (a *Agent) Step(ctx context.Context, p Perception) (Turn, error) {
	if !a.stepping.CompareAndSwap(false, true) {
		return Turn{}, ErrStepRunning
	}
	defer a.stepping.Store(false)

	now := a.deps.Clock.Now()

	a.perceive(p, now)

	if a.memory.ShouldReflect() {
		a.reflect(ctx)
	}

	var next Action
	if a.needsReplan(now) {
		next = a.decide(ctx, p, now)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Turn{}, fmt.Errorf("step abandoned: %w", err)
	}
	return a.commitLocked(next, now), nil
}

// Busy reports whether a Step is still in flight.
func (a *Agent) Busy() bool { return a.stepping.Load() }

// Fallback settles the current tick with the rule-based planner alone, for
// a Step that did not finish in time. It neither perceives nor consults the
// Decider. A tick that already committed is returned unchanged.
func (a *Agent) Fallback(p Perception) Turn {
	now := a.deps.Clock.Now()

	var next Action
	if a.needsReplan(now) {
		next = a.handle(a.planner.PlanNextAction(a.situation(p)), now)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.lastStep.IsZero() && a.lastStep.Equal(now) {
		return Turn{Action: a.current, Started: a.lastPlanned.Equal(now)}
	}
	return a.commitLocked(next, now)
}

// commitLocked installs next, when set, as the current action and ages the
// agent by one tick.
func (a *Agent) commitLocked(next Action, now time.Time) Turn {
	turn := Turn{}
	if next != nil {
		a.current = next
		a.started = now
		a.moveDone = false
		a.lastPlanned = now
		a.state = StateFor(next)
		turn.Started = true
	}
	turn.Action = a.current
	a.lastStep = now
	a.updateInternalLocked()
	return turn
}

func (a *Agent) perceive(p Perception, now time.Time) {
	pos := a.Position()

	seenAgents := make(map[string]struct{}, len(p.Nearby))
	for _, n := range p.Nearby {
		if n.ID == a.ID {
			continue
		}
		seenAgents[n.ID] = struct{}{}
		if _, ok := a.seenAgents[n.ID]; ok {
			continue
		}
		a.memory.AddObservation(memory.Observation{
			Timestamp:    now,
			ObserverID:   a.ID,
			EventType:    "agent_nearby",
			Description:  fmt.Sprintf("I see %s at %s", n.Name, n.Area),
			Location:     n.Position(),
			Participants: []string{n.ID},
			Importance:   nearbyImportance,
		})
	}
	a.seenAgents = seenAgents

	seenEvents := make(map[string]struct{}, len(p.Events))
	for _, e := range p.Events {
		if pos.DistanceTo(e.Location) > a.rangeFor(e) {
			continue
		}
		seenEvents[e.ID] = struct{}{}
		if _, ok := a.seenEvents[e.ID]; ok {
			continue
		}
		a.memory.AddObservation(memory.Observation{
			Timestamp:    e.Timestamp,
			ObserverID:   a.ID,
			EventType:    e.Type,
			Description:  e.Description,
			Location:     e.Location,
			Participants: e.Participants,
			Importance:   a.deps.Registry.Importance(e.Type),
			Metadata:     e.Metadata,
		})
	}
	a.seenEvents = seenEvents
}

// rangeFor is how far away an event can be noticed.
func (a *Agent) rangeFor(e events.Event) float64 {
	switch {
	case e.Type == events.TypeConversation:
		return a.conversationRadius * 1.5
	case e.Type == events.TypeMovement:
		return a.perceptionRadius
	case e.Type == events.TypeActivity || e.Metadata[events.ClassKey] == events.TypeActivity:
		return a.perceptionRadius * 0.8
	default:
		return a.perceptionRadius
	}
}

// reflect stores insights from the Decider or, failing that, the role rules,
// then resets the importance accumulator.
func (a *Agent) reflect(ctx context.Context) {
	recent := a.memory.RecentMemories(24*365, reflectionWindow)

	var insights []string
	if a.deps.Decider != nil {
		dctx, cancel := context.WithTimeout(ctx, a.deps.DecideTimeout)
		out, err := a.deps.Decider.Reflect(dctx, a.persona(), recent)
		cancel()
		if err != nil {
			slog.Debug("reflection fell back to rules", "agent", a.ID, "error", err)
		} else {
			insights = out
		}
	}
	if len(insights) == 0 {
		insights = insightsFor(a.role, recent)
	}
	for _, text := range insights {
		a.memory.AddReflection(text, memory.DefaultReflectionImportance)
	}
	a.memory.ResetImportanceSum()
	if len(insights) > 0 {
		slog.Debug("agent reflected", "agent", a.ID, "insights", len(insights))
	}
}

func (a *Agent) needsReplan(now time.Time) bool {
	a.mu.RLock()
	current, started, moveDone, last := a.current, a.started, a.moveDone, a.lastPlanned
	a.mu.RUnlock()

	if current == nil {
		return true
	}
	if current.Kind() == KindMove {
		if moveDone {
			return true
		}
	} else if now.Sub(started) >= time.Duration(CompletionMinutes(current.Kind()))*time.Minute {
		return true
	}
	for _, m := range a.memory.ByImportance(replanImportance, 1) {
		if m.Timestamp.After(last) {
			return true
		}
	}
	return false
}

func (a *Agent) decide(ctx context.Context, p Perception, now time.Time) Action {
	s := a.situation(p)

	var next Action
	if a.deps.Decider != nil {
		dctx, cancel := context.WithTimeout(ctx, a.deps.DecideTimeout)
		prop, err := a.deps.Decider.ProposeAction(dctx, a.persona(), s)
		cancel()
		if err == nil {
			next, err = ProposalAction(prop, s, a.planner.Landmarks(), a.deps.Registry)
		}
		if err != nil {
			slog.Debug("proposal rejected, planning by rules", "agent", a.ID, "error", err)
			next = nil
		}
	}
	if next == nil {
		next = a.planner.PlanNextAction(s)
	}
	return a.handle(next, now)
}

// handle passes next through the role's handler for its kind, if any.
func (a *Agent) handle(next Action, now time.Time) Action {
	handler, ok := a.handlers[next.Kind()]
	if !ok {
		return next
	}
	return handler(next, HandlerContext{Position: a.Position(), Period: clock.PeriodOf(now)})
}

func (a *Agent) situation(p Perception) Situation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	nearby := make([]world.NearbyAgent, 0, len(p.Nearby))
	for _, n := range p.Nearby {
		if n.ID != a.ID {
			nearby = append(nearby, n)
		}
	}
	return Situation{
		Energy:   a.energy,
		Area:     a.position.Area,
		Nearby:   nearby,
		Memories: a.memory.RetrieveRelevant("What should "+a.Name+" do now?", contextMemories),
		State:    a.state,
	}
}

func (a *Agent) updateInternalLocked() {
	a.energy--
	switch a.state {
	case StateSleeping:
		a.energy += 5
	case StateWorking:
		a.energy -= 2
	}
	a.energy = clamp(a.energy, 0, 100)

	switch {
	case a.energy < 20:
		a.mood -= 0.1
	case a.energy > 80:
		a.mood += 0.05
	}
	a.mood = clamp(a.mood, -1, 1)
}

func (a *Agent) persona() Persona {
	a.mu.RLock()
	defer a.mu.RUnlock()
	now := a.deps.Clock.Now()
	return Persona{
		ID:          a.ID,
		Name:        a.Name,
		Age:         a.Age,
		Occupation:  a.Occupation,
		Background:  a.Background,
		Personality: a.Personality,
		Energy:      a.energy,
		Mood:        a.mood,
		Position:    a.position,
		Time:        now,
		Period:      clock.PeriodOf(now),
	}
}

// Relocate applies one tick of movement decided by the world.
func (a *Agent) Relocate(pos world.Position, outcome MoveOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = pos
	if outcome != MoveProgress {
		a.moveDone = true
		a.state = StateIdle
	}
}

// ReceiveMessage records a message delivered by the world.
func (a *Agent) ReceiveMessage(fromID, fromName, message string) {
	a.memory.AddObservation(memory.Observation{
		Timestamp:    a.deps.Clock.Now(),
		ObserverID:   a.ID,
		EventType:    "received_message",
		Description:  fmt.Sprintf("%s said to me: %s", fromName, message),
		Location:     a.Position(),
		Participants: []string{fromID, a.ID},
		Importance:   messageImportance,
		Metadata:     map[string]string{"sender": fromID},
	})
}

// Restore sets the mutable state loaded from a saved run.
func (a *Agent) Restore(pos world.Position, energy, mood float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = pos
	a.energy = clamp(energy, 0, 100)
	a.mood = clamp(mood, -1, 1)
}

// Status is a point-in-time view of an agent.
type Status struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Age           int            `json:"age"`
	Occupation    string         `json:"occupation"`
	Role          string         `json:"role"`
	Position      world.Position `json:"position"`
	State         State          `json:"state"`
	Energy        float64        `json:"energy"`
	Mood          float64        `json:"mood"`
	CurrentAction string         `json:"current_action,omitempty"`
	ActionKind    Kind           `json:"action_kind,omitempty"`
	Personality   Personality    `json:"personality"`
	Memories      int            `json:"memory_count"`
	Reflections   int            `json:"reflection_count"`
	ActiveGoals   []Goal         `json:"active_goals"`
}

// Status returns the agent's current status. It has no side effects.
func (a *Agent) Status() Status {
	_, refl := a.memory.Counts()
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := Status{
		ID:          a.ID,
		Name:        a.Name,
		Age:         a.Age,
		Occupation:  a.Occupation,
		Role:        a.role.Name,
		Position:    a.position,
		State:       a.state,
		Energy:      a.energy,
		Mood:        a.mood,
		Personality: a.Personality,
		Memories:    a.memory.Len(),
		Reflections: refl,
		ActiveGoals: a.planner.ActiveGoals(),
	}
	if a.current != nil {
		st.CurrentAction = a.current.Describe()
		st.ActionKind = a.current.Kind()
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
