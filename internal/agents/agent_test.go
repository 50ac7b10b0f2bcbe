package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

var morning = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestAgent(t *testing.T, cfg Config, d Decider) (*Agent, *clock.Sim) {
	t.Helper()
	sim := clock.NewSim(morning)
	a, err := NewAgent(cfg, Deps{Clock: sim, Rand: entropy.NewSeeded(3), Decider: d, DecideTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	return a, sim
}

func alice(t *testing.T, d Decider) (*Agent, *clock.Sim) {
	return newTestAgent(t, DefaultRoster()[0], d)
}

type fakeDecider struct {
	insights []string
	proposal Proposal
	err      error
	block    bool
}

func (f *fakeDecider) Reflect(ctx context.Context, _ Persona, _ []memory.Memory) ([]string, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.insights, f.err
}

func (f *fakeDecider) ProposeAction(ctx context.Context, _ Persona, _ Situation) (Proposal, error) {
	if f.block {
		<-ctx.Done()
		return Proposal{}, ctx.Err()
	}
	return f.proposal, f.err
}

func TestNewAgentRemembersItself(t *testing.T) {
	a, _ := alice(t, nil)
	recent := a.Memory().RecentMemories(1, 0)
	require.Len(t, recent, 1)
	assert.Equal(t, 9.0, recent[0].Importance)
	assert.Contains(t, recent[0].Description, "I am Alice, 28 years old.")

	_, err := NewAgent(Config{Name: "nobody"}, Deps{})
	assert.Error(t, err)
}

func TestStepStartsAndContinuesActions(t *testing.T) {
	a, sim := alice(t, nil)

	turn, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)
	require.NotNil(t, turn.Action)
	assert.True(t, turn.Started)
	assert.Equal(t, 99.0, a.Status().Energy)

	if turn.Action.Kind() == KindMove {
		a.Relocate(a.Position(), MoveProgress)
	}
	sim.Advance()
	again, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)
	assert.False(t, again.Started)
	assert.Equal(t, turn.Action.Kind(), again.Action.Kind())
}

func TestArrivalTriggersReplan(t *testing.T) {
	a, sim := newTestAgent(t, Config{ID: "x", Name: "X"}, &fakeDecider{proposal: Proposal{Type: "move", Target: "park"}})

	turn, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)
	require.Equal(t, KindMove, turn.Action.Kind())
	assert.Equal(t, StateMoving, a.State())

	dest := turn.Action.(Move).Target
	a.Relocate(dest, MoveArrived)
	assert.Equal(t, dest, a.Position())
	assert.Equal(t, StateIdle, a.State())

	sim.Advance()
	next, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)
	assert.True(t, next.Started)
}

func TestNonMoveActionsCompleteAfterTheirDuration(t *testing.T) {
	a, sim := newTestAgent(t, Config{ID: "x", Name: "X"}, &fakeDecider{proposal: Proposal{Type: "talk", Target: "bob", Message: "hi"}})
	bob := world.NearbyAgent{ID: "bob", Name: "Bob", X: 1, Y: 1}

	turn, err := a.Step(context.Background(), Perception{Nearby: []world.NearbyAgent{bob}})
	require.NoError(t, err)
	require.Equal(t, KindTalk, turn.Action.Kind())

	for i := 1; i < CompletionMinutes(KindTalk); i++ {
		sim.Advance()
		turn, err = a.Step(context.Background(), Perception{Nearby: []world.NearbyAgent{bob}})
		require.NoError(t, err)
		assert.False(t, turn.Started, "minute %d", i)
	}
	sim.Advance()
	turn, err = a.Step(context.Background(), Perception{Nearby: []world.NearbyAgent{bob}})
	require.NoError(t, err)
	assert.True(t, turn.Started)
}

func TestDeciderFailureFallsBackToPlanner(t *testing.T) {
	for name, d := range map[string]*fakeDecider{
		"error":   {err: errors.New("backend down")},
		"timeout": {block: true},
		"unknown": {proposal: Proposal{Type: "teleport"}},
	} {
		t.Run(name, func(t *testing.T) {
			a, _ := newTestAgent(t, Config{ID: "x", Name: "X"}, d)
			a.Restore(a.Position(), 15, 0)

			turn, err := a.Step(context.Background(), Perception{})
			require.NoError(t, err)
			assert.Equal(t, KindSleep, turn.Action.Kind())
		})
	}
}

func TestRoleHandlersSpecializeWork(t *testing.T) {
	h := buildHandlers(RoleFor("barista"))
	out := h[KindWork](Work{WorkType: "barista", Minutes: 45}, HandlerContext{})
	require.IsType(t, Generic{}, out)
	assert.Equal(t, Kind("coffee_making"), out.Kind())
	assert.Equal(t, 45, out.(Generic).Minutes)

	office := buildHandlers(RoleFor("office_worker"))
	w := Work{WorkType: "office_worker", Minutes: 45}
	assert.Equal(t, Kind("meeting_attendance"), office[KindWork](w, HandlerContext{Period: clock.Morning}).Kind())
	assert.Equal(t, w, office[KindWork](w, HandlerContext{Period: clock.Afternoon}))

	plain := buildHandlers(RoleFor("juggler"))
	assert.Equal(t, w, plain[KindWork](w, HandlerContext{}))
}

func TestPerceptionDeduplicatesAndRespectsRange(t *testing.T) {
	a, sim := newTestAgent(t, Config{ID: "x", Name: "X", Position: world.Position{X: 0, Y: 0}}, nil)
	base := a.Memory().Len()

	near := events.New(sim.Now(), events.TypeMovement, "Bob walks by", world.Position{X: 3, Y: 0}, []string{"bob"}, nil, 1)
	talk := events.New(sim.Now(), events.TypeConversation, "Bob chats with Carol", world.Position{X: 4, Y: 0}, []string{"bob", "carol"}, nil, 5)
	far := events.New(sim.Now(), "work", "Dana works", world.Position{X: 4.5, Y: 0}, []string{"dana"},
		map[string]string{events.ClassKey: events.TypeActivity}, 10)
	bob := world.NearbyAgent{ID: "bob", Name: "Bob", X: 3, Y: 0, Area: "park", Distance: 3}

	p := Perception{Nearby: []world.NearbyAgent{bob}, Events: []events.Event{near, talk, far}}
	_, err := a.Step(context.Background(), p)
	require.NoError(t, err)
	// bob sighting plus the movement event; conversation reaches 3.0 and activity 4.0
	assert.Equal(t, base+2, a.Memory().Len())

	sim.Advance()
	_, err = a.Step(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, base+2, a.Memory().Len())
}

func TestReflectionResetsAccumulator(t *testing.T) {
	a, sim := alice(t, nil)
	for i := 0; i < 16; i++ {
		a.Memory().AddObservation(memory.Observation{
			Timestamp:   sim.Now(),
			ObserverID:  a.ID,
			EventType:   "customer_greeting",
			Description: fmt.Sprintf("A customer asked about the coffee %d", i),
			Importance:  10,
		})
	}
	require.True(t, a.Memory().ShouldReflect())

	_, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)

	assert.False(t, a.Memory().ShouldReflect())
	assert.Zero(t, a.Memory().ImportanceSum())
	_, refl := a.Memory().Counts()
	assert.GreaterOrEqual(t, refl, 1)

	found := false
	for _, m := range a.Memory().RecentMemories(1, 0) {
		if m.Kind == memory.KindReflection && m.Description == roles["barista"].Insights[0].Text {
			found = true
		}
	}
	assert.True(t, found, "barista coffee insight")
}

func TestReflectionPrefersDecider(t *testing.T) {
	a, sim := alice(t, &fakeDecider{insights: []string{"The regulars seem tired this week."}, err: nil, proposal: Proposal{Type: "socialize"}})
	for i := 0; i < 16; i++ {
		a.Memory().AddObservation(memory.Observation{Timestamp: sim.Now(), Description: "coffee customer", Importance: 10})
	}
	_, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)

	var texts []string
	for _, m := range a.Memory().RecentMemories(1, 0) {
		if m.Kind == memory.KindReflection {
			texts = append(texts, m.Description)
		}
	}
	assert.Equal(t, []string{"The regulars seem tired this week."}, texts)
}

func TestReceiveMessage(t *testing.T) {
	a, sim := alice(t, nil)
	sim.Advance()
	a.ReceiveMessage("bob", "Bob", "Good morning!")

	recent := a.Memory().RecentMemories(1, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, "received_message", recent[0].EventType)
	assert.Equal(t, 4.0, recent[0].Importance)
	assert.Contains(t, recent[0].Description, "Good morning!")
}

func TestInternalStateUpdate(t *testing.T) {
	a, _ := alice(t, nil)

	a.state, a.energy, a.mood = StateSleeping, 98, 0.99
	a.updateInternalLocked()
	assert.Equal(t, 100.0, a.energy)
	assert.Equal(t, 1.0, a.mood)

	a.state, a.energy, a.mood = StateWorking, 2, -0.95
	a.updateInternalLocked()
	assert.Equal(t, 0.0, a.energy)
	assert.Equal(t, -1.0, a.mood)

	a.state, a.energy, a.mood = StateIdle, 50, 0.2
	a.updateInternalLocked()
	assert.Equal(t, 49.0, a.energy)
	assert.Equal(t, 0.2, a.mood)
}

func TestStatusIsIdempotent(t *testing.T) {
	a, _ := alice(t, nil)
	_, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)

	first := a.Status()
	assert.Equal(t, first, a.Status())
	assert.Equal(t, "barista", first.Role)
	assert.Equal(t, 0.8, first.Personality.Extraversion)
}

func TestSpawnerResidents(t *testing.T) {
	m, err := world.GenerateTown(world.DefaultGenConfig())
	require.NoError(t, err)

	roster := DefaultRoster()
	a := NewSpawner(42, m).Residents(8, roster)
	b := NewSpawner(42, m).Residents(8, roster)
	require.Len(t, a, 8)
	assert.Equal(t, a, b, "same seed, same town")
	assert.Equal(t, "alice", a[0].ID)

	ids := map[string]bool{}
	for _, c := range a {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.GreaterOrEqual(t, c.Age, 18)
		assert.LessOrEqual(t, c.Age, 70)
	}

	assert.Len(t, NewSpawner(1, m).Residents(2, roster), 2)
}

func TestPlanningRetrievesContextMemories(t *testing.T) {
	a, _ := alice(t, nil)

	_, err := a.Step(context.Background(), Perception{})
	require.NoError(t, err)

	accessed := 0
	for _, m := range a.Memory().RecentMemories(1, 0) {
		accessed += m.AccessCount
	}
	assert.Positive(t, accessed)
}

func TestCancelledStepCommitsNothing(t *testing.T) {
	a, _ := alice(t, &fakeDecider{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Step(ctx, Perception{})
	require.ErrorIs(t, err, context.Canceled)

	st := a.Status()
	assert.Empty(t, st.CurrentAction)
	assert.Equal(t, 100.0, st.Energy)
	assert.False(t, a.Busy())
}

type gateDecider struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateDecider) Reflect(context.Context, Persona, []memory.Memory) ([]string, error) {
	return nil, nil
}

func (g *gateDecider) ProposeAction(context.Context, Persona, Situation) (Proposal, error) {
	close(g.entered)
	<-g.release
	return Proposal{}, errors.New("no idea")
}

func TestStepRejectsOverlap(t *testing.T) {
	g := &gateDecider{entered: make(chan struct{}), release: make(chan struct{})}
	a, _ := alice(t, g)

	done := make(chan error, 1)
	go func() {
		_, err := a.Step(context.Background(), Perception{})
		done <- err
	}()
	<-g.entered

	assert.True(t, a.Busy())
	_, err := a.Step(context.Background(), Perception{})
	assert.ErrorIs(t, err, ErrStepRunning)

	close(g.release)
	require.NoError(t, <-done)
	assert.False(t, a.Busy())
}

func TestFallbackPlansOncePerTick(t *testing.T) {
	a, sim := alice(t, &fakeDecider{block: true})

	turn := a.Fallback(Perception{})
	require.NotNil(t, turn.Action)
	assert.True(t, turn.Started)
	assert.Equal(t, 99.0, a.Status().Energy)

	again := a.Fallback(Perception{})
	assert.Equal(t, turn.Action, again.Action)
	assert.True(t, again.Started)
	assert.Equal(t, 99.0, a.Status().Energy)

	if turn.Action.Kind() == KindMove {
		a.Relocate(a.Position(), MoveProgress)
	}
	sim.Advance()
	next := a.Fallback(Perception{})
	assert.False(t, next.Started)
	assert.Equal(t, turn.Action.Kind(), next.Action.Kind())
}
