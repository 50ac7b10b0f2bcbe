package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "town.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleMemory(id string, at time.Time) memory.Memory {
	return memory.Memory{
		ID:           id,
		Kind:         memory.KindObservation,
		Timestamp:    at,
		ObserverID:   "alice",
		EventType:    events.TypeConversation,
		Description:  "Bob said to me: good morning",
		Location:     world.Position{X: 20, Y: 20, Area: "coffee_shop"},
		Participants: []string{"alice", "bob"},
		Importance:   4,
		Metadata:     map[string]string{"speaker": "bob"},
		Keywords:     memory.Keywords("Bob said to me: good morning"),
		AccessCount:  2,
		LastAccessed: at.Add(time.Minute),
	}
}

// assertSameMemory compares field by field; times compare by instant.
func assertSameMemory(t *testing.T, want, got memory.Memory) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", want.Timestamp, got.Timestamp)
	assert.True(t, want.LastAccessed.Equal(got.LastAccessed))
	assert.Equal(t, want.ObserverID, got.ObserverID)
	assert.Equal(t, want.EventType, got.EventType)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Location, got.Location)
	assert.Equal(t, want.Participants, got.Participants)
	assert.Equal(t, want.Importance, got.Importance)
	assert.Equal(t, want.Metadata, got.Metadata)
	assert.Equal(t, want.Keywords, got.Keywords)
	assert.Equal(t, want.AccessCount, got.AccessCount)
}

func TestDBMemoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	later := sampleMemory("alice_obs_1", t0.Add(time.Hour))
	first := sampleMemory("alice_obs_0", t0)
	require.NoError(t, db.SaveMemory(ctx, "alice", later))
	require.NoError(t, db.SaveMemory(ctx, "alice", first))
	require.NoError(t, db.SaveMemory(ctx, "bob", sampleMemory("bob_obs_0", t0)))

	got, err := db.LoadMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assertSameMemory(t, first, got[0])
	assertSameMemory(t, later, got[1])

	// Upsert keeps one row.
	first.AccessCount = 9
	require.NoError(t, db.SaveMemory(ctx, "alice", first))
	got, err = db.LoadMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 9, got[0].AccessCount)

	require.NoError(t, db.DeleteMemory(ctx, "alice", "alice_obs_0"))
	require.NoError(t, db.DeleteMemory(ctx, "alice", "missing"))
	got, err = db.LoadMemories(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice_obs_1", got[0].ID)
}

func TestDBHydratesStream(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clk := clock.NewSim(t0)

	s := memory.NewStream("alice", memory.Options{Clock: clk, Store: db})
	s.AddObservation(memory.Observation{Timestamp: t0, ObserverID: "alice", Description: "I opened the coffee shop", Importance: 3})
	s.AddReflection("Mornings are busy.", 0)

	restored := memory.NewStream("alice", memory.Options{Clock: clk, Store: db})
	require.NoError(t, restored.Hydrate(ctx))
	obs, refl := restored.Counts()
	assert.Equal(t, 1, obs)
	assert.Equal(t, 1, refl)

	// New ids continue after the hydrated ones.
	id := restored.AddObservation(memory.Observation{Timestamp: t0, ObserverID: "alice", Description: "Bob arrived", Importance: 2})
	assert.Equal(t, "alice_obs_1", id)
}

func TestDBAgentsAndMeta(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tick, err := db.LastTick()
	require.NoError(t, err)
	assert.Zero(t, tick)

	snap := &engine.Snapshot{
		Tick: 42,
		Time: t0.Add(42 * time.Minute),
		Agents: []agents.Status{{
			ID:       "alice",
			Name:     "Alice",
			Position: world.Position{X: 20, Y: 20, Area: "coffee_shop"},
			State:    agents.StateWorking,
			Energy:   71.5,
			Mood:     0.3,
		}},
	}
	require.NoError(t, db.SaveWorldState(ctx, snap))

	tick, err = db.LastTick()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), tick)

	recs, err := db.LoadAgents(ctx)
	require.NoError(t, err)
	require.Contains(t, recs, "alice")
	assert.Equal(t, world.Position{X: 20, Y: 20, Area: "coffee_shop"}, recs["alice"].Position())
	assert.Equal(t, 71.5, recs["alice"].Energy)
	assert.Equal(t, "working", recs["alice"].State)

	v, err := db.GetMeta("missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestDBArchiveEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e1 := events.New(t0, events.TypeMovement, "Alice moved to park", world.Position{X: 45, Y: 45, Area: "park"}, []string{"alice"}, map[string]string{"to_area": "park"}, 1)
	e2 := events.New(t0.Add(time.Minute), events.TypeActivity, "Bob is reading", world.Position{}, []string{"bob"}, nil, 0)
	require.NoError(t, db.Archive(ctx, []events.Event{e1, e2}))
	require.NoError(t, db.Archive(ctx, nil))

	got, err := db.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, e2.ID, got[0].ID)
	assert.Nil(t, got[0].Duration)
	assert.Equal(t, e1.ID, got[1].ID)
	require.NotNil(t, got[1].Duration)
	assert.Equal(t, 1, *got[1].Duration)
	assert.Equal(t, "park", got[1].Metadata["to_area"])
	assert.Equal(t, e1.Location, got[1].Location)

	got, err = db.RecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
