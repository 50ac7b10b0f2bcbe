package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/talgya/ai-town/internal/clock"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func obsAt(ts time.Time, desc string, importance float64) Observation {
	return Observation{Timestamp: ts, ObserverID: "alice", EventType: "test", Description: desc, Importance: importance}
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"coffee", "hello", "shop", "world"}, Keywords("Hello, World! I am at the coffee shop. Coffee!"))
	assert.Empty(t, Keywords("I am at the"))
	assert.Equal(t, []string{"café", "naïve"}, Keywords("naïve café"))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard(nil, []string{"a"}))
	assert.Equal(t, 1.0, Jaccard([]string{"a", "b"}, []string{"a", "b"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-12)
}

func TestScoreDecreasesWithAge(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h1 := rapid.Float64Range(0, 2000).Draw(rt, "h1")
		h2 := rapid.Float64Range(0, 2000).Draw(rt, "h2")
		if h1 > h2 {
			h1, h2 = h2, h1
		}
		importance := rapid.Float64Range(0, 10).Draw(rt, "importance")
		kw := Keywords("morning coffee with friends")
		query := Keywords("coffee")
		now := epoch.Add(3000 * time.Hour)

		m1 := &Memory{Timestamp: now.Add(-time.Duration(h1 * float64(time.Hour))), Importance: importance, Keywords: kw}
		m2 := &Memory{Timestamp: now.Add(-time.Duration(h2 * float64(time.Hour))), Importance: importance, Keywords: kw}
		assert.GreaterOrEqual(rt, Score(m1, query, now), Score(m2, query, now))
	})
}

func TestScoreComponents(t *testing.T) {
	m := &Memory{Timestamp: epoch, Importance: 5, Keywords: []string{"coffee", "shop"}}
	got := Score(m, []string{"coffee"}, epoch.Add(24*time.Hour))
	assert.InDelta(t, 0.36787944+0.5+0.5, got, 1e-6)
}

func TestRetrieveRelevantRespectsLimit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clk := &fixedClock{t: epoch.Add(48 * time.Hour)}
		s := NewStream("alice", Options{Clock: clk})
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		for i := 0; i < n; i++ {
			age := rapid.IntRange(0, 72).Draw(rt, "age")
			imp := rapid.Float64Range(0, 10).Draw(rt, "imp")
			s.AddObservation(obsAt(clk.t.Add(-time.Duration(age)*time.Hour), fmt.Sprintf("event number %d near the park", i), imp))
		}
		limit := rapid.IntRange(0, 40).Draw(rt, "limit")

		got := s.RetrieveRelevant("park", limit)
		assert.LessOrEqual(rt, len(got), limit)
		qk := Keywords("park")
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(rt, Score(&got[i-1], qk, clk.t), Score(&got[i], qk, clk.t))
		}
	})
}

func TestRetrieveRelevantUpdatesAccess(t *testing.T) {
	clk := &fixedClock{t: epoch}
	s := NewStream("alice", Options{Clock: clk})
	s.AddObservation(obsAt(epoch, "Talked with Bob about books", 5))
	s.AddObservation(obsAt(epoch, "Brewed coffee", 1))

	clk.t = epoch.Add(time.Hour)
	got := s.RetrieveRelevant("books with Bob", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "alice_obs_0", got[0].ID)
	assert.Equal(t, 1, got[0].AccessCount)
	assert.Equal(t, clk.t, got[0].LastAccessed)

	again := s.RetrieveRelevant("books", 5)
	require.Len(t, again, 2)
	assert.Equal(t, 2, again[0].AccessCount)
	assert.Equal(t, 1, again[1].AccessCount)
}

func TestStoredMetadataIsDetachedFromCaller(t *testing.T) {
	s := NewStream("alice", Options{Clock: &fixedClock{t: epoch}})
	obs := obsAt(epoch, "Bob sold bread", 3)
	obs.Metadata = map[string]string{"item": "bread"}
	s.AddObservation(obs)

	obs.Metadata["item"] = "cake"
	obs.Metadata["extra"] = "x"

	got := s.RecentMemories(1, 0)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]string{"item": "bread"}, got[0].Metadata)
}

func TestRetrieveRelevantSkipsZeroScore(t *testing.T) {
	now := epoch.Add(3 * 365 * 24 * time.Hour)
	s := NewStream("alice", Options{Clock: &fixedClock{t: now}})
	s.AddObservation(obsAt(epoch, "ancient unrelated trivia", 0))

	assert.Empty(t, s.RetrieveRelevant("zebra", 10))
	assert.Len(t, s.RetrieveRelevant("ancient", 10), 1)
}

func TestReflectionThreshold(t *testing.T) {
	s := NewStream("alice", Options{Clock: &fixedClock{t: epoch}})
	assert.False(t, s.ShouldReflect())

	s.AddObservation(obsAt(epoch, "big news", 80))
	assert.False(t, s.ShouldReflect())
	s.AddObservation(obsAt(epoch, "bigger news", 80))
	assert.True(t, s.ShouldReflect())
	s.AddObservation(obsAt(epoch, "more", 1))
	assert.True(t, s.ShouldReflect())

	s.ResetImportanceSum()
	assert.False(t, s.ShouldReflect())
	assert.Zero(t, s.ImportanceSum())
}

func TestAddReflection(t *testing.T) {
	s := NewStream("bob", Options{Clock: &fixedClock{t: epoch}})
	id := s.AddReflection("I enjoy the library in the morning", 0)
	assert.Equal(t, "bob_refl_0", id)
	assert.Equal(t, "bob_refl_1", s.AddReflection("Second thought", 9.5))

	obs, refl := s.Counts()
	assert.Equal(t, 0, obs)
	assert.Equal(t, 2, refl)
	assert.Equal(t, DefaultReflectionImportance+9.5, s.ImportanceSum())

	got := s.ByImportance(9, 1)
	require.Len(t, got, 1)
	assert.Equal(t, KindReflection, got[0].Kind)
	assert.Equal(t, "reflection", got[0].Metadata["type"])
}

func TestRecentMemoriesAndImportanceWindow(t *testing.T) {
	clk := clock.NewSim(epoch)
	s := NewStream("alice", Options{Clock: clk})
	s.AddObservation(obsAt(epoch.Add(-30*time.Hour), "old", 9))
	s.AddObservation(obsAt(epoch.Add(-2*time.Hour), "recent low", 2))
	s.AddObservation(obsAt(epoch.Add(-1*time.Hour), "recent high", 7))

	recent := s.RecentMemories(24, 10)
	require.Len(t, recent, 2)
	assert.Equal(t, "recent high", recent[0].Description)
	assert.Len(t, s.RecentMemories(24, 1), 1)

	imp := s.ByImportance(5, 24)
	require.Len(t, imp, 1)
	assert.Equal(t, "recent high", imp[0].Description)
	assert.Len(t, s.ByImportance(5, 48), 2)
}

func TestMemoryCapEvictsLeastImportant(t *testing.T) {
	s := NewStream("alice", Options{Clock: &fixedClock{t: epoch}, MaxMemories: 3})
	s.AddObservation(obsAt(epoch, "a", 5))
	s.AddObservation(obsAt(epoch.Add(time.Minute), "b", 1))
	s.AddObservation(obsAt(epoch.Add(2*time.Minute), "c", 1))
	s.AddReflection("d", 8)

	assert.Equal(t, 3, s.Len())
	var descs []string
	for _, m := range s.RecentMemories(24, 0) {
		descs = append(descs, m.Description)
	}
	assert.ElementsMatch(t, []string{"a", "c", "d"}, descs)
	assert.Equal(t, "alice_obs_3", s.AddObservation(obsAt(epoch, "e", 9)), "ids never repeat")
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]map[string]Memory
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string]map[string]Memory)} }

func (s *mapStore) SaveMemory(_ context.Context, agentID string, m Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[agentID] == nil {
		s.data[agentID] = make(map[string]Memory)
	}
	s.data[agentID][m.ID] = m
	return nil
}

func (s *mapStore) DeleteMemory(_ context.Context, agentID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[agentID], id)
	return nil
}

func (s *mapStore) LoadMemories(_ context.Context, agentID string) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Memory
	for _, m := range s.data[agentID] {
		out = append(out, m)
	}
	return out, nil
}

func TestHydrateFromStore(t *testing.T) {
	store := newMapStore()
	clk := &fixedClock{t: epoch}

	first := NewStream("alice", Options{Clock: clk, Store: store, MaxMemories: 2})
	first.AddObservation(obsAt(epoch, "low", 1))
	first.AddObservation(obsAt(epoch.Add(time.Minute), "mid", 4))
	first.AddReflection("high", 9)
	require.Len(t, store.data["alice"], 2, "evicted memory is deleted from the store")

	second := NewStream("alice", Options{Clock: clk, Store: store})
	require.NoError(t, second.Hydrate(context.Background()))
	obs, refl := second.Counts()
	assert.Equal(t, 1, obs)
	assert.Equal(t, 1, refl)
	assert.Equal(t, "alice_obs_2", second.AddObservation(obsAt(epoch, "next", 1)))
	assert.Equal(t, "alice_refl_1", second.AddReflection("again", 0))

	plain := NewStream("alice", Options{})
	assert.NoError(t, plain.Hydrate(context.Background()))
}

func TestHydrateSkipsMemoriesAlreadyHeld(t *testing.T) {
	store := newMapStore()
	clk := &fixedClock{t: epoch}

	first := NewStream("alice", Options{Clock: clk, Store: store})
	first.AddObservation(obsAt(epoch, "intro", 9))
	first.AddObservation(obsAt(epoch.Add(time.Minute), "later", 3))

	restarted := NewStream("alice", Options{Clock: clk, Store: store})
	restarted.AddObservation(obsAt(epoch, "intro", 9))
	require.NoError(t, restarted.Hydrate(context.Background()))

	obs, _ := restarted.Counts()
	assert.Equal(t, 2, obs)
	assert.Equal(t, "alice_obs_2", restarted.AddObservation(obsAt(epoch, "next", 1)))
}
