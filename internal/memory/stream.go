package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/ai-town/internal/clock"
)

const (
	DefaultReflectionThreshold  = 150.0
	DefaultReflectionImportance = 8.0
	recencyHalfLifeHours        = 24.0
	storeTimeout                = 2 * time.Second
)

// Options configures a Stream. Zero values select defaults.
type Options struct {
	ReflectionThreshold float64     // importance sum that makes reflection due; default 150
	MaxMemories         int         // retention cap across both logs; 0 keeps everything
	Clock               clock.Clock // default wall clock
	Store               Store       // nil keeps memories in process only
}

// Stream is one agent's memory log.
type Stream struct {
	agentID string
	opts    Options

	mu            sync.RWMutex
	observations  []*Memory
	reflections   []*Memory
	importanceSum float64
	obsSeq        int
	reflSeq       int
}

// NewStream creates an empty memory stream for the agent.
func NewStream(agentID string, opts Options) *Stream {
	if opts.ReflectionThreshold <= 0 {
		opts.ReflectionThreshold = DefaultReflectionThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.Func(time.Now)
	}
	return &Stream{agentID: agentID, opts: opts}
}

// AgentID returns the owning agent's id.
func (s *Stream) AgentID() string { return s.agentID }

// AddObservation stores the observation and returns the new memory id.
func (s *Stream) AddObservation(obs Observation) string {
	s.mu.Lock()
	id := fmt.Sprintf("%s_obs_%d", s.agentID, s.obsSeq)
	s.obsSeq++
	m := newMemory(id, KindObservation, obs)
	s.observations = append(s.observations, m)
	s.importanceSum += m.Importance
	evicted := s.enforceCapLocked()
	snapshot := m.clone()
	s.mu.Unlock()

	s.persist(snapshot, evicted)
	return id
}

// AddReflection stores a synthesized insight. An importance of zero or less
// stores it at DefaultReflectionImportance.
func (s *Stream) AddReflection(text string, importance float64) string {
	if importance <= 0 {
		importance = DefaultReflectionImportance
	}
	obs := Observation{
		Timestamp:   s.opts.Clock.Now(),
		ObserverID:  s.agentID,
		EventType:   "reflection",
		Description: text,
		Importance:  importance,
		Metadata:    map[string]string{"type": "reflection"},
	}

	s.mu.Lock()
	id := fmt.Sprintf("%s_refl_%d", s.agentID, s.reflSeq)
	s.reflSeq++
	m := newMemory(id, KindReflection, obs)
	s.reflections = append(s.reflections, m)
	s.importanceSum += m.Importance
	evicted := s.enforceCapLocked()
	snapshot := m.clone()
	s.mu.Unlock()

	s.persist(snapshot, evicted)
	return id
}

func newMemory(id string, kind Kind, obs Observation) *Memory {
	return &Memory{
		ID:           id,
		Kind:         kind,
		Timestamp:    obs.Timestamp,
		ObserverID:   obs.ObserverID,
		EventType:    obs.EventType,
		Description:  obs.Description,
		Location:     obs.Location,
		Participants: append([]string(nil), obs.Participants...),
		Importance:   obs.Importance,
		Metadata:     maps.Clone(obs.Metadata),
		Keywords:     Keywords(obs.Description),
	}
}

// Score returns recency + importance + relevance for a memory against query keywords.
func Score(m *Memory, queryKeywords []string, now time.Time) float64 {
	hours := now.Sub(m.Timestamp).Hours()
	recency := math.Exp(-hours / recencyHalfLifeHours)
	importance := m.Importance / 10
	relevance := Jaccard(queryKeywords, m.Keywords)
	return recency + importance + relevance
}

// RetrieveRelevant returns up to limit memories with a positive score, best first.
// Each returned memory has its access count and last-accessed time updated.
func (s *Stream) RetrieveRelevant(query string, limit int) []Memory {
	if limit <= 0 {
		return nil
	}
	qk := Keywords(query)
	now := s.opts.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		m     *Memory
		score float64
	}
	all := make([]scored, 0, len(s.observations)+len(s.reflections))
	for _, m := range s.all() {
		all = append(all, scored{m: m, score: Score(m, qk, now)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	out := make([]Memory, 0, limit)
	for _, sc := range all {
		if len(out) == limit || sc.score <= 0 {
			break
		}
		sc.m.AccessCount++
		sc.m.LastAccessed = now
		out = append(out, sc.m.clone())
	}
	return out
}

// RecentMemories returns memories from the last hoursBack hours, newest first.
func (s *Stream) RecentMemories(hoursBack float64, limit int) []Memory {
	cutoff := s.opts.Clock.Now().Add(-time.Duration(hoursBack * float64(time.Hour)))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []*Memory
	for _, m := range s.all() {
		if !m.Timestamp.Before(cutoff) {
			hits = append(hits, m)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Timestamp.After(hits[j].Timestamp) })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return cloneAll(hits)
}

// ByImportance returns memories from the last hoursBack hours with importance
// at least minImportance, most important first.
func (s *Stream) ByImportance(minImportance, hoursBack float64) []Memory {
	cutoff := s.opts.Clock.Now().Add(-time.Duration(hoursBack * float64(time.Hour)))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []*Memory
	for _, m := range s.all() {
		if m.Importance >= minImportance && !m.Timestamp.Before(cutoff) {
			hits = append(hits, m)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Importance > hits[j].Importance })
	return cloneAll(hits)
}

// ShouldReflect reports whether accumulated importance has reached the threshold.
func (s *Stream) ShouldReflect() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.importanceSum >= s.opts.ReflectionThreshold
}

// ResetImportanceSum zeroes the reflection accumulator.
func (s *Stream) ResetImportanceSum() {
	s.mu.Lock()
	s.importanceSum = 0
	s.mu.Unlock()
}

// ImportanceSum returns the current accumulator value.
func (s *Stream) ImportanceSum() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.importanceSum
}

// Len returns the number of stored memories.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations) + len(s.reflections)
}

// Counts returns the observation and reflection counts.
func (s *Stream) Counts() (observations, reflections int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations), len(s.reflections)
}

// Hydrate loads previously persisted memories. Existing in-process memories are kept.
func (s *Stream) Hydrate(ctx context.Context) error {
	if s.opts.Store == nil {
		return nil
	}
	loaded, err := s.opts.Store.LoadMemories(ctx, s.agentID)
	if err != nil {
		return fmt.Errorf("load memories for %s: %w", s.agentID, err)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Timestamp.Before(loaded[j].Timestamp) })

	s.mu.Lock()
	have := make(map[string]bool, len(s.observations)+len(s.reflections))
	for _, m := range s.all() {
		have[m.ID] = true
	}
	for i := range loaded {
		m := loaded[i]
		if have[m.ID] {
			continue
		}
		if m.Keywords == nil {
			m.Keywords = Keywords(m.Description)
		}
		switch m.Kind {
		case KindReflection:
			s.reflections = append(s.reflections, &m)
			s.reflSeq = max(s.reflSeq, idSeq(m.ID)+1)
		default:
			m.Kind = KindObservation
			s.observations = append(s.observations, &m)
			s.obsSeq = max(s.obsSeq, idSeq(m.ID)+1)
		}
	}
	evicted := s.enforceCapLocked()
	s.mu.Unlock()

	s.deleteEvicted(ctx, evicted)
	slog.Debug("memories hydrated", "agent", s.agentID, "count", len(loaded))
	return nil
}

// all returns both logs, observations first. Caller holds the lock.
func (s *Stream) all() []*Memory {
	out := make([]*Memory, 0, len(s.observations)+len(s.reflections))
	out = append(out, s.observations...)
	return append(out, s.reflections...)
}

// enforceCapLocked evicts the least important memories (oldest first on ties)
// until the stream fits MaxMemories. Returns the evicted ids.
func (s *Stream) enforceCapLocked() []string {
	if s.opts.MaxMemories <= 0 {
		return nil
	}
	var evicted []string
	for len(s.observations)+len(s.reflections) > s.opts.MaxMemories {
		log, idx := &s.observations, -1
		var victim *Memory
		for _, l := range []*[]*Memory{&s.observations, &s.reflections} {
			for i, m := range *l {
				if victim == nil || m.Importance < victim.Importance ||
					(m.Importance == victim.Importance && m.Timestamp.Before(victim.Timestamp)) {
					victim, log, idx = m, l, i
				}
			}
		}
		evicted = append(evicted, victim.ID)
		*log = append((*log)[:idx], (*log)[idx+1:]...)
	}
	return evicted
}

func (s *Stream) persist(m Memory, evicted []string) {
	if s.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.opts.Store.SaveMemory(ctx, s.agentID, m); err != nil {
		slog.Warn("memory persist failed", "agent", s.agentID, "memory", m.ID, "error", err)
	}
	s.deleteEvicted(ctx, evicted)
}

func (s *Stream) deleteEvicted(ctx context.Context, ids []string) {
	if s.opts.Store == nil {
		return
	}
	for _, id := range ids {
		if err := s.opts.Store.DeleteMemory(ctx, s.agentID, id); err != nil {
			slog.Warn("memory evict failed", "agent", s.agentID, "memory", id, "error", err)
		}
	}
}

func cloneAll(ms []*Memory) []Memory {
	out := make([]Memory, len(ms))
	for i, m := range ms {
		out[i] = m.clone()
	}
	return out
}

// idSeq parses the trailing counter of "<agent>_obs_<n>" style ids; -1 if absent.
func idSeq(id string) int {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return -1
	}
	return n
}
