// Package memory implements an agent's memory stream: scored, timestamped
// observations and reflections with recency/importance/relevance retrieval.
package memory

import (
	"context"
	"time"

	"github.com/talgya/ai-town/internal/world"
)

// Kind distinguishes perceived observations from synthesized reflections.
type Kind string

const (
	KindObservation Kind = "observation"
	KindReflection  Kind = "reflection"
)

// Observation is an event perceived or generated by an agent, before storage.
type Observation struct {
	Timestamp    time.Time         `json:"timestamp"`
	ObserverID   string            `json:"observer_id"`
	EventType    string            `json:"event_type"`
	Description  string            `json:"description"`
	Location     world.Position    `json:"location"`
	Participants []string          `json:"participants"`
	Importance   float64           `json:"importance"` // 0–10
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Memory is the stored form of an Observation.
// Only AccessCount and LastAccessed change after creation, and only through retrieval.
type Memory struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	Timestamp    time.Time         `json:"timestamp"`
	ObserverID   string            `json:"observer_id"`
	EventType    string            `json:"event_type"`
	Description  string            `json:"description"`
	Location     world.Position    `json:"location"`
	Participants []string          `json:"participants"`
	Importance   float64           `json:"importance"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Keywords     []string          `json:"keywords"` // sorted, unique
	AccessCount  int               `json:"access_count"`
	LastAccessed time.Time         `json:"last_accessed"`
}

// Store durably keeps memories keyed by agent id.
type Store interface {
	SaveMemory(ctx context.Context, agentID string, m Memory) error
	DeleteMemory(ctx context.Context, agentID, memoryID string) error
	LoadMemories(ctx context.Context, agentID string) ([]Memory, error)
}

func (m *Memory) clone() Memory {
	c := *m
	c.Participants = append([]string(nil), m.Participants...)
	c.Keywords = append([]string(nil), m.Keywords...)
	if m.Metadata != nil {
		c.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
