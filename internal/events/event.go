// Package events defines world events and the metadata registry used to describe them.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/talgya/ai-town/internal/world"
)

// Core event types emitted by the world loop.
const (
	TypeMovement     = "movement"
	TypeConversation = "conversation"
	TypeInteraction  = "automatic_interaction"
	TypeActivity     = "activity"
	TypeReflection   = "reflection"
)

// ClassKey is the metadata key marking the broad class of an event whose
// type is an action's own kind.
const ClassKey = "event_class"

// Event is a time-bounded, world-visible record of an executed action.
// Events are immutable once created.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         string            `json:"type"`
	Description  string            `json:"description"`
	Location     world.Position    `json:"location"`
	Participants []string          `json:"participants"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Duration     *int              `json:"duration,omitempty"` // minutes; nil never expires on its own
}

// New creates an event with a fresh id. A duration <= 0 means no expiry.
func New(ts time.Time, kind, description string, loc world.Position, participants []string, metadata map[string]string, duration int) Event {
	e := Event{
		ID:           uuid.NewString(),
		Timestamp:    ts,
		Type:         kind,
		Description:  description,
		Location:     loc,
		Participants: append([]string(nil), participants...),
		Metadata:     metadata,
	}
	if duration > 0 {
		d := duration
		e.Duration = &d
	}
	return e
}

// Expired reports whether the event's duration has elapsed at now.
func (e Event) Expired(now time.Time) bool {
	if e.Duration == nil {
		return false
	}
	return now.Sub(e.Timestamp) >= time.Duration(*e.Duration)*time.Minute
}

// Remaining returns whole minutes left before expiry, or nil for open-ended events.
func (e Event) Remaining(now time.Time) *int {
	if e.Duration == nil {
		return nil
	}
	left := *e.Duration - int(now.Sub(e.Timestamp)/time.Minute)
	if left < 0 {
		left = 0
	}
	return &left
}

// Involves reports whether the agent participated in the event.
func (e Event) Involves(agentID string) bool {
	for _, p := range e.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// View is the presentation form of a live event.
type View struct {
	Event
	Icon      string `json:"icon"`
	Category  string `json:"category"`
	Remaining *int   `json:"remaining,omitempty"`
}
