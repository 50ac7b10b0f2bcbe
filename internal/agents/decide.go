package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

// ErrUnknownAction is returned for proposals naming an action nobody can perform.
var ErrUnknownAction = errors.New("agents: unknown action type")

// Persona is the identity context handed to a Decider.
type Persona struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Age         int            `json:"age"`
	Occupation  string         `json:"occupation"`
	Background  string         `json:"background"`
	Personality Personality    `json:"personality"`
	Energy      float64        `json:"energy"`
	Mood        float64        `json:"mood"`
	Position    world.Position `json:"position"`
	Time        time.Time      `json:"time"`
	Period      clock.Period   `json:"period"`
}

// Proposal is a structured action suggested by a Decider.
type Proposal struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Reason      string   `json:"reason"`
	Target      string   `json:"target,omitempty"` // agent id or name, or a landmark
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Message     string   `json:"message,omitempty"`
	Minutes     int      `json:"duration,omitempty"`
}

// Decider is a slow, fallible backend that can reflect and propose actions.
// Agents always have a rule-based answer when it fails.
type Decider interface {
	Reflect(ctx context.Context, p Persona, recent []memory.Memory) ([]string, error)
	ProposeAction(ctx context.Context, p Persona, s Situation) (Proposal, error)
}

// ProposalAction validates a proposal against the situation and turns it into
// an Action. Event ids outside the built-in kinds must be registered.
func ProposalAction(p Proposal, s Situation, lm Landmarks, reg *events.Registry) (Action, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(p.Type)))
	switch kind {
	case KindMove:
		target, ok := proposalTarget(p, lm)
		if !ok {
			return nil, fmt.Errorf("move proposal has no usable target %q", p.Target)
		}
		return Move{Target: target, Description: p.Description}, nil

	case KindTalk:
		for _, n := range s.Nearby {
			if strings.EqualFold(n.ID, p.Target) || strings.EqualFold(n.Name, p.Target) {
				if p.Message == "" {
					return nil, fmt.Errorf("talk proposal to %s has no message", n.Name)
				}
				return Talk{TargetID: n.ID, TargetName: n.Name, Message: p.Message, Description: p.Description}, nil
			}
		}
		return nil, fmt.Errorf("talk target %q is not nearby", p.Target)

	case KindWork:
		return Work{Minutes: minutesOr(p.Minutes, 45), Description: p.Description}, nil

	case KindSocialize:
		activity := p.Target
		if activity == "" {
			activity = "chat"
		}
		return Socialize{Activity: activity, Minutes: minutesOr(p.Minutes, 15), Description: p.Description}, nil

	case KindIdle, KindError, "":
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, p.Type)
	}

	if reg == nil || !reg.Known(string(kind)) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, p.Type)
	}
	return Generic{
		EventID:     string(kind),
		Minutes:     minutesOr(p.Minutes, CompletionMinutes(kind)),
		Location:    s.Area,
		Description: p.Description,
		Extra:       map[string]string{"reason": p.Reason},
	}, nil
}

func proposalTarget(p Proposal, lm Landmarks) (world.Position, bool) {
	if p.X != nil && p.Y != nil {
		return world.Position{X: *p.X, Y: *p.Y, Area: p.Target}, true
	}
	switch strings.ToLower(p.Target) {
	case "home":
		return lm.Home, true
	case "kitchen":
		return lm.Kitchen, true
	case "park":
		return lm.Park, true
	case "work", "office", lm.Work.Area:
		return lm.Work, true
	}
	return world.Position{}, false
}

func minutesOr(m, def int) int {
	if m > 0 {
		return m
	}
	return def
}
