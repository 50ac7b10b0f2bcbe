package agents

import (
	"strings"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/memory"
)

// Needs is the planner's urgency vector. Each value is 0.0 (none) to 1.0 (pressing).
type Needs struct {
	Energy      float64 `json:"energy"`
	Social      float64 `json:"social"`
	Work        float64 `json:"work"`
	Exploration float64 `json:"exploration"`
	Maintenance float64 `json:"maintenance"`
}

// Need names, in tie-break order.
const (
	NeedEnergy      = "energy"
	NeedSocial      = "social"
	NeedWork        = "work"
	NeedExploration = "exploration"
	NeedMaintenance = "maintenance"
)

// Highest returns the most pressing need. Ties go to the earlier need in
// energy, social, work, exploration, maintenance order.
func (n Needs) Highest() (string, float64) {
	name, val := NeedEnergy, n.Energy
	for _, c := range []struct {
		name string
		v    float64
	}{
		{NeedSocial, n.Social},
		{NeedWork, n.Work},
		{NeedExploration, n.Exploration},
		{NeedMaintenance, n.Maintenance},
	} {
		if c.v > val {
			name, val = c.name, c.v
		}
	}
	return name, val
}

var socialWords = []string{"talk", "conversation", "chat", "meet"}

// socialMemoryTarget is how many social memories in context keep loneliness away.
const socialMemoryTarget = 3

// AssessNeeds derives the need vector from energy, time of day, recent social
// memories, and the agent's current area. Signals are applied in that order
// and a later signal overwrites an earlier value for the same need.
func AssessNeeds(energy float64, period clock.Period, area string, context []memory.Memory) Needs {
	var n Needs

	switch {
	case energy < 30:
		n.Energy = 0.9
	case energy < 60:
		n.Energy = 0.5
	}

	switch period {
	case clock.Night:
		if energy < 70 {
			n.Energy = 0.8
		}
	case clock.Morning:
		n.Work = 0.6
	case clock.Evening:
		n.Social = 0.7
	}

	social := 0
	for _, m := range context {
		desc := strings.ToLower(m.Description)
		for _, w := range socialWords {
			if strings.Contains(desc, w) {
				social++
				break
			}
		}
	}
	if social < socialMemoryTarget {
		n.Social = 0.6
	}

	switch area {
	case "home":
		n.Maintenance = 0.4
	case "office":
		n.Work = 0.7
	case "park":
		n.Social = 0.5
		n.Exploration = 0.3
	}
	return n
}
