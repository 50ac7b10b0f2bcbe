package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/memory"
)

func memOf(desc string) memory.Memory {
	return memory.Memory{Description: desc}
}

func TestAssessNeeds(t *testing.T) {
	social := []memory.Memory{memOf("talk"), memOf("a chat"), memOf("conversation")}

	n := AssessNeeds(15, clock.Afternoon, "", social)
	assert.Equal(t, 0.9, n.Energy)
	assert.Zero(t, n.Social)

	n = AssessNeeds(65, clock.Night, "home", social)
	assert.Equal(t, 0.8, n.Energy)
	assert.Equal(t, 0.4, n.Maintenance)

	// later signals overwrite earlier ones
	n = AssessNeeds(10, clock.Night, "", social)
	assert.Equal(t, 0.8, n.Energy)

	n = AssessNeeds(90, clock.Evening, "park", nil)
	assert.Equal(t, 0.5, n.Social)
	assert.Equal(t, 0.3, n.Exploration)

	n = AssessNeeds(90, clock.Evening, "", social)
	assert.Equal(t, 0.7, n.Social)

	n = AssessNeeds(90, clock.Evening, "", nil)
	assert.Equal(t, 0.6, n.Social)

	n = AssessNeeds(90, clock.Morning, "office", social)
	assert.Equal(t, 0.7, n.Work)
}

func TestNeedsHighest(t *testing.T) {
	name, v := Needs{}.Highest()
	assert.Equal(t, NeedEnergy, name)
	assert.Zero(t, v)

	name, _ = Needs{Social: 0.6, Work: 0.6}.Highest()
	assert.Equal(t, NeedSocial, name)

	name, v = Needs{Maintenance: 0.4, Exploration: 0.3}.Highest()
	assert.Equal(t, NeedMaintenance, name)
	assert.Equal(t, 0.4, v)
}
