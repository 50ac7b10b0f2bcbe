// Agent cognition backed by the language model: reflections and action proposals.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
)

const (
	maxInsights       = 3
	reflectTokens     = 300
	proposeTokens     = 250
	promptMemoryLimit = 15
	promptNearbyLimit = 5
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, system, userPrompt string, maxTokens int) (string, error)
}

// Decider implements agents.Decider over a Completer.
type Decider struct {
	llm      Completer
	registry *events.Registry
}

// NewDecider creates a Decider. Registered event ids are offered to the model
// as extra action types.
func NewDecider(c Completer, reg *events.Registry) *Decider {
	if reg == nil {
		reg = events.DefaultRegistry()
	}
	return &Decider{llm: c, registry: reg}
}

var _ agents.Decider = (*Decider)(nil)

// Reflect asks for up to three short insights drawn from recent memories.
func (d *Decider) Reflect(ctx context.Context, p agents.Persona, recent []memory.Memory) ([]string, error) {
	system := personaPrompt(p) + `

Reflect on your recent experiences. Respond ONLY with a JSON array of 1-3 short first-person insights (strings).`

	var b strings.Builder
	b.WriteString("Your recent memories:\n")
	writeMemories(&b, recent)
	b.WriteString("\nWhat have you learned or noticed?")

	text, err := d.llm.Complete(ctx, system, b.String(), reflectTokens)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	return parseInsights(text)
}

// ProposeAction asks for the agent's next action as a JSON object.
func (d *Decider) ProposeAction(ctx context.Context, p agents.Persona, s agents.Situation) (agents.Proposal, error) {
	system := personaPrompt(p) + fmt.Sprintf(`

Decide what to do next. Respond ONLY with a JSON object:
{"type": "...", "description": "...", "reason": "...", "target": "...", "message": "...", "duration": minutes}
- "type": one of %s
- "target": for move, one of home, kitchen, park, work; for talk, the name of someone nearby
- "message": what you say, for talk only`, strings.Join(d.actionTypes(), ", "))

	var b strings.Builder
	fmt.Fprintf(&b, "You are in %s. State: %s.\n", orUnknown(s.Area), s.State)
	if len(s.Nearby) == 0 {
		b.WriteString("Nobody is nearby.\n")
	} else {
		b.WriteString("Nearby:\n")
		for i, n := range s.Nearby {
			if i == promptNearbyLimit {
				break
			}
			fmt.Fprintf(&b, "- %s (%.1f away)\n", n.Name, n.Distance)
		}
	}
	b.WriteString("Recent memories:\n")
	writeMemories(&b, s.Memories)
	b.WriteString("\nWhat do you do next?")

	text, err := d.llm.Complete(ctx, system, b.String(), proposeTokens)
	if err != nil {
		return agents.Proposal{}, fmt.Errorf("propose: %w", err)
	}
	return parseProposal(text)
}

func (d *Decider) actionTypes() []string {
	types := []string{string(agents.KindMove), string(agents.KindTalk), string(agents.KindWork), string(agents.KindSocialize)}
	for _, id := range d.registry.IDs() {
		switch id {
		case events.TypeMovement, events.TypeConversation, events.TypeInteraction, events.TypeReflection,
			string(agents.KindWork), string(agents.KindSocialize):
			continue
		}
		types = append(types, id)
	}
	return types
}

func personaPrompt(p agents.Persona) string {
	return fmt.Sprintf(
		`You are %s, a %d-year-old %s living in a small town. %s
Personality (0-1): openness %.1f, conscientiousness %.1f, extraversion %.1f, agreeableness %.1f, neuroticism %.1f.
It is %s (%s). Your energy is %.0f/100 and your mood is %.2f (-1 to 1).
Stay in character and never mention being simulated.`,
		p.Name, p.Age, p.Occupation, p.Background,
		p.Personality.Openness, p.Personality.Conscientiousness, p.Personality.Extraversion,
		p.Personality.Agreeableness, p.Personality.Neuroticism,
		p.Time.Format("15:04"), p.Period, p.Energy, p.Mood,
	)
}

func writeMemories(b *strings.Builder, ms []memory.Memory) {
	if len(ms) == 0 {
		b.WriteString("- (nothing yet)\n")
		return
	}
	for i, m := range ms {
		if i == promptMemoryLimit {
			break
		}
		fmt.Fprintf(b, "- [%s] %s\n", m.Timestamp.Format("15:04"), m.Description)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "an unknown place"
	}
	return s
}

// parseInsights extracts a JSON array of strings; the model may wrap it in prose.
func parseInsights(response string) ([]string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array found", ErrMalformed)
	}

	var raw []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxInsights {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no insights", ErrMalformed)
	}
	return out, nil
}

// parseProposal extracts a JSON object describing one action.
func parseProposal(response string) (agents.Proposal, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return agents.Proposal{}, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	var p agents.Proposal
	if err := json.Unmarshal([]byte(response[start:end+1]), &p); err != nil {
		return agents.Proposal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if p.Type == "" {
		return agents.Proposal{}, fmt.Errorf("%w: proposal has no type", ErrMalformed)
	}
	return p, nil
}
