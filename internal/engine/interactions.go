package engine

import (
	"context"
	"strings"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/world"
)

var interactionGreetings = []string{
	"Hello {name}! Nice to see you.",
	"Hi there! How are you doing?",
	"Good {period}! How's everything?",
}

// pairKey orders two agent ids so (a, b) and (b, a) share a cooldown.
func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// TriggerProbability is the chance two approachable agents greet each other
// in one tick.
func TriggerProbability(extraA, extraB, base float64) float64 {
	p := extraA * extraB * base
	if extraA < 0.5 || extraB < 0.5 {
		p *= 0.5
	}
	return p
}

type candidate struct {
	agent *agents.Agent
	pos   world.Position
}

// resolveInteractionsLocked scans each unordered pair once and rolls for a
// spontaneous greeting. It returns the number triggered.
func (w *World) resolveInteractionsLocked(ctx context.Context, now time.Time) int {
	var cands []candidate
	for _, a := range w.agents {
		if a.State().Approachable() {
			cands = append(cands, candidate{agent: a, pos: a.Position()})
		}
	}

	triggered := 0
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			a, b := cands[i], cands[j]
			if a.pos.DistanceTo(b.pos) > w.opts.InteractionRadius {
				continue
			}
			key := pairKey(a.agent.ID, b.agent.ID)
			if last, ok := w.cooldowns[key]; ok && now.Sub(last) < w.opts.InteractionCooldown {
				continue
			}
			p := TriggerProbability(a.agent.Personality.Extraversion, b.agent.Personality.Extraversion, w.opts.InteractionRate)
			if w.opts.Rand.Float64() >= p {
				continue
			}
			w.cooldowns[key] = now
			w.greetLocked(ctx, a, b, now)
			triggered++
		}
	}
	return triggered
}

func (w *World) greetLocked(ctx context.Context, a, b candidate, now time.Time) {
	period := string(clock.PeriodOf(now))
	hello := greetingFor(w.opts.Rand, b.agent.Name, period)
	reply := greetingFor(w.opts.Rand, a.agent.Name, period)

	b.agent.ReceiveMessage(a.agent.ID, a.agent.Name, hello)
	a.agent.ReceiveMessage(b.agent.ID, b.agent.Name, reply)

	w.stats.TotalInteractions++
	w.opts.Recorder.InteractionTriggered()

	mid := world.Position{X: (a.pos.X + b.pos.X) / 2, Y: (a.pos.Y + b.pos.Y) / 2, Area: a.pos.Area}
	fields := map[string]string{"agent_name": a.agent.Name, "target_name": b.agent.Name}
	meta := map[string]string{"type": "greeting", "message": hello, "reply": reply}
	w.emitLocked(ctx, events.New(now, events.TypeInteraction, w.opts.Registry.Describe(events.TypeInteraction, fields),
		mid, []string{a.agent.ID, b.agent.ID}, meta, interactionEventMinutes))
}

func greetingFor(src entropy.Source, name, period string) string {
	return strings.NewReplacer("{name}", name, "{period}", period).Replace(entropy.Pick(src, interactionGreetings))
}
