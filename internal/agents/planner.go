package agents

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

const (
	planTTL      = 2 * time.Hour // active plans older than this are abandoned
	maxPlansKept = 32
)

// Situation is what the planner knows when choosing the next action.
type Situation struct {
	Energy   float64
	Area     string
	Nearby   []world.NearbyAgent
	Memories []memory.Memory
	State    State
}

// PlannerConfig wires a Planner.
type PlannerConfig struct {
	Occupation string
	Landmarks  Landmarks
	Clock      clock.Clock
	Rand       entropy.Source
}

// Planner turns needs and goals into a queue of concrete actions.
type Planner struct {
	occupation string
	landmarks  Landmarks
	clock      clock.Clock
	rng        entropy.Source

	mu      sync.Mutex
	goals   []*Goal
	plans   []*Plan
	current *Plan
}

// NewPlanner creates a planner seeded with the starter goals.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Clock == nil {
		cfg.Clock = clock.Func(time.Now)
	}
	if cfg.Rand == nil {
		cfg.Rand = entropy.Crypto{}
	}
	if cfg.Landmarks == (Landmarks{}) {
		cfg.Landmarks = DefaultLandmarks()
	}
	if cfg.Occupation == "" {
		cfg.Occupation = "general"
	}
	p := &Planner{occupation: cfg.Occupation, landmarks: cfg.Landmarks, clock: cfg.Clock, rng: cfg.Rand}
	for _, g := range StarterGoals() {
		p.AddGoal(g)
	}
	return p
}

// Landmarks returns the planner's destinations.
func (p *Planner) Landmarks() Landmarks { return p.landmarks }

// PlanNextAction pops the next action for the most urgent goal. It never returns nil.
func (p *Planner) PlanNextAction(s Situation) Action {
	now := p.clock.Now()
	needs := AssessNeeds(s.Energy, clock.PeriodOf(now), s.Area, s.Memories)

	p.mu.Lock()
	defer p.mu.Unlock()

	goal := p.selectGoal(needs, now)
	if goal == nil {
		return p.defaultAction(needs)
	}

	plan := p.planFor(goal, s, now)
	if len(plan.Actions) == 0 {
		plan.Status = PlanCompleted
		return p.defaultAction(needs)
	}

	next := plan.Actions[0]
	plan.Actions = plan.Actions[1:]
	if len(plan.Actions) == 0 {
		plan.Status = PlanCompleted
	}
	return next
}

// Urgency scores a goal against the need vector at now.
func Urgency(g Goal, n Needs, now time.Time) float64 {
	u := g.Priority * 0.1
	switch g.ID {
	case GoalMaintainEnergy:
		u += n.Energy * 0.9
	case GoalSocialConnection:
		u += n.Social * 0.7
	case GoalDailyProductivity:
		u += n.Work * 0.6
	}
	if g.Deadline != nil {
		left := g.Deadline.Sub(now)
		if left < 24*time.Hour {
			u += 0.3
		}
		if left < 6*time.Hour {
			u += 0.5
		}
	}
	return u
}

// selectGoal returns the most urgent active goal; the earliest wins ties.
func (p *Planner) selectGoal(n Needs, now time.Time) *Goal {
	var best *Goal
	bestU := 0.0
	for _, g := range p.goals {
		if !g.Active {
			continue
		}
		if u := Urgency(*g, n, now); best == nil || u > bestU {
			best, bestU = g, u
		}
	}
	return best
}

func (p *Planner) planFor(g *Goal, s Situation, now time.Time) *Plan {
	for _, pl := range p.plans {
		if pl.GoalID != g.ID || pl.Status != PlanActive {
			continue
		}
		if now.Sub(pl.CreatedAt) > planTTL {
			pl.Status = PlanCancelled
			continue
		}
		if len(pl.Actions) > 0 {
			p.current = pl
			return pl
		}
	}

	var actions []Action
	switch g.ID {
	case GoalMaintainEnergy:
		actions = p.energyPlan(s)
	case GoalSocialConnection:
		actions = p.socialPlan(s, now)
	case GoalDailyProductivity:
		actions = p.workPlan()
	case GoalLeisure:
		actions = p.leisurePlan(now)
	default:
		actions = p.observePlan()
	}

	pl := &Plan{
		ID:          fmt.Sprintf("%s_%s", g.ID, uuid.NewString()[:8]),
		GoalID:      g.ID,
		Description: "Plan to achieve: " + g.Description,
		Actions:     actions,
		Status:      PlanActive,
		CreatedAt:   now,
	}
	p.plans = append(p.plans, pl)
	p.trimPlans()
	p.current = pl
	return pl
}

func (p *Planner) energyPlan(s Situation) []Action {
	switch {
	case s.Energy < 20:
		return []Action{Generic{EventID: string(KindSleep), Minutes: 60, Location: p.landmarks.Home.Area, Description: "Take a nap to restore energy"}}
	case s.Energy < 50:
		return []Action{Generic{EventID: string(KindEat), Minutes: 20, Location: p.landmarks.Kitchen.Area, Description: "Have a meal to restore energy"}}
	default:
		return []Action{Socialize{Activity: "relax", Minutes: 15, Description: "Take a short break"}}
	}
}

func (p *Planner) socialPlan(s Situation, now time.Time) []Action {
	if len(s.Nearby) > 0 {
		target := s.Nearby[0]
		return []Action{
			Move{Target: target.Position(), Description: "Move closer to " + target.Name},
			Talk{
				TargetID:    target.ID,
				TargetName:  target.Name,
				Message:     p.greeting(clock.PeriodOf(now)),
				Description: "Start a conversation with " + target.Name,
			},
		}
	}
	return []Action{
		Move{Target: p.landmarks.Park, Description: "Go to the park to meet people"},
		Socialize{Activity: "look_for_people", Minutes: 15, Description: "Look for people to talk to"},
	}
}

func (p *Planner) workPlan() []Action {
	return []Action{
		Move{Target: p.landmarks.Work, Description: "Go to " + p.landmarks.Work.Area},
		Work{WorkType: p.occupation, Minutes: 45, Description: "Focus on work tasks"},
	}
}

func (p *Planner) leisurePlan(now time.Time) []Action {
	if clock.PeriodOf(now) == clock.Evening {
		stroll := p.landmarks.Park
		stroll.X += 5
		stroll.Y += 2
		return []Action{
			Move{Target: stroll, Description: "Go to the park for an evening walk"},
			Socialize{Activity: "enjoy_nature", Minutes: 20, Description: "Enjoy the peaceful evening at the park"},
		}
	}
	return []Action{Socialize{Activity: "explore", Minutes: 10, Description: "Take a leisurely stroll around the area"}}
}

func (p *Planner) observePlan() []Action {
	return []Action{Socialize{Activity: "observe", Minutes: 5, Description: "Observe the environment"}}
}

// defaultAction heads toward whatever the single highest need calls for.
func (p *Planner) defaultAction(n Needs) Action {
	need, _ := n.Highest()
	switch need {
	case NeedEnergy:
		return Move{Target: p.landmarks.Home, Description: "Go home to rest"}
	case NeedSocial:
		return Move{Target: p.landmarks.Park, Description: "Go to park to socialize"}
	case NeedWork:
		return Move{Target: p.landmarks.Work, Description: "Go to work"}
	default:
		return Socialize{Activity: "explore", Description: "Explore the environment"}
	}
}

var greetings = map[clock.Period][]string{
	clock.Morning: {
		"Good morning! How are you today?",
		"Morning! Nice weather, isn't it?",
		"Hi there! Hope you're having a good start to your day.",
	},
	clock.Afternoon: {
		"Good afternoon! How's your day going?",
		"Hi! Beautiful afternoon, don't you think?",
		"Hey there! How are things with you?",
	},
	clock.Evening: {
		"Good evening! How was your day?",
		"Hi! Lovely evening, isn't it?",
		"Hey! How are you doing this evening?",
	},
	clock.Night: {
		"Good evening! Still up I see.",
		"Hi there! Working late?",
		"Hey! Nice to see you this evening.",
	},
}

func (p *Planner) greeting(period clock.Period) string {
	return entropy.Pick(p.rng, greetings[period])
}

func (p *Planner) trimPlans() {
	if len(p.plans) <= maxPlansKept {
		return
	}
	kept := p.plans[:0]
	drop := len(p.plans) - maxPlansKept
	for _, pl := range p.plans {
		if drop > 0 && pl.Status != PlanActive {
			drop--
			continue
		}
		kept = append(kept, pl)
	}
	p.plans = kept
}

// AddGoal appends a goal. Goals with an existing id replace the old one in place.
func (p *Planner) AddGoal(g Goal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.goals {
		if existing.ID == g.ID {
			gg := g
			p.goals[i] = &gg
			return
		}
	}
	gg := g
	p.goals = append(p.goals, &gg)
}

// CompleteGoal deactivates a goal and marks it fully achieved.
func (p *Planner) CompleteGoal(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.goals {
		if g.ID == id {
			g.Active = false
			g.Progress = 1.0
			return true
		}
	}
	return false
}

// ActiveGoals returns copies of the active goals in list order.
func (p *Planner) ActiveGoals() []Goal {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Goal
	for _, g := range p.goals {
		if g.Active {
			out = append(out, *g)
		}
	}
	return out
}

// Goals returns copies of every goal, active or not.
func (p *Planner) Goals() []Goal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Goal, len(p.goals))
	for i, g := range p.goals {
		out[i] = *g
	}
	return out
}

// CurrentPlan returns a summary of the plan most recently drawn from, if any.
func (p *Planner) CurrentPlan() (PlanView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return PlanView{}, false
	}
	return p.current.view(), true
}

// Plans returns summaries of the retained plans, oldest first.
func (p *Planner) Plans() []PlanView {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlanView, len(p.plans))
	for i, pl := range p.plans {
		out[i] = pl.view()
	}
	return out
}
