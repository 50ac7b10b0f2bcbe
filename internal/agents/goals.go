package agents

import (
	"time"

	"github.com/talgya/ai-town/internal/world"
)

// Starter goal ids. The planner maps these to need terms and plan generators.
const (
	GoalMaintainEnergy    = "maintain_energy"
	GoalSocialConnection  = "social_connection"
	GoalDailyProductivity = "daily_productivity"
	GoalPersonalGrowth    = "personal_growth"
	GoalLeisure           = "leisure"
)

// Goal is a persistent, prioritized objective. Goals are deactivated, never removed.
type Goal struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Priority    float64    `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Active      bool       `json:"is_active"`
	Progress    float64    `json:"progress"`
}

// StarterGoals returns the goals every agent begins with.
func StarterGoals() []Goal {
	return []Goal{
		{ID: GoalMaintainEnergy, Description: "Keep energy levels healthy", Priority: 9, Active: true},
		{ID: GoalSocialConnection, Description: "Maintain social relationships", Priority: 7, Active: true},
		{ID: GoalDailyProductivity, Description: "Be productive in daily work", Priority: 6, Active: true},
		{ID: GoalPersonalGrowth, Description: "Learn new things and develop skills", Priority: 5, Active: true},
	}
}

// PlanStatus tracks a plan through its lifecycle.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// Plan is an ordered queue of actions serving one goal.
type Plan struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Description string     `json:"description"`
	Actions     []Action   `json:"-"`
	Status      PlanStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PlanView is the serializable summary of a plan.
type PlanView struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Description string     `json:"description"`
	Status      PlanStatus `json:"status"`
	Remaining   []string   `json:"remaining"`
}

func (p *Plan) view() PlanView {
	v := PlanView{ID: p.ID, GoalID: p.GoalID, Description: p.Description, Status: p.Status}
	for _, a := range p.Actions {
		v.Remaining = append(v.Remaining, a.Describe())
	}
	return v
}

// Landmarks are the fixed destinations plans send an agent to.
type Landmarks struct {
	Home    world.Position `json:"home"`
	Kitchen world.Position `json:"kitchen"`
	Park    world.Position `json:"park"`
	Work    world.Position `json:"work"`
}

// DefaultLandmarks returns the standard town destinations.
func DefaultLandmarks() Landmarks {
	return Landmarks{
		Home:    world.Position{X: 10, Y: 10, Area: "home"},
		Kitchen: world.Position{X: 15, Y: 15, Area: "kitchen"},
		Park:    world.Position{X: 50, Y: 50, Area: "park"},
		Work:    world.Position{X: 30, Y: 30, Area: "office"},
	}
}

// LandmarksFor resolves an agent's home and workplace buildings on the map.
// Unknown building ids keep the default destination. workArea labels the
// workplace for need assessment.
func LandmarksFor(m *world.Map, homeID, workID, workArea string) Landmarks {
	l := DefaultLandmarks()
	if workArea != "" {
		l.Work.Area = workArea
	}
	if m == nil {
		return l
	}
	if b := m.Building(homeID); b != nil {
		l.Home = b.Entrance.At("home")
	}
	if b := m.Building(workID); b != nil {
		l.Work = b.Entrance.At(l.Work.Area)
	}
	if parks := m.BuildingsOfType("park"); len(parks) > 0 {
		l.Park = parks[0].Entrance.At("park")
	}
	return l
}
