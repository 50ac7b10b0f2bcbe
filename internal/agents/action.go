// Package agents implements the generative agent: its action vocabulary, needs,
// goals and plans, the rule-based planner, and the per-tick cognitive cycle.
package agents

import (
	"fmt"
	"strconv"

	"github.com/talgya/ai-town/internal/world"
)

// Kind tags an action variant. Generic actions use their event id as the kind.
type Kind string

const (
	KindMove      Kind = "move"
	KindTalk      Kind = "talk"
	KindWork      Kind = "work"
	KindSocialize Kind = "socialize"
	KindSleep     Kind = "sleep"
	KindEat       Kind = "eat"
	KindIdle      Kind = "idle"
	KindError     Kind = "error"
)

// Action is one plan step and the value an agent hands the world each tick.
// The set of variants is closed: Move, Talk, Work, Socialize, Generic, Failure.
type Action interface {
	Kind() Kind
	Describe() string
	// Fields returns the variant-specific details carried into event metadata.
	Fields() map[string]string
	sealed()
}

// Move walks the agent toward Target. The world routes it one tile per tick.
type Move struct {
	Target      world.Position
	Description string
}

// Talk sends Message to the agent TargetID.
type Talk struct {
	TargetID    string
	TargetName  string
	Message     string
	Description string
}

// Work is a stint of the agent's occupation.
type Work struct {
	WorkType    string
	Minutes     int
	Description string
}

// Socialize is unstructured social time.
type Socialize struct {
	Activity    string
	Minutes     int
	Description string
}

// Generic covers every other registered activity (sleep, eat, role events).
type Generic struct {
	EventID     string
	Minutes     int
	Location    string
	Description string
	Extra       map[string]string
}

// Failure is the result recorded for an agent whose step failed.
type Failure struct {
	Err string
}

func (Move) Kind() Kind      { return KindMove }
func (Talk) Kind() Kind      { return KindTalk }
func (Work) Kind() Kind      { return KindWork }
func (Socialize) Kind() Kind { return KindSocialize }
func (g Generic) Kind() Kind { return Kind(g.EventID) }
func (Failure) Kind() Kind   { return KindError }

func (Move) sealed()      {}
func (Talk) sealed()      {}
func (Work) sealed()      {}
func (Socialize) sealed() {}
func (Generic) sealed()   {}
func (Failure) sealed()   {}

func (a Move) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	return fmt.Sprintf("Go to %s", a.Target.Area)
}

func (a Talk) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	return fmt.Sprintf("Talk to %s", a.TargetName)
}

func (a Work) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	return "Focus on work tasks"
}

func (a Socialize) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	return "Spend time to " + a.Activity
}

func (a Generic) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	return a.EventID
}

func (a Failure) Describe() string { return "step failed: " + a.Err }

func (a Move) Fields() map[string]string {
	return map[string]string{
		"target_x":    strconv.FormatFloat(a.Target.X, 'f', -1, 64),
		"target_y":    strconv.FormatFloat(a.Target.Y, 'f', -1, 64),
		"target_area": a.Target.Area,
	}
}

func (a Talk) Fields() map[string]string {
	return map[string]string{"target_agent": a.TargetID, "message": a.Message}
}

func (a Work) Fields() map[string]string {
	return map[string]string{"work_type": a.WorkType, "duration": strconv.Itoa(a.Minutes), "description": a.Describe()}
}

func (a Socialize) Fields() map[string]string {
	return map[string]string{"activity": a.Activity, "duration": strconv.Itoa(a.Minutes), "description": a.Describe()}
}

func (a Generic) Fields() map[string]string {
	f := make(map[string]string, len(a.Extra)+3)
	for k, v := range a.Extra {
		f[k] = v
	}
	f["duration"] = strconv.Itoa(a.Minutes)
	f["description"] = a.Describe()
	if a.Location != "" {
		f["location"] = a.Location
	}
	return f
}

func (a Failure) Fields() map[string]string { return map[string]string{"error": a.Err} }

// completionMinutes is how long an action occupies the agent before it replans.
// Moves finish on arrival instead.
var completionMinutes = map[Kind]int{
	KindTalk:      5,
	KindWork:      30,
	KindEat:       15,
	KindSleep:     480,
	KindSocialize: 20,
}

const defaultCompletionMinutes = 10

// CompletionMinutes returns the occupancy time for an action kind.
func CompletionMinutes(k Kind) int {
	if m, ok := completionMinutes[k]; ok {
		return m
	}
	return defaultCompletionMinutes
}

// Result is what the world receives from one agent step.
type Result struct {
	AgentID  string `json:"agent_id"`
	Action   Action `json:"-"`
	Err      error  `json:"-"`
	Ongoing  bool   `json:"ongoing"`            // Action continues from an earlier tick
	Degraded string `json:"degraded,omitempty"` // why the tick was planned by rules alone
}

// Type returns the result's action kind, "error" for failed steps.
func (r Result) Type() Kind {
	if r.Err != nil || r.Action == nil {
		return KindError
	}
	return r.Action.Kind()
}
