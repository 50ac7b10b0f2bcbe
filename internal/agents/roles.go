package agents

import (
	"strings"

	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

// HandlerContext is what a role handler may consult when specializing an action.
type HandlerContext struct {
	Position world.Position
	Period   clock.Period
}

// Handler specializes a planned action for a role. It returns the action to perform.
type Handler func(a Action, hc HandlerContext) Action

// InsightRule fires when at least Min recent memories mention one of Words.
type InsightRule struct {
	Words []string
	Min   int
	Text  string
}

func (r InsightRule) matches(ms []memory.Memory) bool {
	n := 0
	for _, m := range ms {
		desc := strings.ToLower(m.Description)
		for _, w := range r.Words {
			if strings.Contains(desc, w) {
				n++
				break
			}
		}
	}
	return n >= r.Min
}

// Role bundles the handler overrides and reflection rules for an occupation.
type Role struct {
	Name     string
	WorkArea string
	Handlers map[Kind]Handler
	Insights []InsightRule
}

var baseInsights = []InsightRule{
	{Words: []string{"talk", "conversation", "chat"}, Min: 5, Text: "I enjoy the conversations I have around town. The people here make it feel like home."},
	{Words: []string{"work"}, Min: 6, Text: "I've been working a lot lately. I should make time to rest and see friends."},
}

// roles is the capability table. Handlers listed here replace the identity
// handler for that kind; everything else falls through to the base behavior.
var roles = map[string]Role{
	"barista": {
		Name:     "barista",
		WorkArea: "coffee_shop",
		Handlers: map[Kind]Handler{
			KindWork: func(a Action, _ HandlerContext) Action {
				w, ok := a.(Work)
				if !ok {
					return a
				}
				return Generic{EventID: "coffee_making", Minutes: w.Minutes, Location: "coffee_shop",
					Description: "Prepare coffee for customers", Extra: map[string]string{"work_type": "barista"}}
			},
			KindSocialize: func(a Action, hc HandlerContext) Action {
				if hc.Position.Area != "coffee_shop" {
					return a
				}
				s, ok := a.(Socialize)
				if !ok {
					return a
				}
				return Generic{EventID: "customer_greeting", Minutes: s.Minutes, Location: "coffee_shop",
					Description: "Greet customers at the counter"}
			},
		},
		Insights: []InsightRule{
			{Words: []string{"customer", "coffee"}, Min: 3, Text: "I've been noticing more customers are interested in specialty coffee. Maybe I should consider expanding my menu with more unique blends."},
			{Words: []string{"talk", "conversation", "chat"}, Min: 5, Text: "I really enjoy connecting with people in my community. These conversations make running the coffee shop so rewarding."},
			{Words: []string{"work", "coffee_shop"}, Min: 4, Text: "The coffee shop is becoming a real community hub. I should think about hosting some events to bring people together."},
		},
	},
	"librarian": {
		Name:     "librarian",
		WorkArea: "library",
		Handlers: map[Kind]Handler{
			KindWork: func(a Action, _ HandlerContext) Action {
				w, ok := a.(Work)
				if !ok {
					return a
				}
				return Generic{EventID: "organizing_books", Minutes: w.Minutes, Location: "library",
					Description: "Organize and shelve returned books", Extra: map[string]string{"work_type": "librarian"}}
			},
			KindSocialize: func(a Action, _ HandlerContext) Action {
				s, ok := a.(Socialize)
				if !ok {
					return a
				}
				if s.Activity != "relax" {
					return a
				}
				return Generic{EventID: "reading", Minutes: s.Minutes, Description: "Read a few chapters of a novel"}
			},
		},
		Insights: []InsightRule{
			{Words: []string{"book", "read", "library"}, Min: 3, Text: "People seem curious about new books lately. I should set up a table of recommendations near the entrance."},
			{Words: []string{"talk", "conversation", "chat"}, Min: 5, Text: "Helping visitors find the right book is the best part of my day."},
		},
	},
	"office_worker": {
		Name:     "office_worker",
		WorkArea: "office",
		Handlers: map[Kind]Handler{
			KindWork: func(a Action, hc HandlerContext) Action {
				if hc.Period != clock.Morning {
					return a
				}
				w, ok := a.(Work)
				if !ok {
					return a
				}
				return Generic{EventID: "meeting_attendance", Minutes: w.Minutes, Location: "office",
					Description: "Attend the morning team meeting", Extra: map[string]string{"work_type": "office_worker"}}
			},
			KindSocialize: func(a Action, hc HandlerContext) Action {
				if hc.Period != clock.Afternoon {
					return a
				}
				s, ok := a.(Socialize)
				if !ok {
					return a
				}
				return Generic{EventID: "lunch_break", Minutes: s.Minutes, Description: "Take a lunch break"}
			},
		},
		Insights: []InsightRule{
			{Words: []string{"work", "meeting", "office"}, Min: 4, Text: "My days at the office are getting busy. I should plan my meetings better to keep some focus time."},
			{Words: []string{"talk", "conversation", "chat"}, Min: 5, Text: "Chatting with neighbours gives me a welcome break from office work."},
		},
	},
	"resident": {
		Name: "resident",
		Handlers: map[Kind]Handler{
			KindSocialize: func(a Action, hc HandlerContext) Action {
				s, ok := a.(Socialize)
				if !ok {
					return a
				}
				if hc.Period != clock.Morning || s.Activity != "relax" {
					return a
				}
				return Generic{EventID: "exercising", Minutes: s.Minutes, Description: "Go for a morning jog"}
			},
		},
	},
}

// RoleFor returns the capability table entry for a role name. Unknown roles
// get the base behavior only.
func RoleFor(name string) Role {
	if r, ok := roles[name]; ok {
		return r
	}
	return Role{Name: name}
}

// buildHandlers layers a role's overrides on the identity handlers.
func buildHandlers(r Role) map[Kind]Handler {
	identity := func(a Action, _ HandlerContext) Action { return a }
	h := map[Kind]Handler{
		KindMove:      identity,
		KindTalk:      identity,
		KindWork:      identity,
		KindSocialize: identity,
	}
	for k, fn := range r.Handlers {
		h[k] = fn
	}
	return h
}

// insightsFor applies the role rules then the shared ones. When nothing fires
// it summarizes the most common recent activity.
func insightsFor(r Role, recent []memory.Memory) []string {
	var out []string
	for _, rule := range append(append([]InsightRule(nil), r.Insights...), baseInsights...) {
		if rule.matches(recent) && !contains(out, rule.Text) {
			out = append(out, rule.Text)
		}
	}
	if len(out) > 0 || len(recent) == 0 {
		return out
	}

	counts := make(map[string]int)
	top := ""
	for _, m := range recent {
		if m.EventType == "" || m.EventType == "reflection" {
			continue
		}
		counts[m.EventType]++
		if c := counts[m.EventType]; c > counts[top] || (c == counts[top] && m.EventType < top) {
			top = m.EventType
		}
	}
	if top == "" {
		return nil
	}
	return []string{"Lately most of what I notice is " + strings.ReplaceAll(top, "_", " ") + "."}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
