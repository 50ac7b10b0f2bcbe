package events

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Category groups event types for display and filtering.
type Category string

const (
	CategoryMovement    Category = "movement"
	CategorySocial      Category = "social"
	CategoryWork        Category = "work"
	CategoryPersonal    Category = "personal"
	CategoryLearning    Category = "learning"
	CategoryMaintenance Category = "maintenance"
	CategoryRecreation  Category = "recreation"
)

// DefaultImportance is used for event types the registry doesn't know.
const DefaultImportance = 3.0

// Metadata describes how an event type is displayed and weighted.
type Metadata struct {
	ID            string   `json:"id" yaml:"id"`
	Icon          string   `json:"icon" yaml:"icon"`
	Category      Category `json:"category" yaml:"category"`
	DisplayName   string   `json:"display_name" yaml:"display_name"`
	Template      string   `json:"template" yaml:"template"` // e.g. "{agent_name} is reading"
	Color         string   `json:"color" yaml:"color"`
	DurationRange [2]int   `json:"duration_range" yaml:"duration_range"` // minutes
	Importance    float64  `json:"importance" yaml:"importance"`
	Tags          []string `json:"tags" yaml:"tags"`
}

// Registry maps event ids to display metadata. Build one at startup and
// hand it to the world and every agent.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Metadata
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Metadata)}
}

// DefaultRegistry returns a registry preloaded with the town's standard events.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, md := range defaultMetadata {
		if err := r.Register(md); err != nil {
			panic(err) // static table
		}
	}
	return r
}

// Register adds or replaces metadata for an event id.
func (r *Registry) Register(md Metadata) error {
	if md.ID == "" {
		return fmt.Errorf("event metadata has no id")
	}
	if md.Importance < 0 || md.Importance > 10 {
		return fmt.Errorf("event %q: importance %.1f outside 0-10", md.ID, md.Importance)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[md.ID]; !ok {
		r.order = append(r.order, md.ID)
	}
	r.byID[md.ID] = md
	return nil
}

// Lookup returns the metadata for id.
func (r *Registry) Lookup(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.byID[id]
	return md, ok
}

// Known reports whether id is registered.
func (r *Registry) Known(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ByCategory returns metadata in the category, sorted by id.
func (r *Registry) ByCategory(c Category) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Metadata
	for _, md := range r.byID {
		if md.Category == c {
			out = append(out, md)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Importance returns the memory weight for perceiving an event of this type.
func (r *Registry) Importance(id string) float64 {
	if md, ok := r.Lookup(id); ok && md.Importance > 0 {
		return md.Importance
	}
	return DefaultImportance
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Describe renders the event type's template with fields.
// Placeholders without a matching field render as "someone".
func (r *Registry) Describe(id string, fields map[string]string) string {
	tmpl := "{agent_name} is busy with " + strings.ReplaceAll(id, "_", " ")
	if md, ok := r.Lookup(id); ok && md.Template != "" {
		tmpl = md.Template
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := fields[m[1:len(m)-1]]; ok && v != "" {
			return v
		}
		return "someone"
	})
}

// View decorates a live event with display metadata and remaining duration.
func (r *Registry) View(e Event, remaining *int) View {
	v := View{Event: e, Icon: "•", Category: string(CategoryPersonal), Remaining: remaining}
	if md, ok := r.Lookup(e.Type); ok {
		v.Icon = md.Icon
		v.Category = string(md.Category)
	}
	return v
}

var defaultMetadata = []Metadata{
	{ID: TypeMovement, Icon: "🚶", Category: CategoryMovement, DisplayName: "Movement",
		Template: "{agent_name} moved to {to_area}", Color: "#28a745", DurationRange: [2]int{1, 1}, Importance: 1, Tags: []string{"basic", "navigation"}},
	{ID: TypeConversation, Icon: "💬", Category: CategorySocial, DisplayName: "Conversation",
		Template: "{agent_name} started a conversation with {target_name}", Color: "#17a2b8", DurationRange: [2]int{5, 5}, Importance: 4, Tags: []string{"social", "communication"}},
	{ID: TypeInteraction, Icon: "👋", Category: CategorySocial, DisplayName: "Greeting",
		Template: "{agent_name} greeted {target_name}", Color: "#20c997", DurationRange: [2]int{3, 3}, Importance: 3, Tags: []string{"social", "spontaneous"}},
	{ID: TypeReflection, Icon: "💭", Category: CategoryPersonal, DisplayName: "Reflection",
		Template: "{agent_name} is reflecting on {topic}", Color: "#6f42c1", DurationRange: [2]int{5, 15}, Importance: 5, Tags: []string{"introspection", "mental"}},
	{ID: "work", Icon: "💼", Category: CategoryWork, DisplayName: "Working",
		Template: "{agent_name} is working diligently", Color: "#FF8C00", DurationRange: [2]int{30, 120}, Importance: 2, Tags: []string{"general", "productive"}},
	{ID: "sleep", Icon: "😴", Category: CategoryPersonal, DisplayName: "Sleeping",
		Template: "{agent_name} is sleeping at {location}", Color: "#343a40", DurationRange: [2]int{60, 480}, Importance: 1, Tags: []string{"rest"}},
	{ID: "eat", Icon: "🍽️", Category: CategoryPersonal, DisplayName: "Eating",
		Template: "{agent_name} is having a meal at {location}", Color: "#fd7e14", DurationRange: [2]int{15, 30}, Importance: 2, Tags: []string{"rest", "food"}},
	{ID: "socialize", Icon: "😊", Category: CategorySocial, DisplayName: "Socializing",
		Template: "{agent_name} is out to {activity}", Color: "#e83e8c", DurationRange: [2]int{5, 20}, Importance: 3, Tags: []string{"social"}},
	{ID: "explore", Icon: "🗺️", Category: CategoryRecreation, DisplayName: "Exploring",
		Template: "{agent_name} is exploring the town", Color: "#6610f2", DurationRange: [2]int{10, 30}, Importance: 2, Tags: []string{"curiosity"}},
	{ID: "coffee_making", Icon: "☕", Category: CategoryWork, DisplayName: "Making Coffee",
		Template: "{agent_name} is brewing coffee at the coffee shop", Color: "#8B4513", DurationRange: [2]int{5, 15}, Importance: 2, Tags: []string{"barista", "craft"}},
	{ID: "customer_greeting", Icon: "👋", Category: CategoryWork, DisplayName: "Greeting Customers",
		Template: "{agent_name} welcomes a customer", Color: "#FFD700", DurationRange: [2]int{2, 5}, Importance: 3, Tags: []string{"barista", "social"}},
	{ID: "organizing_books", Icon: "📚", Category: CategoryWork, DisplayName: "Organizing Books",
		Template: "{agent_name} is organizing the shelves", Color: "#8B0000", DurationRange: [2]int{15, 45}, Importance: 2, Tags: []string{"librarian"}},
	{ID: "reading", Icon: "📘", Category: CategoryLearning, DisplayName: "Reading",
		Template: "{agent_name} is reading", Color: "#4169E1", DurationRange: [2]int{20, 60}, Importance: 2, Tags: []string{"learning", "quiet"}},
	{ID: "meeting_attendance", Icon: "👔", Category: CategoryWork, DisplayName: "In a Meeting",
		Template: "{agent_name} is attending a meeting", Color: "#2F4F4F", DurationRange: [2]int{30, 60}, Importance: 3, Tags: []string{"office"}},
	{ID: "lunch_break", Icon: "🍽️", Category: CategoryPersonal, DisplayName: "Lunch Break",
		Template: "{agent_name} is on a lunch break", Color: "#FF6347", DurationRange: [2]int{20, 45}, Importance: 2, Tags: []string{"office", "food"}},
	{ID: "exercising", Icon: "💪", Category: CategoryRecreation, DisplayName: "Exercising",
		Template: "{agent_name} is exercising", Color: "#32CD32", DurationRange: [2]int{20, 60}, Importance: 2, Tags: []string{"health"}},
}
