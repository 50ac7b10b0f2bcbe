package world

// DefaultCapacity is the occupant limit for buildings that don't set one.
const DefaultCapacity = 10

// Building is a rectangular structure whose top-left corner is its entrance.
type Building struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Entrance    Coord  `json:"entrance"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Capacity    int    `json:"capacity"`
	Description string `json:"description"`

	occupants []string // insertion order, unique
}

// Contains reports whether the tile lies within the building footprint.
func (b *Building) Contains(c Coord) bool {
	return c.X >= b.Entrance.X && c.X < b.Entrance.X+b.Width &&
		c.Y >= b.Entrance.Y && c.Y < b.Entrance.Y+b.Height
}

// Occupants returns a copy of the current occupant ids.
func (b *Building) Occupants() []string {
	out := make([]string, len(b.occupants))
	copy(out, b.occupants)
	return out
}

// Occupied reports whether the agent is inside.
func (b *Building) Occupied(agentID string) bool {
	for _, id := range b.occupants {
		if id == agentID {
			return true
		}
	}
	return false
}

// BuildingView is the serializable form of a building for snapshots.
type BuildingView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Capacity  int      `json:"capacity"`
	Occupants []string `json:"occupants"`
}

// View returns the building's serializable form.
func (b *Building) View() BuildingView {
	return BuildingView{
		ID:        b.ID,
		Name:      b.Name,
		Type:      b.Type,
		X:         b.Entrance.X,
		Y:         b.Entrance.Y,
		Width:     b.Width,
		Height:    b.Height,
		Capacity:  b.Capacity,
		Occupants: b.Occupants(),
	}
}
