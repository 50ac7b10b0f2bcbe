package world

import (
	"fmt"
	"sort"
	"sync"
)

// Rect is an axis-aligned tile region, max-exclusive.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Contains reports whether the coordinate lies inside the rectangle.
func (r Rect) Contains(c Coord) bool {
	return c.X >= r.MinX && c.X < r.MaxX && c.Y >= r.MinY && c.Y < r.MaxY
}

type namedArea struct {
	name string
	rect Rect
}

// Map holds the town's tile grid, building registry, and path cache.
// Geometry is fixed after construction; only building occupancy changes.
type Map struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	tiles     []Tile
	buildings map[string]*Building
	order     []string // building ids in registration order
	areas     []namedArea

	pathMu    sync.Mutex
	pathCache map[[2]Coord][]Coord
}

// NewMap creates a grid where every tile is open ground in the "outdoors" area.
func NewMap(width, height int) *Map {
	m := &Map{
		Width:     width,
		Height:    height,
		tiles:     make([]Tile, width*height),
		buildings: make(map[string]*Building),
		pathCache: make(map[[2]Coord][]Coord),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.tiles[y*width+x] = Tile{X: x, Y: y, Terrain: TerrainWalkable, Area: "outdoors"}
		}
	}
	return m
}

// InBounds returns true if the coordinate is on the grid.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// Tile returns the tile at (x, y), or nil if out of bounds.
func (m *Map) Tile(x, y int) *Tile {
	if !m.InBounds(x, y) {
		return nil
	}
	return &m.tiles[y*m.Width+x]
}

// IsWalkable reports whether (x, y) is in bounds and open ground or road.
func (m *Map) IsWalkable(x, y int) bool {
	t := m.Tile(x, y)
	return t != nil && t.Passable()
}

// SetTerrain overwrites a tile's terrain. Out-of-bounds writes are ignored.
func (m *Map) SetTerrain(x, y int, terrain Terrain) {
	if t := m.Tile(x, y); t != nil {
		t.Terrain = terrain
	}
}

// AddBuilding registers a building and stamps its footprint onto the grid.
// The entrance tile stays walkable so agents can step inside.
func (m *Map) AddBuilding(b Building) error {
	if b.ID == "" {
		return fmt.Errorf("building has no id")
	}
	if _, ok := m.buildings[b.ID]; ok {
		return fmt.Errorf("duplicate building %q", b.ID)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("building %q has empty footprint", b.ID)
	}
	if b.Capacity <= 0 {
		b.Capacity = DefaultCapacity
	}
	if b.Description == "" {
		b.Description = fmt.Sprintf("A %s in the town", b.Type)
	}

	for x := b.Entrance.X; x < b.Entrance.X+b.Width; x++ {
		for y := b.Entrance.Y; y < b.Entrance.Y+b.Height; y++ {
			t := m.Tile(x, y)
			if t == nil {
				continue
			}
			t.Terrain = TerrainBuilding
			t.Area = b.ID
			t.BuildingID = b.ID
		}
	}
	if t := m.Tile(b.Entrance.X, b.Entrance.Y); t != nil {
		t.Terrain = TerrainWalkable
	}

	bb := b
	m.buildings[b.ID] = &bb
	m.order = append(m.order, b.ID)
	return nil
}

// PaintRoads lays full-length streets along the given rows and columns.
// Streets cut through any building footprint they cross.
func (m *Map) PaintRoads(rows, cols []int) {
	for _, y := range rows {
		for x := 0; x < m.Width; x++ {
			if t := m.Tile(x, y); t != nil {
				t.Terrain = TerrainRoad
				t.Area = "road"
				t.BuildingID = ""
			}
		}
	}
	for _, x := range cols {
		for y := 0; y < m.Height; y++ {
			if t := m.Tile(x, y); t != nil {
				t.Terrain = TerrainRoad
				t.Area = "road"
				t.BuildingID = ""
			}
		}
	}
}

// DefineArea names a district. Districts may overlap.
func (m *Map) DefineArea(name string, r Rect) {
	m.areas = append(m.areas, namedArea{name: name, rect: r})
}

// AreaName returns the tile's area label, or "unknown" off the grid.
func (m *Map) AreaName(x, y int) string {
	if t := m.Tile(x, y); t != nil {
		return t.Area
	}
	return "unknown"
}

// DistrictsAt returns the names of every district covering (x, y).
func (m *Map) DistrictsAt(x, y int) []string {
	var out []string
	c := Coord{X: x, Y: y}
	for _, a := range m.areas {
		if a.rect.Contains(c) {
			out = append(out, a.name)
		}
	}
	return out
}

// Building returns the building with the given id, or nil.
func (m *Map) Building(id string) *Building {
	return m.buildings[id]
}

// BuildingAt returns the building whose footprint covers (x, y), or nil.
func (m *Map) BuildingAt(x, y int) *Building {
	t := m.Tile(x, y)
	if t == nil || t.BuildingID == "" {
		return nil
	}
	return m.buildings[t.BuildingID]
}

// Buildings returns all buildings in registration order.
func (m *Map) Buildings() []*Building {
	out := make([]*Building, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.buildings[id])
	}
	return out
}

// BuildingsOfType returns buildings with the given type, in registration order.
func (m *Map) BuildingsOfType(kind string) []*Building {
	var out []*Building
	for _, id := range m.order {
		if b := m.buildings[id]; b.Type == kind {
			out = append(out, b)
		}
	}
	return out
}

// AddAgentToBuilding records the agent as an occupant.
// Returns false without side effects if the building is unknown or full.
// Adding an agent that is already inside succeeds without duplicating it.
func (m *Map) AddAgentToBuilding(buildingID, agentID string) bool {
	b := m.buildings[buildingID]
	if b == nil {
		return false
	}
	if b.Occupied(agentID) {
		return true
	}
	if len(b.occupants) >= b.Capacity {
		return false
	}
	b.occupants = append(b.occupants, agentID)
	return true
}

// RemoveAgentFromBuilding drops the agent from the occupant set. No-op for non-members.
func (m *Map) RemoveAgentFromBuilding(buildingID, agentID string) {
	b := m.buildings[buildingID]
	if b == nil {
		return
	}
	for i, id := range b.occupants {
		if id == agentID {
			b.occupants = append(b.occupants[:i], b.occupants[i+1:]...)
			return
		}
	}
}

// Approach returns the tile an agent should walk to in order to reach target.
// Targets inside a building footprint resolve to that building's entrance.
func (m *Map) Approach(target Coord) Coord {
	if m.IsWalkable(target.X, target.Y) {
		return target
	}
	if b := m.BuildingAt(target.X, target.Y); b != nil {
		return b.Entrance
	}
	return target
}

// AgentLocation is one entry of the position table passed to NearbyAgents.
type AgentLocation struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// NearbyAgent is a radius query hit annotated with the tile's area.
type NearbyAgent struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Area     string  `json:"area"`
	Distance float64 `json:"distance"`
}

// Position returns the hit's location as a Position.
func (n NearbyAgent) Position() Position {
	return Position{X: n.X, Y: n.Y, Area: n.Area}
}

// NearbyAgents returns every agent within radius of (cx, cy), nearest first.
func (m *Map) NearbyAgents(cx, cy, radius float64, agents []AgentLocation) []NearbyAgent {
	center := Position{X: cx, Y: cy}
	var out []NearbyAgent
	for _, a := range agents {
		d := center.DistanceTo(a.Position)
		if d > radius {
			continue
		}
		tile := a.Position.Tile()
		out = append(out, NearbyAgent{
			ID:       a.ID,
			Name:     a.Name,
			X:        a.Position.X,
			Y:        a.Position.Y,
			Area:     m.AreaName(tile.X, tile.Y),
			Distance: d,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// View is the serializable map geometry for presentation.
type View struct {
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Buildings []BuildingView `json:"buildings"`
	Areas     []AreaView     `json:"areas"`
}

// AreaView is one named district, max-exclusive.
type AreaView struct {
	Name string `json:"name"`
	MinX int    `json:"min_x"`
	MinY int    `json:"min_y"`
	MaxX int    `json:"max_x"`
	MaxY int    `json:"max_y"`
}

// View returns the districts, building geometry and occupancy.
func (m *Map) View() View {
	v := View{Width: m.Width, Height: m.Height}
	for _, b := range m.Buildings() {
		v.Buildings = append(v.Buildings, b.View())
	}
	for _, a := range m.areas {
		v.Areas = append(v.Areas, AreaView{Name: a.name, MinX: a.rect.MinX, MinY: a.rect.MinY, MaxX: a.rect.MaxX, MaxY: a.rect.MaxY})
	}
	return v
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%dx%d, buildings=%d)", m.Width, m.Height, len(m.buildings))
}
