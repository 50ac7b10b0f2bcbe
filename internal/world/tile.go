package world

// Terrain types for map tiles.
type Terrain uint8

const (
	TerrainWalkable Terrain = iota // Open ground
	TerrainBlocked                 // Thickets, walls
	TerrainWater                   // Ponds
	TerrainBuilding                // Inside a building footprint
	TerrainRoad                    // Streets
)

var terrainNames = [...]string{"walkable", "blocked", "water", "building", "road"}

// String returns the terrain's name.
func (t Terrain) String() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "unknown"
}

// MarshalText encodes the terrain as its name.
func (t Terrain) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Tile is one cell of the town grid.
type Tile struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Terrain    Terrain `json:"terrain"`
	Area       string  `json:"area"`
	BuildingID string  `json:"building_id,omitempty"`
}

// Passable reports whether agents may stand on this tile.
func (t *Tile) Passable() bool {
	return t.Terrain == TerrainWalkable || t.Terrain == TerrainRoad
}
