package world

import "log/slog"

// GenConfig holds town generation parameters.
type GenConfig struct {
	Width   int
	Height  int
	Seed    int64
	Scenery float64 // 0 disables ponds and thickets; 0.1–0.3 is a light scattering
}

// DefaultGenConfig returns the standard 100x100 town with no scenery.
func DefaultGenConfig() GenConfig {
	return GenConfig{Width: 100, Height: 100}
}

// Street rows and columns of the standard town.
var (
	RoadRows = []int{12, 32, 52}
	RoadCols = []int{18, 42, 58}
)

// DefaultBuildings is the standard town roster. Entrances are top-left corners.
func DefaultBuildings() []Building {
	return []Building{
		{ID: "house_1", Name: "Alice's House", Type: "home", Entrance: Coord{5, 5}, Width: 8, Height: 6},
		{ID: "house_2", Name: "Bob's House", Type: "home", Entrance: Coord{5, 15}, Width: 8, Height: 6},
		{ID: "house_3", Name: "Charlie's House", Type: "home", Entrance: Coord{5, 25}, Width: 8, Height: 6},
		{ID: "coffee_shop", Name: "Alice's Coffee Shop", Type: "shop", Entrance: Coord{20, 20}, Width: 10, Height: 8},
		{ID: "bookstore", Name: "The Book Corner", Type: "shop", Entrance: Coord{35, 20}, Width: 8, Height: 6},
		{ID: "grocery", Name: "Town Grocery", Type: "shop", Entrance: Coord{20, 35}, Width: 12, Height: 8},
		{ID: "office_1", Name: "Town Office", Type: "office", Entrance: Coord{60, 30}, Width: 15, Height: 10},
		{ID: "library", Name: "Public Library", Type: "office", Entrance: Coord{60, 15}, Width: 12, Height: 8},
		{ID: "park", Name: "Central Park", Type: "park", Entrance: Coord{45, 45}, Width: 20, Height: 15},
		{ID: "restaurant", Name: "Town Restaurant", Type: "restaurant", Entrance: Coord{25, 50}, Width: 10, Height: 8},
	}
}

// Districts of the standard town. They overlap; downtown sits inside commercial.
var defaultDistricts = []namedArea{
	{name: "residential", rect: Rect{0, 0, 20, 40}},
	{name: "commercial", rect: Rect{20, 15, 50, 45}},
	{name: "office", rect: Rect{50, 10, 80, 50}},
	{name: "park", rect: Rect{45, 45, 65, 60}},
	{name: "downtown", rect: Rect{20, 20, 50, 40}},
}

// GenerateTown builds the standard town: buildings, then streets, then districts,
// then optional scenery on the remaining open ground.
func GenerateTown(cfg GenConfig) (*Map, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 100, 100
	}
	m := NewMap(cfg.Width, cfg.Height)

	for _, b := range DefaultBuildings() {
		if err := m.AddBuilding(b); err != nil {
			return nil, err
		}
	}
	m.PaintRoads(RoadRows, RoadCols)
	for _, a := range defaultDistricts {
		m.DefineArea(a.name, a.rect)
	}

	if cfg.Scenery > 0 {
		placed := ScatterScenery(m, cfg.Seed, cfg.Scenery)
		slog.Info("scenery placed", "tiles", placed, "density", cfg.Scenery)
	}
	return m, nil
}

// TerrainCounts returns how many tiles of each terrain exist.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for i := range m.tiles {
		counts[m.tiles[i].Terrain]++
	}
	return counts
}
