package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// ScatterScenery turns patches of open "outdoors" ground into ponds and thickets
// using two octaves of simplex noise. Streets, building footprints, and tiles next
// to a street or entrance are never touched. Returns the number of tiles changed.
func ScatterScenery(m *Map, seed int64, density float64) int {
	if density <= 0 {
		return 0
	}
	if density > 1 {
		density = 1
	}
	if seed == 0 {
		seed = rand.Int63()
	}

	water := opensimplex.NewNormalized(seed)
	brush := opensimplex.NewNormalized(seed + 1)

	// Noise rarely reaches its extremes, so thresholds sit well inside [0, 1].
	waterCut := 1 - density*0.5
	brushCut := 1 - density*0.35

	placed := 0
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			t := m.Tile(x, y)
			if t.Terrain != TerrainWalkable || t.Area != "outdoors" || m.nearAccess(x, y) {
				continue
			}
			fx, fy := float64(x), float64(y)
			w := 0.7*water.Eval2(fx*0.06, fy*0.06) + 0.3*water.Eval2(fx*0.15, fy*0.15)
			b := brush.Eval2(fx*0.2, fy*0.2)
			switch {
			case w > waterCut:
				t.Terrain = TerrainWater
				placed++
			case b > brushCut:
				t.Terrain = TerrainBlocked
				placed++
			}
		}
	}
	m.resetPathCache()
	return placed
}

// nearAccess reports whether a street or building entrance is within one tile.
func (m *Map) nearAccess(x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			t := m.Tile(x+dx, y+dy)
			if t == nil {
				continue
			}
			if t.Terrain == TerrainRoad {
				return true
			}
			if t.BuildingID != "" {
				if b := m.buildings[t.BuildingID]; b != nil && b.Entrance == (Coord{x + dx, y + dy}) {
					return true
				}
			}
		}
	}
	return false
}
