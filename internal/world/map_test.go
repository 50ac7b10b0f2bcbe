package world

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTown(t *testing.T) *Map {
	t.Helper()
	m, err := GenerateTown(DefaultGenConfig())
	require.NoError(t, err)
	return m
}

func TestGenerateTownLayout(t *testing.T) {
	m := newTown(t)

	assert.Len(t, m.Buildings(), 10)
	assert.Equal(t, "house_1", m.Buildings()[0].ID)

	home := m.Building("house_1")
	require.NotNil(t, home)
	assert.True(t, m.IsWalkable(5, 5), "entrance stays walkable")
	assert.False(t, m.IsWalkable(6, 6), "interior is building")
	assert.Equal(t, TerrainBuilding, m.Tile(6, 6).Terrain)
	assert.Equal(t, "house_1", m.AreaName(6, 6))
	assert.Equal(t, DefaultCapacity, home.Capacity)
	assert.Equal(t, "A home in the town", home.Description)

	assert.Equal(t, TerrainRoad, m.Tile(0, 12).Terrain)
	assert.Equal(t, TerrainRoad, m.Tile(18, 90).Terrain)
	assert.Equal(t, "road", m.AreaName(42, 22))
	assert.Nil(t, m.BuildingAt(42, 22), "street cuts through the bookstore")

	assert.Equal(t, "outdoors", m.AreaName(1, 1))
	assert.Equal(t, "unknown", m.AreaName(-1, 0))
	assert.ElementsMatch(t, []string{"commercial", "downtown"}, m.DistrictsAt(31, 31))
	assert.Len(t, m.BuildingsOfType("shop"), 3)
}

func TestViewListsDistricts(t *testing.T) {
	v := newTown(t).View()
	require.Len(t, v.Areas, 5)
	assert.Equal(t, AreaView{Name: "residential", MinX: 0, MinY: 0, MaxX: 20, MaxY: 40}, v.Areas[0])
	assert.Equal(t, "downtown", v.Areas[4].Name)
	assert.Len(t, v.Buildings, 10)
}

func TestIsWalkableBounds(t *testing.T) {
	m := NewMap(4, 3)
	assert.True(t, m.IsWalkable(0, 0))
	assert.True(t, m.IsWalkable(3, 2))
	assert.False(t, m.IsWalkable(4, 0))
	assert.False(t, m.IsWalkable(0, -1))

	m.SetTerrain(1, 1, TerrainWater)
	assert.False(t, m.IsWalkable(1, 1))
	m.SetTerrain(1, 1, TerrainRoad)
	assert.True(t, m.IsWalkable(1, 1))
}

func TestAddBuildingRejectsDuplicates(t *testing.T) {
	m := NewMap(20, 20)
	require.NoError(t, m.AddBuilding(Building{ID: "a", Type: "shop", Entrance: Coord{1, 1}, Width: 2, Height: 2}))
	assert.Error(t, m.AddBuilding(Building{ID: "a", Type: "shop", Entrance: Coord{5, 5}, Width: 2, Height: 2}))
	assert.Error(t, m.AddBuilding(Building{ID: "b", Width: 0, Height: 2}))
	assert.Error(t, m.AddBuilding(Building{Width: 1, Height: 1}))
}

func TestOccupancyNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(rt, "capacity")
		adds := rapid.IntRange(0, 20).Draw(rt, "adds")

		m := NewMap(10, 10)
		require.NoError(rt, m.AddBuilding(Building{ID: "b", Type: "shop", Entrance: Coord{1, 1}, Width: 3, Height: 3, Capacity: capacity}))

		for i := 0; i < adds; i++ {
			ok := m.AddAgentToBuilding("b", fmt.Sprintf("agent_%d", i))
			assert.Equal(rt, i < capacity, ok)
		}
		assert.LessOrEqual(rt, len(m.Building("b").Occupants()), capacity)

		before := m.Building("b").Occupants()
		m.RemoveAgentFromBuilding("b", "stranger")
		assert.Equal(rt, before, m.Building("b").Occupants())
	})
}

func TestOccupancyMembership(t *testing.T) {
	m := newTown(t)
	assert.True(t, m.AddAgentToBuilding("coffee_shop", "alice"))
	assert.True(t, m.AddAgentToBuilding("coffee_shop", "alice"))
	assert.Equal(t, []string{"alice"}, m.Building("coffee_shop").Occupants())
	assert.False(t, m.AddAgentToBuilding("nowhere", "alice"))

	m.RemoveAgentFromBuilding("coffee_shop", "alice")
	assert.Empty(t, m.Building("coffee_shop").Occupants())
	m.RemoveAgentFromBuilding("nowhere", "alice")
}

func TestNearbyAgents(t *testing.T) {
	m := newTown(t)
	agents := []AgentLocation{
		{ID: "far", Name: "Far", Position: Position{X: 90, Y: 90}},
		{ID: "b", Name: "Bob", Position: Position{X: 13, Y: 10}},
		{ID: "a", Name: "Alice", Position: Position{X: 10.5, Y: 10}},
		{ID: "c", Name: "Charlie", Position: Position{X: 10, Y: 12}},
	}

	hits := m.NearbyAgents(10, 10, 3, agents)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "c", hits[1].ID)
	assert.Equal(t, "b", hits[2].ID)
	assert.InDelta(t, 0.5, hits[0].Distance, 1e-9)
	assert.Equal(t, "house_1", hits[0].Area)
	assert.Equal(t, "road", hits[1].Area)

	assert.Empty(t, m.NearbyAgents(50, 80, 2, agents))
}

func TestApproach(t *testing.T) {
	m := newTown(t)
	assert.Equal(t, Coord{5, 5}, m.Approach(Coord{10, 10}), "inside house_1 resolves to its entrance")
	assert.Equal(t, Coord{15, 15}, m.Approach(Coord{15, 15}))
	assert.Equal(t, Coord{45, 45}, m.Approach(Coord{50, 50}))
}

func TestScatterScenery(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Seed = 7
	cfg.Scenery = 0.6

	a, err := GenerateTown(cfg)
	require.NoError(t, err)
	b, err := GenerateTown(cfg)
	require.NoError(t, err)

	ca, cb := TerrainCounts(a), TerrainCounts(b)
	assert.Equal(t, ca, cb, "same seed yields same scenery")
	assert.Positive(t, ca[TerrainWater]+ca[TerrainBlocked])

	plain := TerrainCounts(newTown(t))
	assert.Equal(t, plain[TerrainRoad], ca[TerrainRoad])
	assert.Equal(t, plain[TerrainBuilding], ca[TerrainBuilding])

	for _, bld := range a.Buildings() {
		assert.True(t, a.IsWalkable(bld.Entrance.X, bld.Entrance.Y), bld.ID)
	}
}
