package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFindPathBlockedRegion(t *testing.T) {
	m := NewMap(10, 10)
	for y := 0; y < 10; y++ {
		m.SetTerrain(5, y, TerrainBlocked)
	}
	assert.Empty(t, m.FindPath(Coord{0, 0}, Coord{9, 9}))
	assert.Empty(t, m.FindPath(Coord{0, 0}, Coord{5, 5}), "unwalkable goal")
}

func TestFindPathTrivial(t *testing.T) {
	m := NewMap(5, 5)
	assert.Equal(t, []Coord{{2, 2}}, m.FindPath(Coord{2, 2}, Coord{2, 2}))
	assert.Equal(t, []Coord{{0, 0}, {1, 1}}, m.FindPath(Coord{0, 0}, Coord{1, 1}))
}

func TestFindPathAroundWall(t *testing.T) {
	m := NewMap(10, 10)
	for y := 0; y < 9; y++ {
		m.SetTerrain(5, y, TerrainBlocked)
	}
	path := m.FindPath(Coord{0, 0}, Coord{9, 0})
	require.NotEmpty(t, path)
	assert.Contains(t, path, Coord{5, 9})
	assertValidPath(t, m, path, Coord{0, 0}, Coord{9, 0})
}

func TestFindPathCachesResults(t *testing.T) {
	m := NewMap(20, 20)
	first := m.FindPath(Coord{0, 0}, Coord{19, 7})
	require.Equal(t, 1, m.CachedPaths())

	first[0] = Coord{-1, -1}
	second := m.FindPath(Coord{0, 0}, Coord{19, 7})
	assert.Equal(t, Coord{0, 0}, second[0], "callers get copies")
	assert.Equal(t, 1, m.CachedPaths())
}

func TestSearchPathSkipsCache(t *testing.T) {
	m := NewMap(20, 20)
	path := m.SearchPath(Coord{0, 0}, Coord{19, 7})
	assert.Len(t, path, 20)
	assert.Nil(t, m.SearchPath(Coord{0, 0}, Coord{40, 40}))
	assert.Zero(t, m.CachedPaths())
}

func TestFindPathOpenGridIsOptimal(t *testing.T) {
	m := NewMap(20, 20)
	rapid.Check(t, func(rt *rapid.T) {
		s := Coord{rapid.IntRange(0, 19).Draw(rt, "sx"), rapid.IntRange(0, 19).Draw(rt, "sy")}
		e := Coord{rapid.IntRange(0, 19).Draw(rt, "ex"), rapid.IntRange(0, 19).Draw(rt, "ey")}

		path := m.FindPath(s, e)
		chebyshev := max(abs(s.X-e.X), abs(s.Y-e.Y))
		assert.Len(rt, path, chebyshev+1)
		assertValidPath(rt, m, path, s, e)
	})
}

func TestFindPathStepsAreAdjacentAndWalkable(t *testing.T) {
	m, err := GenerateTown(DefaultGenConfig())
	require.NoError(t, err)

	var open []Coord
	for y := 0; y < m.Height; y += 3 {
		for x := 0; x < m.Width; x += 3 {
			if m.IsWalkable(x, y) {
				open = append(open, Coord{x, y})
			}
		}
	}

	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.SampledFrom(open).Draw(rt, "start")
		e := rapid.SampledFrom(open).Draw(rt, "end")
		path := m.FindPath(s, e)
		require.NotEmpty(rt, path, "town is fully connected")
		assertValidPath(rt, m, path, s, e)
	})
}

func assertValidPath(t assert.TestingT, m *Map, path []Coord, start, end Coord) {
	if !assert.NotEmpty(t, path) {
		return
	}
	assert.Equal(t, start, path[0])
	assert.Equal(t, end, path[len(path)-1])
	for i := 1; i < len(path); i++ {
		assert.True(t, path[i-1].Adjacent(path[i]), "step %d not adjacent", i)
		assert.True(t, m.IsWalkable(path[i].X, path[i].Y), "step %d not walkable", i)
	}
}
