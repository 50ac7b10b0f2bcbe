// Package world provides the tile grid, buildings, and spatial queries for the town.
// Tiles are addressed by integer (x, y); agents hold continuous positions.
package world

import "math"

// Position is a point in the town plus the area label the agent believes it is in.
type Position struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Area string  `json:"area"`
}

// DistanceTo returns the Euclidean distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Tile returns the integer tile containing the position.
func (p Position) Tile() Coord {
	return Coord{X: int(math.Floor(p.X)), Y: int(math.Floor(p.Y))}
}

// Coord addresses one tile of the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// At returns the position at the tile's origin carrying the given area label.
func (c Coord) At(area string) Position {
	return Position{X: float64(c.X), Y: float64(c.Y), Area: area}
}

// Adjacent reports whether two coordinates are 8-neighbours.
func (c Coord) Adjacent(o Coord) bool {
	dx, dy := abs(c.X-o.X), abs(c.Y-o.Y)
	return dx <= 1 && dy <= 1 && (dx+dy) > 0
}

// neighborOffsets lists the eight step directions in search order.
var neighborOffsets = [8]Coord{
	{X: -1, Y: 0},
	{X: 1, Y: 0},
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: -1, Y: -1},
	{X: -1, Y: 1},
	{X: 1, Y: -1},
	{X: 1, Y: 1},
}

func manhattan(a, b Coord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
