package world

import "container/heap"

// FindPath returns the shortest 8-connected walkable route from start to end,
// inclusive of both endpoints. It returns nil when no route exists.
// Results are memoized per (start, end) for the life of the map.
func (m *Map) FindPath(start, end Coord) []Coord {
	key := [2]Coord{start, end}

	m.pathMu.Lock()
	cached, ok := m.pathCache[key]
	m.pathMu.Unlock()
	if ok {
		return clonePath(cached)
	}

	path := m.astar(start, end)

	m.pathMu.Lock()
	m.pathCache[key] = path
	m.pathMu.Unlock()
	return clonePath(path)
}

// SearchPath is FindPath without the memo: the cache is neither read nor filled.
func (m *Map) SearchPath(start, end Coord) []Coord {
	return m.astar(start, end)
}

// CachedPaths returns the number of memoized routes.
func (m *Map) CachedPaths() int {
	m.pathMu.Lock()
	defer m.pathMu.Unlock()
	return len(m.pathCache)
}

func (m *Map) resetPathCache() {
	m.pathMu.Lock()
	m.pathCache = make(map[[2]Coord][]Coord)
	m.pathMu.Unlock()
}

func (m *Map) astar(start, end Coord) []Coord {
	if start == end {
		return []Coord{start}
	}
	if !m.IsWalkable(end.X, end.Y) {
		return nil
	}

	open := &frontier{}
	var seq uint64
	heap.Push(open, &node{coord: start, f: manhattan(start, end), seq: seq})

	cameFrom := make(map[Coord]Coord)
	gScore := map[Coord]int{start: 0}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if cur.g > gScore[cur.coord] {
			continue // stale entry
		}
		if cur.coord == end {
			return reconstruct(cameFrom, start, end)
		}

		for _, d := range neighborOffsets {
			next := Coord{X: cur.coord.X + d.X, Y: cur.coord.Y + d.Y}
			if !m.IsWalkable(next.X, next.Y) {
				continue
			}
			g := gScore[cur.coord] + 1
			if old, seen := gScore[next]; seen && g >= old {
				continue
			}
			cameFrom[next] = cur.coord
			gScore[next] = g
			seq++
			heap.Push(open, &node{coord: next, g: g, f: g + manhattan(next, end), seq: seq})
		}
	}
	return nil
}

func reconstruct(cameFrom map[Coord]Coord, start, end Coord) []Coord {
	path := []Coord{end}
	for cur := end; cur != start; {
		cur = cameFrom[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func clonePath(p []Coord) []Coord {
	if p == nil {
		return nil
	}
	out := make([]Coord, len(p))
	copy(out, p)
	return out
}

type node struct {
	coord Coord
	g, f  int
	seq   uint64 // insertion order; breaks f ties
}

type frontier []*node

func (h frontier) Len() int { return len(h) }
func (h frontier) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}
func (h frontier) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *frontier) Push(x any)   { *h = append(*h, x.(*node)) }
func (h *frontier) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
