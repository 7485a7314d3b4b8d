package pathfind

import (
	"container/heap"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// stepCostBase is the flat cost of one tile step; height differences add a
// climb penalty.
const stepCostBase = 256

// node is one A* queue entry.
type node struct {
	pos      maplib.Pos
	g, f     int
	passthru int
}

type nodeHeap []*node

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func stepCost(m *maplib.Map, pos maplib.Pos, d maplib.Direction) int {
	h := m.HeightDiff(pos, d)
	c := stepCostBase
	if h > 0 {
		c += 64 * h
	} else {
		c -= 16 * h
	}
	return c
}

// segmentOK checks whether a road may step from pos in direction d for the
// given player. Flags are enterable (a road may terminate there); other
// objects and foreign or snowy ground are not.
func segmentOK(m *maplib.Map, pos maplib.Pos, d maplib.Direction, player int) bool {
	np := m.Move(pos, d)
	if m.Owner(np) != player {
		return false
	}
	if m.InWater(np) {
		return false
	}
	o := m.Obj(np)
	if o != maplib.ObjNone && o != maplib.ObjFlag &&
		!(o >= maplib.ObjSeeds0 && o <= maplib.ObjFieldExpired) {
		return false
	}
	if m.TypeUp(np).IsSnow() {
		return false
	}
	return true
}

// Plot finds a road from the start flag position to end using A* over the
// hex grid. holdBuildingPos, when not BadPos, marks a cell reserved for a
// planned building that the road must avoid. Returns the direction
// sequence, or nil.
func Plot(m *maplib.Map, start, end maplib.Pos, player int, holdBuildingPos maplib.Pos) []maplib.Direction {
	if start == end {
		return nil
	}
	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, &node{pos: start, g: 0, f: m.Dist(start, end) * stepCostBase})

	came := map[maplib.Pos]maplib.Direction{}
	gScore := map[maplib.Pos]int{start: 0}

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if cur.pos == end {
			return rebuild(m, came, start, end)
		}
		if cur.g > gScore[cur.pos] {
			continue
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			if !segmentOK(m, cur.pos, d, player) {
				continue
			}
			np := m.Move(cur.pos, d)
			if np == holdBuildingPos {
				continue
			}
			if np != end && (m.Obj(np) == maplib.ObjFlag || m.Paths(np) != 0) {
				// plain plots may not touch existing roads mid-way
				continue
			}
			ng := cur.g + stepCost(m, cur.pos, d)
			if old, ok := gScore[np]; ok && ng >= old {
				continue
			}
			gScore[np] = ng
			came[np] = d
			heap.Push(open, &node{pos: np, g: ng, f: ng + m.Dist(np, end)*stepCostBase})
		}
	}
	return nil
}

// rebuild walks the came-from map back from end to start.
func rebuild(m *maplib.Map, came map[maplib.Pos]maplib.Direction, start, end maplib.Pos) []maplib.Direction {
	var rev []maplib.Direction
	cur := end
	for cur != start {
		d, ok := came[cur]
		if !ok {
			return nil
		}
		rev = append(rev, d)
		cur = m.Move(cur, d.Reverse())
	}
	dirs := make([]maplib.Direction, len(rev))
	for i := range rev {
		dirs[i] = rev[len(rev)-1-i]
	}
	return dirs
}
