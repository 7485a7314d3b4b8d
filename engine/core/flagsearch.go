package core

import (
	"container/heap"
	"sort"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// flagNode is a queue entry of the flag-graph breadth-first search.
type flagNode struct {
	flag uint32
	dist int
	seq  int // insertion order breaks distance ties
}

type flagQueue []flagNode

func (q flagQueue) Len() int { return len(q) }

// Ordered ascending by (dist, seq). The ascending seq tie-break is what
// makes the expansion breadth-first rather than depth-first.
func (q flagQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}
func (q flagQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *flagQueue) Push(x any)   { *q = append(*q, x.(flagNode)) }
func (q *flagQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// FlagSearch walks the flag graph in breadth-first order from one or more
// sources. Visited marks use a per-game search id so no reset pass is needed.
type FlagSearch struct {
	g     *Game
	id    uint32
	queue flagQueue
	seq   int
}

// NewFlagSearch starts a fresh search.
func (g *Game) NewFlagSearch() *FlagSearch {
	g.flagSearchID++
	return &FlagSearch{g: g, id: g.flagSearchID}
}

// AddSource seeds the search with a flag. tag is carried to every flag
// reached first from this source (stored in searchFrom) and dir in searchDir.
func (s *FlagSearch) AddSource(f *Flag, dir maplib.Direction, tag uint32) {
	if f == nil || f.searchNum == s.id {
		return
	}
	f.searchNum = s.id
	f.searchDir = dir
	f.searchFrom = tag
	heap.Push(&s.queue, flagNode{flag: f.Index, dist: 0, seq: s.seq})
	s.seq++
}

// Execute dequeues flags in breadth-first order and calls cb on each. A true
// return stops the search (found). transporterOnly restricts traversal to
// edges that have a transporter. Returns whether cb ever returned true.
func (s *FlagSearch) Execute(cb func(*Flag) bool, transporterOnly bool) bool {
	for s.queue.Len() > 0 {
		n := heap.Pop(&s.queue).(flagNode)
		f := s.g.Flag(n.flag)
		if f == nil {
			continue // died while queued
		}
		if cb(f) {
			return true
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			e := &f.Edges[d]
			if !e.HasPath {
				continue
			}
			if transporterOnly && e.Transporters == 0 {
				continue
			}
			o := s.g.Flag(e.Other)
			if o == nil || o.searchNum == s.id {
				continue
			}
			o.searchNum = s.id
			o.searchDir = f.searchDir
			o.searchFrom = f.searchFrom
			heap.Push(&s.queue, flagNode{flag: o.Index, dist: n.dist + 1, seq: s.seq})
			s.seq++
		}
	}
	return false
}

// findDirToDest returns the outgoing direction at src that lies on the
// shortest flag path to dest.
func (g *Game) findDirToDest(src *Flag, dest uint32) (maplib.Direction, bool) {
	if src.Index == dest {
		return maplib.DirNone, false
	}
	s := g.NewFlagSearch()
	// seed the neighbours, each tagged with its initial direction
	src.searchNum = s.id
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		e := &src.Edges[d]
		if !e.HasPath {
			continue
		}
		s.AddSource(g.Flag(e.Other), d, 0)
	}
	var out maplib.Direction
	found := s.Execute(func(f *Flag) bool {
		if f.Index == dest {
			out = f.searchDir
			return true
		}
		return false
	}, false)
	return out, found
}

// FlagDist returns the flag-count distance between two flags, or -1.
func (g *Game) FlagDist(from, to uint32) int {
	src := g.Flag(from)
	if src == nil || g.Flag(to) == nil {
		return -1
	}
	if from == to {
		return 0
	}
	type visit struct {
		idx  uint32
		dist int
	}
	queue := []visit{{from, 0}}
	seen := map[uint32]bool{from: true}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v.idx == to {
			return v.dist
		}
		f := g.Flag(v.idx)
		if f == nil {
			continue
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			if f.Edges[d].HasPath && !seen[f.Edges[d].Other] {
				seen[f.Edges[d].Other] = true
				queue = append(queue, visit{f.Edges[d].Other, v.dist + 1})
			}
		}
	}
	return -1
}

// RoadDist returns the tile distance of the shortest flag path between two
// flags, summing representative edge lengths. Returns -1 when unreachable.
func (g *Game) RoadDist(from, to uint32) int {
	if from == to {
		return 0
	}
	type visit struct {
		idx   uint32
		tiles int
	}
	queue := []visit{{from, 0}}
	best := map[uint32]int{from: 0}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		f := g.Flag(v.idx)
		if f == nil {
			continue
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			e := &f.Edges[d]
			if !e.HasPath {
				continue
			}
			t := v.tiles + bucketMidLength[e.LengthBucket]
			if old, ok := best[e.Other]; !ok || t < old {
				best[e.Other] = t
				queue = append(queue, visit{e.Other, t})
			}
		}
	}
	if t, ok := best[to]; ok {
		return t
	}
	return -1
}

// findNearestInventoryAcceptingRes finds the closest flag (by flag count)
// with an inventory that accepts incoming resources.
func (g *Game) findNearestInventoryAcceptingRes(from *Flag) *Inventory {
	s := g.NewFlagSearch()
	s.AddSource(from, maplib.DirNone, 0)
	var found *Inventory
	s.Execute(func(f *Flag) bool {
		if !f.HasInventory || !f.AcceptsResources {
			return false
		}
		inv := g.Inventory(f.invIndex(g))
		if inv == nil || inv.ResMode == ModeOut {
			return false
		}
		found = inv
		return true
	}, false)
	return found
}

// findNearestInventoryAcceptingSerfs finds the closest inventory flag that
// takes serfs back in.
func (g *Game) findNearestInventoryAcceptingSerfs(from *Flag) *Inventory {
	s := g.NewFlagSearch()
	s.AddSource(from, maplib.DirNone, 0)
	var found *Inventory
	s.Execute(func(f *Flag) bool {
		if !f.HasInventory || !f.AcceptsSerfs {
			return false
		}
		inv := g.Inventory(f.invIndex(g))
		if inv == nil || inv.SerfMode == ModeOut {
			return false
		}
		found = inv
		return true
	}, false)
	return found
}

// NearestInventoryFlagDist is the flag-distance flavour of the AI's
// nearest-inventory query. Returns the inventory building's flag index, or 0.
func (g *Game) NearestInventoryFlagDist(from *Flag) uint32 {
	inv := g.findNearestInventoryAcceptingRes(from)
	if inv == nil {
		return 0
	}
	return inv.Flag
}

// NearestInventoryStraightLine picks the inventory whose flag is closest by
// map distance, ignoring the road graph.
func (g *Game) NearestInventoryStraightLine(pos maplib.Pos, player int) uint32 {
	best := uint32(0)
	bestDist := 1 << 30
	g.inventories.each(func(_ uint32, inv *Inventory) {
		if inv.Player != player {
			return
		}
		f := g.Flag(inv.Flag)
		if f == nil {
			return
		}
		if d := g.Map.Dist(pos, f.Pos); d < bestDist {
			bestDist = d
			best = inv.Flag
		}
	})
	return best
}

// NearestInventoryBothAgree returns the inventory flag only when the
// flag-distance and straight-line queries give the same answer.
func (g *Game) NearestInventoryBothAgree(from *Flag) uint32 {
	byFlags := g.NearestInventoryFlagDist(from)
	byLine := g.NearestInventoryStraightLine(from.Pos, from.Player)
	if byFlags != 0 && byFlags == byLine {
		return byFlags
	}
	return 0
}

// arterialPercentile is the occurrence cutoff for arterial labelling.
const arterialPercentile = 70

// ArterialFlags retraces shortest paths from every flag of a player to the
// given inventory flag and labels, per incoming direction at the inventory,
// the flags whose occurrence count is at or above the 70th percentile.
func (g *Game) ArterialFlags(invFlag uint32, player int) map[maplib.Direction][]uint32 {
	inv := g.Flag(invFlag)
	if inv == nil {
		return nil
	}
	// BFS from the inventory recording parents
	parent := map[uint32]uint32{}
	arriveDir := map[uint32]maplib.Direction{} // direction bucket at the inventory
	queue := []uint32{invFlag}
	seen := map[uint32]bool{invFlag: true}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		f := g.Flag(idx)
		if f == nil {
			continue
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			e := &f.Edges[d]
			if !e.HasPath || seen[e.Other] {
				continue
			}
			seen[e.Other] = true
			parent[e.Other] = idx
			if idx == invFlag {
				arriveDir[e.Other] = d
			} else {
				arriveDir[e.Other] = arriveDir[idx]
			}
			queue = append(queue, e.Other)
		}
	}
	// count intermediate occurrences per direction bucket
	counts := map[maplib.Direction]map[uint32]int{}
	for leaf := range parent {
		f := g.Flag(leaf)
		if f == nil || f.Player != player {
			continue
		}
		d := arriveDir[leaf]
		for cur := parent[leaf]; cur != invFlag && cur != 0; cur = parent[cur] {
			if counts[d] == nil {
				counts[d] = map[uint32]int{}
			}
			counts[d][cur]++
		}
	}
	out := map[maplib.Direction][]uint32{}
	for d, m := range counts {
		vals := make([]int, 0, len(m))
		for _, c := range m {
			vals = append(vals, c)
		}
		sort.Ints(vals)
		cut := vals[len(vals)*arterialPercentile/100]
		for idx, c := range m {
			if c >= cut {
				out[d] = append(out[d], idx)
			}
		}
		sort.Slice(out[d], func(i, j int) bool { return out[d][i] < out[d][j] })
	}
	return out
}
