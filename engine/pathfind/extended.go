package pathfind

import (
	"container/heap"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// maxPassthruFlagsPerSolution caps the new splitting flags one alternate
// solution may require. Kept at the documented value.
const maxPassthruFlagsPerSolution = 4

// search bounds: past maxVisitedNodes the search aborts and returns what it
// has; solutions longer than maxSolutionLength are discarded; Yield runs
// every yieldEveryNodes visited nodes
const (
	maxVisitedNodes   = 10000
	maxSolutionLength = 96
	yieldEveryNodes   = 1000
)

// Solution is one road candidate produced by the extended plot.
type Solution struct {
	Dirs       []maplib.Direction
	End        maplib.Pos
	Direct     bool         // reaches the requested end position
	EndsAtFlag bool         // terminates at an existing flag short of end
	Splits     []maplib.Pos // positions needing new splitting flags
}

// Length returns the tile length of the solution.
func (s *Solution) Length() int { return len(s.Dirs) }

// Convolution is the ratio of road length to straight-line distance,
// scaled by 256. Higher means twistier.
func (s *Solution) Convolution(m *maplib.Map, start maplib.Pos) int {
	d := m.Dist(start, s.End)
	if d == 0 {
		return 256
	}
	return len(s.Dirs) * 256 / d
}

// ExtendedOptions tunes the AI road plot.
type ExtendedOptions struct {
	// AllowPassthru permits solutions that split existing roads.
	AllowPassthru bool
	// MaxAlternates bounds the alternate solutions gathered.
	MaxAlternates int
	// InventoryFlags marks inventory flag positions; roads may not both
	// start and end inside the ring around one of them.
	InventoryFlags []maplib.Pos
	// Yield, when set, is called every ~1000 visited nodes so the search
	// plays nice with the simulation thread.
	Yield func()
}

// inCastleRing reports whether pos touches the clutter ring around any
// inventory flag.
func inCastleRing(m *maplib.Map, pos maplib.Pos, invFlags []maplib.Pos) bool {
	for _, p := range invFlags {
		if m.Dist(pos, p) <= 1 {
			return true
		}
	}
	return false
}

// splitLegal reports whether a new flag may split a road at pos: the cell
// carries exactly two path bits and has no adjacent flag.
func splitLegal(m *maplib.Map, pos maplib.Pos) bool {
	paths := m.Paths(pos)
	n := 0
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if paths&(1<<uint(d)) != 0 {
			n++
		}
	}
	if n != 2 || m.Obj(pos) != maplib.ObjNone {
		return false
	}
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if m.Obj(m.Move(pos, d)) == maplib.ObjFlag {
			return false
		}
	}
	return true
}

// PlotExtended runs the AI road plot: the direct road plus a bounded set of
// alternates that end at existing flags or at legal splitting positions.
func PlotExtended(m *maplib.Map, start, end maplib.Pos, player int, opts ExtendedOptions) []Solution {
	if opts.MaxAlternates == 0 {
		opts.MaxAlternates = 6
	}
	startRing := inCastleRing(m, start, opts.InventoryFlags)

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, &node{pos: start, g: 0, f: m.Dist(start, end) * stepCostBase})

	came := map[maplib.Pos]maplib.Direction{}
	gScore := map[maplib.Pos]int{start: 0}

	var solutions []Solution
	visited := 0

	record := func(endPos maplib.Pos, direct, atFlag bool, splits []maplib.Pos) {
		if startRing && inCastleRing(m, endPos, opts.InventoryFlags) {
			return
		}
		dirs := rebuild(m, came, start, endPos)
		if dirs == nil || len(dirs) > maxSolutionLength {
			return
		}
		solutions = append(solutions, Solution{
			Dirs: dirs, End: endPos, Direct: direct, EndsAtFlag: atFlag,
			Splits: splits,
		})
	}

	for open.Len() > 0 {
		visited++
		if visited > maxVisitedNodes {
			break
		}
		if opts.Yield != nil && visited%yieldEveryNodes == 0 {
			opts.Yield()
		}
		cur := heap.Pop(open).(*node)
		if cur.pos == end {
			record(end, true, false, nil)
			break // direct solution found; alternates already gathered
		}
		if cur.g > gScore[cur.pos] {
			continue
		}
		if len(solutions) >= opts.MaxAlternates {
			continue
		}
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			if !segmentOK(m, cur.pos, d, player) {
				continue
			}
			np := m.Move(cur.pos, d)
			ng := cur.g + stepCost(m, cur.pos, d)
			if old, ok := gScore[np]; ok && ng >= old {
				continue
			}

			if np != end && m.Obj(np) == maplib.ObjFlag {
				// alternate: terminate at an intermediate existing flag
				gScore[np] = ng
				came[np] = d
				record(np, false, true, nil)
				continue
			}
			if np != end && m.Paths(np) != 0 {
				if !opts.AllowPassthru || !splitLegal(m, np) {
					// entering a road where no splitting flag is legal
					// rejects the branch
					continue
				}
				pass := cur.passthru + 1
				if pass > maxPassthruFlagsPerSolution {
					continue
				}
				gScore[np] = ng
				came[np] = d
				if trail := splitTrail(m, came, start, np); trail != nil {
					record(np, false, false, trail)
				}
				// pass-through keeps exploring beyond the split
				heap.Push(open, &node{pos: np, g: ng, f: ng + m.Dist(np, end)*stepCostBase, passthru: pass})
				continue
			}

			gScore[np] = ng
			came[np] = d
			heap.Push(open, &node{pos: np, g: ng, f: ng + m.Dist(np, end)*stepCostBase, passthru: cur.passthru})
		}
	}
	return solutions
}

// splitTrail collects the splitting-flag positions along the rebuilt path.
// Adjacent split pairs invalidate the trail (flag adjacency is illegal) and
// return nil, which the caller treats as an unusable alternate.
func splitTrail(m *maplib.Map, came map[maplib.Pos]maplib.Direction, start, end maplib.Pos) []maplib.Pos {
	var splits []maplib.Pos
	cur := end
	for cur != start {
		if m.Paths(cur) != 0 && m.Obj(cur) == maplib.ObjNone {
			if len(splits) > 0 && m.Dist(splits[len(splits)-1], cur) <= 1 {
				return nil
			}
			splits = append(splits, cur)
		}
		d, ok := came[cur]
		if !ok {
			return nil
		}
		cur = m.Move(cur, d.Reverse())
	}
	return splits
}
