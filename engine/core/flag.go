package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

// FlagSlotCount is the number of resources a flag can queue.
const FlagSlotCount = 8

// FlagEdge is one directed road stub leaving a flag.
type FlagEdge struct {
	HasPath       bool
	Other         uint32           // endpoint flag index
	OtherEndDir   maplib.Direction // edge index of the same road at the far flag
	LengthBucket  int              // 3-bit band of the tile length
	Transporters  int              // serfs stationed on this road
	SerfRequested bool
}

// ResSlot is one queued resource at a flag.
type ResSlot struct {
	Type Resource // ResourceNone when empty
	Dest uint32   // destination flag index, 0 = unrouted
	Dir  maplib.Direction // scheduled leave direction, DirNone = unscheduled
}

// Flag is a vertex of the road graph.
type Flag struct {
	Index  uint32
	Pos    maplib.Pos
	Player int

	Edges [6]FlagEdge
	Slots [FlagSlotCount]ResSlot

	Building         uint32 // attached building index, 0 = none
	AcceptsSerfs     bool
	AcceptsResources bool
	HasInventory     bool

	// search scratch
	searchNum  uint32
	searchDir  maplib.Direction
	searchFrom uint32
}

func newFlag(pos maplib.Pos, player int) *Flag {
	f := &Flag{Pos: pos, Player: player, AcceptsSerfs: true, AcceptsResources: true}
	for i := range f.Slots {
		f.Slots[i].Type = ResourceNone
		f.Slots[i].Dir = maplib.DirNone
	}
	return f
}

// lengthBucket bands a tile length into the 3-bit value kept on edges.
func lengthBucket(tiles int) int {
	switch {
	case tiles >= 24:
		return 7
	case tiles >= 18:
		return 6
	case tiles >= 13:
		return 5
	case tiles >= 10:
		return 4
	case tiles >= 7:
		return 3
	case tiles >= 6:
		return 2
	case tiles >= 4:
		return 1
	}
	return 0
}

// bucketMidLength is the representative tile count of each bucket, used when
// merging two roads into one.
var bucketMidLength = [8]int{3, 4, 6, 8, 11, 15, 20, 26}

// HasEdge reports whether a road leaves the flag in direction d.
func (f *Flag) HasEdge(d maplib.Direction) bool { return f.Edges[d].HasPath }

// ConnectedEdges returns the directions that carry roads.
func (f *Flag) ConnectedEdges() []maplib.Direction {
	var dirs []maplib.Direction
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if f.Edges[d].HasPath {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// FreeSlot returns the index of an empty resource slot, or -1.
func (f *Flag) FreeSlot() int {
	for i := range f.Slots {
		if f.Slots[i].Type == ResourceNone {
			return i
		}
	}
	return -1
}

// SlotCountInUse returns the number of occupied resource slots.
func (f *Flag) SlotCountInUse() int {
	n := 0
	for i := range f.Slots {
		if f.Slots[i].Type != ResourceNone {
			n++
		}
	}
	return n
}

// DropResource queues a resource at the flag. Returns false when full.
func (f *Flag) DropResource(res Resource, dest uint32) bool {
	i := f.FreeSlot()
	if i < 0 {
		return false
	}
	f.Slots[i] = ResSlot{Type: res, Dest: dest, Dir: maplib.DirNone}
	return true
}

// PickScheduled removes and returns a slot scheduled to leave in direction d.
func (f *Flag) PickScheduled(d maplib.Direction) (Resource, uint32, bool) {
	// highest slot index first keeps pickup order stable with the original
	for i := len(f.Slots) - 1; i >= 0; i-- {
		if f.Slots[i].Type != ResourceNone && f.Slots[i].Dir == d {
			res, dest := f.Slots[i].Type, f.Slots[i].Dest
			f.Slots[i] = ResSlot{Type: ResourceNone, Dir: maplib.DirNone}
			return res, dest, true
		}
	}
	return ResourceNone, 0, false
}

// scheduledInDir reports whether any slot wants to leave through d.
func (f *Flag) scheduledInDir(d maplib.Direction) bool {
	for i := range f.Slots {
		if f.Slots[i].Type != ResourceNone && f.Slots[i].Dir == d {
			return true
		}
	}
	return false
}

// update routes the flag's queued resources and requests transporters for
// edges with pending work. Runs once per flag per tick.
func (g *Game) updateFlag(f *Flag) {
	for i := range f.Slots {
		s := &f.Slots[i]
		if s.Type == ResourceNone {
			continue
		}
		if s.Dest != 0 {
			if g.Flag(s.Dest) == nil {
				// destination vanished mid-flight
				s.Dest = 0
				s.Dir = maplib.DirNone
			} else if s.Dir == maplib.DirNone {
				if d, ok := g.findDirToDest(f, s.Dest); ok {
					s.Dir = d
				} else {
					// unreachable: hand back to the nearest inventory
					s.Dest = 0
				}
			}
		}
		if s.Dest == 0 {
			if inv := g.findNearestInventoryAcceptingRes(f); inv != nil {
				if inv.Flag == f.Index {
					// already at the inventory flag; deliver directly
					inv.PushResource(s.Type)
					g.trackResourceOwner(s.Type, f.Player, 1)
					*s = ResSlot{Type: ResourceNone, Dir: maplib.DirNone}
				} else {
					s.Dest = inv.Flag
					if d, ok := g.findDirToDest(f, s.Dest); ok {
						s.Dir = d
					}
				}
			}
		}
	}

	// request a transporter for any working edge with no serf
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		e := &f.Edges[d]
		if !e.HasPath || e.Transporters > 0 || e.SerfRequested {
			continue
		}
		if f.scheduledInDir(d) || g.flagScheduledToward(f, d) {
			if g.requestTransporter(f, d) {
				e.SerfRequested = true
			}
		}
	}
}

// flagScheduledToward reports whether the far flag of edge d has work headed
// back across this road.
func (g *Game) flagScheduledToward(f *Flag, d maplib.Direction) bool {
	e := &f.Edges[d]
	other := g.Flag(e.Other)
	if other == nil {
		return false
	}
	return other.scheduledInDir(e.OtherEndDir)
}

// invIndex returns the inventory index behind this flag, or 0.
func (f *Flag) invIndex(g *Game) uint32 {
	if !f.HasInventory {
		return 0
	}
	b := g.Building(f.Building)
	if b == nil {
		return 0
	}
	return b.Inventory
}

// linkFlags installs the edge pair for a road of the given tile length.
// dirA is the first step direction at a; dirB is the edge index at b.
func linkFlags(a *Flag, dirA maplib.Direction, b *Flag, dirB maplib.Direction, tiles int) {
	bucket := lengthBucket(tiles)
	a.Edges[dirA] = FlagEdge{HasPath: true, Other: b.Index, OtherEndDir: dirB, LengthBucket: bucket}
	b.Edges[dirB] = FlagEdge{HasPath: true, Other: a.Index, OtherEndDir: dirA, LengthBucket: bucket}
}

// unlinkEdge clears a single edge pair.
func (g *Game) unlinkEdge(f *Flag, d maplib.Direction) {
	e := f.Edges[d]
	if other := g.Flag(e.Other); other != nil && e.HasPath {
		other.Edges[e.OtherEndDir] = FlagEdge{OtherEndDir: maplib.DirNone}
	}
	f.Edges[d] = FlagEdge{OtherEndDir: maplib.DirNone}
}

// CancelSlotsTo unroutes every slot targeting a destination flag.
func (f *Flag) CancelSlotsTo(dest uint32) {
	for i := range f.Slots {
		if f.Slots[i].Type != ResourceNone && f.Slots[i].Dest == dest {
			f.Slots[i].Dest = 0
			f.Slots[i].Dir = maplib.DirNone
		}
	}
}
