package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ---- Placement predicates ----

// CanBuildFlag checks ownership, open ground, dry land, and the
// no-adjacent-flag rule.
func (g *Game) CanBuildFlag(pos maplib.Pos, player int) bool {
	if g.Map.Owner(pos) != player {
		return false
	}
	if !g.Map.IsOpen(pos) || g.Map.InWater(pos) {
		return false
	}
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if g.Map.Obj(g.Map.Move(pos, d)) == maplib.ObjFlag {
			return false
		}
	}
	return true
}

// canBuildRoadSegment validates one step of a road: the target cell must be
// owned, passable and land/water-consistent with the rest of the road.
func (g *Game) canBuildRoadSegment(pos maplib.Pos, d maplib.Direction, player int, water bool) bool {
	np := g.Map.Move(pos, d)
	if g.Map.Owner(np) != player {
		return false
	}
	o := g.Map.Obj(np)
	if o != maplib.ObjNone && o != maplib.ObjFlag &&
		!(o >= maplib.ObjSeeds0 && o <= maplib.ObjFieldExpired) {
		return false
	}
	if g.Map.InWater(np) != water && o != maplib.ObjFlag {
		// water roads may only touch land at their endpoint flags
		return false
	}
	if g.Map.TypeUp(np).IsSnow() {
		return false
	}
	return true
}

// CanBuildRoad validates a whole road. It returns the endpoint and whether
// the road runs on water. Fails on self-crossing, non-flag endpoints and
// bad segments.
func (g *Game) CanBuildRoad(road Road, player int) (maplib.Pos, bool, bool) {
	if len(road.Dirs) == 0 {
		return maplib.BadPos, false, false
	}
	if g.FlagAt(road.Source) == nil || g.Map.Owner(road.Source) != player {
		return maplib.BadPos, false, false
	}
	water := g.Map.InWater(g.Map.Move(road.Source, road.Dirs[0]))
	pos := road.Source
	visited := map[maplib.Pos]bool{pos: true}
	for i, d := range road.Dirs {
		if !g.canBuildRoadSegment(pos, d, player, water) {
			return maplib.BadPos, false, false
		}
		pos = g.Map.Move(pos, d)
		last := i == len(road.Dirs)-1
		if visited[pos] {
			return maplib.BadPos, false, false
		}
		visited[pos] = true
		if !last && g.Map.Obj(pos) == maplib.ObjFlag {
			// roads terminate at the first flag met
			return maplib.BadPos, false, false
		}
		if !last && g.Map.Paths(pos) != 0 {
			// crossing an existing road needs a splitting flag
			return maplib.BadPos, false, false
		}
	}
	if g.FlagAt(pos) == nil {
		return maplib.BadPos, false, false
	}
	if water && (g.Map.InWater(road.Source) || g.Map.InWater(pos)) {
		// water roads begin and end at shore flags
		return maplib.BadPos, false, false
	}
	return pos, water, true
}

// terrain checks shared by building predicates
func (g *Game) groundSuits(pos maplib.Pos, t BuildingType) bool {
	if t.IsMine() {
		return g.Map.TerrainIsAny(pos, maplib.Terrain.IsTundra)
	}
	return g.Map.TerrainIsAll(pos, maplib.Terrain.IsGrass)
}

// CanBuildBuilding checks the footprint for a building of the given type.
func (g *Game) CanBuildBuilding(pos maplib.Pos, t BuildingType, player int) bool {
	if g.Map.Owner(pos) != player || !g.Map.IsOpen(pos) {
		return false
	}
	if !g.groundSuits(pos, t) {
		return false
	}
	// the entry flag lives down-right of the building
	fp := g.Map.MoveDownRight(pos)
	if g.FlagAt(fp) == nil && !g.CanBuildFlag(fp, player) {
		return false
	}
	if buildingDefs[t].large {
		// large buildings need an open second shell and mild slopes
		ok := true
		g.Map.Spiral(pos, 1, func(p maplib.Pos) bool {
			if p == pos || p == fp {
				return true
			}
			if g.Map.Obj(p).IsBuilding() || g.Map.Obj(p) == maplib.ObjFlag {
				ok = false
				return false
			}
			if abs(g.Map.Height(p)-g.Map.Height(pos)) > 4 {
				ok = false
				return false
			}
			return true
		})
		if !ok {
			return false
		}
	}
	return true
}

// CanBuildCastle checks the first-castle placement: unclaimed open ground,
// level-enough neighbours, no military building in the vicinity.
func (g *Game) CanBuildCastle(pos maplib.Pos, player int) bool {
	p := g.players[player]
	if p == nil || p.HasCastle {
		return false
	}
	if g.Map.HasOwner(pos) || !g.Map.IsOpen(pos) {
		return false
	}
	if !g.Map.TerrainIsAll(pos, maplib.Terrain.IsGrass) {
		return false
	}
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		np := g.Map.Move(pos, d)
		if g.Map.HasOwner(np) || !g.Map.IsOpen(np) && g.Map.Obj(np) != maplib.ObjFlag {
			return false
		}
		if abs(g.Map.HeightDiff(pos, d)) > 4 {
			return false
		}
	}
	ok := true
	g.Map.Spiral(pos, 6, func(q maplib.Pos) bool {
		if b := g.BuildingAt(q); b != nil && b.Type.IsMilitary() {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// CanDemolishFlag rejects demolition when a building depends on the flag or
// when more than two roads meet there.
func (g *Game) CanDemolishFlag(pos maplib.Pos, player int) bool {
	f := g.FlagAt(pos)
	if f == nil || f.Player != player {
		return false
	}
	if g.Map.Obj(g.Map.Move(pos, maplib.DirUpLeft)).IsBuilding() {
		return false
	}
	return len(f.ConnectedEdges()) <= 2
}

// ---- Build operations ----

// BuildFlag places a flag. On a road cell the road is split in two.
func (g *Game) BuildFlag(pos maplib.Pos, player int) bool {
	if !g.CanBuildFlag(pos, player) {
		return false
	}
	if g.Map.Paths(pos) != 0 {
		return g.buildSplittingFlag(pos, player)
	}
	f := g.createFlag(pos, player)
	g.Map.SetObject(pos, maplib.ObjFlag, f.Index)
	return true
}

// buildSplittingFlag inserts a flag into an existing road, splitting it.
func (g *Game) buildSplittingFlag(pos maplib.Pos, player int) bool {
	// exactly two path bits leave a plain road cell
	var dirs []maplib.Direction
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if g.Map.HasPath(pos, d) {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) != 2 {
		return false
	}
	endA, lenA, edgeA := g.traceToFlag(pos, dirs[0])
	endB, lenB, edgeB := g.traceToFlag(pos, dirs[1])
	fa, fb := g.FlagAt(endA), g.FlagAt(endB)
	if fa == nil || fb == nil {
		return false
	}
	nf := g.createFlag(pos, player)
	g.Map.SetObject(pos, maplib.ObjFlag, nf.Index)

	oldTransA := fa.Edges[edgeA].Transporters
	oldTransB := fb.Edges[edgeB].Transporters
	g.unlinkEdge(fa, edgeA)
	linkFlags(fa, edgeA, nf, dirs[0], lenA)
	linkFlags(nf, dirs[1], fb, edgeB, lenB)

	// transporters keep their side of the split
	fa.Edges[edgeA].Transporters = oldTransA
	nf.Edges[dirs[0]].Transporters = oldTransA
	fb.Edges[edgeB].Transporters = oldTransB
	nf.Edges[dirs[1]].Transporters = oldTransB

	// in-flight resources scheduled across the old road recompute their
	// direction at the next flag update
	fa.resetScheduledDir(edgeA)
	fb.resetScheduledDir(edgeB)
	return true
}

// traceToFlag follows a road from a cell to its endpoint flag. Returns the
// flag position, the tile count walked, and the direction of the road's
// final step reversed (the edge index at the endpoint flag).
func (g *Game) traceToFlag(pos maplib.Pos, d maplib.Direction) (maplib.Pos, int, maplib.Direction) {
	cur := g.Map.Move(pos, d)
	came := d
	tiles := 1
	for g.Map.Obj(cur) != maplib.ObjFlag {
		nd, ok := g.nextDirOnRoad(cur, came.Reverse())
		if !ok {
			return maplib.BadPos, 0, maplib.DirNone
		}
		cur = g.Map.Move(cur, nd)
		came = nd
		tiles++
	}
	return cur, tiles, came.Reverse()
}

// resetScheduledDir unschedules slots that were leaving through d.
func (f *Flag) resetScheduledDir(d maplib.Direction) {
	for i := range f.Slots {
		if f.Slots[i].Dir == d {
			f.Slots[i].Dir = maplib.DirNone
		}
	}
}

// BuildRoad stamps a validated road and links its endpoint flags. Partial
// path bits are rolled back on failure.
func (g *Game) BuildRoad(road Road, player int) bool {
	dest, _, ok := g.CanBuildRoad(road, player)
	if !ok {
		return false
	}
	fa := g.FlagAt(road.Source)
	fb := g.FlagAt(dest)
	if fa == nil || fb == nil {
		return false
	}
	dirA := road.Dirs[0]
	dirB := road.Dirs[len(road.Dirs)-1].Reverse()
	if fa.Edges[dirA].HasPath || fb.Edges[dirB].HasPath {
		return false
	}
	pos := road.Source
	var stamped []struct {
		p maplib.Pos
		d maplib.Direction
	}
	for _, d := range road.Dirs {
		if g.Map.HasPath(pos, d) {
			// collided with a path stamped since validation: roll back
			for _, s := range stamped {
				g.Map.SetPath(s.p, s.d, false)
			}
			return false
		}
		g.Map.SetPath(pos, d, true)
		stamped = append(stamped, struct {
			p maplib.Pos
			d maplib.Direction
		}{pos, d})
		pos = g.Map.Move(pos, d)
	}
	linkFlags(fa, dirA, fb, dirB, len(road.Dirs))
	return true
}

// BuildBuilding places a building under construction with its entry flag
// and connecting path.
func (g *Game) BuildBuilding(pos maplib.Pos, t BuildingType, player int) bool {
	if t == BuildingCastle {
		return false // castles go through BuildCastle
	}
	if !g.CanBuildBuilding(pos, t, player) {
		return false
	}
	fp := g.Map.MoveDownRight(pos)
	flag := g.FlagAt(fp)
	if flag == nil {
		if !g.BuildFlag(fp, player) {
			return false
		}
		flag = g.FlagAt(fp)
	}
	b := g.createBuilding(t, pos, player)
	b.Flag = flag.Index
	flag.Building = b.Index
	obj := maplib.ObjSmallBuilding
	if buildingDefs[t].large {
		obj = maplib.ObjLargeBuilding
	}
	g.Map.SetObject(pos, obj, b.Index)
	g.Map.SetPath(pos, maplib.DirDownRight, true)
	if !buildingDefs[t].levelGround {
		b.Progress = 1 // no digging phase
	}
	return true
}

// castleSupplyTable lists the starting stores in creation order; amounts scale
// with the player's supplies setting. The order is part of the
// deterministic-replay contract.
type supplyEntry struct {
	res Resource
	n   int
}

var castleSupplyTable = []supplyEntry{
	{ResPlank, 44}, {ResStone, 30}, {ResBoat, 2}, {ResLumber, 24},
	{ResFish, 12}, {ResBread, 17}, {ResMeat, 10}, {ResShovel, 6},
	{ResHammer, 4}, {ResAxe, 4}, {ResSaw, 2}, {ResPick, 4}, {ResRod, 2},
	{ResScythe, 2}, {ResCleaver, 2}, {ResPincer, 2}, {ResSword, 4},
	{ResShield, 4}, {ResCoal, 10}, {ResIronOre, 8}, {ResSteel, 6},
}

// castleSerfTable is the starting population in creation order.
var castleSerfTable = []struct {
	t SerfType
	n int
}{
	{SerfTransporter, 12}, {SerfSailor, 2}, {SerfDigger, 3},
	{SerfBuilder, 4}, {SerfLumberjack, 2}, {SerfSawmiller, 1},
	{SerfStonecutter, 2}, {SerfForester, 1}, {SerfMiner, 4},
	{SerfFisher, 1}, {SerfFarmer, 1}, {SerfMiller, 1}, {SerfBaker, 1},
	{SerfButcher, 1}, {SerfGeologist, 2}, {SerfGeneric, 20},
	{SerfKnight0, 8},
}

// BuildCastle founds the player's castle: building, inventory, entry flag,
// starting stores and population, and the initial territory claim.
func (g *Game) BuildCastle(pos maplib.Pos, player int) bool {
	if !g.CanBuildCastle(pos, player) {
		return false
	}
	p := g.players[player]
	b := g.createBuilding(BuildingCastle, pos, player)
	b.Done = true
	b.Active = true
	b.Progress = 0xffff

	inv := g.createInventory(player)
	inv.Building = b.Index
	b.Inventory = inv.Index

	fp := g.Map.MoveDownRight(pos)
	f := g.createFlag(fp, player)
	f.Building = b.Index
	f.HasInventory = true
	b.Flag = f.Index
	inv.Flag = f.Index

	g.Map.SetObject(pos, maplib.ObjCastle, b.Index)
	g.Map.SetObject(fp, maplib.ObjFlag, f.Index)
	g.Map.SetPath(pos, maplib.DirDownRight, true)

	for _, e := range castleSupplyTable {
		n := e.n * p.Supplies / 40
		inv.Resources[e.res] += n
		g.trackResourceOwner(e.res, player, n)
		if e.res == ResGoldOre || e.res == ResGoldBar {
			g.GoldTotal += n
		}
	}
	for _, e := range castleSerfTable {
		for i := 0; i < e.n; i++ {
			s := g.createSerf(e.t, player, pos)
			g.addSerfToInventory(inv, s)
		}
	}

	p.HasCastle = true
	p.CastlePos = pos
	p.BuildingCounts[BuildingCastle]++
	g.updateLandOwnership(pos)
	g.calculateMilitaryScore(player)
	return true
}

// ---- Demolition ----

// DemolishFlag removes a flag, merging its two road stubs when present.
func (g *Game) DemolishFlag(pos maplib.Pos, player int) bool {
	if !g.CanDemolishFlag(pos, player) {
		return false
	}
	f := g.FlagAt(pos)
	dirs := f.ConnectedEdges()
	switch len(dirs) {
	case 2:
		g.mergeRoads(f, dirs[0], dirs[1])
	case 1:
		g.removeRoad(f, dirs[0])
	}
	// queued resources are lost
	for i := range f.Slots {
		if f.Slots[i].Type != ResourceNone {
			g.loseResource(f.Slots[i].Type)
		}
	}
	g.Map.SetObject(pos, maplib.ObjNone, 0)
	g.retargetSerfsFromFlag(f)
	g.flags.release(f.Index)
	return true
}

// mergeRoads joins the two roads at a demolished flag into one.
func (g *Game) mergeRoads(f *Flag, d1, d2 maplib.Direction) {
	e1, e2 := f.Edges[d1], f.Edges[d2]
	fa, fb := g.Flag(e1.Other), g.Flag(e2.Other)
	if fa == nil || fb == nil {
		return
	}
	tiles := bucketMidLength[e1.LengthBucket] + bucketMidLength[e2.LengthBucket]
	trans := e1.Transporters + e2.Transporters
	g.unlinkEdge(f, d1)
	g.unlinkEdge(f, d2)
	linkFlags(fa, e1.OtherEndDir, fb, e2.OtherEndDir, tiles)
	fa.Edges[e1.OtherEndDir].Transporters = trans
	fb.Edges[e2.OtherEndDir].Transporters = trans
}

// removeRoad tears down the single road stub of a flag.
func (g *Game) removeRoad(f *Flag, d maplib.Direction) {
	g.clearPathFrom(f.Pos, d)
	g.unlinkEdge(f, d)
}

// clearPathFrom erases path bits from pos along d until a flag.
func (g *Game) clearPathFrom(pos maplib.Pos, d maplib.Direction) {
	cur := pos
	dir := d
	for {
		next := g.Map.Move(cur, dir)
		g.Map.SetPath(cur, dir, false)
		if g.Map.Obj(next) == maplib.ObjFlag {
			return
		}
		nd, ok := g.nextDirOnRoad(next, maplib.DirNone)
		if !ok {
			return
		}
		cur = next
		dir = nd
	}
}

// retargetSerfsFromFlag moves transporters homed on a dying flag to the far
// end of their road, and strands walkers.
func (g *Game) retargetSerfsFromFlag(f *Flag) {
	g.serfs.each(func(_ uint32, s *Serf) {
		switch s.State {
		case StateIdleOnPath, StateWaitIdleOnPath, StateWakeAtFlag, StateWakeOnPath:
			if s.S.Dest == f.Index {
				e := f.Edges[s.S.Dir]
				if o := g.Flag(e.Other); o != nil && e.HasPath {
					s.S.Dest = o.Index
					s.S.Dir = e.OtherEndDir
				} else {
					g.serfToLost(s)
				}
			}
		case StateWalking, StateTransporting, StateDelivering:
			if s.S.Dest == f.Index || s.S.BuildingIdx == f.Index {
				g.dropCarriedResource(s)
				g.serfToLost(s)
			}
		}
	})
}

// DemolishRoad removes the road crossing the given cell. Transporters on it
// become lost, in-flight resources are rescheduled.
func (g *Game) DemolishRoad(pos maplib.Pos, player int) bool {
	if g.Map.Owner(pos) != player || g.Map.Obj(pos) == maplib.ObjFlag {
		return false
	}
	var dirs []maplib.Direction
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if g.Map.HasPath(pos, d) {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) != 2 {
		return false
	}
	endA, _, edgeA := g.traceToFlag(pos, dirs[0])
	endB, _, edgeB := g.traceToFlag(pos, dirs[1])
	fa, fb := g.FlagAt(endA), g.FlagAt(endB)
	if fa == nil || fb == nil {
		return false
	}
	// clear the whole run of path bits between the flags
	g.clearPathFrom(pos, dirs[0])
	g.clearPathFrom(pos, dirs[1])
	g.dropEdgeServices(fa, edgeA)
	g.dropEdgeServices(fb, edgeB)
	g.unlinkEdge(fa, edgeA)
	fa.resetScheduledDir(edgeA)
	fb.resetScheduledDir(edgeB)
	return true
}

// dropEdgeServices strands transporters working the edge (f, d).
func (g *Game) dropEdgeServices(f *Flag, d maplib.Direction) {
	g.serfs.each(func(_ uint32, s *Serf) {
		if s.S.Dest == f.Index && s.S.Dir == d {
			switch s.State {
			case StateIdleOnPath, StateWaitIdleOnPath, StateWakeAtFlag,
				StateWakeOnPath, StateTransporting:
				g.detachTransporter(s)
				g.dropCarriedResource(s)
				g.serfToLost(s)
			}
		}
	})
}

// DemolishBuilding starts the burn-down of a building.
func (g *Game) DemolishBuilding(pos maplib.Pos, player int) bool {
	b := g.BuildingAt(pos)
	if b == nil || b.Player != player || b.Burning {
		return false
	}
	g.burnBuilding(b)
	return true
}

// burnCounterNormal and burnCounterCastle are the burn durations.
const (
	burnCounterNormal = 2047
	burnCounterCastle = 8191
)

// burnBuilding flips a building into the burning lifecycle: serfs spill out
// through the escape state, the inventory's gold leaves the global total.
func (g *Game) burnBuilding(b *Building) {
	b.Burning = true
	b.Active = false
	b.BurningCounter = burnCounterNormal
	if b.Type == BuildingCastle {
		b.BurningCounter = burnCounterCastle
	}
	if b.Done {
		if p := g.players[b.Player]; p != nil && p.BuildingCounts[b.Type] > 0 {
			p.BuildingCounts[b.Type]--
		}
	}

	// spill the holder/knight chain, cap at twelve escaping serfs
	spilled := 0
	for idx := b.FirstKnight; idx != 0; {
		s := g.Serf(idx)
		if s == nil {
			break
		}
		next := s.S.NextKnight
		s.S.NextKnight = 0
		if spilled < 12 {
			s.Pos = b.Pos
			g.setSerfState(s, StateEscapeBuilding)
			s.Counter = 0
			spilled++
		} else {
			g.killSerf(s)
		}
		idx = next
	}
	b.FirstKnight = 0
	g.serfs.each(func(_ uint32, s *Serf) {
		if (s.Pos == b.Pos || s.S.BuildingIdx == b.Index) &&
			s.State != StateEscapeBuilding && s.State != StateLost {
			if workStateOf(s.State) {
				if spilled < 12 {
					g.setSerfState(s, StateEscapeBuilding)
					s.Counter = 0
					spilled++
				} else {
					g.killSerf(s)
				}
			}
		}
	})

	if inv := g.Inventory(b.Inventory); inv != nil {
		inv.DropOutQueue()
		g.GoldTotal -= inv.GoldCount()
		inv.Resources[ResGoldBar] = 0
		inv.Resources[ResGoldOre] = 0
		// idle serfs burn with the stock
		g.serfs.each(func(_ uint32, s *Serf) {
			if s.State == StateIdleInStock && s.S.InvIndex == inv.Index {
				g.killSerf(s)
			}
		})
	}
	if b.Type.IsMilitary() {
		g.GoldTotal -= b.GoldDelivered
		b.GoldDelivered = 0
		g.calculateMilitaryScore(b.Player)
	}
	if p := g.players[b.Player]; p != nil {
		p.notify(NotifyLostBuildings, b.Pos)
		if b.Type == BuildingCastle {
			p.HasCastle = false
			p.notify(NotifyCastleDestroyed, b.Pos)
		}
	}
}

func workStateOf(st SerfState) bool {
	switch st {
	case StateDigging, StateBuilding, StateBuildingCastle, StateSawing,
		StateMining, StateSmelting, StateMilling, StateBaking,
		StatePigFarming, StateButchering, StateMakingTool,
		StateMakingWeapon, StateBuildingBoat, StatePlanningLogging,
		StatePlanningPlanting, StatePlanningStoneCutting,
		StatePlanningFishing, StatePlanningFarming, StateFinished:
		return true
	}
	return false
}

// deleteBuilding removes a burnt-out building from the game.
func (g *Game) deleteBuilding(b *Building) {
	if inv := g.Inventory(b.Inventory); inv != nil {
		g.inventories.release(inv.Index)
	}
	if f := g.Flag(b.Flag); f != nil {
		f.Building = 0
		f.HasInventory = false
	}
	g.Map.SetPath(b.Pos, maplib.DirDownRight, false)
	g.Map.SetObject(b.Pos, maplib.ObjNone, 0)
	g.buildings.release(b.Index)
}

// ---- Land ownership ----

// military influence per building strength band; index by weight
var influenceStrength = map[BuildingType]int{
	BuildingHut:      1,
	BuildingTower:    2,
	BuildingFortress: 3,
	BuildingCastle:   4,
}

const influenceRadius = 8

// updateLandOwnership recomputes cell owners in a region around center from
// military-building influence, updates land-area totals and demolishes
// structures stranded outside their owner's new border.
func (g *Game) updateLandOwnership(center maplib.Pos) {
	// gather military buildings near the region
	type source struct {
		pos      maplib.Pos
		player   int
		strength int
	}
	var sources []source
	g.buildings.each(func(_ uint32, b *Building) {
		if !b.Type.IsMilitary() || b.Burning || !b.Done {
			return
		}
		if b.Type != BuildingCastle && b.FirstKnight == 0 {
			return // unoccupied military buildings exert no influence
		}
		if g.Map.Dist(b.Pos, center) > 2*influenceRadius {
			return
		}
		sources = append(sources, source{b.Pos, b.Player, influenceStrength[b.Type]})
	})

	g.Map.Spiral(center, spiralRegionRadius, func(p maplib.Pos) bool {
		bestPlayer, bestInf := maplib.NoOwner, 0
		for _, s := range sources {
			d := g.Map.Dist(s.pos, p)
			if d > influenceRadius {
				continue
			}
			inf := s.strength*256 - d*32
			if inf > bestInf {
				bestInf = inf
				bestPlayer = s.player
			}
		}
		old := g.Map.Owner(p)
		if old == bestPlayer {
			return true
		}
		if old != maplib.NoOwner && g.players[old] != nil {
			g.players[old].LandArea--
		}
		if bestPlayer != maplib.NoOwner && g.players[bestPlayer] != nil {
			g.players[bestPlayer].LandArea++
		}
		g.Map.SetOwner(p, bestPlayer)
		return true
	})

	g.demolishStranded(center)
}

const spiralRegionRadius = 9

// demolishStranded burns buildings and removes flags that ended up outside
// their owner's territory after an ownership update.
func (g *Game) demolishStranded(center maplib.Pos) {
	g.buildings.each(func(_ uint32, b *Building) {
		if b.Burning || g.Map.Dist(b.Pos, center) > spiralRegionRadius {
			return
		}
		if g.Map.Owner(b.Pos) != b.Player {
			g.burnBuilding(b)
		}
	})
	g.flags.each(func(_ uint32, f *Flag) {
		if g.Map.Dist(f.Pos, center) > spiralRegionRadius {
			return
		}
		if g.Map.Owner(f.Pos) != f.Player {
			// tear off the roads, then the flag
			for _, d := range f.ConnectedEdges() {
				g.removeRoad(f, d)
			}
			for i := range f.Slots {
				if f.Slots[i].Type != ResourceNone {
					g.loseResource(f.Slots[i].Type)
				}
			}
			g.Map.SetObject(f.Pos, maplib.ObjNone, 0)
			g.retargetSerfsFromFlag(f)
			g.flags.release(f.Index)
		}
	})
}

// InitLandOwnership recomputes ownership everywhere (loader use).
func (g *Game) InitLandOwnership() {
	g.buildings.each(func(_ uint32, b *Building) {
		if b.Type.IsMilitary() && b.Done && !b.Burning {
			g.updateLandOwnership(b.Pos)
		}
	})
}

// ---- Attack ----

// threatBandOf classifies a friendly military building's distance to the
// target into the four bands.
func threatBandOf(dist int) int {
	switch {
	case dist <= 9:
		return 0 // closest
	case dist <= 18:
		return 1
	case dist <= 27:
		return 2
	}
	return 3 // farthest
}

// PlanAttack counts the knights available to attack a target building per
// distance band and stores the plan. Returns the total available.
func (g *Game) PlanAttack(player int, target uint32) int {
	p := g.players[player]
	t := g.Building(target)
	if p == nil || t == nil || !t.Type.IsMilitary() || t.Player == player {
		return 0
	}
	plan := AttackPlan{Target: target}
	g.buildings.each(func(_ uint32, b *Building) {
		if b.Player != player || !b.Type.IsMilitary() || b.Burning || !b.Done {
			return
		}
		band := threatBandOf(g.Map.Dist(b.Pos, t.Pos))
		// keep the minimum occupation at home
		spare := g.knightCount(b) - p.KnightOccupation[b.ThreatLevel].Min
		if spare > 0 {
			plan.ByBand[band] += spare
			plan.TotalKnights += spare
		}
	})
	p.Attack = plan
	return plan.TotalKnights
}

// StartAttack launches up to maxKnights attackers from the planned bands,
// closest band first.
func (g *Game) StartAttack(player int, maxKnights int) int {
	p := g.players[player]
	if p == nil || p.Attack.Target == 0 {
		return 0
	}
	target := g.Building(p.Attack.Target)
	if target == nil || target.Burning || target.Player == player {
		p.Attack = AttackPlan{}
		return 0
	}
	launched := 0
	band := 0
	launch := func(_ uint32, b *Building) {
		if launched >= maxKnights {
			return
		}
		if b.Player != player || !b.Type.IsMilitary() || b.Burning || !b.Done {
			return
		}
		if threatBandOf(g.Map.Dist(b.Pos, target.Pos)) != band {
			return
		}
		for launched < maxKnights &&
			g.knightCount(b) > p.KnightOccupation[b.ThreatLevel].Min {
			s := g.popDefender(b)
			if s == nil {
				break
			}
			s.Pos = b.Pos
			s.S.BuildingIdx = target.Index
			s.Counter = 0
			g.setSerfState(s, StateKnightFreeWalking)
			launched++
		}
	}
	for ; band < 4; band++ {
		g.buildings.each(launch)
	}
	if launched > 0 {
		if tp := g.players[target.Player]; tp != nil {
			tp.notify(NotifyUnderAttack, target.Pos)
		}
		g.calculateMilitaryScore(player)
	}
	return launched
}

// occupyEnemyBuilding transfers a conquered military building to the
// victor's player, garrisons the victor, burns the adjacent enemy
// structures and repaints the surrounding territory. The victor enters the
// chain before the ownership repaint so the building exerts influence.
func (g *Game) occupyEnemyBuilding(b *Building, victor *Serf) {
	old := b.Player
	player := victor.Player
	if p := g.players[old]; p != nil {
		p.notify(NotifyLostLand, b.Pos)
		if p.BuildingCounts[b.Type] > 0 {
			p.BuildingCounts[b.Type]--
		}
	}
	g.GoldTotal -= b.GoldDelivered
	b.GoldDelivered = 0
	b.Player = player
	b.FirstKnight = 0
	b.Holder = false
	if p := g.players[player]; p != nil {
		p.BuildingCounts[b.Type]++
	}
	if f := g.Flag(b.Flag); f != nil {
		f.Player = player
	}
	victor.Pos = b.Pos
	g.knightEnterBuilding(b, victor)
	// adjacent enemy buildings burn in a small ring
	g.Map.Spiral(b.Pos, 2, func(q maplib.Pos) bool {
		if ob := g.BuildingAt(q); ob != nil && ob.Player == old && !ob.Burning {
			g.burnBuilding(ob)
		}
		return true
	})
	g.updateLandOwnership(b.Pos)
	g.calculateMilitaryScore(old)
	g.calculateMilitaryScore(player)
}
