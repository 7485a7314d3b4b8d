package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

// ---- Inventory exit ----

func (g *Game) handleReadyToLeaveInventory(s *Serf) {
	if s.Counter > 0 {
		return
	}
	inv := g.Inventory(s.S.InvIndex)
	if inv == nil {
		g.serfToLost(s)
		return
	}
	f := g.Flag(inv.Flag)
	if f == nil {
		g.serfToLost(s)
		return
	}
	// step out of the building onto its flag
	s.Pos = f.Pos
	s.Counter = 0
	g.setSerfState(s, StateWalking)
}

// ---- Road walking ----

// arrive applies the staged next state when a walking serf reaches its
// destination flag.
func (g *Game) arrive(s *Serf) {
	next := s.S.NextState
	switch next {
	case StateIdleOnPath:
		// become the transporter of the assigned edge
		f := g.Flag(s.S.Dest)
		if f == nil || !f.Edges[s.S.Dir].HasPath {
			g.serfToLost(s)
			return
		}
		f.Edges[s.S.Dir].Transporters++
		f.Edges[s.S.Dir].SerfRequested = false
		if o := g.Flag(f.Edges[s.S.Dir].Other); o != nil {
			o.Edges[f.Edges[s.S.Dir].OtherEndDir].Transporters++
		}
		s.Counter = 0
		g.setSerfState(s, StateIdleOnPath)
	case StateReadyToEnter:
		g.setSerfState(s, StateReadyToEnter)
		s.Counter = 0
	case StateLookingForGeoSpot:
		g.setSerfState(s, StateLookingForGeoSpot)
		s.Counter = 127
	case StateKnightEngagingBuilding:
		g.setSerfState(s, StateKnightEngagingBuilding)
		s.Counter = 0
	case StateIdleInStock:
		// walked home: enter the inventory
		f := g.Flag(s.S.Dest)
		var inv *Inventory
		if f != nil {
			inv = g.Inventory(f.invIndex(g))
		}
		if inv == nil {
			g.serfToLost(s)
			return
		}
		b := g.Building(inv.Building)
		if b != nil {
			s.Pos = b.Pos
		}
		g.addSerfToInventory(inv, s)
		g.setSerfState(s, StateIdleInStock)
	default:
		g.serfToLost(s)
	}
}

func (g *Game) handleWalking(s *Serf) {
	for s.Counter <= 0 {
		dest := g.Flag(s.S.Dest)
		if dest == nil {
			g.dropCarriedResource(s)
			g.serfToLost(s)
			return
		}
		if s.Pos == dest.Pos {
			g.arrive(s)
			return
		}
		var d maplib.Direction
		if f := g.FlagAt(s.Pos); f != nil {
			nd, ok := g.findDirToDest(f, s.S.Dest)
			if !ok {
				g.dropCarriedResource(s)
				g.serfToLost(s)
				return
			}
			d = nd
		} else {
			nd, ok := g.nextDirOnRoad(s.Pos, s.S.Dir.Reverse())
			if !ok {
				g.serfToLost(s)
				return
			}
			d = nd
		}
		s.S.Dir = d
		g.stepSerf(s, d)
	}
}

// ---- Transport ----

// roadEnds resolves the transporter's home flag, edge and far flag.
func (g *Game) roadEnds(s *Serf) (*Flag, *Flag, maplib.Direction, bool) {
	home := g.Flag(s.S.Dest)
	if home == nil || !home.Edges[s.S.Dir].HasPath {
		return nil, nil, maplib.DirNone, false
	}
	far := g.Flag(home.Edges[s.S.Dir].Other)
	if far == nil {
		return nil, nil, maplib.DirNone, false
	}
	return home, far, home.Edges[s.S.Dir].OtherEndDir, true
}

func (g *Game) detachTransporter(s *Serf) {
	home, far, farDir, ok := g.roadEnds(s)
	if !ok {
		return
	}
	if home.Edges[s.S.Dir].Transporters > 0 {
		home.Edges[s.S.Dir].Transporters--
	}
	if far.Edges[farDir].Transporters > 0 {
		far.Edges[farDir].Transporters--
	}
}

func (g *Game) handleIdleOnPath(s *Serf) {
	if s.Counter > 0 {
		return
	}
	home, far, farDir, ok := g.roadEnds(s)
	if !ok {
		g.serfToLost(s)
		return
	}
	if res, dest, got := home.PickScheduled(s.S.Dir); got {
		s.S.Res = res
		s.S.ResDest = dest
		s.Pos = home.Pos
		s.S.Phase = int(farDir) // remember the arrival edge
		s.S.BuildingIdx = far.Index
		s.Counter = g.roadTravelCost(home, s.S.Dir)
		g.setSerfState(s, StateTransporting)
		return
	}
	if res, dest, got := far.PickScheduled(farDir); got {
		s.S.Res = res
		s.S.ResDest = dest
		s.Pos = far.Pos
		s.S.Phase = int(s.S.Dir)
		s.S.BuildingIdx = home.Index
		s.Counter = g.roadTravelCost(far, farDir)
		g.setSerfState(s, StateTransporting)
		return
	}
	s.Counter = 32
}

// roadTravelCost charges the whole road crossing at once; the serf's
// position snaps to the far flag when the counter drains.
func (g *Game) roadTravelCost(from *Flag, d maplib.Direction) int {
	return 32 * bucketMidLength[from.Edges[d].LengthBucket]
}

func (g *Game) handleTransporting(s *Serf) {
	if s.Counter > 0 {
		return
	}
	target := g.Flag(s.S.BuildingIdx)
	if target == nil {
		g.dropCarriedResource(s)
		g.serfToLost(s)
		return
	}
	s.Pos = target.Pos
	res, resDest := s.S.Res, s.S.ResDest
	s.S.Res = ResourceNone
	s.S.ResDest = 0

	delivered := false
	if resDest == target.Index || resDest == 0 {
		// terminal flag: building input, inventory, or requeue
		if b := g.Building(target.Building); b != nil && g.deliverToBuilding(b, res) {
			delivered = true
		} else if target.HasInventory {
			if inv := g.Inventory(target.invIndex(g)); inv != nil {
				inv.PushResource(res)
				g.trackResourceOwner(res, inv.Player, 1)
				delivered = true
			}
		}
	}
	if !delivered {
		if !target.DropResource(res, resDest) {
			// flag congested: give the resource back to the network later
			g.loseResource(res)
			g.logger.Debug("resource dropped at congested flag",
				"flag", target.Index, "res", res.String())
		}
	}
	g.setSerfState(s, StateWakeAtFlag)
	s.Counter = 0
}

func (g *Game) handleWakeAtFlag(s *Serf) {
	if s.Counter > 0 {
		return
	}
	// settle back onto the road
	if home, _, _, ok := g.roadEnds(s); ok {
		s.Pos = home.Pos
		g.setSerfState(s, StateIdleOnPath)
		s.Counter = 0
		return
	}
	g.serfToLost(s)
}

// ---- Building entry/exit ----

func (g *Game) handleReadyToEnter(s *Serf) {
	if s.Counter > 0 {
		return
	}
	f := g.Flag(s.S.Dest)
	if f == nil {
		g.serfToLost(s)
		return
	}
	b := g.Building(f.Building)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	s.Pos = b.Pos
	s.Counter = 32
	g.setSerfState(s, StateEnteringBuilding)
}

func (g *Game) handleEnteringBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.BuildingAt(s.Pos)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	b.SerfRequested = false
	if s.Type.IsKnight() {
		g.knightEnterBuilding(b, s)
		return
	}
	switch s.Type {
	case SerfDigger:
		b.Holder = true
		g.setSerfState(s, StateDigging)
		s.Counter = 384
	case SerfBuilder:
		b.Holder = true
		g.setSerfState(s, StateBuilding)
		s.Counter = 256
	default:
		b.Holder = true
		b.Active = true
		s.S.BuildingIdx = b.Index
		g.setSerfState(s, buildingWorkState(b.Type))
		s.Counter = workPeriod
	}
}

func (g *Game) knightEnterBuilding(b *Building, s *Serf) {
	// push onto the knight chain, strongest first is not required; the
	// chain keeps arrival order
	s.S.NextKnight = b.FirstKnight
	b.FirstKnight = s.Index
	b.Holder = true
	b.Active = true
	s.S.BuildingIdx = b.Index
	g.setSerfState(s, StateFinished) // garrisoned
	if b.Type.IsMilitary() {
		g.calculateMilitaryScore(b.Player)
	}
}

func (g *Game) handleLeavingBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	g.setSerfState(s, s.S.NextState)
	s.S.NextState = StateNull
}

func (g *Game) handleReadyToLeave(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.BuildingAt(s.Pos)
	if b != nil {
		if f := g.Flag(b.Flag); f != nil {
			s.Pos = f.Pos
		}
	}
	s.Counter = 32
	g.setSerfState(s, StateLeavingBuilding)
}

// returnToInventory routes a serf home over the road network.
func (g *Game) returnToInventory(s *Serf) {
	f := g.FlagAt(s.Pos)
	if f == nil {
		g.serfToLost(s)
		return
	}
	inv := g.findNearestInventoryAcceptingSerfs(f)
	if inv == nil {
		g.serfToLost(s)
		return
	}
	s.S.Dest = inv.Flag
	s.S.NextState = StateIdleInStock
	g.setSerfState(s, StateWalking)
}

// ---- Construction ----

func (g *Game) handleDigging(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.BuildingAt(s.Pos)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	// level the six corners toward the building height
	target := g.Map.Height(b.Pos)
	leveled := true
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		p := g.Map.Move(b.Pos, d)
		h := g.Map.Height(p)
		if h != target {
			if h > target {
				g.Map.SetHeight(p, h-1)
			} else {
				g.Map.SetHeight(p, h+1)
			}
			leveled = false
			break
		}
	}
	if leveled {
		b.Progress = 1 // ground ready for the builder
		b.Holder = false
		b.SerfRequested = false
		g.stageReturnHome(s)
		return
	}
	s.Counter = 384
}

func (g *Game) handleBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.BuildingAt(s.Pos)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	if !g.constructionStep(b) {
		s.Counter = 256 // waiting for materials
		return
	}
	if b.Done {
		b.Holder = false
		g.stageReturnHome(s)
		return
	}
	s.Counter = 256
}

func (g *Game) handleBuildingCastle(s *Serf) {
	// the castle erects itself; the serf only waits out the counter
	if s.Counter > 0 {
		return
	}
	b := g.BuildingAt(s.Pos)
	if b == nil {
		g.serfToLost(s)
		return
	}
	if b.Done {
		g.stageReturnHome(s)
		return
	}
	s.Counter = 256
}

// stageReturnHome sends a serf standing in/at a building back to an
// inventory through its flag.
func (g *Game) stageReturnHome(s *Serf) {
	b := g.BuildingAt(s.Pos)
	if b != nil {
		if f := g.Flag(b.Flag); f != nil {
			s.Pos = f.Pos
		}
	}
	g.returnToInventory(s)
}

// ---- Production work ----

// workPeriod is the baseline tick cost of one production cycle.
const workPeriod = 1024

// buildingWorkState maps a building type to its holder's working state.
func buildingWorkState(t BuildingType) SerfState {
	switch t {
	case BuildingFisher:
		return StatePlanningFishing
	case BuildingLumberjack:
		return StatePlanningLogging
	case BuildingForester:
		return StatePlanningPlanting
	case BuildingStonecutter:
		return StatePlanningStoneCutting
	case BuildingFarm:
		return StatePlanningFarming
	case BuildingSawmill:
		return StateSawing
	case BuildingStoneMine, BuildingCoalMine, BuildingIronMine, BuildingGoldMine:
		return StateMining
	case BuildingSteelSmelter, BuildingGoldSmelter:
		return StateSmelting
	case BuildingMill:
		return StateMilling
	case BuildingBaker:
		return StateBaking
	case BuildingPigFarm:
		return StatePigFarming
	case BuildingButcher:
		return StateButchering
	case BuildingToolMaker:
		return StateMakingTool
	case BuildingWeaponSmith:
		return StateMakingWeapon
	case BuildingBoatbuilder:
		return StateBuildingBoat
	}
	return StateFinished
}

// planningTarget finds the outdoor work object for a profession.
func (g *Game) planningTarget(s *Serf, b *Building) (maplib.Pos, bool) {
	var want func(maplib.Pos) bool
	switch s.State {
	case StatePlanningLogging:
		want = func(p maplib.Pos) bool { return g.Map.Obj(p).IsTree() }
	case StatePlanningPlanting:
		want = func(p maplib.Pos) bool {
			return g.Map.Obj(p) == maplib.ObjNone && g.Map.TypeUp(p).IsGrass()
		}
	case StatePlanningStoneCutting:
		want = func(p maplib.Pos) bool { return g.Map.Obj(p).IsStone() }
	case StatePlanningFishing:
		want = func(p maplib.Pos) bool { return g.Map.Mineral(p) == maplib.MineralFish }
	case StatePlanningFarming:
		want = func(p maplib.Pos) bool {
			o := g.Map.Obj(p)
			return o == maplib.ObjField2 ||
				(o == maplib.ObjNone && g.Map.TypeUp(p).IsGrass())
		}
	default:
		return 0, false
	}
	found := maplib.BadPos
	g.Map.Spiral(b.Pos, 6, func(p maplib.Pos) bool {
		if p != b.Pos && want(p) {
			found = p
			return false
		}
		return true
	})
	return found, found != maplib.BadPos
}

// planToWork maps a planning state to its work state.
var planToWork = map[SerfState]SerfState{
	StatePlanningLogging:      StateLogging,
	StatePlanningPlanting:     StatePlanting,
	StatePlanningStoneCutting: StateStoneCutting,
	StatePlanningFishing:      StateFishing,
	StatePlanningFarming:      StateFarming,
}

func (g *Game) handlePlanningWork(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.Building(s.S.BuildingIdx)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	p, ok := g.planningTarget(s, b)
	if !ok {
		s.Counter = workPeriod / 2 // nothing to work on yet
		return
	}
	s.S.FreeCol = int(g.Map.Col(p))
	s.S.FreeRow = int(g.Map.Row(p))
	s.S.NextState = planToWork[s.State]
	s.Counter = 32 * g.Map.Dist(b.Pos, p)
	g.setSerfState(s, StateFreeWalking)
	s.S.Phase = 0 // outbound
}

func (g *Game) handleFreeWalking(s *Serf) {
	if s.Counter > 0 {
		return
	}
	target := g.Map.MakePos(uint32(s.S.FreeCol), uint32(s.S.FreeRow))
	s.Pos = target
	next := s.S.NextState
	s.S.NextState = StateNull
	if next == StateNull {
		g.serfToLost(s)
		return
	}
	g.setSerfState(s, next)
	s.Counter = workPeriod
}

// handleWorkOutside performs one outdoor production: the object
// transformation and the resource dropped at the building flag on return.
func (g *Game) handleWorkOutside(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.Building(s.S.BuildingIdx)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	p := s.Pos
	var produced Resource = ResourceNone
	switch s.State {
	case StateLogging:
		if g.Map.Obj(p).IsTree() {
			g.Map.SetObject(p, maplib.ObjNone, 0)
			produced = ResLumber
		}
	case StatePlanting:
		if g.Map.Obj(p) == maplib.ObjNone {
			g.Map.SetObject(p, maplib.ObjSapling, 0)
		}
	case StateStoneCutting:
		if o := g.Map.Obj(p); o.IsStone() {
			if o == maplib.ObjStone0 {
				g.Map.SetObject(p, maplib.ObjNone, 0)
			} else {
				g.Map.SetObject(p, o-1, 0)
			}
			produced = ResStone
		}
	case StateFishing:
		if g.Map.Mineral(p) == maplib.MineralFish {
			g.Map.RemoveMineral(p)
			produced = ResFish
		}
	case StateFarming:
		switch g.Map.Obj(p) {
		case maplib.ObjNone:
			g.Map.SetObject(p, maplib.ObjSeeds0, 0)
		case maplib.ObjField2:
			g.Map.SetObject(p, maplib.ObjFieldExpired, 0)
			produced = ResWheat
		}
	}
	// walk home and drop the product at the building flag
	f := g.Flag(b.Flag)
	if f == nil {
		g.serfToLost(s)
		return
	}
	if produced != ResourceNone {
		if !f.DropResource(produced, 0) {
			g.loseResource(produced)
		} else {
			g.players[b.Player].ResourceProduced[produced]++
		}
	}
	s.Pos = b.Pos
	g.setSerfState(s, buildingWorkState(b.Type))
	s.Counter = workPeriod + g.Map.Dist(s.Pos, f.Pos)*32
}

// insideRecipe is the input/output table for indoor production states.
type insideRecipe struct {
	inputs  []Resource
	output  Resource
	altOut  Resource // alternating second output (weaponsmith)
}

var insideRecipes = map[BuildingType]insideRecipe{
	BuildingSawmill:      {inputs: []Resource{ResLumber}, output: ResPlank},
	BuildingSteelSmelter: {inputs: []Resource{ResCoal, ResIronOre}, output: ResSteel},
	BuildingGoldSmelter:  {inputs: []Resource{ResCoal, ResGoldOre}, output: ResGoldBar},
	BuildingMill:         {inputs: []Resource{ResWheat}, output: ResFlour},
	BuildingBaker:        {inputs: []Resource{ResFlour}, output: ResBread},
	BuildingPigFarm:      {inputs: []Resource{ResWheat}, output: ResPig},
	BuildingButcher:      {inputs: []Resource{ResPig}, output: ResMeat},
	BuildingToolMaker:    {inputs: []Resource{ResPlank, ResSteel}, output: ResShovel},
	BuildingWeaponSmith:  {inputs: []Resource{ResCoal, ResSteel}, output: ResSword, altOut: ResShield},
	BuildingBoatbuilder:  {inputs: []Resource{ResPlank}, output: ResBoat},
}

func (g *Game) handleWorkInside(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.Building(s.S.BuildingIdx)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	recipe, ok := insideRecipes[b.Type]
	if !ok {
		s.Counter = workPeriod
		return
	}
	// consume one unit of each input from the stocks
	for _, in := range recipe.inputs {
		found := false
		for i := range b.Stocks {
			if b.Stocks[i].Type == in && b.Stocks[i].Available > 0 {
				found = true
				break
			}
		}
		if !found {
			s.Counter = workPeriod / 2
			return
		}
	}
	for _, in := range recipe.inputs {
		for i := range b.Stocks {
			if b.Stocks[i].Type == in && b.Stocks[i].Available > 0 {
				b.Stocks[i].Available--
				break
			}
		}
	}
	out := recipe.output
	if b.Type == BuildingToolMaker {
		out = g.players[b.Player].nextToolToMake()
	}
	if b.Type == BuildingWeaponSmith && s.S.Phase&1 == 1 {
		out = recipe.altOut
	}
	s.S.Phase++
	f := g.Flag(b.Flag)
	if f == nil {
		g.serfToLost(s)
		return
	}
	if !f.DropResource(out, 0) {
		g.loseResource(out)
	} else {
		g.players[b.Player].ResourceProduced[out]++
	}
	s.Counter = workPeriod
}

func (g *Game) handleMining(s *Serf) {
	if s.Counter > 0 {
		return
	}
	b := g.Building(s.S.BuildingIdx)
	if b == nil || b.Burning {
		g.serfToLost(s)
		return
	}
	// a mining cycle eats one food unit
	fed := false
	for i := range b.Stocks {
		if b.Stocks[i].Type == groupFood && b.Stocks[i].Available > 0 {
			b.Stocks[i].Available--
			fed = true
			break
		}
	}
	if !fed {
		b.Active = false
		s.Counter = workPeriod
		return
	}
	b.Active = true
	want := mineMineral(b.Type)
	found := maplib.BadPos
	g.Map.Spiral(b.Pos, 2, func(p maplib.Pos) bool {
		if g.Map.Mineral(p) == want && g.Map.ResAmount(p) > 0 {
			found = p
			return false
		}
		return true
	})
	if found == maplib.BadPos {
		// depleted mine keeps eating food but yields nothing
		s.Counter = workPeriod
		return
	}
	g.Map.RemoveMineral(found)
	out := mineOutput(b.Type)
	if f := g.Flag(b.Flag); f != nil {
		if !f.DropResource(out, 0) {
			g.loseResource(out)
		} else {
			g.players[b.Player].ResourceProduced[out]++
		}
	}
	s.Counter = workPeriod
}

func mineMineral(t BuildingType) maplib.Mineral {
	switch t {
	case BuildingStoneMine:
		return maplib.MineralStone
	case BuildingCoalMine:
		return maplib.MineralCoal
	case BuildingIronMine:
		return maplib.MineralIron
	case BuildingGoldMine:
		return maplib.MineralGold
	}
	return maplib.MineralNone
}

func mineOutput(t BuildingType) Resource {
	switch t {
	case BuildingStoneMine:
		return ResStone
	case BuildingCoalMine:
		return ResCoal
	case BuildingIronMine:
		return ResIronOre
	case BuildingGoldMine:
		return ResGoldOre
	}
	return ResourceNone
}

// ---- Geologist ----

func (g *Game) handleLookingForGeoSpot(s *Serf) {
	if s.Counter > 0 {
		return
	}
	found := maplib.BadPos
	g.Map.Spiral(s.Pos, 3, func(p maplib.Pos) bool {
		if g.Map.TypeUp(p).IsTundra() && g.Map.Obj(p) == maplib.ObjNone {
			found = p
			return false
		}
		return true
	})
	if found == maplib.BadPos {
		g.returnToInventory(s)
		return
	}
	s.S.FreeCol = int(g.Map.Col(found))
	s.S.FreeRow = int(g.Map.Row(found))
	s.Counter = 32 * g.Map.Dist(s.Pos, found)
	s.S.NextState = StateSamplingGeoSpot
	g.setSerfState(s, StateFreeWalking)
}

func (g *Game) handleSamplingGeoSpot(s *Serf) {
	if s.Counter > 0 {
		return
	}
	if g.Map.Mineral(s.Pos) != maplib.MineralNone && g.Map.Obj(s.Pos) == maplib.ObjNone {
		g.Map.SetObject(s.Pos, maplib.ObjSign, 0)
		g.players[s.Player].notify(NotifyFoundOre, s.Pos)
	}
	g.returnToInventory(s)
}

// ---- Recovery ----

func (g *Game) handleLost(s *Serf) {
	if s.Counter > 0 {
		return
	}
	// head straight toward the closest inventory that takes serfs in
	best := maplib.BadPos
	bestDist := 1 << 30
	g.inventories.each(func(_ uint32, inv *Inventory) {
		if inv.Player != s.Player || inv.SerfMode == ModeOut {
			return
		}
		b := g.Building(inv.Building)
		if b == nil || b.Burning {
			return
		}
		if d := g.Map.Dist(s.Pos, b.Pos); d < bestDist {
			bestDist = d
			best = b.Pos
		}
	})
	if best == maplib.BadPos {
		g.killSerf(s)
		return
	}
	if s.Pos == best {
		b := g.BuildingAt(best)
		if b != nil {
			if inv := g.Inventory(b.Inventory); inv != nil {
				g.addSerfToInventory(inv, s)
				g.setSerfState(s, StateIdleInStock)
				return
			}
		}
		g.killSerf(s)
		return
	}
	// one step closer, deterministic direction preference
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		np := g.Map.Move(s.Pos, d)
		if g.Map.Dist(np, best) < g.Map.Dist(s.Pos, best) {
			g.stepSerf(s, d)
			if g.Options.LostTransportersClearFaster && s.Type == SerfTransporter {
				s.Counter /= 2
			}
			return
		}
	}
	s.Counter = 32
}

func (g *Game) handleEscapeBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	g.setSerfState(s, StateLost)
	s.Counter = 0
}

// ---- Knight combat ----

func (g *Game) handleKnightFreeWalking(s *Serf) {
	if s.Counter > 0 {
		return
	}
	target := g.Building(s.S.BuildingIdx)
	if target == nil || target.Burning {
		g.serfToLost(s)
		return
	}
	if g.Map.Dist(s.Pos, target.Pos) <= 1 {
		g.setSerfState(s, StateKnightEngagingBuilding)
		s.Counter = 0
		return
	}
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		np := g.Map.Move(s.Pos, d)
		if g.Map.Dist(np, target.Pos) < g.Map.Dist(s.Pos, target.Pos) {
			g.stepSerf(s, d)
			return
		}
	}
	s.Counter = 32
}

func (g *Game) handleKnightEngagingBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	target := g.Building(s.S.BuildingIdx)
	if target == nil || target.Burning {
		g.serfToLost(s)
		return
	}
	if target.Player == s.Player {
		// already captured by a fellow attacker
		g.serfToLost(s)
		return
	}
	def := g.popDefender(target)
	if def == nil {
		g.setSerfState(s, StateKnightOccupyEnemyBuilding)
		s.Counter = 0
		return
	}
	def.Pos = target.Pos
	def.S.DefIndex = s.Index
	g.setSerfState(def, StateKnightDefending)
	s.S.DefIndex = def.Index
	g.setSerfState(s, StateKnightPrepareAttacking)
	s.Counter = 64
}

// popDefender removes the first knight from the chain of a building.
func (g *Game) popDefender(b *Building) *Serf {
	for b.FirstKnight != 0 {
		s := g.Serf(b.FirstKnight)
		if s == nil {
			b.FirstKnight = 0
			return nil
		}
		b.FirstKnight = s.S.NextKnight
		s.S.NextKnight = 0
		if s.State == StateFinished || s.State == StateKnightDefending {
			return s
		}
	}
	return nil
}

func (g *Game) handleKnightPrepareAttacking(s *Serf) {
	if s.Counter > 0 {
		return
	}
	g.setSerfState(s, StateKnightAttacking)
	s.Counter = 128
}

func (g *Game) handleKnightAttacking(s *Serf) {
	if s.Counter > 0 {
		return
	}
	def := g.Serf(s.S.DefIndex)
	if def == nil {
		g.setSerfState(s, StateKnightAttackingVictory)
		s.Counter = 0
		return
	}
	attPower := (int(s.Type-SerfKnight0) + 1) * int(g.players[s.Player].KnightMorale)
	defPower := (int(def.Type-SerfKnight0) + 1) * int(g.players[def.Player].KnightMorale)
	draw := int(g.Rand.Uint16())
	if draw%(attPower+defPower) < attPower {
		g.killSerf(def)
		g.setSerfState(s, StateKnightAttackingVictory)
		s.Counter = 128
	} else {
		g.setSerfState(s, StateKnightAttackingDefeat)
		s.Counter = 128
		// the defender returns to the garrison chain
		if b := g.Building(def.S.BuildingIdx); b != nil && !b.Burning {
			def.S.NextKnight = b.FirstKnight
			b.FirstKnight = def.Index
			g.setSerfState(def, StateFinished)
		} else {
			g.serfToLost(def)
		}
	}
}

func (g *Game) handleKnightAttackingVictory(s *Serf) {
	if s.Counter > 0 {
		return
	}
	g.setSerfState(s, StateKnightEngagingBuilding)
	s.Counter = 0
}

func (g *Game) handleKnightAttackingDefeat(s *Serf) {
	if s.Counter > 0 {
		return
	}
	g.killSerf(s)
}

func (g *Game) handleKnightOccupyEnemyBuilding(s *Serf) {
	if s.Counter > 0 {
		return
	}
	target := g.Building(s.S.BuildingIdx)
	if target == nil || target.Burning {
		g.serfToLost(s)
		return
	}
	if target.Player != s.Player {
		g.occupyEnemyBuilding(target, s)
		return
	}
	// another attacker captured it first; reinforce the garrison
	s.Pos = target.Pos
	g.knightEnterBuilding(target, s)
}
