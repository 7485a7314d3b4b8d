package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

// SerfState enumerates the serf finite-state machine.
type SerfState uint8

const (
	StateNull SerfState = iota
	StateIdleInStock
	StateReadyToLeaveInventory
	StateWalking
	StateTransporting
	StateDelivering
	StateIdleOnPath
	StateWaitIdleOnPath
	StateWakeAtFlag
	StateWakeOnPath
	StateEnteringBuilding
	StateLeavingBuilding
	StateReadyToEnter
	StateReadyToLeave
	StateDigging
	StateBuilding
	StateBuildingCastle
	StatePlanningLogging
	StateLogging
	StatePlanningPlanting
	StatePlanting
	StatePlanningStoneCutting
	StateStoneCutting
	StateSawing
	StateMining
	StateSmelting
	StatePlanningFishing
	StateFishing
	StatePlanningFarming
	StateFarming
	StateMilling
	StateBaking
	StatePigFarming
	StateButchering
	StateMakingTool
	StateMakingWeapon
	StateBuildingBoat
	StateLookingForGeoSpot
	StateSamplingGeoSpot
	StateFreeWalking
	StateLost
	StateEscapeBuilding
	StateKnightEngagingBuilding
	StateKnightPrepareAttacking
	StateKnightAttacking
	StateKnightDefending
	StateKnightAttackingVictory
	StateKnightAttackingDefeat
	StateKnightOccupyEnemyBuilding
	StateKnightFreeWalking
	StateFinished

	serfStateCount
)

var serfStateNames = [serfStateCount]string{
	"null", "idle-in-stock", "ready-to-leave-inventory", "walking",
	"transporting", "delivering", "idle-on-path", "wait-idle-on-path",
	"wake-at-flag", "wake-on-path", "entering-building", "leaving-building",
	"ready-to-enter", "ready-to-leave", "digging", "building",
	"building-castle", "planning-logging", "logging", "planning-planting",
	"planting", "planning-stonecutting", "stonecutting", "sawing", "mining",
	"smelting", "planning-fishing", "fishing", "planning-farming",
	"farming", "milling", "baking", "pigfarming", "butchering",
	"making-tool", "making-weapon", "building-boat", "looking-for-geo-spot",
	"sampling-geo-spot", "free-walking", "lost", "escape-building",
	"knight-engaging-building", "knight-prepare-attacking",
	"knight-attacking", "knight-defending", "knight-attacking-victory",
	"knight-attacking-defeat", "knight-occupy-enemy-building",
	"knight-free-walking", "finished",
}

func (s SerfState) String() string {
	if int(s) >= int(serfStateCount) {
		return "invalid"
	}
	return serfStateNames[s]
}

// StateData is the flattened per-state payload. Fields are reused across
// states; the save codec writes them all.
type StateData struct {
	Dest        uint32 // destination flag or building index
	Dir         maplib.Direction
	Res         Resource // carried resource
	ResDest     uint32   // destination flag of the carried resource
	InvIndex    uint32
	BuildingIdx uint32
	NextState   SerfState
	WaitCounter int
	Phase       int
	FreeCol     int // free-walking target column offset
	FreeRow     int
	NextKnight  uint32 // knight chain link
	DefIndex    uint32 // duel opponent serf index
}

// Serf is an autonomous agent of the simulation.
type Serf struct {
	Index  uint32
	Type   SerfType
	Player int
	Pos    maplib.Pos

	Animation int
	Counter   int
	Tick      uint16

	State SerfState
	S     StateData
}

func newSerf(t SerfType, player int, pos maplib.Pos) *Serf {
	return &Serf{Type: t, Player: player, Pos: pos, S: StateData{
		Dir: maplib.DirNone, Res: ResourceNone,
	}}
}

// setSerfState logs and performs a state transition.
func (g *Game) setSerfState(s *Serf, next SerfState) {
	if s.State == next {
		return
	}
	g.logger.Debug("serf state change",
		"serf", s.Index, "type", s.Type.String(),
		"from", s.State.String(), "to", next.String())
	s.State = next
}

// walkCost returns the tick cost of stepping from pos in dir; climbing is
// slower than descending.
func (g *Game) walkCost(pos maplib.Pos, d maplib.Direction) int {
	h := g.Map.HeightDiff(pos, d)
	cost := 32
	if h > 0 {
		cost += 8 * h
	} else {
		cost += 2 * h // downhill is slightly cheaper
	}
	if cost < 16 {
		cost = 16
	}
	return cost
}

// stepSerf moves a serf one tile and charges the walk cost.
func (g *Game) stepSerf(s *Serf, d maplib.Direction) {
	s.Counter += g.walkCost(s.Pos, d)
	s.Pos = g.Map.Move(s.Pos, d)
	s.Animation = (s.Animation + 1) & 0x7f
}

// nextDirOnRoad follows the unique continuation of a road through a
// non-flag cell: the path bit that is not the direction we arrived from.
func (g *Game) nextDirOnRoad(pos maplib.Pos, cameFrom maplib.Direction) (maplib.Direction, bool) {
	for d := maplib.DirRight; d <= maplib.DirUp; d++ {
		if d == cameFrom {
			continue
		}
		if g.Map.HasPath(pos, d) {
			return d, true
		}
	}
	return maplib.DirNone, false
}

// serfToLost transitions a serf whose referenced destination vanished. Any
// request latch the serf was answering is released so it can be reissued.
func (g *Game) serfToLost(s *Serf) {
	switch s.S.NextState {
	case StateIdleOnPath:
		if f := g.Flag(s.S.Dest); f != nil && s.S.Dir.Valid() {
			f.Edges[s.S.Dir].SerfRequested = false
		}
	case StateReadyToEnter:
		if b := g.Building(s.S.BuildingIdx); b != nil {
			b.SerfRequested = false
		}
	}
	s.S = StateData{Dir: maplib.DirNone, Res: ResourceNone}
	g.setSerfState(s, StateLost)
	s.Counter = 0
}

// dropCarriedResource reroutes the serf's carried resource to the nearest
// flag with a free slot, so the resource is never lost.
func (g *Game) dropCarriedResource(s *Serf) {
	if s.S.Res == ResourceNone {
		return
	}
	if f := g.FlagAt(s.Pos); f != nil && f.DropResource(s.S.Res, s.S.ResDest) {
		s.S.Res = ResourceNone
		s.S.ResDest = 0
		return
	}
	// no flag here: the resource returns to the global pool as lost
	g.loseResource(s.S.Res)
	s.S.Res = ResourceNone
	s.S.ResDest = 0
}

// updateSerf advances one serf by the elapsed ticks.
func (g *Game) updateSerf(s *Serf) {
	tickDiff := int(g.Tick - s.Tick)
	s.Tick = g.Tick
	s.Counter -= tickDiff
	if h := serfHandlers[s.State]; h != nil {
		h(g, s)
	}
}

// serfHandler advances a serf in one state. Handlers run only when the
// serf's counter has drained unless they manage the counter themselves.
type serfHandler func(*Game, *Serf)

var serfHandlers [serfStateCount]serfHandler

func init() {
	serfHandlers = [serfStateCount]serfHandler{
		StateNull:                      nil,
		StateIdleInStock:               nil,
		StateReadyToLeaveInventory:     (*Game).handleReadyToLeaveInventory,
		StateWalking:                   (*Game).handleWalking,
		StateTransporting:              (*Game).handleTransporting,
		StateDelivering:                (*Game).handleTransporting,
		StateIdleOnPath:                (*Game).handleIdleOnPath,
		StateWaitIdleOnPath:            (*Game).handleIdleOnPath,
		StateWakeAtFlag:                (*Game).handleWakeAtFlag,
		StateWakeOnPath:                (*Game).handleWakeAtFlag,
		StateEnteringBuilding:          (*Game).handleEnteringBuilding,
		StateLeavingBuilding:           (*Game).handleLeavingBuilding,
		StateReadyToEnter:              (*Game).handleReadyToEnter,
		StateReadyToLeave:              (*Game).handleReadyToLeave,
		StateDigging:                   (*Game).handleDigging,
		StateBuilding:                  (*Game).handleBuilding,
		StateBuildingCastle:            (*Game).handleBuildingCastle,
		StatePlanningLogging:           (*Game).handlePlanningWork,
		StateLogging:                   (*Game).handleWorkOutside,
		StatePlanningPlanting:          (*Game).handlePlanningWork,
		StatePlanting:                  (*Game).handleWorkOutside,
		StatePlanningStoneCutting:      (*Game).handlePlanningWork,
		StateStoneCutting:              (*Game).handleWorkOutside,
		StateSawing:                    (*Game).handleWorkInside,
		StateMining:                    (*Game).handleMining,
		StateSmelting:                  (*Game).handleWorkInside,
		StatePlanningFishing:           (*Game).handlePlanningWork,
		StateFishing:                   (*Game).handleWorkOutside,
		StatePlanningFarming:           (*Game).handlePlanningWork,
		StateFarming:                   (*Game).handleWorkOutside,
		StateMilling:                   (*Game).handleWorkInside,
		StateBaking:                    (*Game).handleWorkInside,
		StatePigFarming:                (*Game).handleWorkInside,
		StateButchering:                (*Game).handleWorkInside,
		StateMakingTool:                (*Game).handleWorkInside,
		StateMakingWeapon:              (*Game).handleWorkInside,
		StateBuildingBoat:              (*Game).handleWorkInside,
		StateLookingForGeoSpot:         (*Game).handleLookingForGeoSpot,
		StateSamplingGeoSpot:           (*Game).handleSamplingGeoSpot,
		StateFreeWalking:               (*Game).handleFreeWalking,
		StateLost:                      (*Game).handleLost,
		StateEscapeBuilding:            (*Game).handleEscapeBuilding,
		StateKnightEngagingBuilding:    (*Game).handleKnightEngagingBuilding,
		StateKnightPrepareAttacking:    (*Game).handleKnightPrepareAttacking,
		StateKnightAttacking:           (*Game).handleKnightAttacking,
		StateKnightDefending:           nil, // resolved by the attacker
		StateKnightAttackingVictory:    (*Game).handleKnightAttackingVictory,
		StateKnightAttackingDefeat:     (*Game).handleKnightAttackingDefeat,
		StateKnightOccupyEnemyBuilding: (*Game).handleKnightOccupyEnemyBuilding,
		StateKnightFreeWalking:         (*Game).handleKnightFreeWalking,
		StateFinished:                  nil,
	}
}
