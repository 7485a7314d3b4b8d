package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

// MaxPlayers is the fixed player-slot count.
const MaxPlayers = 4

// NotifyType classifies a player notification.
type NotifyType uint8

const (
	NotifyNone NotifyType = iota
	NotifyUnderAttack
	NotifyLostBuildings
	NotifyLostLand
	NotifyFoundOre
	NotifyCastleDestroyed
	NotifyNewStock
)

// Notification is one queued player message.
type Notification struct {
	Type NotifyType
	Pos  maplib.Pos
	Tick uint16
}

// OccupationBand holds the min/max knights wanted per threat band.
type OccupationBand struct {
	Min, Max int
}

// AttackPlan is the staged attack of a player.
type AttackPlan struct {
	Target       uint32 // target building index
	TotalKnights int
	ByBand       [4]int // attackers drawn per distance band
}

// statsHistoryLen is the length of each statistics ring.
const statsHistoryLen = 120

// Player is one of the four fixed player slots.
type Player struct {
	Index        int
	Face         int // 0 = inactive slot
	Color        uint32
	Supplies     int
	Reproduction int
	Intelligence int
	IsAI         bool

	HasCastle bool
	CastlePos maplib.Pos

	// priority vectors
	FlagPrio           [ResourceCount]int // 1..26, order resources leave flags
	InventoryPrio      [ResourceCount]int // 1..26, order resources leave stores
	ToolPrio           [9]int             // build priority of the nine tools
	FoodStoneMine      int                // split sliders, 0..65535
	FoodCoalMine       int
	FoodIronMine       int
	FoodGoldMine       int
	PlanksConstruction int
	PlanksBoatbuilder  int
	PlanksToolmaker    int
	SteelToolmaker     int
	SteelWeaponSmith   int
	CoalSteelSmelter   int
	CoalGoldSmelter    int
	CoalWeaponSmith    int
	WheatPigFarm       int
	WheatMill          int

	KnightOccupation [4]OccupationBand

	// live totals
	LandArea           int
	BuildingCounts     [BuildingTypeCount]int
	SerfCounts         [SerfTypeCount]int
	ResourceCounts     [ResourceCount]int
	ResourceProduced   [ResourceCount]int
	MilitaryScore      int
	KnightMorale       int
	GoldDeposited      int
	CastleScore        int
	TotalMilitaryScore int

	// history rings for the statistics views
	LandHistory     [statsHistoryLen]int
	MilitaryHistory [statsHistoryLen]int

	Notifications []Notification
	Attack        AttackPlan

	SerfReproCounter   int
	KnightCycleCounter int
}

func newPlayer(index, face int, color uint32, supplies, reproduction, intelligence int) *Player {
	p := &Player{
		Index:        index,
		Face:         face,
		Color:        color,
		Supplies:     supplies,
		Reproduction: reproduction,
		Intelligence: intelligence,
		KnightMorale: 1024,
	}
	for i := 0; i < ResourceCount; i++ {
		p.FlagPrio[i] = i + 1
		p.InventoryPrio[i] = i + 1
	}
	for i := range p.ToolPrio {
		p.ToolPrio[i] = 9 - i
	}
	// balanced default splits
	p.FoodStoneMine, p.FoodCoalMine = 13100, 45850
	p.FoodIronMine, p.FoodGoldMine = 45850, 65500
	p.PlanksConstruction, p.PlanksBoatbuilder, p.PlanksToolmaker = 65500, 3275, 19650
	p.SteelToolmaker, p.SteelWeaponSmith = 45850, 65500
	p.CoalSteelSmelter, p.CoalGoldSmelter, p.CoalWeaponSmith = 32750, 65500, 52400
	p.WheatPigFarm, p.WheatMill = 65500, 32750
	p.KnightOccupation = [4]OccupationBand{{1, 1}, {1, 2}, {2, 3}, {2, 3}}
	p.SerfReproCounter = reproCycle(reproduction)
	return p
}

// IsActive reports whether the slot is in use.
func (p *Player) IsActive() bool { return p != nil && p.Face != 0 }

// notify pushes a notification onto the player's queue.
func (p *Player) notify(t NotifyType, pos maplib.Pos) {
	p.Notifications = append(p.Notifications, Notification{Type: t, Pos: pos})
	if len(p.Notifications) > 64 {
		p.Notifications = p.Notifications[1:]
	}
}

// PopNotification removes and returns the oldest notification.
func (p *Player) PopNotification() (Notification, bool) {
	if len(p.Notifications) == 0 {
		return Notification{}, false
	}
	n := p.Notifications[0]
	p.Notifications = p.Notifications[1:]
	return n, true
}

// toolByPrioIndex lists the tools in ToolPrio slot order.
var toolByPrioIndex = [9]Resource{
	ResShovel, ResHammer, ResRod, ResCleaver, ResScythe,
	ResAxe, ResSaw, ResPick, ResPincer,
}

// nextToolToMake picks the highest-priority tool.
func (p *Player) nextToolToMake() Resource {
	best, bestPrio := ResShovel, -1
	for i, prio := range p.ToolPrio {
		if prio > bestPrio {
			bestPrio = prio
			best = toolByPrioIndex[i]
		}
	}
	return best
}

// SetToolPriority adjusts one tool's build priority.
func (p *Player) SetToolPriority(tool int, prio int) {
	if tool >= 0 && tool < len(p.ToolPrio) {
		p.ToolPrio[tool] = prio
	}
}

// SetKnightOccupation sets the wanted knights for one threat band.
func (p *Player) SetKnightOccupation(band int, min, max int) {
	if band >= 0 && band < 4 {
		p.KnightOccupation[band] = OccupationBand{Min: min, Max: max}
	}
}

func reproCycle(reproduction int) int {
	// higher setting reproduces faster
	c := 20000 - reproduction*300
	if c < 2000 {
		c = 2000
	}
	return c
}

// updatePlayer handles the periodic per-player work: serf reproduction in
// the castle and training of idle knights held in the player's inventories.
func (g *Game) updatePlayer(p *Player) {
	if !p.IsActive() || !p.HasCastle {
		return
	}
	tickDiff := int(g.Tick - g.lastTick)

	p.SerfReproCounter -= tickDiff
	if p.SerfReproCounter < 0 {
		p.SerfReproCounter += reproCycle(p.Reproduction)
		g.spawnSerf(p)
	}

	p.KnightCycleCounter -= tickDiff
	if p.KnightCycleCounter < 0 {
		p.KnightCycleCounter += 4096
		g.cycleKnights(p)
	}
}

// spawnSerf creates a generic serf in the castle when food is available.
func (g *Game) spawnSerf(p *Player) {
	var castle *Inventory
	g.inventories.each(func(_ uint32, inv *Inventory) {
		if castle == nil && inv.Player == p.Index {
			if b := g.Building(inv.Building); b != nil && b.Type == BuildingCastle {
				castle = inv
			}
		}
	})
	if castle == nil {
		return
	}
	for _, r := range []Resource{ResBread, ResFish, ResMeat} {
		if castle.Resources[r] > 0 {
			castle.Resources[r]--
			g.trackResourceOwner(r, p.Index, -1)
			b := g.Building(castle.Building)
			s := g.createSerf(SerfGeneric, p.Index, b.Pos)
			g.addSerfToInventory(castle, s)
			return
		}
	}
}

// cycleKnights promotes one idle knight in each of the player's inventories.
func (g *Game) cycleKnights(p *Player) {
	g.inventories.each(func(_ uint32, inv *Inventory) {
		if inv.Player == p.Index {
			g.trainKnight(inv, 1)
		}
	})
}
