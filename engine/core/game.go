package core

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// Options are the game-rule toggles carried over from the original options
// screen.
type Options struct {
	ResourceRequestsTimeOut     bool
	PrioritizeUsableResources   bool
	LostTransportersClearFaster bool
}

// DefaultOptions returns the shipping defaults.
func DefaultOptions() Options {
	return Options{
		ResourceRequestsTimeOut:     true,
		PrioritizeUsableResources:   true,
		LostTransportersClearFaster: false,
	}
}

// Road is an ordered sequence of directions starting at a source flag
// position.
type Road struct {
	Source maplib.Pos
	Dirs   []maplib.Direction
}

// Game owns all simulation state: the map, the entity arenas and the
// players. All mutation is serialized through the game mutex; AI loops and
// observers lock it around every access.
type Game struct {
	mu sync.Mutex

	ID  uuid.UUID
	Map *maplib.Map

	Rand    *maplib.Random
	Options Options

	Tick      uint16 // wrapping game tick
	lastTick  uint16
	TickTotal uint32 // monotonic game ticks (deadlines)
	ConstTick uint32 // update invocations
	GameSpeed uint32
	speedSave uint32

	knightMoraleCounter int
	inventorySchedule   int
	mapUpdateCounter    int
	statsCounter        int
	statsIndex          int

	GoldTotal int // ground gold plus circulating gold ore/bars

	flagSearchID uint32

	flags       *arena[Flag]
	buildings   *arena[Building]
	inventories *arena[Inventory]
	serfs       *arena[Serf]
	players     [MaxPlayers]*Player

	logger *slog.Logger
}

// NewGame creates a game on a freshly generated map.
func NewGame(mapSize uint, seed uint64, logger *slog.Logger) *Game {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Game{
		ID:          uuid.New(),
		Rand:        maplib.NewRandom(seed),
		Options:     DefaultOptions(),
		GameSpeed:   2,
		flags:       newArena[Flag](),
		buildings:   newArena[Building](),
		inventories: newArena[Inventory](),
		serfs:       newArena[Serf](),
		logger:      logger,
	}
	g.Map = maplib.New(mapSize)
	g.Map.Generate(g.Rand, maplib.DefaultGeneratorParams())
	g.GoldTotal = g.Map.GoldDeposit()
	return g
}

// Lock acquires the game mutex. AI loops and observers must hold it around
// every read or mutation.
func (g *Game) Lock() { g.mu.Lock() }

// Unlock releases the game mutex.
func (g *Game) Unlock() { g.mu.Unlock() }

// Logger returns the game's structured logger.
func (g *Game) Logger() *slog.Logger { return g.logger }

// ---- Entity lookups ----

// Flag resolves a flag index, nil for dead or sentinel indices.
func (g *Game) Flag(idx uint32) *Flag { return g.flags.get(idx) }

// Building resolves a building index.
func (g *Game) Building(idx uint32) *Building { return g.buildings.get(idx) }

// Inventory resolves an inventory index.
func (g *Game) Inventory(idx uint32) *Inventory { return g.inventories.get(idx) }

// Serf resolves a serf index.
func (g *Game) Serf(idx uint32) *Serf { return g.serfs.get(idx) }

// Player returns a player slot (may be inactive).
func (g *Game) Player(i int) *Player {
	if i < 0 || i >= MaxPlayers {
		return nil
	}
	return g.players[i]
}

// FlagAt returns the flag standing on pos, or nil.
func (g *Game) FlagAt(pos maplib.Pos) *Flag {
	if g.Map.Obj(pos) != maplib.ObjFlag {
		return nil
	}
	return g.Flag(g.Map.ObjIndex(pos))
}

// BuildingAt returns the building standing on pos, or nil.
func (g *Game) BuildingAt(pos maplib.Pos) *Building {
	if !g.Map.Obj(pos).IsBuilding() {
		return nil
	}
	return g.Building(g.Map.ObjIndex(pos))
}

// EachFlag visits all flags in index order.
func (g *Game) EachFlag(fn func(*Flag)) {
	g.flags.each(func(_ uint32, f *Flag) { fn(f) })
}

// EachBuilding visits all buildings in index order.
func (g *Game) EachBuilding(fn func(*Building)) {
	g.buildings.each(func(_ uint32, b *Building) { fn(b) })
}

// EachInventory visits all inventories in index order.
func (g *Game) EachInventory(fn func(*Inventory)) {
	g.inventories.each(func(_ uint32, inv *Inventory) { fn(inv) })
}

// EachSerf visits all serfs in index order.
func (g *Game) EachSerf(fn func(*Serf)) {
	g.serfs.each(func(_ uint32, s *Serf) { fn(s) })
}

// Counts returns the live entity totals.
func (g *Game) Counts() (flags, buildings, inventories, serfs int) {
	return g.flags.count(), g.buildings.count(), g.inventories.count(), g.serfs.count()
}

// ---- Players ----

// AddPlayer activates the next free player slot. Returns the slot index.
func (g *Game) AddPlayer(face int, color uint32, supplies, reproduction, intelligence int) (int, error) {
	if face == 0 {
		return -1, errors.New("face 0 marks an inactive slot")
	}
	for i := 0; i < MaxPlayers; i++ {
		if g.players[i] == nil {
			g.players[i] = newPlayer(i, face, color, supplies, reproduction, intelligence)
			return i, nil
		}
	}
	return -1, errors.New("all player slots taken")
}

// ---- Entity creation/destruction ----

func (g *Game) createFlag(pos maplib.Pos, player int) *Flag {
	f := newFlag(pos, player)
	f.Index = g.flags.alloc(f)
	return f
}

func (g *Game) createBuilding(t BuildingType, pos maplib.Pos, player int) *Building {
	b := newBuilding(t, pos, player)
	b.Index = g.buildings.alloc(b)
	b.Tick = g.Tick
	return b
}

func (g *Game) createInventory(player int) *Inventory {
	inv := newInventory(player)
	inv.Index = g.inventories.alloc(inv)
	return inv
}

func (g *Game) createSerf(t SerfType, player int, pos maplib.Pos) *Serf {
	s := newSerf(t, player, pos)
	s.Index = g.serfs.alloc(s)
	s.Tick = g.Tick
	if p := g.players[player]; p != nil {
		p.SerfCounts[t]++
	}
	return s
}

// killSerf removes a serf from the game.
func (g *Game) killSerf(s *Serf) {
	if p := g.players[s.Player]; p != nil && p.SerfCounts[s.Type] > 0 {
		p.SerfCounts[s.Type]--
	}
	if s.S.Res != ResourceNone {
		g.loseResource(s.S.Res)
	}
	g.serfs.release(s.Index)
}

// ---- Gold and resource accounting ----

// trackResourceOwner adjusts a player's stored-resource statistic.
func (g *Game) trackResourceOwner(res Resource, player int, delta int) {
	if player < 0 || player >= MaxPlayers || g.players[player] == nil {
		return
	}
	g.players[player].ResourceCounts[res] += delta
}

// loseResource removes a resource from the game forever.
func (g *Game) loseResource(res Resource) {
	if res == ResGoldOre || res == ResGoldBar {
		g.GoldTotal--
	}
}

// cancelTransportedResources unroutes up to n in-flight resources headed to
// the given destination flag. They fall back to nearest-inventory routing at
// the next flag update; nothing is lost.
func (g *Game) cancelTransportedResources(destFlag uint32, res Resource, n int) {
	match := func(r Resource) bool {
		return r == res || (res == groupFood && r.IsFood())
	}
	g.flags.each(func(_ uint32, f *Flag) {
		for i := range f.Slots {
			if n > 0 && f.Slots[i].Type != ResourceNone &&
				f.Slots[i].Dest == destFlag && match(f.Slots[i].Type) {
				f.Slots[i].Dest = 0
				f.Slots[i].Dir = maplib.DirNone
				n--
			}
		}
	})
	g.inventories.each(func(_ uint32, inv *Inventory) {
		for i := range inv.OutQueue {
			if n > 0 && inv.OutQueue[i].Type != ResourceNone &&
				inv.OutQueue[i].Dest == destFlag && match(inv.OutQueue[i].Type) {
				inv.Resources[inv.OutQueue[i].Type]++
				g.trackResourceOwner(inv.OutQueue[i].Type, inv.Player, 1)
				inv.OutQueue[i] = OutItem{Type: ResourceNone}
				n--
			}
		}
	})
	g.serfs.each(func(_ uint32, s *Serf) {
		if n > 0 && s.State == StateTransporting &&
			s.S.Res != ResourceNone && s.S.ResDest == destFlag && match(s.S.Res) {
			s.S.ResDest = 0
			n--
		}
	})
}

// ---- Tick loop ----

// Update advances the simulation by one step: GameSpeed ticks, components
// in fixed order.
func (g *Game) Update() {
	g.ConstTick++
	g.lastTick = g.Tick
	g.Tick += uint16(g.GameSpeed)
	g.TickTotal += g.GameSpeed
	tickDiff := int(g.Tick - g.lastTick)

	g.clearSerfRequestFailure()
	g.updateMapObjects(tickDiff)

	for i := 0; i < MaxPlayers; i++ {
		if g.players[i].IsActive() {
			g.updatePlayer(g.players[i])
		}
	}

	g.knightMoraleCounter -= tickDiff
	if g.knightMoraleCounter < 0 {
		g.updateKnightMorale()
		g.knightMoraleCounter += 256
	}

	g.inventorySchedule -= tickDiff
	if g.inventorySchedule < 0 {
		g.updateInventoriesTick()
		g.dispatchOutQueues()
		g.inventorySchedule += 64
	}

	g.flags.each(func(_ uint32, f *Flag) { g.updateFlag(f) })
	g.buildings.each(func(_ uint32, b *Building) { g.updateBuilding(b) })
	g.serfs.each(func(_ uint32, s *Serf) { g.updateSerf(s) })

	g.statsCounter -= tickDiff
	if g.statsCounter < 0 {
		g.updateGameStats()
		g.statsCounter += 256
	}
}

// Pause freezes the tick advance, Resume restores the saved speed.
func (g *Game) Pause() {
	if g.GameSpeed != 0 {
		g.speedSave = g.GameSpeed
		g.GameSpeed = 0
	}
}

// Resume restores the speed saved by Pause.
func (g *Game) Resume() {
	if g.GameSpeed == 0 {
		g.GameSpeed = g.speedSave
		if g.GameSpeed == 0 {
			g.GameSpeed = 2
		}
	}
}

// SetSpeed changes the tick multiplier (0 pauses).
func (g *Game) SetSpeed(speed uint32) { g.GameSpeed = speed }

// clearSerfRequestFailure lets buildings retry serf requests that found no
// source last tick. Successful requests stay latched until the serf arrives.
func (g *Game) clearSerfRequestFailure() {
	g.buildings.each(func(_ uint32, b *Building) { b.SerfRequestFailed = false })
}

// updateMapObjects grows saplings and fields on a slow cycle.
func (g *Game) updateMapObjects(tickDiff int) {
	g.mapUpdateCounter -= tickDiff
	if g.mapUpdateCounter >= 0 {
		return
	}
	g.mapUpdateCounter += 1024
	n := g.Map.CellCount()
	for i := 0; i < n; i++ {
		p := maplib.Pos(i)
		switch g.Map.Obj(p) {
		case maplib.ObjSapling:
			if g.Rand.Uint16()&7 == 0 {
				g.Map.SetObject(p, maplib.ObjTree0, 0)
			}
		case maplib.ObjSeeds0:
			g.Map.SetObject(p, maplib.ObjSeeds1, 0)
		case maplib.ObjSeeds1:
			g.Map.SetObject(p, maplib.ObjSeeds2, 0)
		case maplib.ObjSeeds2:
			g.Map.SetObject(p, maplib.ObjField0, 0)
		case maplib.ObjField0:
			g.Map.SetObject(p, maplib.ObjField1, 0)
		case maplib.ObjField1:
			g.Map.SetObject(p, maplib.ObjField2, 0)
		}
	}
}

// updateGameStats appends the history rings.
func (g *Game) updateGameStats() {
	idx := g.statsIndex
	g.statsIndex = (g.statsIndex + 1) % statsHistoryLen
	for _, p := range g.players {
		if !p.IsActive() {
			continue
		}
		p.LandHistory[idx] = p.LandArea
		p.MilitaryHistory[idx] = p.TotalMilitaryScore
	}
}

// ---- Knight morale ----

// updateKnightMorale recomputes each player's morale from deposited gold.
// Gold counts what was delivered to military buildings, so morale drops the
// moment delivered gold is lost.
func (g *Game) updateKnightMorale() {
	var inventoryGold, militaryGold [MaxPlayers]int
	g.inventories.each(func(_ uint32, inv *Inventory) {
		inventoryGold[inv.Player] += inv.Resources[ResGoldBar]
	})
	g.buildings.each(func(_ uint32, b *Building) {
		militaryGold[b.Player] += b.MilitaryGoldCount()
	})
	for i := 0; i < MaxPlayers; i++ {
		p := g.players[i]
		if !p.IsActive() {
			continue
		}
		depot := inventoryGold[i] + militaryGold[i]
		p.GoldDeposited = depot
		mapGold := g.GoldTotal
		if mapGold != 0 {
			for mapGold > 0xffff {
				mapGold >>= 1
				depot >>= 1
			}
			if depot > mapGold-1 {
				depot = mapGold - 1
			}
			p.KnightMorale = 1024 + (moraleGoldFactor*depot)/mapGold
		} else {
			p.KnightMorale = 4096
		}
		if p.CastleScore < 0 {
			p.KnightMorale = maxInt(1, p.KnightMorale-1023)
		} else if p.CastleScore > 0 {
			p.KnightMorale = minInt(p.KnightMorale+1024*p.CastleScore, 0xffff)
		}
	}
}

// moraleGoldFactor scales deposited gold into morale points.
const moraleGoldFactor = 10 * 1024

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MoraleDivisor returns the value dividing deposited gold in the morale
// formula.
func (g *Game) MoraleDivisor() int { return g.GoldTotal }

// calculateMilitaryScore refreshes a player's military strength totals.
func (g *Game) calculateMilitaryScore(player int) {
	p := g.players[player]
	if p == nil {
		return
	}
	score := 0
	g.buildings.each(func(_ uint32, b *Building) {
		if b.Player != player || !b.Type.IsMilitary() || b.Burning {
			return
		}
		for idx := b.FirstKnight; idx != 0; {
			s := g.Serf(idx)
			if s == nil {
				break
			}
			score += int(s.Type-SerfKnight0) + 1
			idx = s.S.NextKnight
		}
	})
	p.MilitaryScore = score
	p.TotalMilitaryScore = score
}

// ---- Serf dispatch ----

// sendSerfToBuilding draws a serf of the wanted type from the nearest
// inventory reachable from the building's flag and dispatches it.
func (g *Game) sendSerfToBuilding(b *Building, t SerfType) bool {
	flag := g.Flag(b.Flag)
	if flag == nil {
		return false
	}
	return g.dispatchSerf(flag, t, StateReadyToEnter, func(s *Serf) {
		s.S.BuildingIdx = b.Index
	})
}

// requestTransporter dispatches a transporter to man the edge (f, d).
func (g *Game) requestTransporter(f *Flag, d maplib.Direction) bool {
	return g.dispatchSerf(f, SerfTransporter, StateIdleOnPath, func(s *Serf) {
		s.S.Dir = d
	})
}

// SendGeologist dispatches a geologist to prospect around a flag.
func (g *Game) SendGeologist(f *Flag) bool {
	return g.dispatchSerf(f, SerfGeologist, StateLookingForGeoSpot, nil)
}

// dispatchSerf finds the nearest inventory able to produce a serf of type t
// (flag search outward from dest; the first capable inventory reached wins)
// and sends it walking toward dest with the staged arrival state.
func (g *Game) dispatchSerf(dest *Flag, t SerfType, arrival SerfState, tweak func(*Serf)) bool {
	search := g.NewFlagSearch()
	search.AddSource(dest, maplib.DirNone, 0)
	var inv *Inventory
	search.Execute(func(f *Flag) bool {
		if !f.HasInventory {
			return false
		}
		cand := g.Inventory(f.invIndex(g))
		if cand == nil || cand.SerfMode == ModeStop {
			return false
		}
		if cand.HaveSerf(t) || cand.GenericCount > 0 {
			inv = cand
			return true
		}
		return false
	}, false)
	if inv == nil {
		return false
	}
	s := g.drawSerf(inv, t)
	if s == nil {
		return false
	}
	s.S.InvIndex = inv.Index
	s.S.Dest = dest.Index
	s.S.NextState = arrival
	s.Counter = 0
	if tweak != nil {
		tweak(s)
	}
	g.setSerfState(s, StateReadyToLeaveInventory)
	return true
}

// SetInventoryResourceMode switches an inventory between accepting,
// holding and evicting resources.
func (g *Game) SetInventoryResourceMode(inv *Inventory, mode Mode) {
	inv.ResMode = mode
}

// SetInventorySerfMode switches an inventory between accepting, holding and
// evicting serfs.
func (g *Game) SetInventorySerfMode(inv *Inventory, mode Mode) {
	inv.SerfMode = mode
}

// dispatchOutQueues turns inventory out-queue entries into flag-slot
// resources at the inventory's own flag.
func (g *Game) dispatchOutQueues() {
	g.inventories.each(func(_ uint32, inv *Inventory) {
		f := g.Flag(inv.Flag)
		if f == nil {
			return
		}
		for i := range inv.OutQueue {
			it := &inv.OutQueue[i]
			if it.Type == ResourceNone {
				continue
			}
			if f.DropResource(it.Type, it.Dest) {
				*it = OutItem{Type: ResourceNone}
			}
		}
	})
}
