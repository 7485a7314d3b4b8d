package core

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// NewEmptyGame builds a game shell around an existing map, for the loader.
func NewEmptyGame(m *maplib.Map, logger *slog.Logger) *Game {
	if logger == nil {
		logger = slog.Default()
	}
	return &Game{
		ID:          uuid.New(),
		Map:         m,
		Rand:        maplib.NewRandom(0x5eed),
		Options:     DefaultOptions(),
		GameSpeed:   2,
		flags:       newArena[Flag](),
		buildings:   newArena[Building](),
		inventories: newArena[Inventory](),
		serfs:       newArena[Serf](),
		logger:      logger,
	}
}

// SetID restores the session id.
func (g *Game) SetID(id uuid.UUID) { g.ID = id }

// TickState bundles the clock words and periodic counters for the save
// codec; restoring them all is what makes a reloaded game resume
// bit-for-bit.
type TickState struct {
	Tick      uint16
	LastTick  uint16
	TickTotal uint32
	ConstTick uint32
	GameSpeed uint32

	MoraleCounter    int
	InventoryCounter int
	MapCounter       int
	StatsCounter     int
	StatsIndex       int
}

// TickState returns the clock words.
func (g *Game) TickState() TickState {
	return TickState{
		Tick: g.Tick, LastTick: g.lastTick, TickTotal: g.TickTotal,
		ConstTick: g.ConstTick, GameSpeed: g.GameSpeed,
		MoraleCounter:    g.knightMoraleCounter,
		InventoryCounter: g.inventorySchedule,
		MapCounter:       g.mapUpdateCounter,
		StatsCounter:     g.statsCounter,
		StatsIndex:       g.statsIndex,
	}
}

// SetTickState restores the clock words.
func (g *Game) SetTickState(t TickState) {
	g.Tick = t.Tick
	g.lastTick = t.LastTick
	g.TickTotal = t.TickTotal
	g.ConstTick = t.ConstTick
	g.GameSpeed = t.GameSpeed
	g.knightMoraleCounter = t.MoraleCounter
	g.inventorySchedule = t.InventoryCounter
	g.mapUpdateCounter = t.MapCounter
	g.statsCounter = t.StatsCounter
	g.statsIndex = t.StatsIndex
}

// SetGoldTotal restores the gold accounting word.
func (g *Game) SetGoldTotal(n int) { g.GoldTotal = n }

// RestoreFlag installs a flag at its recorded index.
func (g *Game) RestoreFlag(f *Flag) { g.flags.allocAt(f.Index, f) }

// RestoreBuilding installs a building at its recorded index.
func (g *Game) RestoreBuilding(b *Building) { g.buildings.allocAt(b.Index, b) }

// RestoreInventory installs an inventory at its recorded index.
func (g *Game) RestoreInventory(inv *Inventory) { g.inventories.allocAt(inv.Index, inv) }

// RestoreSerf installs a serf at its recorded index.
func (g *Game) RestoreSerf(s *Serf) { g.serfs.allocAt(s.Index, s) }

// RestorePlayer installs a player slot.
func (g *Game) RestorePlayer(p *Player) {
	if p.Index >= 0 && p.Index < MaxPlayers {
		g.players[p.Index] = p
	}
}

// FinishRestore rebuilds derived structures after a bulk load.
func (g *Game) FinishRestore() {
	g.flags.rebuildFree()
	g.buildings.rebuildFree()
	g.inventories.rebuildFree()
	g.serfs.rebuildFree()
}

// StateEqual compares the map, clock, gold total, random state and the
// flag, building, inventory and serf arenas of two games. Player records
// are not compared.
func (g *Game) StateEqual(o *Game) bool {
	if !g.Map.Equal(o.Map) {
		return false
	}
	if g.Tick != o.Tick || g.TickTotal != o.TickTotal || g.GoldTotal != o.GoldTotal {
		return false
	}
	if g.Rand.State() != o.Rand.State() {
		return false
	}
	eq := true
	g.flags.each(func(i uint32, f *Flag) {
		of := o.Flag(i)
		if of == nil {
			eq = false
			return
		}
		a, b := *f, *of
		a.searchNum, a.searchDir, a.searchFrom = 0, 0, 0
		b.searchNum, b.searchDir, b.searchFrom = 0, 0, 0
		if a != b {
			eq = false
		}
	})
	g.buildings.each(func(i uint32, b *Building) {
		ob := o.Building(i)
		if ob == nil || *b != *ob {
			eq = false
		}
	})
	g.inventories.each(func(i uint32, inv *Inventory) {
		oi := o.Inventory(i)
		if oi == nil || *inv != *oi {
			eq = false
		}
	})
	g.serfs.each(func(i uint32, s *Serf) {
		os := o.Serf(i)
		if os == nil || *s != *os {
			eq = false
		}
	})
	fa, ba, ia, sa := g.Counts()
	fb, bb, ib, sb := o.Counts()
	if fa != fb || ba != bb || ia != ib || sa != sb {
		return false
	}
	return eq
}
