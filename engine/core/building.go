package core

import (
	"github.com/hexfief/serf-engine/engine/maplib"
)

// stockRequestSlots is the number of outstanding requests a stock tracks.
const stockRequestSlots = 8

// requestTimeoutPerTile is the tick budget granted per tile of flag-path
// distance before an outstanding resource request is cancelled.
const requestTimeoutPerTile = 64

// Stock is one input-resource slot of a building.
type Stock struct {
	Type      Resource // ResourceNone when unused
	Prio      int
	Available int
	Requested int
	Maximum   int
	// Timeouts holds the absolute deadline tick of each outstanding
	// request; 0 marks a free entry.
	Timeouts [stockRequestSlots]uint32
}

// Building is a constructed or in-progress structure.
type Building struct {
	Index  uint32
	Type   BuildingType
	Pos    maplib.Pos
	Player int
	Flag   uint32 // entry flag index

	Done    bool
	Active  bool // holder arrived and working
	Burning bool

	Progress       uint32 // construction progress; 0xffff once construction is finished
	BurningCounter int
	Tick           uint16

	Stocks [3]Stock

	Holder      bool
	FirstKnight uint32 // head of the knight chain for military buildings
	Inventory   uint32 // inventory index for castle/stock

	GoldDelivered int // gold bars delivered to a military building
	ThreatLevel   int // 0..3 distance band from the frontier

	SerfRequested     bool
	SerfRequestFailed bool
}

func newBuilding(t BuildingType, pos maplib.Pos, player int) *Building {
	b := &Building{Type: t, Pos: pos, Player: player}
	for i := range b.Stocks {
		b.Stocks[i].Type = ResourceNone
	}
	// construction consumes planks and stones through the first two stocks
	def := buildingDefs[t]
	if t != BuildingCastle {
		b.Stocks[0] = Stock{Type: ResPlank, Maximum: def.planks}
		b.Stocks[1] = Stock{Type: ResStone, Maximum: def.stones}
	}
	return b
}

// IsDone reports whether construction completed.
func (b *Building) IsDone() bool { return b.Done }

// initFinishedStocks swaps the construction stocks for the production ones.
func (b *Building) initFinishedStocks() {
	defs := buildingStocks[b.Type]
	for i := range b.Stocks {
		if defs[i].max == 0 {
			b.Stocks[i] = Stock{Type: ResourceNone}
			continue
		}
		b.Stocks[i] = Stock{Type: defs[i].res, Maximum: defs[i].max}
	}
}

// MilitaryGoldCount returns the gold counted toward morale for this
// building: what was delivered, not what is currently reachable.
func (b *Building) MilitaryGoldCount() int {
	if !b.Type.IsMilitary() || b.Burning {
		return 0
	}
	return b.GoldDelivered
}

// holderSerfType returns the profession that occupies the finished
// building, or SerfTypeNone when it has no holder (stock, castle).
func (b *Building) holderSerfType() SerfType {
	switch b.Type {
	case BuildingStock, BuildingCastle, BuildingNone:
		return SerfTypeNone
	}
	if b.Type.IsMilitary() {
		return SerfKnight0
	}
	return buildingDefs[b.Type].holder
}

// maxKnights returns the knight capacity of a military building.
func (b *Building) maxKnights() int {
	switch b.Type {
	case BuildingHut:
		return 3
	case BuildingTower:
		return 6
	case BuildingFortress:
		return 12
	case BuildingCastle:
		return 12
	}
	return 0
}

// knightCount walks the knight chain.
func (g *Game) knightCount(b *Building) int {
	n := 0
	for idx := b.FirstKnight; idx != 0; {
		s := g.Serf(idx)
		if s == nil {
			break
		}
		n++
		idx = s.S.NextKnight
	}
	return n
}

// wantedKnights returns the occupancy target from the player's threat-band
// settings.
func (g *Game) wantedKnights(b *Building) int {
	p := g.players[b.Player]
	if p == nil {
		return 0
	}
	min, max := p.KnightOccupation[b.ThreatLevel].Min, p.KnightOccupation[b.ThreatLevel].Max
	cap := b.maxKnights()
	want := min + (max-min+1)/2
	if want > cap {
		want = cap
	}
	if want < 1 {
		want = 1
	}
	return want
}

// ---- Stock requests ----

// stockNeeds returns how many more units the stock wants requested.
func (s *Stock) stockNeeds() int {
	n := s.Maximum - s.Available - s.Requested
	if n < 0 {
		n = 0
	}
	return n
}

// pushRequest records a new outstanding request with its deadline.
func (s *Stock) pushRequest(deadline uint32) bool {
	for i := range s.Timeouts {
		if s.Timeouts[i] == 0 {
			s.Timeouts[i] = deadline
			s.Requested++
			return true
		}
	}
	return false
}

// consumeRequest clears the tightest matching outstanding request on
// delivery.
func (s *Stock) consumeRequest() {
	best := -1
	for i := range s.Timeouts {
		if s.Timeouts[i] != 0 && (best < 0 || s.Timeouts[i] < s.Timeouts[best]) {
			best = i
		}
	}
	if best >= 0 {
		s.Timeouts[best] = 0
	}
	if s.Requested > 0 {
		s.Requested--
	}
}

// expireRequests cancels requests whose deadline passed. Returns the number
// cancelled.
func (s *Stock) expireRequests(tick uint32) int {
	n := 0
	for i := range s.Timeouts {
		if s.Timeouts[i] != 0 && tick > s.Timeouts[i] {
			s.Timeouts[i] = 0
			if s.Requested > 0 {
				s.Requested--
			}
			n++
		}
	}
	return n
}

// addRequestedResource starts a transport request for one unit of the stock
// resource. The deadline scales with the flag-path tile distance from the
// source inventory.
func (g *Game) addRequestedResource(b *Building, stockIdx int) bool {
	s := &b.Stocks[stockIdx]
	res := s.Type
	if res == groupFood {
		res = ResBread // request priority handled at the source
	}
	flag := g.Flag(b.Flag)
	if flag == nil {
		return false
	}
	// find the nearest inventory holding the resource (or any food)
	var src *Inventory
	search := g.NewFlagSearch()
	search.AddSource(flag, 0, 0)
	search.Execute(func(f *Flag) bool {
		if !f.HasInventory {
			return false
		}
		inv := g.Inventory(f.invIndex(g))
		if inv == nil || inv.ResMode == ModeStop {
			return false
		}
		if b.Stocks[stockIdx].Type == groupFood {
			for _, fr := range []Resource{ResBread, ResMeat, ResFish} {
				if inv.Resources[fr] > 0 {
					res = fr
					src = inv
					return true
				}
			}
			return false
		}
		if inv.Resources[res] > 0 {
			src = inv
			return true
		}
		return false
	}, false)
	if src == nil {
		return false
	}
	tiles := g.RoadDist(src.Flag, b.Flag)
	if tiles < 0 {
		return false
	}
	deadline := g.TickTotal + uint32(requestTimeoutPerTile*maxInt(tiles, 1))
	if !s.pushRequest(deadline) {
		return false
	}
	if !src.PopResource(res) || !src.AddToOutQueue(res, b.Flag) {
		// roll back: out queue full or count raced away
		if src.Resources[res] >= 0 {
			src.PushResource(res)
		}
		s.consumeRequest()
		return false
	}
	g.trackResourceOwner(res, src.Player, -1)
	return true
}

// deliverToBuilding accepts a resource arriving at the building's flag.
func (g *Game) deliverToBuilding(b *Building, res Resource) bool {
	if b.Burning {
		return false
	}
	for i := range b.Stocks {
		s := &b.Stocks[i]
		if s.Type == ResourceNone {
			continue
		}
		match := s.Type == res || (s.Type == groupFood && res.IsFood())
		if !match {
			continue
		}
		if s.Maximum > 0 && s.Available >= s.Maximum {
			// a cancelled request was delivered anyway; refuse so the
			// resource reroutes instead of overflowing the stock
			continue
		}
		s.consumeRequest()
		s.Available++
		if res == ResGoldBar && b.Type.IsMilitary() {
			b.GoldDelivered++
			g.players[b.Player].GoldDeposited++
		}
		return true
	}
	return false
}

// ---- Per-tick building update ----

func (g *Game) updateBuilding(b *Building) {
	tickDiff := int(g.Tick - b.Tick)
	b.Tick = g.Tick

	if b.Burning {
		b.BurningCounter -= tickDiff
		if b.BurningCounter <= 0 {
			g.deleteBuilding(b)
		}
		return
	}

	if !b.Done {
		g.updateUnfinished(b)
		return
	}

	// request the working serf
	if !b.Holder && !b.SerfRequested && !b.SerfRequestFailed {
		if t := b.holderSerfType(); t != SerfTypeNone {
			if g.sendSerfToBuilding(b, t) {
				b.SerfRequested = true
			} else {
				b.SerfRequestFailed = true
			}
		}
	}

	// military occupancy: request more knights up to the wanted level
	if b.Type.IsMilitary() && b.Type != BuildingCastle {
		want := g.wantedKnights(b)
		have := g.knightCount(b)
		if have < want && !b.SerfRequested && !b.SerfRequestFailed {
			if g.sendSerfToBuilding(b, SerfKnight0) {
				b.SerfRequested = true
			} else {
				b.SerfRequestFailed = true
			}
		}
	}

	// input stocks: issue requests, expire stale ones
	if g.Options.ResourceRequestsTimeOut {
		for i := range b.Stocks {
			s := &b.Stocks[i]
			if s.Type == ResourceNone {
				continue
			}
			if n := s.expireRequests(g.TickTotal); n > 0 {
				g.logger.Debug("stock request timed out",
					"building", b.Type.String(), "stock", i, "count", n)
				g.cancelTransportedResources(b.Flag, s.Type, n)
			}
		}
	}
	for i := range b.Stocks {
		s := &b.Stocks[i]
		if s.Type == ResourceNone || !b.Active && !b.Type.IsMilitary() {
			continue
		}
		if s.stockNeeds() > 0 {
			g.addRequestedResource(b, i)
		}
	}
}

// updateUnfinished drives construction-resource requests for a building
// under construction.
func (g *Game) updateUnfinished(b *Building) {
	// request a digger (ground not yet leveled) or a builder right away
	if !b.Holder && !b.SerfRequested && !b.SerfRequestFailed {
		needsDigging := buildingDefs[b.Type].levelGround && b.Progress == 0
		t := SerfBuilder
		if needsDigging {
			t = SerfDigger
		}
		if g.sendSerfToBuilding(b, t) {
			b.SerfRequested = true
		} else {
			b.SerfRequestFailed = true
		}
	}
	for i := range b.Stocks {
		s := &b.Stocks[i]
		if s.Type == ResourceNone || s.Maximum == 0 {
			continue
		}
		if g.Options.ResourceRequestsTimeOut {
			if n := s.expireRequests(g.TickTotal); n > 0 {
				g.cancelTransportedResources(b.Flag, s.Type, n)
			}
		}
		if s.stockNeeds() > 0 {
			g.addRequestedResource(b, i)
		}
	}
}

// constructionStep advances construction when the builder works. Completion
// consumes available materials.
func (g *Game) constructionStep(b *Building) bool {
	const progressPerStep = 0x8000 / 16
	planks := &b.Stocks[0]
	stones := &b.Stocks[1]
	// only the first phase gates on materials; later phases run down
	// whatever was already consumed
	if b.Progress < 0x4000 && planks.Maximum > 0 &&
		planks.Available == 0 && stones.Available == 0 {
		return false
	}
	b.Progress += progressPerStep
	if b.Progress >= 0x8000 {
		// consume one unit per completion phase until both stocks drain
		if planks.Available > 0 {
			planks.Available--
			b.Progress = 0x4000
			return true
		}
		if stones.Available > 0 {
			stones.Available--
			b.Progress = 0x4000
			return true
		}
		g.finishBuilding(b)
	}
	return true
}

// finishBuilding flips the building to done and installs production stocks.
func (g *Game) finishBuilding(b *Building) {
	b.Done = true
	b.Progress = 0xffff
	b.SerfRequested = false
	b.Holder = false
	b.initFinishedStocks()
	g.players[b.Player].BuildingCounts[b.Type]++
	if b.Type.IsMilitary() {
		g.calculateMilitaryScore(b.Player)
		g.updateLandOwnership(b.Pos)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
