package core

// Mode is the in/stop/out setting of an inventory, applied separately to
// resources and serfs.
type Mode int8

const (
	ModeIn Mode = iota
	ModeStop
	ModeOut
)

// OutQueueLen is the size of the inventory's departure buffer.
const OutQueueLen = 2

// OutItem is one resource scheduled to leave the inventory.
type OutItem struct {
	Type Resource // ResourceNone when empty
	Dest uint32   // destination flag index
}

// Inventory is the resource and serf pool of a castle or stock building.
type Inventory struct {
	Index    uint32
	Player   int
	Flag     uint32 // entry flag index
	Building uint32

	Resources [ResourceCount]int
	// Serfs holds, per type, the index of one serf idling in this
	// inventory (0 = none of that type). Generic serfs are a count.
	Serfs        [SerfTypeCount]uint32
	GenericCount int

	ResMode  Mode
	SerfMode Mode

	OutQueue [OutQueueLen]OutItem
}

func newInventory(player int) *Inventory {
	inv := &Inventory{Player: player}
	for i := range inv.OutQueue {
		inv.OutQueue[i].Type = ResourceNone
	}
	return inv
}

// CountOf returns the stored amount of a resource.
func (inv *Inventory) CountOf(res Resource) int { return inv.Resources[res] }

// PushResource stores a delivered resource.
func (inv *Inventory) PushResource(res Resource) { inv.Resources[res]++ }

// PopResource removes one unit if available.
func (inv *Inventory) PopResource(res Resource) bool {
	if inv.Resources[res] == 0 {
		return false
	}
	inv.Resources[res]--
	return true
}

// HaveSerf reports whether a serf of the given type idles here.
func (inv *Inventory) HaveSerf(t SerfType) bool { return inv.Serfs[t] != 0 }

// OutQueueFree returns a free departure slot index, or -1.
func (inv *Inventory) OutQueueFree() int {
	for i := range inv.OutQueue {
		if inv.OutQueue[i].Type == ResourceNone {
			return i
		}
	}
	return -1
}

// AddToOutQueue schedules a resource to leave toward a destination flag.
func (inv *Inventory) AddToOutQueue(res Resource, dest uint32) bool {
	i := inv.OutQueueFree()
	if i < 0 {
		return false
	}
	inv.OutQueue[i] = OutItem{Type: res, Dest: dest}
	return true
}

// DropOutQueue clears the departure buffer, returning the resources to the
// pool (used when the building starts burning).
func (inv *Inventory) DropOutQueue() {
	for i := range inv.OutQueue {
		if inv.OutQueue[i].Type != ResourceNone {
			inv.Resources[inv.OutQueue[i].Type]++
			inv.OutQueue[i] = OutItem{Type: ResourceNone}
		}
	}
}

// GoldCount returns gold bars plus gold ore held here.
func (inv *Inventory) GoldCount() int {
	return inv.Resources[ResGoldBar] + inv.Resources[ResGoldOre]
}

// ---- Serf pool management (Game-side, needs the serf arena) ----

// addSerfToInventory parks a serf as idle in the inventory.
func (g *Game) addSerfToInventory(inv *Inventory, s *Serf) {
	s.State = StateIdleInStock
	s.S.InvIndex = inv.Index
	if s.Type == SerfGeneric {
		inv.GenericCount++
	} else if inv.Serfs[s.Type] == 0 {
		inv.Serfs[s.Type] = s.Index
	}
}

// removeSerfFromInventory takes a parked serf out of the idle pool.
func (g *Game) removeSerfFromInventory(inv *Inventory, s *Serf) {
	if s.Type == SerfGeneric {
		if inv.GenericCount > 0 {
			inv.GenericCount--
		}
	} else if inv.Serfs[s.Type] == s.Index {
		inv.Serfs[s.Type] = 0
		// find a replacement idling here
		g.serfs.each(func(idx uint32, o *Serf) {
			if inv.Serfs[s.Type] == 0 && o.Index != s.Index &&
				o.Type == s.Type && o.State == StateIdleInStock &&
				o.S.InvIndex == inv.Index {
				inv.Serfs[s.Type] = idx
			}
		})
	}
}

// specializeSerf turns an idle generic serf into the requested profession,
// consuming the needed tools. Returns the serf, or nil.
func (g *Game) specializeSerf(inv *Inventory, t SerfType) *Serf {
	if inv.GenericCount == 0 {
		return nil
	}
	tools := serfTypeTools[t]
	for _, r := range tools {
		if inv.Resources[r] == 0 {
			return nil
		}
	}
	var generic *Serf
	g.serfs.each(func(_ uint32, o *Serf) {
		if generic == nil && o.Type == SerfGeneric &&
			o.State == StateIdleInStock && o.S.InvIndex == inv.Index {
			generic = o
		}
	})
	if generic == nil {
		return nil
	}
	for _, r := range tools {
		inv.Resources[r]--
	}
	inv.GenericCount--
	generic.Type = t
	if inv.Serfs[t] == 0 {
		inv.Serfs[t] = generic.Index
	}
	g.players[inv.Player].SerfCounts[t]++
	g.players[inv.Player].SerfCounts[SerfGeneric]--
	return generic
}

// drawSerf fetches an idle serf of type t, specializing a generic one if
// necessary. The serf is removed from the idle pool but stays at StateIdleInStock
// until dispatched.
func (g *Game) drawSerf(inv *Inventory, t SerfType) *Serf {
	if idx := inv.Serfs[t]; idx != 0 {
		s := g.Serf(idx)
		if s != nil {
			g.removeSerfFromInventory(inv, s)
			return s
		}
		inv.Serfs[t] = 0
	}
	s := g.specializeSerf(inv, t)
	if s != nil {
		g.removeSerfFromInventory(inv, s)
	}
	return s
}

// trainKnight promotes up to count idle knights of the lowest rank found in
// the inventory by one level, consuming nothing (gold morale is global).
// Returns the number promoted.
func (g *Game) trainKnight(inv *Inventory, count int) int {
	promoted := 0
	for t := SerfKnight0; t < SerfKnight4 && promoted < count; t++ {
		for inv.Serfs[t] != 0 && promoted < count {
			s := g.Serf(inv.Serfs[t])
			if s == nil {
				inv.Serfs[t] = 0
				break
			}
			g.removeSerfFromInventory(inv, s)
			g.players[inv.Player].SerfCounts[s.Type]--
			s.Type = t + 1
			g.players[inv.Player].SerfCounts[s.Type]++
			g.addSerfToInventory(inv, s)
			promoted++
		}
	}
	return promoted
}

// updateInventoriesTick runs on the inventory scheduling period: it pushes
// out-mode resources into the transport network.
func (g *Game) updateInventoriesTick() {
	g.inventories.each(func(_ uint32, inv *Inventory) {
		if inv.ResMode != ModeOut {
			return
		}
		f := g.Flag(inv.Flag)
		if f == nil {
			return
		}
		// move one resource per period into the out queue, destination
		// resolved to the nearest accepting inventory
		slot := inv.OutQueueFree()
		if slot < 0 {
			return
		}
		for r := Resource(0); r < ResourceCount; r++ {
			if inv.Resources[r] == 0 {
				continue
			}
			dest := uint32(0)
			s := g.NewFlagSearch()
			s.AddSource(f, 0, 0)
			s.Execute(func(cand *Flag) bool {
				if cand.Index != f.Index && cand.HasInventory && cand.AcceptsResources {
					dest = cand.Index
					return true
				}
				return false
			}, false)
			if dest == 0 {
				return
			}
			inv.Resources[r]--
			inv.OutQueue[slot] = OutItem{Type: r, Dest: dest}
			break
		}
	})
}
