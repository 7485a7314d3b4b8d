// Package ai drives one computer player per controller. The controller runs
// on its own goroutine, observes the game under the shared mutex, and issues
// the same operations a human player would.
package ai

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
	"github.com/hexfief/serf-engine/engine/pathfind"
)

// phaseDelayMsec is the base pause between AI phases at normal speed.
const phaseDelayMsec = 250

// Controller manages one AI player.
type Controller struct {
	game   *core.Game
	player int
	logger *slog.Logger

	cache   *pathfind.Cache
	limiter *rate.Limiter
	stop    atomic.Bool

	loopCount   int
	attackTimer int
}

// New creates a controller for the given player slot.
func New(g *core.Game, player int, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = g.Logger()
	}
	return &Controller{
		game:    g,
		player:  player,
		logger:  logger.With("ai", player),
		cache:   pathfind.NewCache(64),
		limiter: rate.NewLimiter(rate.Limit(20), 4),
	}
}

// Stop requests a clean exit at the next phase boundary.
func (c *Controller) Stop() { c.stop.Store(true) }

type phase struct {
	name string
	run  func(*Controller)
}

var phases = []phase{
	{"place-castle", (*Controller).placeCastle},
	{"capitulation", (*Controller).considerCapitulation},
	{"wood", (*Controller).buildWoodChain},
	{"stone", (*Controller).buildStonecutter},
	{"expand", (*Controller).buildHuts},
	{"food", (*Controller).buildFoodChain},
	{"mines", (*Controller).buildMines},
	{"tools", (*Controller).buildToolChain},
	{"gold", (*Controller).buildGoldChain},
	{"warehouse", (*Controller).buildWarehouse},
	{"maintenance", (*Controller).maintenance},
	{"offense", (*Controller).offense},
	{"priorities", (*Controller).adjustPriorities},
}

// Run executes the phase loop until the context ends or Stop is called.
// Between phases the controller sleeps for a duration scaled down by game
// speed, and the limiter keeps the whole loop polite to the simulation.
func (c *Controller) Run(ctx context.Context) error {
	for !c.stop.Load() {
		for _, ph := range phases {
			if c.stop.Load() || ctx.Err() != nil {
				return ctx.Err()
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			ph.run(c)
			c.pace(ctx)
		}
		c.loopCount++
	}
	return nil
}

// pace sleeps between phases: msec scaled by 1/(speed-1) above speed 2.
func (c *Controller) pace(ctx context.Context) {
	c.game.Lock()
	speed := c.game.GameSpeed
	c.game.Unlock()
	d := time.Duration(phaseDelayMsec) * time.Millisecond
	if speed > 2 {
		d = d / time.Duration(speed-1)
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// me returns the controlled player (nil-safe under the lock).
func (c *Controller) me() *core.Player { return c.game.Player(c.player) }

// ---- Castle placement ----

// placeCastle finds a first-castle spot by sweeping a coarse candidate grid
// and scoring open grass area.
func (c *Controller) placeCastle() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || p.HasCastle {
		return
	}
	m := g.Map
	best, bestScore := maplib.BadPos, -1
	// deterministic sweep over a coarse grid of candidates
	for row := uint32(2); row < m.Rows; row += 4 {
		for col := uint32(2); col < m.Cols; col += 4 {
			pos := m.MakePos(col, row)
			if !g.CanBuildCastle(pos, c.player) {
				continue
			}
			score := 0
			m.Spiral(pos, 4, func(q maplib.Pos) bool {
				if m.TypeUp(q).IsGrass() && !m.HasOwner(q) {
					score++
				}
				if m.TypeUp(q).IsTundra() {
					score += 2 // mountains nearby mean mines later
				}
				return true
			})
			if score > bestScore {
				bestScore = score
				best = pos
			}
		}
	}
	if best != maplib.BadPos {
		if g.BuildCastle(best, c.player) {
			c.logger.Info("castle placed", "pos", best)
		}
	}
}

func (c *Controller) considerCapitulation() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || !p.HasCastle {
		return
	}
	// capitulate only when the castle is all that remains and land is gone
	total := 0
	for t := core.BuildingType(1); t < core.BuildingTypeCount; t++ {
		total += p.BuildingCounts[t]
	}
	if total <= 1 && p.LandArea < 20 && c.loopCount > 50 {
		c.logger.Info("capitulating")
		g.DemolishBuilding(p.CastlePos, c.player)
		c.stop.Store(true)
	}
}

// ---- Building construction ladder ----

// wantCount says how many of a type the AI wants, scaled by loop age.
func (c *Controller) wantCount(t core.BuildingType) int {
	switch t {
	case core.BuildingLumberjack:
		return 2
	case core.BuildingSawmill, core.BuildingStonecutter, core.BuildingForester:
		return 1
	case core.BuildingHut:
		return 2 + c.loopCount/10
	case core.BuildingFisher, core.BuildingFarm:
		return 1
	case core.BuildingMill, core.BuildingBaker, core.BuildingPigFarm, core.BuildingButcher:
		return 1
	case core.BuildingCoalMine, core.BuildingIronMine:
		return 1
	case core.BuildingGoldMine, core.BuildingGoldSmelter, core.BuildingSteelSmelter:
		return 1
	case core.BuildingToolMaker, core.BuildingWeaponSmith:
		return 1
	case core.BuildingStock:
		if c.loopCount > 60 {
			return 1
		}
		return 0
	}
	return 0
}

func (c *Controller) buildWoodChain() {
	c.buildOne(core.BuildingLumberjack)
	c.buildOne(core.BuildingForester)
	c.buildOne(core.BuildingSawmill)
}

func (c *Controller) buildStonecutter() { c.buildOne(core.BuildingStonecutter) }

func (c *Controller) buildHuts() { c.buildOne(core.BuildingHut) }

func (c *Controller) buildFoodChain() {
	c.buildOne(core.BuildingFisher)
	c.buildOne(core.BuildingFarm)
	c.buildOne(core.BuildingMill)
	c.buildOne(core.BuildingBaker)
	c.buildOne(core.BuildingPigFarm)
	c.buildOne(core.BuildingButcher)
}

func (c *Controller) buildMines() {
	c.sendGeologists()
	c.buildOne(core.BuildingCoalMine)
	c.buildOne(core.BuildingIronMine)
}

// sendGeologists prospects the mountains before committing to mine sites.
func (c *Controller) sendGeologists() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || !p.HasCastle || c.loopCount%8 != 0 {
		return
	}
	// pick the connected flag closest to mountain ground
	var best *core.Flag
	bestDist := 1 << 30
	g.EachFlag(func(f *core.Flag) {
		if f.Player != c.player || len(f.ConnectedEdges()) == 0 {
			return
		}
		g.Map.Spiral(f.Pos, 4, func(q maplib.Pos) bool {
			if g.Map.TypeUp(q).IsTundra() {
				if d := g.Map.Dist(f.Pos, q); d < bestDist {
					bestDist = d
					best = f
				}
				return false
			}
			return true
		})
	})
	if best != nil && g.SendGeologist(best) {
		c.logger.Debug("geologist dispatched", "flag", best.Index)
	}
}

func (c *Controller) buildToolChain() {
	c.buildOne(core.BuildingSteelSmelter)
	c.buildOne(core.BuildingToolMaker)
	c.buildOne(core.BuildingWeaponSmith)
}

func (c *Controller) buildGoldChain() {
	c.buildOne(core.BuildingGoldMine)
	c.buildOne(core.BuildingGoldSmelter)
}

func (c *Controller) buildWarehouse() { c.buildOne(core.BuildingStock) }

// buildOne places one building of the type if below target, connected to
// the road network by the scored road builder.
func (c *Controller) buildOne(t core.BuildingType) {
	g := c.game
	g.Lock()
	p := c.me()
	if p == nil || !p.HasCastle {
		g.Unlock()
		return
	}
	// count finished and in-progress alike so the ladder does not stack
	// duplicates while one is still under construction
	have := 0
	g.EachBuilding(func(b *core.Building) {
		if b.Player == c.player && b.Type == t && !b.Burning {
			have++
		}
	})
	if have >= c.wantCount(t) {
		g.Unlock()
		return
	}
	pos := c.findBuildingSpot(t)
	if pos == maplib.BadPos {
		g.Unlock()
		return
	}
	if !g.BuildBuilding(pos, t, c.player) {
		g.Unlock()
		return
	}
	flagPos := g.Map.MoveDownRight(pos)
	g.Unlock()

	if c.connectFlag(flagPos) {
		c.logger.Debug("built", "type", t.String(), "pos", pos)
		return
	}
	// unconnectable building is torn down again
	g.Lock()
	g.DemolishBuilding(pos, c.player)
	g.Unlock()
}

// findBuildingSpot scores candidate cells around the castle. Mines look for
// mountain with the right deposit under them.
func (c *Controller) findBuildingSpot(t core.BuildingType) maplib.Pos {
	g := c.game
	p := c.me()
	m := g.Map
	best, bestScore := maplib.BadPos, -1
	m.Spiral(p.CastlePos, 9, func(q maplib.Pos) bool {
		if !g.CanBuildBuilding(q, t, c.player) {
			return true
		}
		score := 100 - m.Dist(p.CastlePos, q)
		switch t {
		case core.BuildingLumberjack:
			n := 0
			m.Spiral(q, 3, func(r maplib.Pos) bool {
				if m.Obj(r).IsTree() {
					n++
				}
				return true
			})
			if n == 0 {
				return true
			}
			score += n * 4
		case core.BuildingStonecutter:
			n := 0
			m.Spiral(q, 3, func(r maplib.Pos) bool {
				if m.Obj(r).IsStone() {
					n++
				}
				return true
			})
			if n == 0 {
				return true
			}
			score += n * 4
		case core.BuildingFisher:
			n := 0
			m.Spiral(q, 3, func(r maplib.Pos) bool {
				if m.Mineral(r) == maplib.MineralFish {
					n++
				}
				return true
			})
			if n == 0 {
				return true
			}
			score += n * 4
		case core.BuildingCoalMine, core.BuildingIronMine, core.BuildingGoldMine, core.BuildingStoneMine:
			want := mineralFor(t)
			n := 0
			m.Spiral(q, 2, func(r maplib.Pos) bool {
				if m.Mineral(r) == want {
					n += m.ResAmount(r)
				}
				return true
			})
			if n == 0 {
				return true
			}
			score += n * 2
		case core.BuildingHut:
			// expansion huts prefer the frontier
			if m.HasOwner(q) {
				borderBonus := 0
				m.Spiral(q, 2, func(r maplib.Pos) bool {
					if !m.HasOwner(r) {
						borderBonus++
					}
					return true
				})
				if borderBonus == 0 {
					return true
				}
				score += borderBonus * 3
			}
		}
		if score > bestScore {
			bestScore = score
			best = q
		}
		return true
	})
	return best
}

func mineralFor(t core.BuildingType) maplib.Mineral {
	switch t {
	case core.BuildingCoalMine:
		return maplib.MineralCoal
	case core.BuildingIronMine:
		return maplib.MineralIron
	case core.BuildingGoldMine:
		return maplib.MineralGold
	}
	return maplib.MineralStone
}

// ---- Road builder ----

// roadScore ranks a candidate solution; lower is better.
func (c *Controller) roadScore(s *pathfind.Solution, start maplib.Pos, invFlags []maplib.Pos, agree bool) int {
	g := c.game
	score := s.Length() * 4
	score += s.Convolution(g.Map, start) / 8
	score += len(s.Splits) * 12
	for _, p := range invFlags {
		if s.End == p {
			score += 40 // keep clutter away from the castle flag
		}
	}
	if !agree {
		score += 10
	}
	return score
}

// connectFlag plots, scores and builds a road from the flag at pos into the
// existing network. Targets are collected under the lock; each road plot
// runs on the live map while holding the lock, and scoring runs after it is
// released. The build re-validates inside the lock.
func (c *Controller) connectFlag(pos maplib.Pos) bool {
	g := c.game

	// snapshot targets under the lock
	g.Lock()
	var targets []maplib.Pos
	var invFlags []maplib.Pos
	g.EachFlag(func(f *core.Flag) {
		if f.Player != c.player || f.Pos == pos {
			return
		}
		if len(f.ConnectedEdges()) > 0 || f.HasInventory {
			targets = append(targets, f.Pos)
		}
		if f.HasInventory {
			invFlags = append(invFlags, f.Pos)
		}
	})
	agreeFlag := uint32(0)
	if f := g.FlagAt(pos); f != nil {
		agreeFlag = g.NearestInventoryBothAgree(f)
	}
	g.Unlock()
	if len(targets) == 0 {
		return false
	}

	// plot under the lock, score outside it, and sleep between targets so
	// the simulation progresses
	type candidate struct {
		sol   pathfind.Solution
		score int
	}
	var cands []candidate
	yield := func() { time.Sleep(200 * time.Millisecond) }
	for _, target := range targets {
		var sols []pathfind.Solution
		if cached, ok := c.cache.Get(pos, target); ok {
			sols = cached
		} else {
			g.Lock()
			sols = pathfind.PlotExtended(g.Map, pos, target, c.player, pathfind.ExtendedOptions{
				AllowPassthru:  true,
				InventoryFlags: invFlags,
				Yield:          nil, // under the lock: no sleeping
			})
			g.Unlock()
			c.cache.Put(pos, target, sols)
		}
		for _, s := range sols {
			agree := agreeFlag != 0
			cands = append(cands, candidate{s, c.roadScore(&s, pos, invFlags, agree)})
		}
		yield()
	}
	if len(cands) == 0 {
		return false
	}
	best := cands[0]
	for _, cd := range cands[1:] {
		if cd.score < best.score {
			best = cd
		}
	}

	g.Lock()
	defer g.Unlock()
	// splitting flags first, then the road, through the public predicates
	for _, sp := range best.sol.Splits {
		if !g.BuildFlag(sp, c.player) {
			return false
		}
	}
	if g.BuildRoad(core.Road{Source: pos, Dirs: best.sol.Dirs}, c.player) {
		c.cache.Invalidate(g.Map, pos, 4)
		return true
	}
	return false
}

// ---- Maintenance ----

func (c *Controller) maintenance() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || !p.HasCastle {
		return
	}
	// demolish unproductive mines (active building, empty ground)
	var toBurn []maplib.Pos
	g.EachBuilding(func(b *core.Building) {
		if b.Player != c.player || !b.Type.IsMine() || !b.Done || b.Burning {
			return
		}
		want := mineralFor(b.Type)
		left := 0
		g.Map.Spiral(b.Pos, 2, func(q maplib.Pos) bool {
			if g.Map.Mineral(q) == want {
				left += g.Map.ResAmount(q)
			}
			return true
		})
		if left == 0 {
			toBurn = append(toBurn, b.Pos)
		}
	})
	for _, pos := range toBurn {
		c.logger.Debug("demolishing depleted mine", "pos", pos)
		g.DemolishBuilding(pos, c.player)
	}
	// arterial flags carry the bulk of the shortest paths to the castle
	// and are never treated as removable stubs
	arterial := map[uint32]bool{}
	if f := g.FlagAt(g.Map.MoveDownRight(p.CastlePos)); f != nil {
		for _, idxs := range g.ArterialFlags(f.Index, c.player) {
			for _, idx := range idxs {
				arterial[idx] = true
			}
		}
	}
	// remove redundant road stubs: flags with one edge and nothing on them
	var deadFlags []maplib.Pos
	g.EachFlag(func(f *core.Flag) {
		if f.Player != c.player || f.Building != 0 || f.HasInventory || arterial[f.Index] {
			return
		}
		if len(f.ConnectedEdges()) == 1 && f.SlotCountInUse() == 0 {
			deadFlags = append(deadFlags, f.Pos)
		}
	})
	for _, pos := range deadFlags {
		g.DemolishFlag(pos, c.player)
	}
}

// ---- Offense ----

func (c *Controller) offense() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || !p.HasCastle {
		return
	}
	c.attackTimer++
	if c.attackTimer < 20 {
		return
	}
	// score enemy military buildings by weakness and distance
	var bestTarget uint32
	bestScore := -1
	g.EachBuilding(func(b *core.Building) {
		if b.Player == c.player || !b.Type.IsMilitary() || !b.Done || b.Burning {
			return
		}
		if b.Type == core.BuildingCastle {
			return // castles fall last
		}
		d := g.Map.Dist(p.CastlePos, b.Pos)
		score := 100 - d*2
		if score > bestScore {
			bestScore = score
			bestTarget = b.Index
		}
	})
	if bestTarget == 0 {
		return
	}
	avail := g.PlanAttack(c.player, bestTarget)
	if avail >= 3 {
		n := g.StartAttack(c.player, avail)
		if n > 0 {
			c.attackTimer = 0
			c.logger.Info("attack launched", "target", bestTarget, "knights", n)
		}
	}
}

// ---- Priority tuning ----

func (c *Controller) adjustPriorities() {
	g := c.game
	g.Lock()
	defer g.Unlock()
	p := c.me()
	if p == nil || !p.HasCastle {
		return
	}
	// push food toward gold mines once gold flows
	if p.BuildingCounts[core.BuildingGoldMine] > 0 {
		p.FoodGoldMine = 65500
		p.FoodStoneMine = 9825
	}
	// tool priorities follow what professions are missing
	if p.SerfCounts[core.SerfMiner] < 4 {
		p.SetToolPriority(7, 9) // picks
	}
	if p.SerfCounts[core.SerfFarmer] == 0 {
		p.SetToolPriority(4, 9) // scythes
	}
	// raise knight occupation on the frontier once the economy stands
	if c.loopCount > 30 {
		p.SetKnightOccupation(3, 1, 2)
		p.SetKnightOccupation(2, 2, 3)
	}
}
