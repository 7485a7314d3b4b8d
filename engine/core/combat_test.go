package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// twoPlayerGame founds castles for players 0 and 1 far apart.
func twoPlayerGame(t *testing.T) *Game {
	t.Helper()
	g := flatGame(t)
	_, err := g.AddPlayer(13, 72, 35, 30, 40)
	require.NoError(t, err)
	require.True(t, g.BuildCastle(g.Map.MakePos(12, 12), 0))
	require.True(t, g.BuildCastle(g.Map.MakePos(48, 48), 1))
	return g
}

// garrisonHut drops a finished hut with a chain of knights for a player.
func garrisonHut(t *testing.T, g *Game, pos maplib.Pos, player int, knights int) *Building {
	t.Helper()
	b := g.createBuilding(BuildingHut, pos, player)
	b.Done = true
	b.Active = true
	b.Progress = 0xffff
	b.initFinishedStocks()
	g.Map.SetObject(pos, maplib.ObjSmallBuilding, b.Index)
	fp := g.Map.MoveDownRight(pos)
	f := g.createFlag(fp, player)
	f.Building = b.Index
	b.Flag = f.Index
	g.Map.SetObject(fp, maplib.ObjFlag, f.Index)
	g.Map.SetPath(pos, maplib.DirDownRight, true)
	for i := 0; i < knights; i++ {
		s := g.createSerf(SerfKnight0, player, pos)
		g.knightEnterBuilding(b, s)
	}
	g.updateLandOwnership(pos)
	g.calculateMilitaryScore(player)
	return b
}

func TestKnightChainAndMilitaryScore(t *testing.T) {
	g := twoPlayerGame(t)
	hut := garrisonHut(t, g, g.Map.MakePos(24, 24), 0, 3)
	assert.Equal(t, 3, g.knightCount(hut))
	assert.Equal(t, 3, g.Player(0).MilitaryScore)
	assert.Equal(t, 0, g.Map.Owner(hut.Pos))
}

func TestPlanAttackCountsSpareKnights(t *testing.T) {
	g := twoPlayerGame(t)
	target := garrisonHut(t, g, g.Map.MakePos(24, 24), 0, 1)
	garrisonHut(t, g, g.Map.MakePos(36, 36), 1, 4)

	avail := g.PlanAttack(1, target.Index)
	// occupation minimum for the default threat band stays home
	assert.Equal(t, 3, avail)
	assert.Equal(t, target.Index, g.Player(1).Attack.Target)

	// attacking your own building is rejected
	assert.Equal(t, 0, g.PlanAttack(0, target.Index))
}

func TestOccupyEnemyBuilding(t *testing.T) {
	g := twoPlayerGame(t)
	// an empty enemy hut is captured without a duel
	target := garrisonHut(t, g, g.Map.MakePos(26, 26), 0, 1)
	for g.popDefender(target) != nil {
		// strip the garrison so the capture is deterministic
	}
	garrisonHut(t, g, g.Map.MakePos(40, 40), 1, 4)

	require.Greater(t, g.PlanAttack(1, target.Index), 0)
	launched := g.StartAttack(1, 3)
	require.Greater(t, launched, 0)

	for i := 0; i < 6000 && target.Player != 1; i++ {
		g.Update()
	}
	assert.Equal(t, 1, target.Player, "building must change hands")
	assert.Equal(t, 1, g.Map.Owner(target.Pos))
	assert.Greater(t, g.knightCount(target), 0, "a victor garrisons the building")

	// land-area totals stay consistent with cell ownership
	for pi := 0; pi < 2; pi++ {
		count := 0
		for i := 0; i < g.Map.CellCount(); i++ {
			if g.Map.Owner(maplib.Pos(i)) == pi {
				count++
			}
		}
		assert.Equal(t, count, g.Player(pi).LandArea, "player %d", pi)
	}

	// no flag is stranded outside its owner's territory near the capture
	g.EachFlag(func(f *Flag) {
		if g.Map.Dist(f.Pos, target.Pos) <= spiralRegionRadius {
			assert.Equal(t, g.Map.Owner(f.Pos), f.Player)
		}
	})
}

func TestDuelResolvesAndKillsOneSide(t *testing.T) {
	g := twoPlayerGame(t)
	att := g.createSerf(SerfKnight4, 1, g.Map.MakePos(30, 30))
	def := g.createSerf(SerfKnight0, 0, g.Map.MakePos(30, 30))
	att.State = StateKnightAttacking
	att.S.DefIndex = def.Index
	def.State = StateKnightDefending
	def.S.BuildingIdx = 0

	before := g.serfs.count()
	g.handleKnightAttacking(att)
	after := g.serfs.count()
	if att.State == StateKnightAttackingVictory {
		assert.Equal(t, before-1, after, "defender died")
	} else {
		require.Equal(t, StateKnightAttackingDefeat, att.State)
		// the defender survives; the attacker dies when its defeat
		// counter drains
		assert.Equal(t, before, after)
	}
}

func TestBurnBuildingSpillsSerfsAndGold(t *testing.T) {
	g := twoPlayerGame(t)
	hut := garrisonHut(t, g, g.Map.MakePos(24, 24), 0, 3)
	hut.GoldDelivered = 2
	g.GoldTotal += 2

	goldBefore := g.GoldTotal
	require.True(t, g.DemolishBuilding(hut.Pos, 0))
	assert.True(t, hut.Burning)
	assert.Equal(t, burnCounterNormal, hut.BurningCounter)
	assert.Equal(t, goldBefore-2, g.GoldTotal, "delivered gold leaves the total immediately")
	assert.Equal(t, uint32(0), hut.FirstKnight)

	// escaping knights head home rather than dangle
	escaped := 0
	g.EachSerf(func(s *Serf) {
		if s.State == StateEscapeBuilding || s.State == StateLost {
			escaped++
		}
	})
	assert.Equal(t, 3, escaped)

	// the burnt shell disappears after the counter drains
	for i := 0; i < 1200; i++ {
		g.Update()
	}
	assert.Nil(t, g.BuildingAt(hut.Pos))
}

func TestMoraleFollowsDeliveredGold(t *testing.T) {
	g := twoPlayerGame(t)
	// place gold on the map so the divisor is nonzero
	g.Map.SetMineral(g.Map.MakePos(5, 5), maplib.MineralGold, 10)
	g.GoldTotal += 10

	hut := garrisonHut(t, g, g.Map.MakePos(24, 24), 0, 1)
	hut.GoldDelivered = 4
	g.GoldTotal += 4

	g.updateKnightMorale()
	p0, p1 := g.Player(0), g.Player(1)
	assert.Greater(t, p0.KnightMorale, 1024)
	assert.Equal(t, 1024, p1.KnightMorale)
	assert.Equal(t, 4, p0.GoldDeposited)

	// losing the building drops the deposited gold and the morale
	g.burnBuilding(hut)
	g.updateKnightMorale()
	assert.Equal(t, 0, p0.GoldDeposited)
	assert.Equal(t, 1024, p0.KnightMorale)
}

func TestCastleBurnTakesLonger(t *testing.T) {
	g := twoPlayerGame(t)
	require.True(t, g.DemolishBuilding(g.Map.MakePos(12, 12), 0))
	b := g.BuildingAt(g.Map.MakePos(12, 12))
	require.NotNil(t, b)
	assert.Equal(t, burnCounterCastle, b.BurningCounter)
	assert.False(t, g.Player(0).HasCastle)
}
