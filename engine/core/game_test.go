package core

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/maplib"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// flatGame builds a level all-grass map with one active player.
func flatGame(t *testing.T) *Game {
	t.Helper()
	m := maplib.NewWithDims(64, 64)
	for i := 0; i < m.CellCount(); i++ {
		p := maplib.Pos(i)
		m.SetType(p, maplib.TerrainGrass1, maplib.TerrainGrass1)
		m.SetHeight(p, 10)
	}
	g := NewEmptyGame(m, testLogger())
	idx, err := g.AddPlayer(12, 64, 35, 30, 40)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	return g
}

// castleGame additionally founds the castle at (20,20).
func castleGame(t *testing.T) (*Game, maplib.Pos) {
	t.Helper()
	g := flatGame(t)
	pos := g.Map.MakePos(20, 20)
	require.True(t, g.BuildCastle(pos, 0))
	return g, pos
}

func TestAddPlayerSlots(t *testing.T) {
	g := flatGame(t)
	for i := 1; i < MaxPlayers; i++ {
		idx, err := g.AddPlayer(12+i, 64, 35, 30, 40)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	_, err := g.AddPlayer(20, 64, 35, 30, 40)
	assert.Error(t, err)
	_, err2 := flatGame(t).AddPlayer(0, 64, 35, 30, 40)
	assert.Error(t, err2)
}

func TestBuildCastle(t *testing.T) {
	g, pos := castleGame(t)
	p := g.Player(0)
	assert.True(t, p.HasCastle)
	assert.Equal(t, pos, p.CastlePos)

	// second castle is rejected
	assert.False(t, g.BuildCastle(g.Map.MakePos(40, 40), 0))

	// the entry flag exists down-right with a path to the building
	fp := g.Map.MoveDownRight(pos)
	f := g.FlagAt(fp)
	require.NotNil(t, f)
	assert.True(t, f.HasInventory)
	assert.True(t, g.Map.HasPath(pos, maplib.DirDownRight))

	// territory claimed and counted
	assert.Equal(t, 0, g.Map.Owner(pos))
	assert.Greater(t, p.LandArea, 50)
	count := 0
	for i := 0; i < g.Map.CellCount(); i++ {
		if g.Map.Owner(maplib.Pos(i)) == 0 {
			count++
		}
	}
	assert.Equal(t, count, p.LandArea)

	// starting population is in the castle inventory
	assert.Greater(t, p.SerfCounts[SerfTransporter], 0)
	assert.Greater(t, p.SerfCounts[SerfGeneric], 0)
}

func TestCastleRejectedOutsideFlatGround(t *testing.T) {
	g := flatGame(t)
	pos := g.Map.MakePos(30, 30)
	g.Map.SetHeight(g.Map.Move(pos, maplib.DirRight), 20)
	assert.False(t, g.CanBuildCastle(pos, 0))
}

func TestBuildFlagAndRoadEdges(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle) // castle flag
	bPos := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))

	road := Road{Source: a, Dirs: []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight}}
	require.True(t, g.BuildRoad(road, 0))

	fa, fb := g.FlagAt(a), g.FlagAt(bPos)
	require.NotNil(t, fa)
	require.NotNil(t, fb)
	ea := fa.Edges[maplib.DirRight]
	eb := fb.Edges[maplib.DirLeft]
	assert.True(t, ea.HasPath)
	assert.True(t, eb.HasPath)
	assert.Equal(t, fb.Index, ea.Other)
	assert.Equal(t, fa.Index, eb.Other)
	assert.Equal(t, maplib.DirLeft, ea.OtherEndDir)
	assert.Equal(t, maplib.DirRight, eb.OtherEndDir)
	assert.Equal(t, ea.LengthBucket, eb.LengthBucket)

	// path bits stamped symmetrically along the way
	cur := a
	for _, d := range road.Dirs {
		assert.True(t, g.Map.HasPath(cur, d))
		cur = g.Map.Move(cur, d)
	}

	// duplicate road over the same edge is rejected
	assert.False(t, g.BuildRoad(road, 0))
}

func TestBuildRoadRejectsBadInput(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	// no dirs
	_, _, ok := g.CanBuildRoad(Road{Source: a}, 0)
	assert.False(t, ok)
	// endpoint without a flag
	_, _, ok = g.CanBuildRoad(Road{Source: a, Dirs: []maplib.Direction{maplib.DirRight}}, 0)
	assert.False(t, ok)
	// source without a flag
	_, _, ok = g.CanBuildRoad(Road{Source: g.Map.MakePos(1, 1), Dirs: []maplib.Direction{maplib.DirRight}}, 0)
	assert.False(t, ok)
}

func TestFlagAdjacencyRejected(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	next := g.Map.Move(a, maplib.DirRight)
	assert.False(t, g.CanBuildFlag(next, 0))
}

func TestSplitRoadWithFlag(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+4, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	dirs := []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight, maplib.DirRight}
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: dirs}, 0))

	fa, fb := g.FlagAt(a), g.FlagAt(bPos)
	origBucket := fa.Edges[maplib.DirRight].LengthBucket

	// queue a resource across the road so the split must reschedule it
	fa.Slots[0] = ResSlot{Type: ResPlank, Dest: fb.Index, Dir: maplib.DirRight}

	c := g.Map.MakePos(g.Map.Col(a)+2, g.Map.Row(a))
	require.True(t, g.BuildFlag(c, 0))
	fc := g.FlagAt(c)
	require.NotNil(t, fc)

	// two edges replace the one
	assert.True(t, fa.Edges[maplib.DirRight].HasPath)
	assert.Equal(t, fc.Index, fa.Edges[maplib.DirRight].Other)
	assert.True(t, fb.Edges[maplib.DirLeft].HasPath)
	assert.Equal(t, fc.Index, fb.Edges[maplib.DirLeft].Other)
	assert.Equal(t, fa.Index, fc.Edges[maplib.DirLeft].Other)
	assert.Equal(t, fb.Index, fc.Edges[maplib.DirRight].Other)

	// bucket sum stays within rounding of the original
	sum := bucketMidLength[fa.Edges[maplib.DirRight].LengthBucket] +
		bucketMidLength[fc.Edges[maplib.DirRight].LengthBucket]
	assert.LessOrEqual(t, abs(sum-bucketMidLength[origBucket]), 4)

	// the queued resource lost its stale direction
	assert.Equal(t, maplib.DirNone, fa.Slots[0].Dir)
	assert.Equal(t, fb.Index, fa.Slots[0].Dest)
}

func TestDemolishFlagMergesRoads(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+4, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	dirs := []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight, maplib.DirRight}
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: dirs}, 0))
	c := g.Map.MakePos(g.Map.Col(a)+2, g.Map.Row(a))
	require.True(t, g.BuildFlag(c, 0))

	require.True(t, g.DemolishFlag(c, 0))
	assert.Nil(t, g.FlagAt(c))
	fa, fb := g.FlagAt(a), g.FlagAt(bPos)
	assert.Equal(t, fb.Index, fa.Edges[maplib.DirRight].Other)
	assert.Equal(t, fa.Index, fb.Edges[maplib.DirLeft].Other)
	// the road still crosses the old flag cell
	assert.NotZero(t, g.Map.Paths(c))
}

func TestDemolishFlagRejectedForBuildingFlag(t *testing.T) {
	g, castle := castleGame(t)
	fp := g.Map.MoveDownRight(castle)
	assert.False(t, g.CanDemolishFlag(fp, 0))
	assert.False(t, g.DemolishFlag(fp, 0))
}

func TestBuildBuildingCreatesFlagAndPath(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	site := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a)-1)
	require.True(t, g.BuildBuilding(site, BuildingLumberjack, 0))
	b := g.BuildingAt(site)
	require.NotNil(t, b)
	assert.False(t, b.Done)
	f := g.Flag(b.Flag)
	require.NotNil(t, f)
	assert.Equal(t, g.Map.MoveDownRight(site), f.Pos)
	assert.Equal(t, b.Index, f.Building)
	assert.True(t, g.Map.HasPath(site, maplib.DirDownRight))
	// construction stocks want planks and stones
	assert.Equal(t, ResPlank, b.Stocks[0].Type)
	assert.Equal(t, ResStone, b.Stocks[1].Type)
}

func TestUpdateRunsFixedOrderWithoutPanic(t *testing.T) {
	g, _ := castleGame(t)
	for i := 0; i < 600; i++ {
		g.Update()
	}
	// morale with no gold on the map takes the fixed fallback value
	assert.Equal(t, 4096, g.Player(0).KnightMorale)
	assert.Equal(t, 0, g.MoraleDivisor())
}

func TestLandAreaMatchesOwnership(t *testing.T) {
	g, _ := castleGame(t)
	for i := 0; i < 200; i++ {
		g.Update()
	}
	count := 0
	for i := 0; i < g.Map.CellCount(); i++ {
		if g.Map.Owner(maplib.Pos(i)) == 0 {
			count++
		}
	}
	assert.Equal(t, count, g.Player(0).LandArea)
}

func TestFlagSearchFindsInventory(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight}}, 0))

	fb := g.FlagAt(bPos)
	inv := g.findNearestInventoryAcceptingRes(fb)
	require.NotNil(t, inv)
	assert.Equal(t, g.FlagAt(a).Index, inv.Flag)

	d, ok := g.findDirToDest(fb, g.FlagAt(a).Index)
	require.True(t, ok)
	assert.Equal(t, maplib.DirLeft, d)

	assert.Equal(t, 1, g.FlagDist(fb.Index, inv.Flag))
	assert.Equal(t, 0, g.FlagDist(inv.Flag, inv.Flag))
}

func TestNearestInventoryBothAgree(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight}}, 0))
	fb := g.FlagAt(bPos)
	assert.Equal(t, g.FlagAt(a).Index, g.NearestInventoryBothAgree(fb))
}

func TestArterialFlagsLabelTrunk(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a))
	cPos := g.Map.MakePos(g.Map.Col(a)+6, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	require.True(t, g.BuildFlag(cPos, 0))
	three := []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight}
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: three}, 0))
	require.True(t, g.BuildRoad(Road{Source: bPos, Dirs: three}, 0))

	labels := g.ArterialFlags(g.FlagAt(a).Index, 0)
	found := false
	for _, idxs := range labels {
		for _, idx := range idxs {
			if idx == g.FlagAt(bPos).Index {
				found = true
			}
		}
	}
	assert.True(t, found, "the trunk flag carries every path and must be arterial")
}

func TestSendGeologistNeedsReachableInventory(t *testing.T) {
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	bPos := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a))
	require.True(t, g.BuildFlag(bPos, 0))
	// no road yet: dispatch fails
	assert.False(t, g.SendGeologist(g.FlagAt(bPos)))
	require.True(t, g.BuildRoad(Road{Source: a, Dirs: []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight}}, 0))
	assert.True(t, g.SendGeologist(g.FlagAt(bPos)))
}
