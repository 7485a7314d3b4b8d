package ai

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
	"github.com/hexfief/serf-engine/engine/pathfind"
)

func testGame(t *testing.T) *core.Game {
	t.Helper()
	m := maplib.NewWithDims(64, 64)
	for i := 0; i < m.CellCount(); i++ {
		p := maplib.Pos(i)
		m.SetType(p, maplib.TerrainGrass1, maplib.TerrainGrass1)
		m.SetHeight(p, 10)
	}
	g := core.NewEmptyGame(m, slog.New(slog.DiscardHandler))
	_, err := g.AddPlayer(12, 64, 35, 30, 40)
	require.NoError(t, err)
	return g
}

func TestPlaceCastlePhase(t *testing.T) {
	g := testGame(t)
	c := New(g, 0, nil)
	c.placeCastle()
	assert.True(t, g.Player(0).HasCastle, "the first phase founds the castle")
	// a second pass does nothing
	pos := g.Player(0).CastlePos
	c.placeCastle()
	assert.Equal(t, pos, g.Player(0).CastlePos)
}

func TestBuildPhasePlacesConnectedBuilding(t *testing.T) {
	g := testGame(t)
	c := New(g, 0, nil)
	c.placeCastle()
	require.True(t, g.Player(0).HasCastle)

	// scatter trees so a lumberjack spot scores
	castle := g.Player(0).CastlePos
	n := 0
	g.Map.Spiral(castle, 6, func(p maplib.Pos) bool {
		if n < 10 && g.Map.Obj(p) == maplib.ObjNone && p != castle {
			if g.Map.Dist(castle, p) >= 4 {
				g.Map.SetObject(p, maplib.ObjTree0, 0)
				n++
			}
		}
		return true
	})

	c.buildWoodChain()

	// the new building's flag is wired into the road network
	found := false
	g.EachBuilding(func(b *core.Building) {
		if b.Type == core.BuildingLumberjack {
			f := g.Flag(b.Flag)
			require.NotNil(t, f)
			assert.NotEmpty(t, f.ConnectedEdges(), "the AI connects what it builds")
			found = true
		}
	})
	assert.True(t, found)
}

func TestRunHonorsStop(t *testing.T) {
	g := testGame(t)
	c := New(g, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	c.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop at a phase boundary")
	}
}

func TestRoadScorePrefersShortStraight(t *testing.T) {
	g := testGame(t)
	c := New(g, 0, nil)
	short := pathfind.Solution{Dirs: make([]maplib.Direction, 4), End: g.Map.MakePos(5, 5)}
	long := pathfind.Solution{Dirs: make([]maplib.Direction, 12), End: g.Map.MakePos(5, 5)}
	split := pathfind.Solution{Dirs: make([]maplib.Direction, 4), End: g.Map.MakePos(5, 5),
		Splits: []maplib.Pos{g.Map.MakePos(4, 4)}}
	assert.Less(t, c.roadScore(&short, g.Map.MakePos(1, 5), nil, true),
		c.roadScore(&long, g.Map.MakePos(1, 5), nil, true))
	assert.Less(t, c.roadScore(&short, g.Map.MakePos(1, 5), nil, true),
		c.roadScore(&split, g.Map.MakePos(1, 5), nil, true))
}

func TestWantCountScalesExpansion(t *testing.T) {
	g := testGame(t)
	c := New(g, 0, nil)
	base := c.wantCount(core.BuildingHut)
	c.loopCount = 40
	assert.Greater(t, c.wantCount(core.BuildingHut), base)
	assert.Equal(t, 0, New(g, 0, nil).wantCount(core.BuildingStock))
}
