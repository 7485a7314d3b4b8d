package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// roadGame founds a castle, places a lumberjack three columns right of the
// castle flag and connects the lumberjack's flag (down-right of the site,
// four tiles right of the castle flag) by a straight road.
func roadGame(t *testing.T) (*Game, *Building, *Flag, *Flag) {
	t.Helper()
	g, castle := castleGame(t)
	a := g.Map.MoveDownRight(castle)
	site := g.Map.MakePos(g.Map.Col(a)+3, g.Map.Row(a)-1)
	require.True(t, g.BuildBuilding(site, BuildingLumberjack, 0))
	b := g.BuildingAt(site)
	require.True(t, g.BuildRoad(Road{
		Source: a,
		Dirs:   []maplib.Direction{maplib.DirRight, maplib.DirRight, maplib.DirRight, maplib.DirRight},
	}, 0))
	return g, b, g.FlagAt(a), g.Flag(b.Flag)
}

func run(g *Game, updates int) {
	for i := 0; i < updates; i++ {
		g.Update()
	}
}

func TestConstructionResourceDelivery(t *testing.T) {
	g, b, fa, _ := roadGame(t)
	castleInv := g.Inventory(fa.invIndex(g))
	require.NotNil(t, castleInv)
	planksBefore := castleInv.Resources[ResPlank]

	// requests carry a per-tile deadline
	run(g, 5)
	require.Greater(t, b.Stocks[0].Requested, 0)
	found := false
	for _, d := range b.Stocks[0].Timeouts {
		if d != 0 {
			found = true
			assert.LessOrEqual(t, d, g.TickTotal+uint32(requestTimeoutPerTile*6))
		}
	}
	assert.True(t, found)

	// the planks make it across the road and construction finishes
	run(g, 8000)
	assert.True(t, b.Done, "lumberjack should finish construction")
	assert.Equal(t, 0, b.Stocks[0].Requested+b.Stocks[1].Requested)
	assert.Less(t, castleInv.Resources[ResPlank], planksBefore)
}

func TestTransporterMansRequestedEdge(t *testing.T) {
	g, _, fa, fb := roadGame(t)
	run(g, 2000)
	// the edge between castle flag and building flag has a transporter
	assert.Greater(t, fa.Edges[maplib.DirRight].Transporters, 0)
	assert.Greater(t, fb.Edges[maplib.DirLeft].Transporters, 0)
	assert.Equal(t, fa.Edges[maplib.DirRight].Transporters, fb.Edges[maplib.DirLeft].Transporters)
}

func TestRequestTimeoutReroutesResource(t *testing.T) {
	g, b, fa, _ := roadGame(t)
	require.True(t, g.Options.ResourceRequestsTimeOut)
	castleInv := g.Inventory(fa.invIndex(g))
	planksBefore := castleInv.Resources[ResPlank]

	// let the request leave the inventory, then cut the road
	run(g, 40)
	require.Greater(t, b.Stocks[0].Requested, 0)
	cut := g.Map.Move(fa.Pos, maplib.DirRight)
	require.True(t, g.DemolishRoad(cut, 0))

	// the deadline passes; the request cancels and the resource returns
	run(g, 600)
	assert.Equal(t, 0, b.Stocks[0].Requested, "timed-out request must be cancelled")
	assert.Equal(t, 0, b.Stocks[0].Available, "nothing can be delivered without a road")
	total := castleInv.Resources[ResPlank]
	// in-flight planks returned to the inventory or still queued at its
	// own flag; none delivered, none lost for good
	queued := 0
	for _, s := range fa.Slots {
		if s.Type == ResPlank {
			queued++
		}
	}
	assert.Equal(t, planksBefore, total+queued)
}

func TestFlagSlotInvariantDestsLive(t *testing.T) {
	g, _, _, _ := roadGame(t)
	run(g, 3000)
	g.EachFlag(func(f *Flag) {
		for _, s := range f.Slots {
			if s.Type != ResourceNone && s.Dest != 0 {
				assert.NotNil(t, g.Flag(s.Dest), "slot destination must be a live flag")
			}
		}
	})
}

func TestEdgeSymmetryInvariant(t *testing.T) {
	g, _, _, _ := roadGame(t)
	run(g, 1000)
	g.EachFlag(func(f *Flag) {
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			e := f.Edges[d]
			if !e.HasPath {
				continue
			}
			other := g.Flag(e.Other)
			require.NotNil(t, other)
			back := other.Edges[e.OtherEndDir]
			assert.True(t, back.HasPath)
			assert.Equal(t, f.Index, back.Other)
			assert.Equal(t, d, back.OtherEndDir)
			assert.Equal(t, e.LengthBucket, back.LengthBucket)
		}
	})
}

func TestStockInvariantBounded(t *testing.T) {
	g, b, _, _ := roadGame(t)
	for i := 0; i < 4000; i++ {
		g.Update()
		for _, s := range b.Stocks {
			if s.Type == ResourceNone || s.Maximum == 0 {
				continue
			}
			sum := s.Available + s.Requested
			assert.GreaterOrEqual(t, sum, 0)
			assert.LessOrEqual(t, sum, s.Maximum)
		}
	}
}

func TestLostSerfWalksHome(t *testing.T) {
	g, _, fa, _ := roadGame(t)
	inv := g.Inventory(fa.invIndex(g))
	serfsBefore := g.serfs.count()

	s := g.createSerf(SerfTransporter, 0, g.Map.MakePos(26, 22))
	g.setSerfState(s, StateLost)
	run(g, 4000)
	// the serf is still alive, found its way back into the castle
	// inventory and idles there
	assert.Equal(t, serfsBefore+1, g.serfs.count())
	assert.Equal(t, StateIdleInStock, s.State)
	assert.Equal(t, inv.Index, s.S.InvIndex)
}

func TestSerfWithDeadDestinationGoesLost(t *testing.T) {
	g, _, _, fb := roadGame(t)
	s := g.createSerf(SerfTransporter, 0, g.Map.MakePos(22, 21))
	s.State = StateWalking
	s.S.Dest = fb.Index
	s.S.NextState = StateIdleOnPath
	s.S.Dir = maplib.DirRight

	// destroy the destination flag's building and flag
	b := g.Building(fb.Building)
	g.burnBuilding(b)
	run(g, 1200)
	g.deleteBuilding(b)
	fbPos := fb.Pos
	// flag loses its building; demolish it
	require.True(t, g.DemolishFlag(fbPos, 0))

	run(g, 50)
	assert.NotEqual(t, StateWalking, s.State)
}

func TestInventoryOutModeWithoutDestinationKeepsResources(t *testing.T) {
	g, _, fa, _ := roadGame(t)
	run(g, 6000) // let the building finish so a second flag network exists
	inv := g.Inventory(fa.invIndex(g))
	inv.ResMode = ModeOut
	run(g, 200)
	// with no second inventory the out mode finds no destination and
	// nothing is lost
	total := 0
	for r := Resource(0); r < ResourceCount; r++ {
		total += inv.Resources[r]
	}
	assert.Greater(t, total, 0)
}
