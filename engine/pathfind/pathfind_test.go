package pathfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/maplib"
)

// flatMap builds a level all-grass map owned by player 0.
func flatMap() *maplib.Map {
	m := maplib.NewWithDims(64, 64)
	for i := 0; i < m.CellCount(); i++ {
		p := maplib.Pos(i)
		m.SetType(p, maplib.TerrainGrass1, maplib.TerrainGrass1)
		m.SetHeight(p, 10)
		m.SetOwner(p, 0)
	}
	return m
}

func walk(m *maplib.Map, start maplib.Pos, dirs []maplib.Direction) maplib.Pos {
	pos := start
	for _, d := range dirs {
		pos = m.Move(pos, d)
	}
	return pos
}

func TestPlotStraightRoad(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(16, 10)
	m.SetObject(start, maplib.ObjFlag, 1)
	m.SetObject(end, maplib.ObjFlag, 2)

	dirs := Plot(m, start, end, 0, maplib.BadPos)
	require.NotNil(t, dirs)
	assert.Equal(t, 6, len(dirs))
	assert.Equal(t, end, walk(m, start, dirs))
}

func TestPlotRespectsOwnership(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(16, 10)
	// foreign stripes on both sides of the start block the way (the map
	// is a torus, so one stripe alone could be walked around)
	for row := uint32(0); row < m.Rows; row++ {
		m.SetOwner(m.MakePos(13, row), 1)
		m.SetOwner(m.MakePos(40, row), 1)
	}
	dirs := Plot(m, start, end, 0, maplib.BadPos)
	assert.Nil(t, dirs)
}

func TestPlotAvoidsHeldBuildingPos(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(12, 10)
	hold := m.MakePos(11, 10)
	dirs := Plot(m, start, end, 0, hold)
	require.NotNil(t, dirs)
	pos := start
	for _, d := range dirs {
		pos = m.Move(pos, d)
		assert.NotEqual(t, hold, pos)
	}
}

func TestPlotPrefersFlatGround(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(14, 10)
	// a height wall on the straight line makes the detour cheaper
	for _, c := range []uint32{11, 12, 13} {
		m.SetHeight(m.MakePos(c, 10), 28)
	}
	dirs := Plot(m, start, end, 0, maplib.BadPos)
	require.NotNil(t, dirs)
	assert.Greater(t, len(dirs), 4, "the plot should route around the wall")
}

func stampRoad(m *maplib.Map, start maplib.Pos, dirs []maplib.Direction) {
	pos := start
	for _, d := range dirs {
		m.SetPath(pos, d, true)
		pos = m.Move(pos, d)
	}
}

func TestExtendedFindsDirectAndFlagAlternate(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(20, 10)
	mid := m.MakePos(15, 10)
	m.SetObject(start, maplib.ObjFlag, 1)
	m.SetObject(end, maplib.ObjFlag, 2)
	m.SetObject(mid, maplib.ObjFlag, 3)

	sols := PlotExtended(m, start, end, 0, ExtendedOptions{})
	require.NotEmpty(t, sols)
	foundFlagAlt := false
	for _, s := range sols {
		if s.EndsAtFlag && s.End == mid {
			foundFlagAlt = true
		}
		assert.Equal(t, s.End, walk(m, start, s.Dirs))
	}
	assert.True(t, foundFlagAlt, "an intermediate flag must yield an alternate")
}

func TestExtendedPassthruNeedsOption(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(10, 16)
	m.SetObject(start, maplib.ObjFlag, 1)
	m.SetObject(end, maplib.ObjFlag, 2)
	// an existing road crosses the corridor
	roadA := m.MakePos(6, 13)
	roadDirs := make([]maplib.Direction, 8)
	for i := range roadDirs {
		roadDirs[i] = maplib.DirRight
	}
	m.SetObject(roadA, maplib.ObjFlag, 4)
	m.SetObject(walk(m, roadA, roadDirs), maplib.ObjFlag, 5)
	stampRoad(m, roadA, roadDirs)

	with := PlotExtended(m, start, end, 0, ExtendedOptions{AllowPassthru: true, MaxAlternates: 8})
	splitSeen := false
	for _, s := range with {
		if len(s.Splits) > 0 {
			splitSeen = true
			for _, sp := range s.Splits {
				assert.NotZero(t, m.Paths(sp), "split positions sit on the road")
			}
		}
	}
	assert.True(t, splitSeen, "passthru mode should propose splitting flags")

	without := PlotExtended(m, start, end, 0, ExtendedOptions{AllowPassthru: false, MaxAlternates: 8})
	for _, s := range without {
		assert.Empty(t, s.Splits)
	}
}

func TestCastleRingForbidsBothEnds(t *testing.T) {
	m := flatMap()
	start := m.MakePos(10, 10)
	end := m.MakePos(12, 10)
	m.SetObject(start, maplib.ObjFlag, 1)
	m.SetObject(end, maplib.ObjFlag, 2)
	inv := m.MakePos(11, 10)
	sols := PlotExtended(m, start, end, 0, ExtendedOptions{
		InventoryFlags: []maplib.Pos{inv},
	})
	assert.Empty(t, sols, "roads may not both start and end inside the ring")
}

func TestCacheBoundsAndInvalidation(t *testing.T) {
	m := flatMap()
	c := NewCache(2)
	a, b := m.MakePos(1, 1), m.MakePos(2, 2)
	c.Put(a, b, []Solution{{End: b}})
	got, ok := c.Get(a, b)
	require.True(t, ok)
	assert.Equal(t, b, got[0].End)

	// eviction past the bound
	c.Put(m.MakePos(3, 3), b, nil)
	c.Put(m.MakePos(4, 4), b, nil)
	_, ok = c.Get(a, b)
	assert.False(t, ok)

	// invalidation near a mutation
	c.Flush()
	c.Put(a, b, nil)
	c.Invalidate(m, m.MakePos(1, 2), 2)
	_, ok = c.Get(a, b)
	assert.False(t, ok)
}
