package statsdb

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
)

func TestSampleWritesRows(t *testing.T) {
	m := maplib.NewWithDims(64, 64)
	for i := 0; i < m.CellCount(); i++ {
		p := maplib.Pos(i)
		m.SetType(p, maplib.TerrainGrass1, maplib.TerrainGrass1)
		m.SetHeight(p, 10)
	}
	g := core.NewEmptyGame(m, slog.New(slog.DiscardHandler))
	_, err := g.AddPlayer(12, 64, 35, 30, 40)
	require.NoError(t, err)
	require.True(t, g.BuildCastle(m.MakePos(20, 20), 0))

	rec, err := Open(":memory:")
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Sample(g))
	g.Update()
	require.NoError(t, rec.Sample(g))

	var rows int
	require.NoError(t, rec.db.QueryRow(
		"SELECT COUNT(*) FROM player_stats WHERE game_id = ?", g.ID.String(),
	).Scan(&rows))
	assert.Equal(t, 2, rows)

	var land int
	require.NoError(t, rec.db.QueryRow(
		"SELECT land FROM player_stats ORDER BY id DESC LIMIT 1",
	).Scan(&land))
	assert.Equal(t, g.Player(0).LandArea, land)
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open("/nonexistent-dir-xyz/stats.db")
	assert.Error(t, err)
}
