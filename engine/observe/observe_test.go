package observe

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
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
	require.True(t, g.BuildCastle(m.MakePos(20, 20), 0))
	return g
}

func TestSnapshotReflectsGame(t *testing.T) {
	g := testGame(t)
	s := NewServer(g, time.Second, nil)
	snap := s.snapshot()
	assert.Equal(t, g.ID.String(), snap.GameID)
	assert.Equal(t, 1, snap.Flags)
	assert.Equal(t, 1, snap.Buildings)
	assert.Greater(t, snap.Serfs, 0)
	require.Len(t, snap.Players, 1)
	assert.Greater(t, snap.Players[0].Land, 0)
}

func TestMetricsEndpointServesGauges(t *testing.T) {
	g := testGame(t)
	s := NewServer(g, time.Second, nil)
	s.snapshot() // populate the gauges

	srv := httptest.NewServer(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), "serfengine_entities")
}
