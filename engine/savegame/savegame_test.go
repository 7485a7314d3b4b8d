package savegame

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// seededGame runs the canonical scenario: size-3 map, fixed seed, one
// player, a castle, then a number of updates.
func seededGame(t *testing.T, updates int) *core.Game {
	t.Helper()
	g := core.NewGame(3, 8667715887436237, testLogger())
	idx, err := g.AddPlayer(12, 64, 35, 30, 40)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	// find a castle spot near the center; generated terrain varies
	placed := false
	m := g.Map
	m.Spiral(m.MakePos(6, 6), 9, func(p maplib.Pos) bool {
		if g.CanBuildCastle(p, 0) {
			require.True(t, g.BuildCastle(p, 0))
			placed = true
			return false
		}
		return true
	})
	if !placed {
		for i := 0; i < m.CellCount() && !placed; i++ {
			if g.CanBuildCastle(maplib.Pos(i), 0) {
				require.True(t, g.BuildCastle(maplib.Pos(i), 0))
				placed = true
			}
		}
	}
	require.True(t, placed, "no castle spot on the generated map")
	for i := 0; i < updates; i++ {
		g.Update()
	}
	return g
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g := seededGame(t, 500)
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, g))

	loaded, err := Load(bytes.NewReader(buf.Bytes()), testLogger())
	require.NoError(t, err)

	assert.True(t, g.Map.Equal(loaded.Map), "map must round-trip")
	assert.Equal(t, g.GoldTotal, loaded.GoldTotal)
	assert.Equal(t, g.ID, loaded.ID)
	assert.True(t, g.StateEqual(loaded), "full state must round-trip")

	// the serialization itself is stable
	var buf2 bytes.Buffer
	require.NoError(t, Save(&buf2, loaded))
	assert.Equal(t, buf.String(), buf2.String())
}

func TestDeterministicReplay(t *testing.T) {
	a := seededGame(t, 300)
	b := seededGame(t, 300)
	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db, "same seed and inputs must give identical state")

	c := seededGame(t, 301)
	dc, err := Digest(c)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

func TestPauseSaveReloadResume(t *testing.T) {
	g := seededGame(t, 400)
	g.Pause()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, g))
	loaded, err := Load(bytes.NewReader(buf.Bytes()), testLogger())
	require.NoError(t, err)
	g.Resume()
	loaded.Resume()

	for i := 0; i < 200; i++ {
		g.Update()
		loaded.Update()
	}
	dg, err := Digest(g)
	require.NoError(t, err)
	dl, err := Digest(loaded)
	require.NoError(t, err)
	assert.Equal(t, dg, dl, "resumed games must stay bit-identical")
}

func TestCompressedRoundTrip(t *testing.T) {
	g := seededGame(t, 100)
	var buf bytes.Buffer
	require.NoError(t, SaveCompressed(&buf, g))
	loaded, err := LoadCompressed(bytes.NewReader(buf.Bytes()), testLogger())
	require.NoError(t, err)
	assert.True(t, g.StateEqual(loaded))

	// the frame really is compressed text
	var plain bytes.Buffer
	require.NoError(t, Save(&plain, g))
	assert.Less(t, buf.Len(), plain.Len())
}

func TestSaveLoadFiles(t *testing.T) {
	g := seededGame(t, 50)
	dir := t.TempDir()

	plain := filepath.Join(dir, "game.save")
	require.NoError(t, SaveFile(plain, g))
	l1, err := LoadFile(plain, testLogger())
	require.NoError(t, err)
	assert.True(t, g.StateEqual(l1))

	packed := filepath.Join(dir, "game.save.lz4")
	require.NoError(t, SaveFile(packed, g))
	l2, err := LoadFile(packed, testLogger())
	require.NoError(t, err)
	assert.True(t, g.StateEqual(l2))

	_, err = LoadFile(filepath.Join(dir, "missing.save"), testLogger())
	assert.Error(t, err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a save\n")), testLogger())
	assert.Error(t, err)

	_, err = Load(bytes.NewReader([]byte("[game]\nversion=99\n")), testLogger())
	assert.Error(t, err)
}
