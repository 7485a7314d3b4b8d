package savegame

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	"github.com/hexfief/serf-engine/engine/core"
)

// SaveCompressed writes the textual save inside an lz4 frame.
func SaveCompressed(w io.Writer, g *core.Game) error {
	zw := lz4.NewWriter(w)
	if err := Save(zw, g); err != nil {
		return fmt.Errorf("savegame: compress: %w", err)
	}
	return zw.Close()
}

// LoadCompressed reads an lz4-framed textual save.
func LoadCompressed(r io.Reader, logger *slog.Logger) (*core.Game, error) {
	return Load(lz4.NewReader(r), logger)
}

// Digest returns the blake3 hash of the canonical textual serialization,
// with the session id masked out. Two games with equal simulation state
// produce equal digests, which is how the determinism tests compare runs.
func Digest(g *core.Game) ([32]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, g); err != nil {
		return [32]byte{}, err
	}
	h := blake3.New(32, nil)
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if bytes.HasPrefix(line, []byte("id=")) {
			continue
		}
		h.Write(line)
		h.Write([]byte("\n"))
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// SaveFile writes a save to disk, lz4-framed when the path ends in ".lz4".
func SaveFile(path string, g *core.Game) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("savegame: %w", err)
	}
	defer f.Close()
	if isLZ4(path) {
		return SaveCompressed(f, g)
	}
	return Save(f, g)
}

// LoadFile reads a save from disk. A failed load leaves no partial game
// behind; the caller keeps whatever game it had.
func LoadFile(path string, logger *slog.Logger) (*core.Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("savegame: %w", err)
	}
	defer f.Close()
	if isLZ4(path) {
		return LoadCompressed(f, logger)
	}
	return Load(f, logger)
}

func isLZ4(path string) bool {
	return len(path) > 4 && path[len(path)-4:] == ".lz4"
}
