// Package statsdb records per-player statistics into a sqlite database so
// long games can be analysed after the fact.
package statsdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hexfief/serf-engine/engine/core"
)

// Recorder appends one row per active player per sample.
type Recorder struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// Open creates (or reuses) the stats database at path. ":memory:" works for
// tests.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statsdb: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS player_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT,
		tick INTEGER,
		player INTEGER,
		land INTEGER,
		buildings INTEGER,
		serfs INTEGER,
		gold INTEGER,
		morale INTEGER,
		military INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_stats_game_tick ON player_stats(game_id, tick);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("statsdb: schema: %w", err)
	}
	stmt, err := db.Prepare(`INSERT INTO player_stats
		(game_id, tick, player, land, buildings, serfs, gold, morale, military)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("statsdb: prepare: %w", err)
	}
	return &Recorder{db: db, stmt: stmt}, nil
}

// Sample records the current standings. Caller holds the game lock.
func (r *Recorder) Sample(g *core.Game) error {
	for i := 0; i < core.MaxPlayers; i++ {
		p := g.Player(i)
		if !p.IsActive() {
			continue
		}
		buildings, serfs := 0, 0
		for _, n := range p.BuildingCounts {
			buildings += n
		}
		for _, n := range p.SerfCounts {
			serfs += n
		}
		if _, err := r.stmt.Exec(g.ID.String(), g.TickTotal, i,
			p.LandArea, buildings, serfs, p.GoldDeposited,
			p.KnightMorale, p.TotalMilitaryScore); err != nil {
			return fmt.Errorf("statsdb: insert: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	if r.stmt != nil {
		r.stmt.Close()
	}
	return r.db.Close()
}
