// Command game runs the simulation headless: a fixed real-time ticker
// drives Game.Update, AI controllers run on their own goroutines, and the
// observer serves websocket snapshots plus prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hexfief/serf-engine/engine/ai"
	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/observe"
	"github.com/hexfief/serf-engine/engine/savegame"
	"github.com/hexfief/serf-engine/engine/statsdb"
)

// tickInterval is the real-time step period; each step advances the game by
// GameSpeed ticks.
const tickInterval = 50 * time.Millisecond

// missionSeeds gives each mission level its fixed map seed.
var missionSeeds = []uint64{
	0x8c1e63f2a9, 0x1b2d4f6a83, 0x52f91c3e77, 0x6a0b8d4c21,
	0x3d7e2a5f90, 0x9f4c6b1d38, 0x7210e5a9c4, 0x04d8b3f762,
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load() // optional .env; flags override

	var (
		mapSize  = flag.Uint("map-size", uint(envInt("HEXSERF_MAP_SIZE", 3)), "map size (0..10)")
		seedStr  = flag.String("seed", envDefault("HEXSERF_SEED", ""), "decimal map seed (random game)")
		mission  = flag.Int("mission", -1, "mission level (overrides seed)")
		loadPath = flag.String("load", "", "load a save file instead of starting fresh")
		savePath = flag.String("save", envDefault("HEXSERF_SAVE", ""), "write a save here on exit")
		speed    = flag.Uint("speed", uint(envInt("HEXSERF_SPEED", 2)), "game speed (ticks per step)")
		aiCount  = flag.Int("ai", envInt("HEXSERF_AI", 1), "number of AI players")
		obsAddr  = flag.String("observe", envDefault("HEXSERF_OBSERVE", ""), "observer listen address (empty disables)")
		statsPath = flag.String("stats", envDefault("HEXSERF_STATS", ""), "sqlite stats db path (empty disables)")
		maxSteps = flag.Uint64("steps", 0, "stop after N steps (0 runs until interrupted)")
		logLevel = flag.String("log-level", envDefault("HEXSERF_LOG_LEVEL", "info"), "debug|info|warn|error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	g, err := makeGame(*loadPath, *mission, *seedStr, *mapSize, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	g.SetSpeed(uint32(*speed))

	// activate players: slot 0 plus one slot per -ai opponent
	g.Lock()
	if _, _, _, serfs := g.Counts(); serfs == 0 {
		for i := 0; i <= *aiCount && i < core.MaxPlayers; i++ {
			if _, err := g.AddPlayer(12+i, uint32(0x4040c0+i*0x303030), 35, 30, 40); err != nil {
				g.Unlock()
				log.Fatalf("startup: %v", err)
			}
		}
	}
	g.Unlock()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	grp, ctx := errgroup.WithContext(ctx)

	// headless: every active slot is computer-controlled
	var controllers []*ai.Controller
	for i := 0; i <= *aiCount && i < core.MaxPlayers; i++ {
		c := ai.New(g, i, logger)
		controllers = append(controllers, c)
		grp.Go(func() error { return c.Run(ctx) })
	}

	if *obsAddr != "" {
		srv := observe.NewServer(g, 500*time.Millisecond, logger)
		grp.Go(func() error { return srv.ListenAndServe(ctx, *obsAddr) })
	}

	var rec *statsdb.Recorder
	if *statsPath != "" {
		rec, err = statsdb.Open(*statsPath)
		if err != nil {
			log.Fatalf("startup: %v", err)
		}
		defer rec.Close()
	}

	grp.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		var steps uint64
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				g.Lock()
				g.Update()
				if rec != nil && g.TickTotal%256 < g.GameSpeed {
					if err := rec.Sample(g); err != nil {
						logger.Warn("stats sample failed", "error", err)
					}
				}
				g.Unlock()
				steps++
				if *maxSteps > 0 && steps >= *maxSteps {
					return nil
				}
			}
		}
	})

	err = grp.Wait()
	for _, c := range controllers {
		c.Stop()
	}
	if *savePath != "" {
		g.Lock()
		saveErr := savegame.SaveFile(*savePath, g)
		g.Unlock()
		if saveErr != nil {
			log.Fatalf("save: %v", saveErr)
		}
		logger.Info("game saved", "path", *savePath)
	}
	if err != nil && err != context.Canceled {
		log.Fatalf("run: %v", err)
	}
}

// makeGame builds the initial game from a save, a mission or a seed.
func makeGame(loadPath string, mission int, seedStr string, mapSize uint, logger *slog.Logger) (*core.Game, error) {
	if loadPath != "" {
		g, err := savegame.LoadFile(loadPath, logger)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", loadPath, err)
		}
		logger.Info("game loaded", "path", loadPath, "id", g.ID)
		return g, nil
	}
	seed := uint64(0x5eed)
	switch {
	case mission >= 0:
		if mission >= len(missionSeeds) {
			return nil, fmt.Errorf("mission %d out of range (0..%d)", mission, len(missionSeeds)-1)
		}
		seed = missionSeeds[mission]
	case seedStr != "":
		v, err := strconv.ParseUint(seedStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad seed %q: %w", seedStr, err)
		}
		seed = v
	}
	g := core.NewGame(mapSize, seed, logger)
	logger.Info("game created", "id", g.ID, "size", mapSize, "seed", seed)
	return g, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
