// Command viewer opens a window on a running simulation. Rendering is a
// pure pull from observable state: Draw locks the game, paints terrain,
// roads, flags, buildings and serfs, and never mutates anything. Update
// steps the simulation while stepping is switched on (space toggles it).
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
	"github.com/hexfief/serf-engine/engine/savegame"
)

const (
	screenWidth  = 1024
	screenHeight = 768
	cellPx       = 10
)

// terrainColors paints the upper triangle class of each cell.
var terrainColors = []struct {
	pred func(maplib.Terrain) bool
	col  color.RGBA
}{
	{maplib.Terrain.IsWater, color.RGBA{30, 90, 200, 255}},
	{maplib.Terrain.IsGrass, color.RGBA{52, 140, 49, 255}},
	{maplib.Terrain.IsTundra, color.RGBA{130, 120, 105, 255}},
	{maplib.Terrain.IsSnow, color.RGBA{235, 235, 245, 255}},
}

var playerColors = [core.MaxPlayers]color.RGBA{
	{64, 64, 220, 255}, {220, 64, 64, 255}, {220, 200, 40, 255}, {200, 255, 255, 255},
}

// View implements ebiten.Game over a simulation it also steps; ebiten's
// fixed-rate Update doubles as the tick driver.
type View struct {
	game *core.Game
	font *basicfont.Face
	step bool
}

func (v *View) Update() error {
	if v.step {
		v.game.Lock()
		v.game.Update()
		v.game.Unlock()
	}
	if ebiten.IsKeyPressed(ebiten.KeySpace) {
		v.step = !v.step
	}
	return nil
}

func (v *View) Draw(screen *ebiten.Image) {
	g := v.game
	g.Lock()
	defer g.Unlock()
	m := g.Map
	for row := uint32(0); row < m.Rows; row++ {
		for col := uint32(0); col < m.Cols; col++ {
			p := m.MakePos(col, row)
			x := float32(col * cellPx)
			y := float32(row * cellPx)
			c := color.RGBA{200, 170, 110, 255} // desert fallback
			for _, tc := range terrainColors {
				if tc.pred(m.TypeUp(p)) {
					c = tc.col
					break
				}
			}
			if owner := m.Owner(p); owner != maplib.NoOwner {
				pc := playerColors[owner]
				c = color.RGBA{
					uint8((int(c.R) + int(pc.R)) / 2),
					uint8((int(c.G) + int(pc.G)) / 2),
					uint8((int(c.B) + int(pc.B)) / 2), 255,
				}
			}
			vector.DrawFilledRect(screen, x, y, cellPx, cellPx, c, false)
			if m.Paths(p) != 0 {
				vector.DrawFilledRect(screen, x+3, y+3, 4, 4, color.RGBA{90, 60, 30, 255}, false)
			}
			switch {
			case m.Obj(p) == maplib.ObjFlag:
				vector.DrawFilledRect(screen, x+2, y+2, 6, 6, color.RGBA{255, 255, 255, 255}, false)
			case m.Obj(p).IsBuilding():
				vector.DrawFilledRect(screen, x+1, y+1, 8, 8, color.RGBA{40, 40, 40, 255}, false)
			}
		}
	}
	g.EachSerf(func(s *core.Serf) {
		x := float32(m.Col(s.Pos)*cellPx) + 4
		y := float32(m.Row(s.Pos)*cellPx) + 4
		vector.DrawFilledCircle(screen, x, y, 2, playerColors[s.Player], false)
	})
	flags, buildings, _, serfs := g.Counts()
	hud := fmt.Sprintf("tick %d  flags %d  buildings %d  serfs %d  gold %d",
		g.TickTotal, flags, buildings, serfs, g.GoldTotal)
	text.Draw(screen, hud, v.font, 8, screenHeight-8, color.White)
}

func (v *View) Layout(_, _ int) (int, int) { return screenWidth, screenHeight }

func main() {
	var (
		mapSize  = flag.Uint("map-size", 3, "map size (0..10)")
		seedStr  = flag.String("seed", "", "decimal map seed")
		loadPath = flag.String("load", "", "open a save file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	var g *core.Game
	if *loadPath != "" {
		var err error
		g, err = savegame.LoadFile(*loadPath, logger)
		if err != nil {
			log.Fatalf("viewer: %v", err)
		}
	} else {
		seed := uint64(0x5eed)
		if *seedStr != "" {
			v, err := strconv.ParseUint(*seedStr, 10, 64)
			if err != nil {
				log.Fatalf("viewer: bad seed: %v", err)
			}
			seed = v
		}
		g = core.NewGame(*mapSize, seed, logger)
		if _, err := g.AddPlayer(12, 0x4040c0, 35, 30, 40); err != nil {
			log.Fatalf("viewer: %v", err)
		}
	}

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("serf-engine viewer")
	if err := ebiten.RunGame(&View{game: g, font: basicfont.Face7x13, step: true}); err != nil {
		log.Fatal(err)
	}
}
