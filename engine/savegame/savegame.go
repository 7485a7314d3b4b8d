// Package savegame implements the textual save format: sectioned key/value
// blocks covering the game, map cells, players, flags, buildings,
// inventories and serfs. Load(Save(g)) reproduces g on all
// simulation-relevant state.
package savegame

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hexfief/serf-engine/engine/core"
	"github.com/hexfief/serf-engine/engine/maplib"
)

// FormatVersion is bumped on incompatible layout changes.
const FormatVersion = 1

// Save writes the canonical textual serialization of a game.
func Save(w io.Writer, g *core.Game) error {
	bw := bufio.NewWriter(w)

	ts := g.TickState()
	fmt.Fprintf(bw, "[game]\n")
	fmt.Fprintf(bw, "version=%d\n", FormatVersion)
	fmt.Fprintf(bw, "id=%s\n", g.ID.String())
	fmt.Fprintf(bw, "tick=%d %d %d %d %d\n", ts.Tick, ts.LastTick, ts.TickTotal, ts.ConstTick, ts.GameSpeed)
	fmt.Fprintf(bw, "counters=%d %d %d %d %d\n", ts.MoraleCounter, ts.InventoryCounter, ts.MapCounter, ts.StatsCounter, ts.StatsIndex)
	rnd := g.Rand.State()
	fmt.Fprintf(bw, "rnd=%d %d %d\n", rnd[0], rnd[1], rnd[2])
	fmt.Fprintf(bw, "gold=%d\n", g.GoldTotal)
	fmt.Fprintf(bw, "options=%s %s %s\n",
		b2s(g.Options.ResourceRequestsTimeOut),
		b2s(g.Options.PrioritizeUsableResources),
		b2s(g.Options.LostTransportersClearFaster))

	m := g.Map
	fmt.Fprintf(bw, "[map]\n")
	fmt.Fprintf(bw, "dims=%d %d\n", m.Cols, m.Rows)
	fmt.Fprintf(bw, "gold_deposit=%d\n", m.GoldDeposit())
	for i := 0; i < m.CellCount(); i++ {
		p := maplib.Pos(i)
		fmt.Fprintf(bw, "c%d=%d %d %d %d %d %d %d %d %d\n", i,
			m.TypeUp(p), m.TypeDown(p), m.Height(p), m.Obj(p), m.Paths(p),
			m.Owner(p), m.Mineral(p), m.ResAmount(p), m.ObjIndex(p))
	}

	for i := 0; i < core.MaxPlayers; i++ {
		p := g.Player(i)
		if !p.IsActive() {
			continue
		}
		fmt.Fprintf(bw, "[player %d]\n", i)
		fmt.Fprintf(bw, "base=%d %d %d %d %d %s %d\n",
			p.Face, p.Color, p.Supplies, p.Reproduction, p.Intelligence,
			b2s(p.HasCastle), p.CastlePos)
		fmt.Fprintf(bw, "totals=%d %d %d %d %d %d\n",
			p.LandArea, p.MilitaryScore, p.KnightMorale, p.GoldDeposited,
			p.CastleScore, p.TotalMilitaryScore)
		fmt.Fprintf(bw, "flag_prio=%s\n", ints(p.FlagPrio[:]))
		fmt.Fprintf(bw, "inv_prio=%s\n", ints(p.InventoryPrio[:]))
		fmt.Fprintf(bw, "tool_prio=%s\n", ints(p.ToolPrio[:]))
		fmt.Fprintf(bw, "serf_counts=%s\n", ints(p.SerfCounts[:]))
		fmt.Fprintf(bw, "res_counts=%s\n", ints(p.ResourceCounts[:]))
		var occ []int
		for _, b := range p.KnightOccupation {
			occ = append(occ, b.Min, b.Max)
		}
		fmt.Fprintf(bw, "occupation=%s\n", ints(occ))
		fmt.Fprintf(bw, "splits=%s\n", ints([]int{
			p.FoodStoneMine, p.FoodCoalMine, p.FoodIronMine, p.FoodGoldMine,
			p.PlanksConstruction, p.PlanksBoatbuilder, p.PlanksToolmaker,
			p.SteelToolmaker, p.SteelWeaponSmith,
			p.CoalSteelSmelter, p.CoalGoldSmelter, p.CoalWeaponSmith,
			p.WheatPigFarm, p.WheatMill,
		}))
		fmt.Fprintf(bw, "counters=%d %d\n", p.SerfReproCounter, p.KnightCycleCounter)
	}

	g.EachFlag(func(f *core.Flag) {
		fmt.Fprintf(bw, "[flag %d]\n", f.Index)
		fmt.Fprintf(bw, "base=%d %d %d %s %s %s\n",
			f.Pos, f.Player, f.Building,
			b2s(f.AcceptsSerfs), b2s(f.AcceptsResources), b2s(f.HasInventory))
		for d := maplib.DirRight; d <= maplib.DirUp; d++ {
			e := f.Edges[d]
			fmt.Fprintf(bw, "edge%d=%s %d %d %d %d %s\n", d,
				b2s(e.HasPath), e.Other, int(e.OtherEndDir), e.LengthBucket,
				e.Transporters, b2s(e.SerfRequested))
		}
		for i, s := range f.Slots {
			fmt.Fprintf(bw, "slot%d=%d %d %d\n", i, int(s.Type), s.Dest, int(s.Dir))
		}
	})

	g.EachBuilding(func(b *core.Building) {
		fmt.Fprintf(bw, "[building %d]\n", b.Index)
		fmt.Fprintf(bw, "base=%d %d %d %d %s %s %s %d %d %d\n",
			int(b.Type), b.Pos, b.Player, b.Flag,
			b2s(b.Done), b2s(b.Active), b2s(b.Burning),
			b.Progress, b.BurningCounter, b.Tick)
		fmt.Fprintf(bw, "refs=%s %d %d %d %d %s %s\n",
			b2s(b.Holder), b.FirstKnight, b.Inventory, b.GoldDelivered,
			b.ThreatLevel, b2s(b.SerfRequested), b2s(b.SerfRequestFailed))
		for i, s := range b.Stocks {
			var t []int
			for _, v := range s.Timeouts {
				t = append(t, int(v))
			}
			fmt.Fprintf(bw, "stock%d=%d %d %d %d %d %s\n", i,
				int(s.Type), s.Prio, s.Available, s.Requested, s.Maximum, ints(t))
		}
	})

	g.EachInventory(func(inv *core.Inventory) {
		fmt.Fprintf(bw, "[inventory %d]\n", inv.Index)
		fmt.Fprintf(bw, "base=%d %d %d %d %d %d\n",
			inv.Player, inv.Flag, inv.Building,
			int(inv.ResMode), int(inv.SerfMode), inv.GenericCount)
		fmt.Fprintf(bw, "resources=%s\n", ints(inv.Resources[:]))
		var serfs []int
		for _, v := range inv.Serfs {
			serfs = append(serfs, int(v))
		}
		fmt.Fprintf(bw, "serfs=%s\n", ints(serfs))
		for i, q := range inv.OutQueue {
			fmt.Fprintf(bw, "out%d=%d %d\n", i, int(q.Type), q.Dest)
		}
	})

	g.EachSerf(func(s *core.Serf) {
		fmt.Fprintf(bw, "[serf %d]\n", s.Index)
		fmt.Fprintf(bw, "base=%d %d %d %d %d %d %d\n",
			int(s.Type), s.Player, s.Pos, s.Animation, s.Counter, s.Tick, int(s.State))
		fmt.Fprintf(bw, "state=%d %d %d %d %d %d %d %d %d %d %d %d %d\n",
			s.S.Dest, int(s.S.Dir), int(s.S.Res), s.S.ResDest, s.S.InvIndex,
			s.S.BuildingIdx, int(s.S.NextState), s.S.WaitCounter, s.S.Phase,
			s.S.FreeCol, s.S.FreeRow, s.S.NextKnight, s.S.DefIndex)
	})

	return bw.Flush()
}

// Load parses a textual save into a fresh game.
func Load(r io.Reader, logger *slog.Logger) (*core.Game, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	var g *core.Game
	var m *maplib.Map
	var ts core.TickState
	var gameID uuid.UUID
	var rndState [3]uint16
	var goldTotal int
	var opts core.Options

	section := ""
	secIndex := 0

	var curFlag *core.Flag
	var curBuilding *core.Building
	var curInv *core.Inventory
	var curSerf *core.Serf
	var curPlayer *core.Player

	flush := func() {
		if g == nil {
			return
		}
		switch {
		case curFlag != nil:
			g.RestoreFlag(curFlag)
			curFlag = nil
		case curBuilding != nil:
			g.RestoreBuilding(curBuilding)
			curBuilding = nil
		case curInv != nil:
			g.RestoreInventory(curInv)
			curInv = nil
		case curSerf != nil:
			g.RestoreSerf(curSerf)
			curSerf = nil
		case curPlayer != nil:
			g.RestorePlayer(curPlayer)
			curPlayer = nil
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			flush()
			fields := strings.Fields(strings.Trim(line, "[]"))
			section = fields[0]
			secIndex = 0
			if len(fields) > 1 {
				secIndex, _ = strconv.Atoi(fields[1])
			}
			switch section {
			case "flag":
				curFlag = &core.Flag{Index: uint32(secIndex)}
			case "building":
				curBuilding = &core.Building{Index: uint32(secIndex)}
			case "inventory":
				curInv = &core.Inventory{Index: uint32(secIndex)}
			case "serf":
				curSerf = &core.Serf{Index: uint32(secIndex)}
			case "player":
				curPlayer = &core.Player{Index: secIndex}
			case "map":
				// dims line builds the map
			}
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("savegame: malformed line %q", line)
		}
		f := strings.Fields(val)
		switch section {
		case "game":
			switch key {
			case "version":
				if v := atoi(f[0]); v != FormatVersion {
					return nil, fmt.Errorf("savegame: unsupported version %d", v)
				}
			case "id":
				gameID, _ = uuid.Parse(val)
			case "tick":
				ts.Tick = uint16(atoi(f[0]))
				ts.LastTick = uint16(atoi(f[1]))
				ts.TickTotal = uint32(atoi(f[2]))
				ts.ConstTick = uint32(atoi(f[3]))
				ts.GameSpeed = uint32(atoi(f[4]))
			case "counters":
				ts.MoraleCounter = atoi(f[0])
				ts.InventoryCounter = atoi(f[1])
				ts.MapCounter = atoi(f[2])
				ts.StatsCounter = atoi(f[3])
				ts.StatsIndex = atoi(f[4])
			case "rnd":
				rndState = [3]uint16{uint16(atoi(f[0])), uint16(atoi(f[1])), uint16(atoi(f[2]))}
			case "gold":
				goldTotal = atoi(f[0])
			case "options":
				opts = core.Options{
					ResourceRequestsTimeOut:     f[0] == "1",
					PrioritizeUsableResources:   f[1] == "1",
					LostTransportersClearFaster: f[2] == "1",
				}
			}
		case "map":
			switch key {
			case "dims":
				m = maplib.NewWithDims(uint32(atoi(f[0])), uint32(atoi(f[1])))
				g = core.NewEmptyGame(m, logger)
			case "gold_deposit":
				m.SetGoldDeposit(atoi(f[0]))
			default: // cN lines
				if m == nil {
					return nil, fmt.Errorf("savegame: cell before dims")
				}
				i := atoi(strings.TrimPrefix(key, "c"))
				p := maplib.Pos(i)
				m.SetType(p, maplib.Terrain(atoi(f[0])), maplib.Terrain(atoi(f[1])))
				m.SetHeight(p, atoi(f[2]))
				m.SetObject(p, maplib.Object(atoi(f[3])), uint32(atoi(f[8])))
				m.SetPathsRaw(p, uint8(atoi(f[4])))
				m.SetOwner(p, atoi(f[5]))
				m.SetMineralRaw(p, maplib.Mineral(atoi(f[6])), atoi(f[7]))
			}
		case "player":
			loadPlayerLine(curPlayer, key, f)
		case "flag":
			loadFlagLine(curFlag, key, f)
		case "building":
			loadBuildingLine(curBuilding, key, f)
		case "inventory":
			loadInventoryLine(curInv, key, f)
		case "serf":
			loadSerfLine(curSerf, key, f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("savegame: no map section")
	}
	flush()
	g.SetID(gameID)
	g.SetTickState(ts)
	g.Rand.SetState(rndState)
	g.SetGoldTotal(goldTotal)
	g.Options = opts
	g.FinishRestore()
	return g, nil
}

func loadPlayerLine(p *core.Player, key string, f []string) {
	switch key {
	case "base":
		p.Face = atoi(f[0])
		p.Color = uint32(atoi(f[1]))
		p.Supplies = atoi(f[2])
		p.Reproduction = atoi(f[3])
		p.Intelligence = atoi(f[4])
		p.HasCastle = f[5] == "1"
		p.CastlePos = maplib.Pos(atoi(f[6]))
	case "totals":
		p.LandArea = atoi(f[0])
		p.MilitaryScore = atoi(f[1])
		p.KnightMorale = atoi(f[2])
		p.GoldDeposited = atoi(f[3])
		p.CastleScore = atoi(f[4])
		p.TotalMilitaryScore = atoi(f[5])
	case "flag_prio":
		fillInts(p.FlagPrio[:], f)
	case "inv_prio":
		fillInts(p.InventoryPrio[:], f)
	case "tool_prio":
		fillInts(p.ToolPrio[:], f)
	case "serf_counts":
		fillInts(p.SerfCounts[:], f)
	case "res_counts":
		fillInts(p.ResourceCounts[:], f)
	case "occupation":
		for i := 0; i < 4 && 2*i+1 < len(f); i++ {
			p.KnightOccupation[i] = core.OccupationBand{Min: atoi(f[2*i]), Max: atoi(f[2*i+1])}
		}
	case "splits":
		dst := []*int{
			&p.FoodStoneMine, &p.FoodCoalMine, &p.FoodIronMine, &p.FoodGoldMine,
			&p.PlanksConstruction, &p.PlanksBoatbuilder, &p.PlanksToolmaker,
			&p.SteelToolmaker, &p.SteelWeaponSmith,
			&p.CoalSteelSmelter, &p.CoalGoldSmelter, &p.CoalWeaponSmith,
			&p.WheatPigFarm, &p.WheatMill,
		}
		for i := 0; i < len(dst) && i < len(f); i++ {
			*dst[i] = atoi(f[i])
		}
	case "counters":
		p.SerfReproCounter = atoi(f[0])
		p.KnightCycleCounter = atoi(f[1])
	}
}

func loadFlagLine(fl *core.Flag, key string, f []string) {
	switch {
	case key == "base":
		fl.Pos = maplib.Pos(atoi(f[0]))
		fl.Player = atoi(f[1])
		fl.Building = uint32(atoi(f[2]))
		fl.AcceptsSerfs = f[3] == "1"
		fl.AcceptsResources = f[4] == "1"
		fl.HasInventory = f[5] == "1"
	case strings.HasPrefix(key, "edge"):
		d := atoi(strings.TrimPrefix(key, "edge"))
		fl.Edges[d] = core.FlagEdge{
			HasPath:       f[0] == "1",
			Other:         uint32(atoi(f[1])),
			OtherEndDir:   maplib.Direction(atoi(f[2])),
			LengthBucket:  atoi(f[3]),
			Transporters:  atoi(f[4]),
			SerfRequested: f[5] == "1",
		}
	case strings.HasPrefix(key, "slot"):
		i := atoi(strings.TrimPrefix(key, "slot"))
		fl.Slots[i] = core.ResSlot{
			Type: core.Resource(atoi(f[0])),
			Dest: uint32(atoi(f[1])),
			Dir:  maplib.Direction(atoi(f[2])),
		}
	}
}

func loadBuildingLine(b *core.Building, key string, f []string) {
	switch {
	case key == "base":
		b.Type = core.BuildingType(atoi(f[0]))
		b.Pos = maplib.Pos(atoi(f[1]))
		b.Player = atoi(f[2])
		b.Flag = uint32(atoi(f[3]))
		b.Done = f[4] == "1"
		b.Active = f[5] == "1"
		b.Burning = f[6] == "1"
		b.Progress = uint32(atoi(f[7]))
		b.BurningCounter = atoi(f[8])
		b.Tick = uint16(atoi(f[9]))
	case key == "refs":
		b.Holder = f[0] == "1"
		b.FirstKnight = uint32(atoi(f[1]))
		b.Inventory = uint32(atoi(f[2]))
		b.GoldDelivered = atoi(f[3])
		b.ThreatLevel = atoi(f[4])
		b.SerfRequested = f[5] == "1"
		b.SerfRequestFailed = f[6] == "1"
	case strings.HasPrefix(key, "stock"):
		i := atoi(strings.TrimPrefix(key, "stock"))
		s := core.Stock{
			Type:      core.Resource(atoi(f[0])),
			Prio:      atoi(f[1]),
			Available: atoi(f[2]),
			Requested: atoi(f[3]),
			Maximum:   atoi(f[4]),
		}
		for j := 0; j < len(s.Timeouts) && 5+j < len(f); j++ {
			s.Timeouts[j] = uint32(atoi(f[5+j]))
		}
		b.Stocks[i] = s
	}
}

func loadInventoryLine(inv *core.Inventory, key string, f []string) {
	switch {
	case key == "base":
		inv.Player = atoi(f[0])
		inv.Flag = uint32(atoi(f[1]))
		inv.Building = uint32(atoi(f[2]))
		inv.ResMode = core.Mode(atoi(f[3]))
		inv.SerfMode = core.Mode(atoi(f[4]))
		inv.GenericCount = atoi(f[5])
	case key == "resources":
		fillInts(inv.Resources[:], f)
	case key == "serfs":
		for i := 0; i < len(inv.Serfs) && i < len(f); i++ {
			inv.Serfs[i] = uint32(atoi(f[i]))
		}
	case strings.HasPrefix(key, "out"):
		i := atoi(strings.TrimPrefix(key, "out"))
		inv.OutQueue[i] = core.OutItem{Type: core.Resource(atoi(f[0])), Dest: uint32(atoi(f[1]))}
	}
}

func loadSerfLine(s *core.Serf, key string, f []string) {
	switch key {
	case "base":
		s.Type = core.SerfType(atoi(f[0]))
		s.Player = atoi(f[1])
		s.Pos = maplib.Pos(atoi(f[2]))
		s.Animation = atoi(f[3])
		s.Counter = atoi(f[4])
		s.Tick = uint16(atoi(f[5]))
		s.State = core.SerfState(atoi(f[6]))
	case "state":
		s.S = core.StateData{
			Dest:        uint32(atoi(f[0])),
			Dir:         maplib.Direction(atoi(f[1])),
			Res:         core.Resource(atoi(f[2])),
			ResDest:     uint32(atoi(f[3])),
			InvIndex:    uint32(atoi(f[4])),
			BuildingIdx: uint32(atoi(f[5])),
			NextState:   core.SerfState(atoi(f[6])),
			WaitCounter: atoi(f[7]),
			Phase:       atoi(f[8]),
			FreeCol:     atoi(f[9]),
			FreeRow:     atoi(f[10]),
			NextKnight:  uint32(atoi(f[11])),
			DefIndex:    uint32(atoi(f[12])),
		}
	}
}

func b2s(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func ints(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, " ")
}

func fillInts(dst []int, f []string) {
	for i := 0; i < len(dst) && i < len(f); i++ {
		dst[i] = atoi(f[i])
	}
}
