package maplib

// GeneratorParams is the map-generator parameter bundle. All values are
// 16-bit slider positions; 32768 is the documented midpoint default.
type GeneratorParams struct {
	Trees          uint16
	Stonepiles     uint16
	Fish           uint16
	MountainGold   uint16
	MountainIron   uint16
	MountainCoal   uint16
	MountainStone  uint16
	Deserts        uint16
	LakesWaterLevel uint16
	JunkGrass      uint16
	JunkWater      uint16
	JunkDesert     uint16
}

// DefaultGeneratorParams returns the documented slider defaults.
func DefaultGeneratorParams() GeneratorParams {
	return GeneratorParams{
		Trees:           32768,
		Stonepiles:      32768,
		Fish:            32768,
		MountainGold:    8192,
		MountainIron:    16384,
		MountainCoal:    24576,
		MountainStone:   32768,
		Deserts:         24576,
		LakesWaterLevel: 16384,
		JunkGrass:       32768,
		JunkWater:       16384,
		JunkDesert:      16384,
	}
}

// Generate fills the map from a seed and parameter bundle. The same seed and
// parameters always produce the same map.
func (m *Map) Generate(rnd *Random, params GeneratorParams) {
	m.genHeights(rnd)
	m.genTerrain(rnd, params)
	m.genMinerals(rnd, params)
	m.genObjects(rnd, params)
}

// genHeights lays down height blobs and smooths them.
func (m *Map) genHeights(rnd *Random) {
	blobs := int(m.Cols*m.Rows) / 64
	for i := 0; i < blobs; i++ {
		p := m.randomPos(rnd)
		peak := int(rnd.Uint16()%24) + 4
		radius := int(rnd.Uint16()%5) + 2
		m.Spiral(p, radius, func(q Pos) bool {
			d := m.Dist(p, q)
			h := peak - (peak*d)/(radius+1)
			if h > m.Height(q) {
				m.SetHeight(q, h)
			}
			return true
		})
	}
	// two smoothing sweeps against neighbour average
	for sweep := 0; sweep < 2; sweep++ {
		for i := range m.cells {
			p := Pos(i)
			sum, n := m.Height(p), 1
			for d := DirRight; d <= DirUp; d++ {
				sum += m.Height(m.Move(p, d))
				n++
			}
			m.SetHeight(p, sum/n)
		}
	}
}

// genTerrain assigns triangle types from heights and the water level.
func (m *Map) genTerrain(rnd *Random, params GeneratorParams) {
	water := 2 + int(params.LakesWaterLevel)/8192 // 2..9
	for i := range m.cells {
		p := Pos(i)
		h := m.Height(p)
		var t Terrain
		switch {
		case h <= water:
			t = TerrainWater0 + Terrain(rnd.Uint16()%4)
			m.SetHeight(p, water) // water is flat
		case h >= 26:
			t = TerrainSnow0 + Terrain(rnd.Uint16()%2)
		case h >= 18:
			t = TerrainTundra0 + Terrain(rnd.Uint16()%3)
		default:
			t = TerrainGrass0 + Terrain(rnd.Uint16()%4)
		}
		m.SetType(p, t, t)
	}
	// desert patches on low grass
	deserts := int(params.Deserts) / 4096
	for i := 0; i < deserts; i++ {
		p := m.randomPos(rnd)
		if !m.TypeUp(p).IsGrass() {
			continue
		}
		m.Spiral(p, 3, func(q Pos) bool {
			if m.TypeUp(q).IsGrass() && m.Height(q) < 12 {
				t := TerrainDesert0 + Terrain(rnd.Uint16()%3)
				m.SetType(q, t, t)
			}
			return true
		})
	}
}

// genMinerals clusters deposits inside mountain ground, and fish along
// water cells.
func (m *Map) genMinerals(rnd *Random, params GeneratorParams) {
	type vein struct {
		kind   Mineral
		slider uint16
	}
	veins := []vein{
		{MineralGold, params.MountainGold},
		{MineralIron, params.MountainIron},
		{MineralCoal, params.MountainCoal},
		{MineralStone, params.MountainStone},
	}
	for _, v := range veins {
		clusters := int(v.slider) / 4096
		for i := 0; i < clusters; i++ {
			p := m.randomPos(rnd)
			if !m.TypeUp(p).IsTundra() {
				continue
			}
			m.Spiral(p, 1, func(q Pos) bool {
				if m.TypeUp(q).IsTundra() && m.Mineral(q) == MineralNone {
					m.SetMineral(q, v.kind, int(rnd.Uint16()%12)+2)
				}
				return true
			})
		}
	}
	fishSpots := int(params.Fish) / 2048
	for i := 0; i < fishSpots; i++ {
		p := m.randomPos(rnd)
		if m.TypeUp(p).IsWater() && m.Mineral(p) == MineralNone {
			m.SetMineral(p, MineralFish, int(rnd.Uint16()%8)+1)
		}
	}
}

// genObjects scatters trees, stone piles and junk objects.
func (m *Map) genObjects(rnd *Random, params GeneratorParams) {
	trees := int(params.Trees) / 16 * int(m.Cols*m.Rows) / 4096
	for i := 0; i < trees; i++ {
		p := m.randomPos(rnd)
		if m.TypeUp(p).IsGrass() && m.Obj(p) == ObjNone {
			m.SetObject(p, ObjTree0+Object(rnd.Uint16()%4), 0)
		}
	}
	stones := int(params.Stonepiles) / 64 * int(m.Cols*m.Rows) / 4096
	for i := 0; i < stones; i++ {
		p := m.randomPos(rnd)
		if m.TypeUp(p).IsGrass() && m.Obj(p) == ObjNone {
			m.SetObject(p, ObjStone0+Object(rnd.Uint16()%8), 0)
		}
	}
	junk := int(params.JunkGrass) / 1024
	for i := 0; i < junk; i++ {
		p := m.randomPos(rnd)
		if m.TypeUp(p).IsGrass() && m.Obj(p) == ObjNone {
			m.SetObject(p, ObjSapling, 0)
		}
	}
}

func (m *Map) randomPos(rnd *Random) Pos {
	c := uint32(rnd.Uint16()) & m.colMask
	r := uint32(rnd.Uint16()) & m.rowMask
	return m.MakePos(c, r)
}
