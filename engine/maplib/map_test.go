package maplib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveReverse(t *testing.T) {
	m := New(3)
	p := m.MakePos(10, 12)
	for d := DirRight; d <= DirUp; d++ {
		assert.Equal(t, p, m.Move(m.Move(p, d), d.Reverse()), "dir %v", d)
	}
}

func TestMoveWrapsTorus(t *testing.T) {
	m := New(3)
	p := m.MakePos(m.Cols-1, 0)
	r := m.Move(p, DirRight)
	assert.Equal(t, uint32(0), m.Col(r))
	u := m.Move(m.MakePos(0, 0), DirUp)
	assert.Equal(t, m.Rows-1, m.Row(u))
}

func TestSetPathSymmetric(t *testing.T) {
	m := New(3)
	p := m.MakePos(5, 5)
	for d := DirRight; d <= DirUp; d++ {
		m.SetPath(p, d, true)
		q := m.Move(p, d)
		assert.True(t, m.HasPath(p, d))
		assert.True(t, m.HasPath(q, d.Reverse()))
		m.SetPath(p, d, false)
		assert.False(t, m.HasPath(p, d))
		assert.False(t, m.HasPath(q, d.Reverse()))
	}
}

func TestSetObjectStampsIndex(t *testing.T) {
	m := New(3)
	p := m.MakePos(4, 9)
	m.SetObject(p, ObjFlag, 17)
	assert.Equal(t, ObjFlag, m.Obj(p))
	assert.Equal(t, uint32(17), m.ObjIndex(p))
}

func TestSpiralOrderFixed(t *testing.T) {
	m := New(3)
	center := m.MakePos(20, 20)
	assert.Equal(t, 7, SpiralLen(1))
	assert.Equal(t, 19, SpiralLen(2))
	assert.Equal(t, center, m.PosAddSpirally(center, 0))
	// the same index always yields the same position
	var first []Pos
	m.Spiral(center, 2, func(p Pos) bool {
		first = append(first, p)
		return true
	})
	var second []Pos
	m.Spiral(center, 2, func(p Pos) bool {
		second = append(second, p)
		return true
	})
	assert.Equal(t, first, second)
	// ring 1 is exactly the six neighbours
	seen := map[Pos]bool{}
	for i := 1; i < 7; i++ {
		seen[m.PosAddSpirally(center, i)] = true
	}
	for d := DirRight; d <= DirUp; d++ {
		assert.True(t, seen[m.Move(center, d)], "missing neighbour %v", d)
	}
}

func TestDist(t *testing.T) {
	m := New(3)
	p := m.MakePos(10, 10)
	assert.Equal(t, 0, m.Dist(p, p))
	for d := DirRight; d <= DirUp; d++ {
		assert.Equal(t, 1, m.Dist(p, m.Move(p, d)), "dir %v", d)
	}
	assert.Equal(t, 3, m.Dist(p, m.MakePos(13, 10)))
	// wrap-around is shorter than the long way
	assert.Equal(t, 2, m.Dist(m.MakePos(1, 5), m.MakePos(m.Cols-1, 5)))
}

func TestRandomDeterministic(t *testing.T) {
	a := NewRandom(8667715887436237)
	b := NewRandom(8667715887436237)
	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Uint16(), b.Uint16())
	}
	c, err := RandomFromString("8667715887436237")
	require.NoError(t, err)
	d := NewRandom(8667715887436237)
	assert.Equal(t, d.Uint16(), c.Uint16())

	_, err = RandomFromString("not-a-number")
	assert.Error(t, err)
}

func TestRandomStateRoundTrip(t *testing.T) {
	a := NewRandom(42)
	a.Uint16()
	st := a.State()
	b := &Random{}
	b.SetState(st)
	for i := 0; i < 16; i++ {
		assert.Equal(t, a.Uint16(), b.Uint16())
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	m1 := New(3)
	m1.Generate(NewRandom(8667715887436237), DefaultGeneratorParams())
	m2 := New(3)
	m2.Generate(NewRandom(8667715887436237), DefaultGeneratorParams())
	assert.True(t, m1.Equal(m2))

	m3 := New(3)
	m3.Generate(NewRandom(1), DefaultGeneratorParams())
	assert.False(t, m1.Equal(m3))
}

func TestGoldDepositAccounting(t *testing.T) {
	m := New(3)
	p := m.MakePos(3, 3)
	m.SetMineral(p, MineralGold, 5)
	assert.Equal(t, 5, m.GoldDeposit())
	m.RemoveMineral(p)
	assert.Equal(t, 4, m.GoldDeposit())
	for i := 0; i < 10; i++ {
		m.RemoveMineral(p)
	}
	assert.Equal(t, 0, m.GoldDeposit())
	assert.Equal(t, MineralNone, m.Mineral(p))
}
