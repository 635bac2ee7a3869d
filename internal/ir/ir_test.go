package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/ccml/internal/tensor"
)

func TestIntFolding(t *testing.T) {
	x := Var("id0")
	assert.Equal(t, x, Add(Int(0), x))
	assert.Equal(t, x, Add(x, Int(0)))
	assert.Equal(t, Int(5), Add(Int(2), Int(3)))
	assert.Equal(t, Int(0), Mul(x, Int(0)))
	assert.Equal(t, x, Mul(Int(1), x))
	assert.Equal(t, x, Div(x, Int(1)))
	assert.Equal(t, Int(0), Mod(x, Int(1)))
	assert.Equal(t, IntBin{Op: IMod, X: x, Y: Int(4)}, Mod(x, Int(4)))
}

func TestFormatAndEvalInt(t *testing.T) {
	e := Mod(Div(Add(Mul(Var("id0"), Int(4)), Var("id1")), Int(2)), Int(3))
	assert.Equal(t, "((((id0*4)+id1)/2)%3)", FormatInt(e))

	vars := map[Var]int{"id0": 2, "id1": 3}
	assert.Equal(t, ((2*4+3)/2)%3, EvalInt(e, func(v Var) int { return vars[v] }))
}

func TestIndex(t *testing.T) {
	x := Index{Terms: []Term{
		{Coord: Var("id0"), Stride: 3, Mask: 1},
		{Coord: Var("id1"), Stride: 1, Mask: 0},
	}}
	assert.Equal(t, "id0*3*1+id1*1*0", x.String())
	assert.Equal(t, "0", Index{}.String())

	vars := map[Var]int{"id0": 2, "id1": 7}
	assert.Equal(t, 6, x.Eval(func(v Var) int { return vars[v] }))
}

func TestGridAndBuffers(t *testing.T) {
	g := GridFor(tensor.MustShape(2, 3, 4, 5))
	assert.Equal(t, Grid{X: 6, Y: 4, Z: 5}, g)
	assert.Equal(t, 120, g.Size())

	p := &Program{Buffers: []*Buffer{
		{ID: 0, DType: tensor.Float16, Elements: 6},
		{ID: 3, DType: tensor.Float32, Elements: 2},
	}}
	assert.Equal(t, 12, p.Buffer(0).Bytes())
	assert.Equal(t, 8, p.Buffer(3).Bytes())
	assert.Nil(t, p.Buffer(1))

	assert.Equal(t, "data_3", BufferName(3))
	assert.Equal(t, "t_3", RegName(3))
}
