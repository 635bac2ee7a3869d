package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/tensor"
)

func newContext(t *testing.T, capacity int) *tensor.Context {
	t.Helper()
	a, err := arena.New(capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	return tensor.NewContext(a)
}

func mustID(t *testing.T) func(tensor.NodeID, error) tensor.NodeID {
	return func(id tensor.NodeID, err error) tensor.NodeID {
		t.Helper()
		require.NoError(t, err)
		return id
	}
}

func assertTopological(t *testing.T, g *Graph) {
	t.Helper()
	for i, id := range g.IDs() {
		n := g.Node(id)
		assert.Equal(t, i, n.Index)
		for _, src := range n.Operands() {
			assert.Less(t, g.Node(src).Index, n.Index, "operand %d of node %d", src, id)
		}
	}
}

func TestForwardOrder(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	y := must(ctx.New1D(tensor.Float32, 4, false))
	ex := must(ctx.Exp(x))
	ly := must(ctx.Log(y))
	root := must(ctx.Add(ex, ly))

	g, err := New(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, g.Forward(root))

	assert.Equal(t, []tensor.NodeID{x, ex, y, ly, root}, g.IDs())
	assertTopological(t, g)

	// A second call is a no-op.
	require.NoError(t, g.Forward(root))
	assert.Equal(t, 5, g.Len())
}

func TestForwardDiamond(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	a := must(ctx.Exp(x))
	b := must(ctx.Sin(x))
	sq := must(ctx.Mul(a, a))
	root := must(ctx.Add(sq, b))

	g, err := New(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, g.Forward(root))

	assert.Equal(t, 5, g.Len(), "shared operands are placed once")
	assertTopological(t, g)
}

func TestForwardNodeLimit(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	for range 10 {
		x = must(ctx.Exp(x))
	}

	g, err := New(ctx, 5)
	require.NoError(t, err)
	for range 2 {
		err = g.Forward(x)
		require.ErrorIs(t, err, ErrTooManyNodes)
		assert.Equal(t, 5, g.Len())
	}
}

func TestForwardCycle(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	a := must(ctx.Exp(x))
	b := must(ctx.Log(a))
	ctx.Node(a).Src[0] = b

	g, err := New(ctx, 16)
	require.NoError(t, err)
	require.ErrorIs(t, g.Forward(b), ErrCycle)
}

func TestForwardSkipsSelfReference(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	a := must(ctx.Exp(x))
	ctx.Node(a).Src[1] = a

	g, err := New(ctx, 16)
	require.NoError(t, err)
	require.NoError(t, g.Forward(a))
	assert.Equal(t, 2, g.Len())
}

func TestNewGraphBounds(t *testing.T) {
	ctx := newContext(t, 1<<20)
	_, err := New(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidMaxNodes)
	_, err = New(ctx, MaxNodesLimit+1)
	require.ErrorIs(t, err, ErrInvalidMaxNodes)

	small := newContext(t, 256)
	_, err = New(small, 1<<12)
	require.ErrorIs(t, err, arena.ErrExhausted)
}

func TestSetRoot(t *testing.T) {
	ctx := newContext(t, 1<<20)
	must := mustID(t)

	x := must(ctx.New1D(tensor.Float32, 4, false))
	y := must(ctx.Exp(x))

	g, err := New(ctx, 8)
	require.NoError(t, err)
	require.NoError(t, g.SetRoot(y))
	assert.Equal(t, y, g.Root())
	assert.Equal(t, tensor.BufferPerm, g.Node(y).Buffer)
	require.ErrorIs(t, g.SetRoot(99), tensor.ErrUnknownNode)
}
