package autodiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/tensor"
)

func newGraph(t *testing.T) (*tensor.Context, *graph.Graph) {
	t.Helper()
	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	ctx := tensor.NewContext(a)
	g, err := graph.New(ctx, 256)
	require.NoError(t, err)
	return ctx, g
}

func TestBackwardUntrackedRoot(t *testing.T) {
	ctx, g := newGraph(t)
	x, err := ctx.New1D(tensor.Float32, 3, false)
	require.NoError(t, err)
	y, err := ctx.Exp(x)
	require.NoError(t, err)

	require.NoError(t, Backward(g, y))
	assert.Zero(t, g.Len())
	assert.Equal(t, tensor.NoNode, ctx.Node(y).Grad)
	assert.Empty(t, Gradients(g))
}

func TestBackwardSavesLeafGradients(t *testing.T) {
	ctx, g := newGraph(t)
	x, err := ctx.New1D(tensor.Float32, 3, true)
	require.NoError(t, err)
	c, err := ctx.New1D(tensor.Float32, 3, false)
	require.NoError(t, err)
	y, err := ctx.Mul(x, c)
	require.NoError(t, err)

	require.NoError(t, Backward(g, y))
	grads := Gradients(g)
	require.Len(t, grads, 1)

	saved := ctx.Node(grads[x])
	assert.Equal(t, tensor.OpSave, saved.Op)
	assert.Equal(t, tensor.BufferPerm, saved.Buffer)
	assert.Equal(t, ctx.Node(x).Shape, saved.Shape)
	assert.True(t, g.Contains(grads[x]))
	assert.Equal(t, tensor.NoNode, ctx.Node(c).Grad)

	// Operands precede consumers after the gradient nodes were merged.
	for pos := range g.Len() {
		for _, src := range g.At(pos).Operands() {
			assert.Less(t, ctx.Node(src).Index, pos)
		}
	}
}

func TestBackwardAccumulatesAdditively(t *testing.T) {
	ctx, g := newGraph(t)
	x, err := ctx.New1D(tensor.Float32, 1, true)
	require.NoError(t, err)
	e, err := ctx.Exp(x)
	require.NoError(t, err)
	y, err := ctx.Add(e, x)
	require.NoError(t, err)

	require.NoError(t, Backward(g, y))
	saved := ctx.Node(Gradients(g)[x])
	acc := ctx.Node(saved.Src[0])
	assert.Equal(t, tensor.OpAdd, acc.Op)
}

func TestFit(t *testing.T) {
	ctx, _ := newGraph(t)

	wide, err := ctx.Full(tensor.Float32, tensor.MustShape(3, 4), 1)
	require.NoError(t, err)
	reduced, err := fit(ctx, wide, tensor.MustShape(3, 1))
	require.NoError(t, err)
	n := ctx.Node(reduced)
	assert.Equal(t, tensor.OpSum, n.Op)
	assert.Equal(t, tensor.MustShape(3, 1), n.Shape)

	expanded, err := fit(ctx, reduced, tensor.MustShape(3, 4))
	require.NoError(t, err)
	n = ctx.Node(expanded)
	assert.Equal(t, tensor.OpMul, n.Op)
	assert.Equal(t, tensor.MustShape(3, 4), n.Shape)

	same, err := fit(ctx, wide, tensor.MustShape(3, 4))
	require.NoError(t, err)
	assert.Equal(t, wide, same)
}

func TestNoDerivative(t *testing.T) {
	ctx, _ := newGraph(t)
	x, err := ctx.New1D(tensor.Float32, 2, true)
	require.NoError(t, err)
	_, err = localPartial(ctx, ctx.Node(x), 0)
	require.ErrorIs(t, err, ErrNoDerivative)
}
