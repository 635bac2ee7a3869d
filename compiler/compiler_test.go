package compiler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/backend/cpu"
	"github.com/born-ml/ccml/compiler"
	"github.com/born-ml/ccml/tensor"
)

func TestPublicPipeline(t *testing.T) {
	ctx, err := tensor.New(1 << 20)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Arena().Release()) }()

	x, err := ctx.New1D(tensor.Float32, 3, true)
	require.NoError(t, err)
	sq, err := ctx.Square(x)
	require.NoError(t, err)
	loss, err := ctx.Sum(sq, 0)
	require.NoError(t, err)

	r, err := compiler.Compile(ctx, loss, compiler.Options{Policy: compiler.SplitAtReduce})
	require.NoError(t, err)

	srcs, err := r.Emit(compiler.CUDA)
	require.NoError(t, err)
	require.NotEmpty(t, srcs)
	assert.Contains(t, srcs[0].Code, "__global__")

	res, err := compiler.Execute(context.Background(), cpu.New(cpu.WithWorkers(2)), r,
		map[tensor.NodeID][]float32{x: {1, 2, 3}})
	require.NoError(t, err)
	got, err := r.Read(res, r.Root)
	require.NoError(t, err)
	assert.Equal(t, []float32{14}, got)

	grad, err := r.Gradient(res, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 4, 6}, grad, 1e-6)
}

func TestDialectByName(t *testing.T) {
	d, err := compiler.DialectByName("wgsl")
	require.NoError(t, err)
	assert.Equal(t, compiler.WGSL, d)

	_, err = compiler.DialectByName("hlsl")
	assert.Error(t, err)
}
