package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/backend/cpu"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/parallel"
	"github.com/born-ml/ccml/internal/tensor"
)

func newContext(t *testing.T, capacity int) *tensor.Context {
	t.Helper()
	a, err := arena.New(capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	return tensor.NewContext(a)
}

func full(t *testing.T, ctx *tensor.Context, v float32, dims ...int) tensor.NodeID {
	t.Helper()
	id, err := ctx.Full(tensor.Float32, tensor.MustShape(dims...), v)
	require.NoError(t, err)
	return id
}

func run(t *testing.T, r *Result, data map[tensor.NodeID][]float32) map[int][]float32 {
	t.Helper()
	res, err := Execute(context.Background(), cpu.New(cpu.WithParallel(parallel.Sequential())), r, data)
	require.NoError(t, err)
	return res
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBroadcastAdd(t *testing.T) {
	ctx := newContext(t, 1<<20)
	a := full(t, ctx, 3, 2, 1)
	b := full(t, ctx, 1, 2, 3)
	sum, err := ctx.Add(a, b)
	require.NoError(t, err)

	r, err := Compile(ctx, sum, Options{})
	require.NoError(t, err)
	require.Len(t, r.Program.Kernels, 1)

	got, err := r.Read(run(t, r, nil), sum)
	require.NoError(t, err)
	assert.Equal(t, filled(6, 4), got)
}

func TestMatMul(t *testing.T) {
	for _, policy := range []codegen.Policy{codegen.FuseAll, codegen.SplitAtReduce} {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newContext(t, 1<<20)
			a := full(t, ctx, 2, 2, 3)
			b := full(t, ctx, 3, 3, 4)
			c, err := ctx.MatMul(a, b)
			require.NoError(t, err)

			r, err := Compile(ctx, c, Options{Policy: policy})
			require.NoError(t, err)
			assert.NotEqual(t, c, r.Root, "view root is saved")
			assert.Equal(t, tensor.MustShape(2, 4), r.Graph.Node(r.Root).Shape)
			if policy == codegen.SplitAtReduce {
				assert.Len(t, r.Program.Kernels, 2)
			}

			got, err := r.Read(run(t, r, nil), r.Root)
			require.NoError(t, err)
			assert.Equal(t, filled(8, 18), got)
		})
	}
}

func TestPlaceholderInputs(t *testing.T) {
	ctx := newContext(t, 1<<20)
	x, err := ctx.New2D(tensor.Float32, 2, 2, false)
	require.NoError(t, err)
	y, err := ctx.Mul(x, x)
	require.NoError(t, err)
	s, err := ctx.Sum(y, 0, 1)
	require.NoError(t, err)

	r, err := Compile(ctx, s, Options{})
	require.NoError(t, err)
	got, err := r.Read(run(t, r, map[tensor.NodeID][]float32{x: {1, 2, 3, 4}}), s)
	require.NoError(t, err)
	assert.Equal(t, []float32{30}, got)

	_, err = r.Inputs(map[tensor.NodeID][]float32{tensor.NodeID(999): {1}})
	require.ErrorIs(t, err, tensor.ErrUnknownNode)
}

func TestGradientsAreSaved(t *testing.T) {
	ctx := newContext(t, 1<<20)
	x, err := ctx.New1D(tensor.Float32, 3, true)
	require.NoError(t, err)
	sq, err := ctx.Mul(x, x)
	require.NoError(t, err)
	loss, err := ctx.Sum(sq, 0)
	require.NoError(t, err)

	r, err := Compile(ctx, loss, Options{})
	require.NoError(t, err)
	require.Contains(t, r.Gradients, x)
	assert.Positive(t, r.Rewritten, "x*grad is built once per operand slot")

	res := run(t, r, map[tensor.NodeID][]float32{x: {1, -2, 0.5}})
	grad, err := r.Gradient(res, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, -4, 1}, grad, 1e-6)

	_, err = r.Gradient(res, loss)
	require.ErrorIs(t, err, ErrNoBuffer)
}

func TestNodeBound(t *testing.T) {
	ctx := newContext(t, 1<<20)
	x := full(t, ctx, 1, 4)
	y, err := ctx.Exp(x)
	require.NoError(t, err)
	y, err = ctx.Log(y)
	require.NoError(t, err)
	y, err = ctx.Sqrt(y)
	require.NoError(t, err)

	_, err = Compile(ctx, y, Options{MaxNodes: 3})
	require.ErrorIs(t, err, graph.ErrTooManyNodes)
}

func TestArenaBound(t *testing.T) {
	ctx := newContext(t, 1<<12)
	x := full(t, ctx, 1, 4)
	y, err := ctx.Exp(x)
	require.NoError(t, err)

	_, err = Compile(ctx, y, Options{MaxNodes: 1 << 16})
	require.ErrorIs(t, err, arena.ErrExhausted)
}

func TestEmitAndManifest(t *testing.T) {
	ctx := newContext(t, 1<<20)
	a := full(t, ctx, 3, 2, 1)
	b := full(t, ctx, 1, 2, 3)
	sum, err := ctx.Add(a, b)
	require.NoError(t, err)
	r, err := Compile(ctx, sum, Options{KernelName: "add"})
	require.NoError(t, err)

	srcs, err := r.Emit(codegen.Metal{})
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, "add", srcs[0].Kernel)
	assert.Contains(t, srcs[0].Code, "kernel void add(")

	m, err := r.Manifest(codegen.OpenCL{})
	require.NoError(t, err)
	assert.Equal(t, "opencl", m.Dialect)
	assert.Equal(t, 3, m.Buffers.Len())
}

func TestExecuteParallel(t *testing.T) {
	cfg := parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 64}
	for _, policy := range []codegen.Policy{codegen.FuseAll, codegen.SplitAtReduce} {
		t.Run(policy.String(), func(t *testing.T) {
			ctx := newContext(t, 1<<22)
			a := full(t, ctx, 1, 16, 16)
			b := full(t, ctx, 2, 16, 16)
			c, err := ctx.MatMul(a, b)
			require.NoError(t, err)

			r, err := Compile(ctx, c, Options{Policy: policy})
			require.NoError(t, err)
			res, err := Execute(context.Background(), cpu.New(cpu.WithParallel(cfg)), r, nil)
			require.NoError(t, err)
			got, err := r.Read(res, r.Root)
			require.NoError(t, err)
			assert.Equal(t, filled(256, 32), got)
		})
	}
}
