package codegen

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

func newContext(t *testing.T) *tensor.Context {
	t.Helper()
	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	return tensor.NewContext(a)
}

func must(id tensor.NodeID, err error) tensor.NodeID {
	if err != nil {
		panic(err)
	}
	return id
}

func build(t *testing.T, ctx *tensor.Context, root tensor.NodeID) *graph.Graph {
	t.Helper()
	g, err := graph.New(ctx, 64)
	require.NoError(t, err)
	require.NoError(t, g.Forward(root))
	require.NoError(t, g.SetRoot(root))
	return g
}

func lower(t *testing.T, g *graph.Graph, policy Policy) *ir.Program {
	t.Helper()
	plan := Plan(g, policy)
	require.NoError(t, Classify(g, plan))
	p, err := Lower(g, plan, "")
	require.NoError(t, err)
	return p
}

// broadcastAdd builds [2,1] + [2,3].
func broadcastAdd(t *testing.T, ctx *tensor.Context) *graph.Graph {
	a := must(ctx.Full(tensor.Float32, tensor.MustShape(2, 1), 3))
	b := must(ctx.Full(tensor.Float32, tensor.MustShape(2, 3), 1))
	return build(t, ctx, must(ctx.Add(a, b)))
}

// matmul builds save([2,3] x [3,4]).
func matmul(t *testing.T, ctx *tensor.Context) *graph.Graph {
	a := must(ctx.Full(tensor.Float32, tensor.MustShape(2, 3), 2))
	b := must(ctx.Full(tensor.Float32, tensor.MustShape(3, 4), 3))
	return build(t, ctx, must(ctx.Save(must(ctx.MatMul(a, b)))))
}

func TestMetalBroadcastAdd(t *testing.T) {
	ctx := newContext(t)
	p := lower(t, broadcastAdd(t, ctx), FuseAll)

	srcs, err := Emit(Metal{}, p)
	require.NoError(t, err)
	require.Len(t, srcs, 1)

	want := `#include <metal_stdlib>
using namespace metal;

kernel void ccml_kernel(device float* data_0 [[buffer(0)]],
    device float* data_1 [[buffer(1)]],
    device float* data_2 [[buffer(2)]],
    uint3 gid [[thread_position_in_grid]]) {
    uint id0 = gid.x / 3;
    uint id1 = gid.x % 3;
    uint id2 = gid.y;
    uint id3 = gid.z;
    float t_2 = 0.0f;
    t_2 = (data_0[id0*1*1] + data_1[id0*3*1+id1*1*1]);
    data_2[id0*3*1+id1*1*1] = t_2;
}
`
	if diff := cmp.Diff(want, srcs[0].Code); diff != "" {
		t.Errorf("metal source mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ir.Grid{X: 6, Y: 1, Z: 1}, p.Kernels[0].Grid)
}

func TestDialectFragments(t *testing.T) {
	ctx := newContext(t)
	x := must(ctx.New2D(tensor.Float32, 2, 3, false))
	two := must(ctx.Scalar(tensor.Float32, 2))
	y := must(ctx.Log(must(ctx.Mul(x, two))))
	p := lower(t, build(t, ctx, y), FuseAll)

	// The singleton constant is inlined and never bound.
	for _, prm := range p.Kernels[0].Params {
		assert.NotEqual(t, 1, prm.Buf)
	}

	tests := []struct {
		dialect Dialect
		want    []string
	}{
		{Metal{}, []string{"kernel void ccml_kernel(", "t_2 = (data_0[id0*3*1+id1*1*1] * 2.0f);", "t_3 = log(t_2);"}},
		{OpenCL{}, []string{"__kernel void ccml_kernel(__global float* data_0", "get_global_id(0)", "uint id0 = gid.x / 3;"}},
		{CUDA{}, []string{`extern "C" __global__ void ccml_kernel(`, "if (gid.x >= 6 || gid.y >= 1 || gid.z >= 1) return;", "t_3 = logf(t_2);"}},
		{WGSL{}, []string{
			"@group(0) @binding(0) var<storage, read_write> data_0: array<f32>;",
			"fn ccml_kernel(@builtin(global_invocation_id) gid: vec3<u32>) {",
			"let id0 = i32(gid.x) / 3;",
			"var t_3: f32 = 0.0;",
			"* 2.0)",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			srcs, err := Emit(tt.dialect, p)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, srcs[0].Code, w)
			}
			assert.Contains(t, srcs[0].Code, "% 3;")
			assert.NotContains(t, srcs[0].Code, "%!")
		})
	}
}

func TestHalfBuffers(t *testing.T) {
	ctx := newContext(t)
	x := must(ctx.New1D(tensor.Float16, 4, false))
	p := lower(t, build(t, ctx, must(ctx.Exp(x))), FuseAll)
	assert.Equal(t, tensor.Float16, p.DType)

	cases := map[Dialect][]string{
		Metal{}:  {"device half* data_0", "float(data_0[id0*1*1])", "= half(t_1);"},
		OpenCL{}: {"__global half* data_0", "vload_half(id0*1*1, data_0)", "vstore_half(t_1, id0*1*1, data_1);"},
		CUDA{}:   {"#include <cuda_fp16.h>", "__half2float(data_0[id0*1*1])", "__float2half(t_1)"},
		WGSL{}:   {"enable f16;", "array<f16>", "f16(t_1)"},
	}
	for d, want := range cases {
		srcs, err := Emit(d, p)
		require.NoError(t, err)
		for _, w := range want {
			assert.Contains(t, srcs[0].Code, w, d.Name())
		}
	}
}

func TestSplitAtReduce(t *testing.T) {
	ctx := newContext(t)
	g := matmul(t, ctx)

	plan := Plan(g, SplitAtReduce)
	require.Equal(t, []Slice{{0, 5}, {5, 7}}, plan)
	require.NoError(t, Classify(g, plan))
	assert.Equal(t, tensor.BufferScratch, g.At(4).Buffer, "sum")
	assert.Equal(t, tensor.BufferNone, g.At(2).Buffer, "reshape view")
	assert.Equal(t, tensor.BufferNone, g.At(3).Buffer, "fused product")

	p, err := Lower(g, plan, "mm")
	require.NoError(t, err)
	require.Len(t, p.Kernels, 2)
	assert.Equal(t, "mm_0", p.Kernels[0].Name)
	assert.Equal(t, "mm_1", p.Kernels[1].Name)
	assert.Equal(t, ir.Grid{X: 6, Y: 4, Z: 1}, p.Kernels[0].Grid)

	srcs, err := Emit(Metal{}, p)
	require.NoError(t, err)
	assert.Contains(t, srcs[0].Code, "for (uint k0 = 0; k0 < 3; k0++) {")
	assert.Contains(t, srcs[0].Code, "if (id1 == 0) {")
	assert.Contains(t, srcs[1].Code, "device float* data_5 = data_4;")
	assert.NotContains(t, srcs[1].Code, "for (", "second kernel reads the materialized sum")
}

func TestFuseAllRecomputesAcrossViews(t *testing.T) {
	ctx := newContext(t)
	p := lower(t, matmul(t, ctx), FuseAll)
	require.Len(t, p.Kernels, 1)

	srcs, err := Emit(Metal{}, p)
	require.NoError(t, err)
	// The save reads the sum at foreign coordinates, so the loop appears twice.
	assert.Equal(t, 2, strings.Count(srcs[0].Code, "for (uint"))
}

func TestMalformedSlices(t *testing.T) {
	ctx := newContext(t)
	g := broadcastAdd(t, ctx)
	require.Equal(t, 3, g.Len())

	tests := []struct {
		name string
		plan []Slice
	}{
		{"empty slice", []Slice{{0, 3}, {3, 3}}},
		{"past end", []Slice{{0, 5}}},
		{"gap", []Slice{{0, 1}, {2, 3}}},
		{"short", []Slice{{0, 2}}},
		{"overlap", []Slice{{0, 2}, {1, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower(g, tt.plan, "")
			require.ErrorIs(t, err, ErrMalformedSlice)
			require.ErrorIs(t, Classify(g, tt.plan), ErrMalformedSlice)
		})
	}
}

func TestUnmaterializedRead(t *testing.T) {
	ctx := newContext(t)
	g := matmul(t, ctx)
	_, err := Lower(g, Plan(g, SplitAtReduce), "")
	require.ErrorIs(t, err, ErrUnmaterialized)
}

func TestParseNames(t *testing.T) {
	for _, p := range []Policy{FuseAll, SplitAtReduce} {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("greedy")
	require.ErrorIs(t, err, ErrUnknownPolicy)

	for _, d := range Dialects() {
		got, err := DialectByName(strings.ToUpper(d.Name()))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err = DialectByName("glsl")
	require.ErrorIs(t, err, ErrUnknownDialect)
}

func TestLiterals(t *testing.T) {
	assert.Equal(t, "2.0f", Metal{}.Literal(2))
	assert.Equal(t, "0.5f", CUDA{}.Literal(0.5))
	assert.Equal(t, "1e+10f", OpenCL{}.Literal(1e10))
	assert.Equal(t, "2.0", WGSL{}.Literal(2))
	assert.Equal(t, "INFINITY", Metal{}.Literal(float32(math.Inf(1))))
	assert.Equal(t, "bitcast<f32>(0x7f800000u)", WGSL{}.Literal(float32(math.Inf(1))))
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := newContext(t)
	p := lower(t, broadcastAdd(t, ctx), FuseAll)

	m, err := NewManifest(OpenCL{}, p)
	require.NoError(t, err)
	data, err := m.Marshal()
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), `"data_0"`), strings.Index(string(data), `"data_2"`))

	back, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m.Dialect, back.Dialect)
	assert.Equal(t, m.DType, back.DType)
	if diff := cmp.Diff(m.Kernels, back.Kernels); diff != "" {
		t.Errorf("kernels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(bufferPairs(m), bufferPairs(back)); diff != "" {
		t.Errorf("buffers mismatch (-want +got):\n%s", diff)
	}

	b0, ok := back.Buffers.Get("data_0")
	require.True(t, ok)
	assert.Equal(t, "const", b0.Class)
	assert.Equal(t, []float32{3, 3}, b0.Init)
	assert.Equal(t, [3]int{6, 1, 1}, back.Kernels[0].Grid)
}

type bufferPair struct {
	Name string
	Buf  BufferManifest
}

func bufferPairs(m *Manifest) []bufferPair {
	var out []bufferPair
	for pair := m.Buffers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, bufferPair{Name: pair.Key, Buf: pair.Value})
	}
	return out
}
