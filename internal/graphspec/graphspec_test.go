package graphspec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/backend/cpu"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/tensor"
)

const matmulYAML = `
dtype: float32
root: out
tensors:
  - name: a
    shape: [2, 3]
    fill: 2
  - name: b
    shape: [3, 4]
    fill: 3
ops:
  - {name: out, op: matmul, args: [a, b]}
`

const lossJSON = `{
  "root": "loss",
  "tensors": [
    {"name": "x", "shape": [3], "grad": true},
    {"name": "c", "shape": [3], "data": [1, 2, 3]}
  ],
  "ops": [
    {"name": "p", "op": "mul", "args": ["x", "c"]},
    {"name": "loss", "op": "sum", "args": ["p"], "axes": [0]}
  ]
}`

func newContext(t *testing.T) *tensor.Context {
	t.Helper()
	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	return tensor.NewContext(a)
}

func TestYAMLMatMul(t *testing.T) {
	s, err := Parse([]byte(matmulYAML))
	require.NoError(t, err)
	ctx := newContext(t)
	b, err := s.Build(ctx)
	require.NoError(t, err)
	assert.Empty(t, b.Placeholders)
	assert.Equal(t, tensor.MustShape(2, 4), ctx.Node(b.Root).Shape)

	r, err := compiler.Compile(ctx, b.Root, compiler.Options{})
	require.NoError(t, err)
	res, err := compiler.Execute(context.Background(), cpu.New(), r, nil)
	require.NoError(t, err)
	got, err := r.Read(res, r.Root)
	require.NoError(t, err)
	assert.Equal(t, []float32{18, 18, 18, 18, 18, 18, 18, 18}, got)
}

func TestJSONWithPlaceholder(t *testing.T) {
	s, err := Parse([]byte(lossJSON))
	require.NoError(t, err)
	ctx := newContext(t)
	b, err := s.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, b.Placeholders)
	assert.Equal(t, tensor.OpConst, ctx.Node(b.Nodes["c"]).Op)

	inputs, err := b.Inputs(map[string][]float32{"x": {1, 1, 1}})
	require.NoError(t, err)
	r, err := compiler.Compile(ctx, b.Root, compiler.Options{})
	require.NoError(t, err)
	res, err := compiler.Execute(context.Background(), cpu.New(), r, inputs)
	require.NoError(t, err)

	loss, err := r.Read(res, b.Root)
	require.NoError(t, err)
	assert.Equal(t, []float32{6}, loss)
	grad, err := r.Gradient(res, b.Nodes["x"])
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, grad)

	_, err = b.Inputs(map[string][]float32{"y": {1}})
	require.ErrorIs(t, err, ErrUnknownName)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no root", "tensors: []", ErrNoRoot},
		{"unknown arg", "root: y\nops: [{name: y, op: exp, args: [x]}]", ErrUnknownName},
		{"unknown root", "root: z\ntensors: [{name: x, shape: [1]}]", ErrUnknownName},
		{"duplicate", "root: x\ntensors: [{name: x, shape: [1]}, {name: x, shape: [2]}]", ErrDuplicateName},
		{"unknown op", "root: y\ntensors: [{name: x, shape: [1]}]\nops: [{name: y, op: relu, args: [x]}]", ErrUnknownOp},
		{"arity", "root: y\ntensors: [{name: x, shape: [1]}]\nops: [{name: y, op: add, args: [x]}]", ErrArity},
		{"shape", "root: x\ntensors: [{name: x, shape: [1, 2, 3, 4, 5]}]", tensor.ErrInvalidShape},
		{"broadcast", "root: y\ntensors: [{name: a, shape: [2]}, {name: b, shape: [3]}]\nops: [{name: y, op: add, args: [a, b]}]", tensor.ErrBroadcast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.doc))
			if err == nil {
				_, err = s.Build(newContext(t))
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}
