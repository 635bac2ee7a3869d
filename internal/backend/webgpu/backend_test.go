//go:build windows

package webgpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/tensor"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(nil)
	if err != nil {
		t.Skipf("webgpu unavailable: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func TestBroadcastAdd(t *testing.T) {
	b := newBackend(t)

	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	defer func() { _ = a.Release() }()
	ctx := tensor.NewContext(a)

	x, err := ctx.Full(tensor.Float32, tensor.MustShape(2, 1), 3)
	require.NoError(t, err)
	y, err := ctx.Full(tensor.Float32, tensor.MustShape(2, 3), 1)
	require.NoError(t, err)
	sum, err := ctx.Add(x, y)
	require.NoError(t, err)

	r, err := compiler.Compile(ctx, sum, compiler.Options{})
	require.NoError(t, err)
	res, err := compiler.Execute(context.Background(), b, r, nil)
	require.NoError(t, err)
	got, err := r.Read(res, sum)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4, 4, 4, 4, 4}, got)
}

func TestHalfUnsupported(t *testing.T) {
	b := newBackend(t)

	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	defer func() { _ = a.Release() }()
	ctx := tensor.NewContext(a)

	x, err := ctx.New1D(tensor.Float16, 4, false)
	require.NoError(t, err)
	y, err := ctx.Exp(x)
	require.NoError(t, err)
	r, err := compiler.Compile(ctx, y, compiler.Options{})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), r.Program, nil)
	require.ErrorIs(t, err, backend.ErrUnsupportedDType)
}

func TestPadded(t *testing.T) {
	assert.Equal(t, uint64(4), padded(0))
	assert.Equal(t, uint64(4), padded(2))
	assert.Equal(t, uint64(12), padded(12))
	assert.Equal(t, uint64(8), padded(6))
}

var _ backend.Backend = (*Backend)(nil)
