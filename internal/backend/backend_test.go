package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

func TestHostBuffers(t *testing.T) {
	p := &ir.Program{Buffers: []*ir.Buffer{
		{ID: 0, DType: tensor.Float32, Elements: 2, Class: tensor.BufferConst, Init: []float32{1, 2}},
		{ID: 2, DType: tensor.Float16, Elements: 3, Class: tensor.BufferPerm},
		{ID: 5, DType: tensor.Float32, Elements: 1, Class: tensor.BufferScratch},
	}}

	bufs, err := HostBuffers(p, map[int][]float32{2: {0.1, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, bufs[0])
	assert.Equal(t, tensor.Float16.Round(0.1), bufs[2][0])
	assert.Equal(t, []float32{0}, bufs[5])

	_, err = HostBuffers(p, map[int][]float32{2: {1}})
	require.ErrorIs(t, err, ErrInputSize)
	_, err = HostBuffers(p, map[int][]float32{7: {1}})
	require.ErrorIs(t, err, ErrUnknownBuf)
}

func TestEncodeDecode(t *testing.T) {
	data := []float32{0, 1.5, -2.25, 1024}
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float16} {
		raw := Encode(dt, data)
		assert.Len(t, raw, len(data)*dt.Size())
		assert.Equal(t, data, Decode(dt, raw), dt.String())
	}
}
