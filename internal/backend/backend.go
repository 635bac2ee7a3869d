// Package backend defines the contract between generated programs and the
// platforms that run them.
//
// Implementations:
//   - backend/cpu: reference interpreter of the kernel IR
//   - backend/webgpu: WGSL kernels dispatched through WebGPU (windows)
package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// Common errors.
var (
	ErrInputSize        = errors.New("input length does not match buffer size")
	ErrUnknownBuf       = errors.New("input names no buffer")
	ErrUnavailable      = errors.New("backend unavailable")
	ErrUnsupportedDType = errors.New("element type not supported by backend")
)

// Results holds the final contents of every buffer, keyed by buffer id.
type Results map[int][]float32

// Backend runs a program. Inputs fill placeholder buffers, keyed by buffer
// id; placeholders without input start zeroed.
type Backend interface {
	Name() string
	Run(ctx context.Context, p *ir.Program, inputs map[int][]float32) (Results, error)
}

// HostBuffers allocates host copies of every buffer in p: constants get
// their data, placeholders their input, the rest zeros. Values are
// rounded to each buffer's element type.
func HostBuffers(p *ir.Program, inputs map[int][]float32) (Results, error) {
	for id := range inputs {
		if p.Buffer(id) == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownBuf, id)
		}
	}
	out := make(Results, len(p.Buffers))
	for _, b := range p.Buffers {
		data := make([]float32, b.Elements)
		src := b.Init
		if in, ok := inputs[b.ID]; ok {
			if len(in) != b.Elements {
				return nil, fmt.Errorf("%w: %s has %d elements, got %d",
					ErrInputSize, ir.BufferName(b.ID), b.Elements, len(in))
			}
			src = in
		}
		for i, v := range src {
			data[i] = b.DType.Round(v)
		}
		out[b.ID] = data
	}
	return out, nil
}

// Encode serializes host values in the buffer's device layout, little endian.
func Encode(dtype tensor.DataType, data []float32) []byte {
	out := make([]byte, len(data)*dtype.Size())
	for i, v := range data {
		if dtype == tensor.Float16 {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
		} else {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(dtype tensor.DataType, raw []byte) []float32 {
	n := len(raw) / dtype.Size()
	out := make([]float32, n)
	for i := range out {
		if dtype == tensor.Float16 {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		} else {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	}
	return out
}
