package codegen

import (
	"fmt"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// CUDA prints CUDA C kernels. The launch may round the grid up to whole
// blocks, so the prologue returns early for threads outside it.
type CUDA struct{}

// Name implements Dialect.
func (CUDA) Name() string { return "cuda" }

// Ext implements Dialect.
func (CUDA) Ext() string { return "cu" }

// Preamble implements Dialect.
func (CUDA) Preamble(_ *ir.Kernel, bufs []*ir.Buffer) string {
	for _, b := range bufs {
		if b.DType == tensor.Float16 {
			return "#include <cuda_fp16.h>\n\n"
		}
	}
	return ""
}

// Signature implements Dialect.
func (CUDA) Signature(k *ir.Kernel, bufs []*ir.Buffer) (string, error) {
	params := make([]string, 0, len(bufs))
	for _, b := range bufs {
		params = append(params, fmt.Sprintf("%s* %s", cudaType(b.DType), ir.BufferName(b.ID)))
	}
	return fmt.Sprintf("extern \"C\" __global__ void %s(%s) {", k.Name, strings.Join(params, ",\n    ")), nil
}

// Prologue implements Dialect.
func (CUDA) Prologue(k *ir.Kernel) []string {
	return append([]string{
		"uint3 gid = make_uint3(blockIdx.x * blockDim.x + threadIdx.x,",
		"                       blockIdx.y * blockDim.y + threadIdx.y,",
		"                       blockIdx.z * blockDim.z + threadIdx.z);",
		fmt.Sprintf("if (gid.x >= %d || gid.y >= %d || gid.z >= %d) return;", k.Grid.X, k.Grid.Y, k.Grid.Z),
	}, cPrologue("unsigned int", k.Shape[1])...)
}

// Declare implements Dialect.
func (CUDA) Declare(reg string) string { return "float " + reg + " = 0.0f;" }

// Literal implements Dialect.
func (CUDA) Literal(v float32) string { return cFloat(v) }

// Load implements Dialect.
func (CUDA) Load(name, index string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		return "__half2float(" + name + "[" + index + "])"
	}
	return name + "[" + index + "]"
}

// Store implements Dialect.
func (CUDA) Store(name, index, value string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		value = "__float2half(" + value + ")"
	}
	return name + "[" + index + "] = " + value + ";"
}

// Call implements Dialect.
func (CUDA) Call(op tensor.Op, x string) string { return cCall(op, x, "f") }

// LoopHeader implements Dialect.
func (CUDA) LoopHeader(v string, count int) string {
	return fmt.Sprintf("for (unsigned int %s = 0; %s < %d; %s++) {", v, v, count, v)
}

// Alias implements Dialect.
func (CUDA) Alias(view, base string, dtype tensor.DataType) string {
	return fmt.Sprintf("%s* %s = %s;", cudaType(dtype), view, base)
}

func cudaType(dt tensor.DataType) string {
	if dt == tensor.Float16 {
		return "__half"
	}
	return "float"
}
