package codegen

import (
	"fmt"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// OpenCL prints OpenCL C kernels. Half buffers go through vload_half and
// vstore_half, which need no extension.
type OpenCL struct{}

// Name implements Dialect.
func (OpenCL) Name() string { return "opencl" }

// Ext implements Dialect.
func (OpenCL) Ext() string { return "cl" }

// Preamble implements Dialect.
func (OpenCL) Preamble(*ir.Kernel, []*ir.Buffer) string { return "" }

// Signature implements Dialect.
func (OpenCL) Signature(k *ir.Kernel, bufs []*ir.Buffer) (string, error) {
	params := make([]string, 0, len(bufs))
	for _, b := range bufs {
		params = append(params, fmt.Sprintf("__global %s* %s", openCLType(b.DType), ir.BufferName(b.ID)))
	}
	return fmt.Sprintf("__kernel void %s(%s) {", k.Name, strings.Join(params, ",\n    ")), nil
}

// Prologue implements Dialect.
func (OpenCL) Prologue(k *ir.Kernel) []string {
	return append([]string{
		"uint3 gid = (uint3)(get_global_id(0), get_global_id(1), get_global_id(2));",
	}, cPrologue("uint", k.Shape[1])...)
}

// Declare implements Dialect.
func (OpenCL) Declare(reg string) string { return "float " + reg + " = 0.0f;" }

// Literal implements Dialect.
func (OpenCL) Literal(v float32) string { return cFloat(v) }

// Load implements Dialect.
func (OpenCL) Load(name, index string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		return "vload_half(" + index + ", " + name + ")"
	}
	return name + "[" + index + "]"
}

// Store implements Dialect.
func (OpenCL) Store(name, index, value string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		return "vstore_half(" + value + ", " + index + ", " + name + ");"
	}
	return name + "[" + index + "] = " + value + ";"
}

// Call implements Dialect.
func (OpenCL) Call(op tensor.Op, x string) string { return cCall(op, x, "") }

// LoopHeader implements Dialect.
func (OpenCL) LoopHeader(v string, count int) string {
	return fmt.Sprintf("for (uint %s = 0; %s < %d; %s++) {", v, v, count, v)
}

// Alias implements Dialect.
func (OpenCL) Alias(view, base string, dtype tensor.DataType) string {
	return fmt.Sprintf("__global %s* %s = %s;", openCLType(dtype), view, base)
}

func openCLType(dt tensor.DataType) string {
	if dt == tensor.Float16 {
		return "half"
	}
	return "float"
}
