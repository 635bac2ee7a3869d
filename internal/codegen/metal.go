package codegen

import (
	"fmt"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// Metal prints Metal Shading Language compute kernels.
type Metal struct{}

// Name implements Dialect.
func (Metal) Name() string { return "metal" }

// Ext implements Dialect.
func (Metal) Ext() string { return "metal" }

// Preamble implements Dialect.
func (Metal) Preamble(*ir.Kernel, []*ir.Buffer) string {
	return "#include <metal_stdlib>\nusing namespace metal;\n\n"
}

// Signature implements Dialect.
func (m Metal) Signature(k *ir.Kernel, bufs []*ir.Buffer) (string, error) {
	params := make([]string, 0, len(bufs)+1)
	for i, b := range bufs {
		params = append(params, fmt.Sprintf("device %s* %s [[buffer(%d)]]",
			metalType(b.DType), ir.BufferName(b.ID), k.Params[i].Slot))
	}
	params = append(params, "uint3 gid [[thread_position_in_grid]]")
	return fmt.Sprintf("kernel void %s(%s) {", k.Name, strings.Join(params, ",\n    ")), nil
}

// Prologue implements Dialect.
func (Metal) Prologue(k *ir.Kernel) []string {
	return cPrologue("uint", k.Shape[1])
}

// Declare implements Dialect.
func (Metal) Declare(reg string) string { return "float " + reg + " = 0.0f;" }

// Literal implements Dialect.
func (Metal) Literal(v float32) string { return cFloat(v) }

// Load implements Dialect.
func (Metal) Load(name, index string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		return "float(" + name + "[" + index + "])"
	}
	return name + "[" + index + "]"
}

// Store implements Dialect.
func (Metal) Store(name, index, value string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		value = "half(" + value + ")"
	}
	return name + "[" + index + "] = " + value + ";"
}

// Call implements Dialect.
func (Metal) Call(op tensor.Op, x string) string { return cCall(op, x, "") }

// LoopHeader implements Dialect.
func (Metal) LoopHeader(v string, count int) string {
	return fmt.Sprintf("for (uint %s = 0; %s < %d; %s++) {", v, v, count, v)
}

// Alias implements Dialect.
func (Metal) Alias(view, base string, dtype tensor.DataType) string {
	return fmt.Sprintf("device %s* %s = %s;", metalType(dtype), view, base)
}

func metalType(dt tensor.DataType) string {
	if dt == tensor.Float16 {
		return "half"
	}
	return "float"
}

// cPrologue derives the four coordinates from gid: id0 and id1 share gid.x.
func cPrologue(intType string, s1 int) []string {
	return []string{
		fmt.Sprintf("%s id0 = gid.x / %d;", intType, s1),
		fmt.Sprintf("%s id1 = gid.x %% %d;", intType, s1),
		fmt.Sprintf("%s id2 = gid.y;", intType),
		fmt.Sprintf("%s id3 = gid.z;", intType),
	}
}
