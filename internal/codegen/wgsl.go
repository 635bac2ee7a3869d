package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// WGSL prints WebGPU compute shaders. Coordinates are i32 so index
// arithmetic shares the C text. Each shader is its own module with one
// binding per parameter in group 0.
type WGSL struct{}

// Name implements Dialect.
func (WGSL) Name() string { return "wgsl" }

// Ext implements Dialect.
func (WGSL) Ext() string { return "wgsl" }

// Preamble implements Dialect.
func (WGSL) Preamble(k *ir.Kernel, bufs []*ir.Buffer) string {
	var sb strings.Builder
	for _, b := range bufs {
		if b.DType == tensor.Float16 {
			sb.WriteString("enable f16;\n\n")
			break
		}
	}
	for i, b := range bufs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> %s: array<%s>;\n",
			k.Params[i].Slot, ir.BufferName(b.ID), wgslType(b.DType))
	}
	if len(bufs) > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Signature implements Dialect.
func (WGSL) Signature(k *ir.Kernel, _ []*ir.Buffer) (string, error) {
	return fmt.Sprintf("@compute @workgroup_size(1)\nfn %s(@builtin(global_invocation_id) gid: vec3<u32>) {", k.Name), nil
}

// Prologue implements Dialect.
func (WGSL) Prologue(k *ir.Kernel) []string {
	return []string{
		fmt.Sprintf("let id0 = i32(gid.x) / %d;", k.Shape[1]),
		fmt.Sprintf("let id1 = i32(gid.x) %% %d;", k.Shape[1]),
		"let id2 = i32(gid.y);",
		"let id3 = i32(gid.z);",
	}
}

// Declare implements Dialect.
func (WGSL) Declare(reg string) string { return "var " + reg + ": f32 = 0.0;" }

// Literal implements Dialect.
func (WGSL) Literal(v float32) string {
	s := formatFloat(v)
	if strings.Contains(s, "INFINITY") || s == "NAN" {
		// WGSL has no literal for these; bitcast the IEEE pattern instead.
		return "bitcast<f32>(0x" + fmt.Sprintf("%08x", math.Float32bits(v)) + "u)"
	}
	return s
}

// Load implements Dialect.
func (WGSL) Load(name, index string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		return "f32(" + name + "[" + index + "])"
	}
	return name + "[" + index + "]"
}

// Store implements Dialect.
func (WGSL) Store(name, index, value string, dtype tensor.DataType) string {
	if dtype == tensor.Float16 {
		value = "f16(" + value + ")"
	}
	return name + "[" + index + "] = " + value + ";"
}

// Call implements Dialect.
func (WGSL) Call(op tensor.Op, x string) string {
	if op == tensor.OpRecip {
		return "(1.0 / " + x + ")"
	}
	return cCall(op, x, "")
}

// LoopHeader implements Dialect.
func (WGSL) LoopHeader(v string, count int) string {
	return fmt.Sprintf("for (var %s: i32 = 0; %s < %d; %s++) {", v, v, count, v)
}

// Alias implements Dialect. WGSL cannot alias storage pointers, so the
// view is recorded as a comment.
func (WGSL) Alias(view, base string, _ tensor.DataType) string {
	return "// " + view + " views " + base
}

func wgslType(dt tensor.DataType) string {
	if dt == tensor.Float16 {
		return "f16"
	}
	return "f32"
}
