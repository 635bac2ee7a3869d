package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// Dialect abstracts the syntax of one kernel language. The Emitter walks
// the IR and asks the Dialect for every target-specific fragment.
type Dialect interface {
	// Name returns the dialect identifier, e.g. "metal".
	Name() string

	// Ext returns the conventional source file extension.
	Ext() string

	// Preamble returns the text placed before the kernel.
	Preamble(k *ir.Kernel, bufs []*ir.Buffer) string

	// Signature returns the kernel header up to and including the opening brace.
	Signature(k *ir.Kernel, bufs []*ir.Buffer) (string, error)

	// Prologue returns the statements deriving id0..id3 from the thread position.
	Prologue(k *ir.Kernel) []string

	// Declare returns a zero-initialized float register declaration.
	Declare(reg string) string

	// Literal formats a float constant.
	Literal(v float32) string

	// Load reads element index of buffer name as float.
	Load(name, index string, dtype tensor.DataType) string

	// Store writes value to element index of buffer name.
	Store(name, index, value string, dtype tensor.DataType) string

	// Call applies a unary function.
	Call(op tensor.Op, x string) string

	// LoopHeader opens a counted loop.
	LoopHeader(v string, count int) string

	// Alias declares a view name over a bound buffer, or returns "".
	Alias(view, base string, dtype tensor.DataType) string
}

// Dialects lists every supported dialect.
func Dialects() []Dialect {
	return []Dialect{Metal{}, OpenCL{}, CUDA{}, WGSL{}}
}

// DialectByName returns the dialect with the given name.
func DialectByName(name string) (Dialect, error) {
	for _, d := range Dialects() {
		if d.Name() == strings.ToLower(name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
}

// formatFloat prints v so that it always parses as a floating literal.
func formatFloat(v float32) string {
	switch {
	case math.IsInf(float64(v), 1):
		return "INFINITY"
	case math.IsInf(float64(v), -1):
		return "-INFINITY"
	case math.IsNaN(float64(v)):
		return "NAN"
	}
	s := strconv.FormatFloat(float64(v), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// cFloat appends the single-precision suffix used by the C-like dialects.
func cFloat(v float32) string {
	s := formatFloat(v)
	if strings.Contains(s, "INFINITY") || s == "NAN" {
		return s
	}
	return s + "f"
}

// cCall maps unary ops to C math functions. suffix selects logf-style names.
func cCall(op tensor.Op, x, suffix string) string {
	switch op {
	case tensor.OpLog:
		return "log" + suffix + "(" + x + ")"
	case tensor.OpExp:
		return "exp" + suffix + "(" + x + ")"
	case tensor.OpSin:
		return "sin" + suffix + "(" + x + ")"
	case tensor.OpSqrt:
		return "sqrt" + suffix + "(" + x + ")"
	case tensor.OpRecip:
		return "(1.0f / " + x + ")"
	default:
		return x
	}
}
