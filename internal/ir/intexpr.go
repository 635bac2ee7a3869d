package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// IntExpr is an integer coordinate expression.
type IntExpr interface{ isInt() }

// Var is a named coordinate: id0..id3 or a loop counter.
type Var string

// Int is an integer literal.
type Int int

// IntOp is an integer operator.
type IntOp int

// Integer operators.
const (
	IAdd IntOp = iota
	IMul
	IDiv
	IMod
)

var intOpSymbols = [...]string{IAdd: "+", IMul: "*", IDiv: "/", IMod: "%"}

// IntBin applies an integer operator.
type IntBin struct {
	Op   IntOp
	X, Y IntExpr
}

func (Var) isInt()    {}
func (Int) isInt()    {}
func (IntBin) isInt() {}

// Add builds x+y, folding zeros.
func Add(x, y IntExpr) IntExpr {
	if isInt(x, 0) {
		return y
	}
	if isInt(y, 0) {
		return x
	}
	if a, ok := x.(Int); ok {
		if b, ok := y.(Int); ok {
			return a + b
		}
	}
	return IntBin{Op: IAdd, X: x, Y: y}
}

// Mul builds x*y, folding zeros and ones.
func Mul(x, y IntExpr) IntExpr {
	if isInt(x, 0) || isInt(y, 0) {
		return Int(0)
	}
	if isInt(x, 1) {
		return y
	}
	if isInt(y, 1) {
		return x
	}
	return IntBin{Op: IMul, X: x, Y: y}
}

// Div builds x/y, folding division by one.
func Div(x, y IntExpr) IntExpr {
	if isInt(y, 1) || isInt(x, 0) {
		return x
	}
	return IntBin{Op: IDiv, X: x, Y: y}
}

// Mod builds x%y, folding modulo by one.
func Mod(x, y IntExpr) IntExpr {
	if isInt(y, 1) || isInt(x, 0) {
		return Int(0)
	}
	return IntBin{Op: IMod, X: x, Y: y}
}

func isInt(e IntExpr, v int) bool {
	i, ok := e.(Int)
	return ok && int(i) == v
}

// FormatInt renders an integer expression in C syntax, which WGSL shares.
func FormatInt(e IntExpr) string {
	switch e := e.(type) {
	case Var:
		return string(e)
	case Int:
		return strconv.Itoa(int(e))
	case IntBin:
		return "(" + FormatInt(e.X) + intOpSymbols[e.Op] + FormatInt(e.Y) + ")"
	default:
		panic(fmt.Sprintf("ir: unknown int expression %T", e))
	}
}

// EvalInt evaluates e with vars bound by lookup.
func EvalInt(e IntExpr, lookup func(Var) int) int {
	switch e := e.(type) {
	case Var:
		return lookup(e)
	case Int:
		return int(e)
	case IntBin:
		x, y := EvalInt(e.X, lookup), EvalInt(e.Y, lookup)
		switch e.Op {
		case IAdd:
			return x + y
		case IMul:
			return x * y
		case IDiv:
			return x / y
		case IMod:
			return x % y
		}
	}
	panic(fmt.Sprintf("ir: unknown int expression %T", e))
}

// Term is one axis of a buffer index: Coord*Stride*Mask.
type Term struct {
	Coord  IntExpr
	Stride int
	Mask   int // 0 on broadcast axes, 1 otherwise
}

// Index addresses a buffer element as a sum of terms.
type Index struct {
	Terms []Term
}

// String renders the index as id0*s0*f0+id1*s1*f1+...
func (x Index) String() string {
	parts := make([]string, 0, len(x.Terms))
	for _, t := range x.Terms {
		parts = append(parts, fmt.Sprintf("%s*%d*%d", FormatInt(t.Coord), t.Stride, t.Mask))
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "+")
}

// Eval computes the element offset.
func (x Index) Eval(lookup func(Var) int) int {
	off := 0
	for _, t := range x.Terms {
		if t.Mask == 0 {
			continue
		}
		off += EvalInt(t.Coord, lookup) * t.Stride * t.Mask
	}
	return off
}
