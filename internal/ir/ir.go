// Package ir defines the structured kernel representation produced by the
// code generator. Dialect printers turn it into source text and the CPU
// backend interprets it directly.
package ir

import (
	"fmt"

	"github.com/born-ml/ccml/internal/tensor"
)

// Expr is a float-valued expression.
type Expr interface{ isExpr() }

// Lit is a literal constant.
type Lit float32

// Reg reads a register.
type Reg string

// Load reads one element of a buffer.
type Load struct {
	Buf   int
	Index Index
}

// Unary applies an elementwise function.
type Unary struct {
	Op tensor.Op
	X  Expr
}

// Binary combines two values.
type Binary struct {
	Op   tensor.Op
	X, Y Expr
}

func (Lit) isExpr()    {}
func (Reg) isExpr()    {}
func (Load) isExpr()   {}
func (Unary) isExpr()  {}
func (Binary) isExpr() {}

// Stmt is one kernel statement.
type Stmt interface{ isStmt() }

// Declare introduces a register initialized to zero.
type Declare struct{ Reg string }

// Assign overwrites a register.
type Assign struct {
	Reg   string
	Value Expr
}

// Accumulate adds to a register.
type Accumulate struct {
	Reg   string
	Value Expr
}

// Store writes one element of a buffer.
type Store struct {
	Buf   int
	Index Index
	Value Expr
}

// CondOp compares a coordinate with a bound.
type CondOp int

// Comparisons.
const (
	Less CondOp = iota
	Equal
)

// Cond is X < N or X == N.
type Cond struct {
	X  IntExpr
	Op CondOp
	N  int
}

// Guard runs Body when every condition holds.
type Guard struct {
	Conds []Cond
	Body  []Stmt
}

// Loop runs Body for Var in [0, Count).
type Loop struct {
	Var   string
	Count int
	Body  []Stmt
}

// Alias names a view over a bound buffer without moving data.
type Alias struct {
	View int
	Base int
}

func (Declare) isStmt()    {}
func (Assign) isStmt()     {}
func (Accumulate) isStmt() {}
func (Store) isStmt()      {}
func (Guard) isStmt()      {}
func (Loop) isStmt()       {}
func (Alias) isStmt()      {}

// Grid is the dispatch size: X = S0*S1, Y = S2, Z = S3.
type Grid struct{ X, Y, Z int }

// Size returns the number of work-items.
func (g Grid) Size() int { return g.X * g.Y * g.Z }

// GridFor derives the grid of a dominant shape.
func GridFor(s tensor.Shape) Grid {
	return Grid{X: s[0] * s[1], Y: s[2], Z: s[3]}
}

// Param binds a buffer to a kernel argument slot.
type Param struct {
	Slot int
	Buf  int
}

// Kernel is one fusion slice lowered to statements.
type Kernel struct {
	Name   string
	Shape  tensor.Shape // dominant shape; Shape[1] is the S1 of the prologue
	Grid   Grid
	Params []Param
	Body   []Stmt
	First  int // first graph position covered
	Last   int // last graph position covered
}

// Buffer describes device memory for one graph node.
type Buffer struct {
	ID       int // graph position of the node
	Node     tensor.NodeID
	DType    tensor.DataType
	Elements int
	Class    tensor.BufferClass
	Init     []float32 // host data of constants
}

// Bytes returns the device size of the buffer.
func (b *Buffer) Bytes() int { return b.Elements * b.DType.Size() }

// Program is the complete output of code generation.
type Program struct {
	Kernels []*Kernel
	Buffers []*Buffer // ordered by ID
	DType   tensor.DataType
}

// Buffer returns the buffer with the given id, or nil.
func (p *Program) Buffer(id int) *Buffer {
	for _, b := range p.Buffers {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BufferName is the identifier of a buffer in generated source.
func BufferName(id int) string { return fmt.Sprintf("data_%d", id) }

// RegName is the identifier of the register holding a node's value.
func RegName(id int) string { return fmt.Sprintf("t_%d", id) }
