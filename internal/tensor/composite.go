package tensor

import (
	"fmt"
	"math"
)

// Composite operations are built from the primitives above and add no op tags.

// Neg returns -x.
func (c *Context) Neg(x NodeID) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("neg: %w", err)
	}
	minusOne, err := c.Scalar(src.DType, -1)
	if err != nil {
		return NoNode, err
	}
	return c.Mul(x, minusOne)
}

// Sub returns a-b.
func (c *Context) Sub(a, b NodeID) (NodeID, error) {
	negB, err := c.Neg(b)
	if err != nil {
		return NoNode, err
	}
	return c.Add(a, negB)
}

// Div returns a/b.
func (c *Context) Div(a, b NodeID) (NodeID, error) {
	inv, err := c.Recip(b)
	if err != nil {
		return NoNode, err
	}
	return c.Mul(a, inv)
}

// Square returns x*x.
func (c *Context) Square(x NodeID) (NodeID, error) { return c.Mul(x, x) }

// Cos returns sin(x + pi/2).
func (c *Context) Cos(x NodeID) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("cos: %w", err)
	}
	halfPi, err := c.Scalar(src.DType, math.Pi/2)
	if err != nil {
		return NoNode, err
	}
	shifted, err := c.Add(x, halfPi)
	if err != nil {
		return NoNode, err
	}
	return c.Sin(shifted)
}

// Tanh returns (e^x - e^-x) / (e^x + e^-x).
func (c *Context) Tanh(x NodeID) (NodeID, error) {
	negX, err := c.Neg(x)
	if err != nil {
		return NoNode, err
	}
	ePos, err := c.Exp(x)
	if err != nil {
		return NoNode, err
	}
	eNeg, err := c.Exp(negX)
	if err != nil {
		return NoNode, err
	}
	num, err := c.Sub(ePos, eNeg)
	if err != nil {
		return NoNode, err
	}
	den, err := c.Add(ePos, eNeg)
	if err != nil {
		return NoNode, err
	}
	return c.Div(num, den)
}

// MatMul multiplies an [M, K] matrix by a [K, N] matrix.
//
// The product is a broadcast multiply of [M, K, 1] by [1, K, N] followed by
// a sum over axis 1 and a reshape of the [M, 1, N] result to [M, N].
func (c *Context) MatMul(a, b NodeID) (NodeID, error) {
	lhs, err := c.Lookup(a)
	if err != nil {
		return NoNode, fmt.Errorf("matmul: %w", err)
	}
	rhs, err := c.Lookup(b)
	if err != nil {
		return NoNode, fmt.Errorf("matmul: %w", err)
	}
	if !lhs.Shape.IsMatrix() || !rhs.Shape.IsMatrix() {
		return NoNode, fmt.Errorf("matmul: %w: %v x %v", ErrNotMatrix, lhs.Shape, rhs.Shape)
	}
	m, k, n := lhs.Shape[0], lhs.Shape[1], rhs.Shape[1]
	if rhs.Shape[0] != k {
		return NoNode, fmt.Errorf("matmul: %w: %v x %v", ErrMatMulShape, lhs.Shape, rhs.Shape)
	}
	rhsView, err := c.Reshape(b, 1, k, n)
	if err != nil {
		return NoNode, err
	}
	prod, err := c.Mul(a, rhsView)
	if err != nil {
		return NoNode, err
	}
	sum, err := c.Sum(prod, 1)
	if err != nil {
		return NoNode, err
	}
	return c.Reshape(sum, m, n)
}

// SoftMax normalizes exp(x) along axis so the values sum to one.
func (c *Context) SoftMax(x NodeID, axis int) (NodeID, error) {
	e, err := c.Exp(x)
	if err != nil {
		return NoNode, err
	}
	total, err := c.Sum(e, axis)
	if err != nil {
		return NoNode, err
	}
	return c.Div(e, total)
}
