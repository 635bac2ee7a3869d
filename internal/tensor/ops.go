package tensor

import "fmt"

func (c *Context) unary(op Op, x NodeID) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("%s: %w", op, err)
	}
	return c.add(&Node{
		DType:        src.DType,
		Op:           op,
		Shape:        src.Shape,
		Stride:       src.Shape.Strides(),
		Src:          [2]NodeID{x, NoNode},
		RequiresGrad: src.RequiresGrad,
	})
}

// Log returns the natural logarithm of x.
func (c *Context) Log(x NodeID) (NodeID, error) { return c.unary(OpLog, x) }

// Exp returns e raised to x.
func (c *Context) Exp(x NodeID) (NodeID, error) { return c.unary(OpExp, x) }

// Sin returns the sine of x.
func (c *Context) Sin(x NodeID) (NodeID, error) { return c.unary(OpSin, x) }

// Recip returns 1/x.
func (c *Context) Recip(x NodeID) (NodeID, error) { return c.unary(OpRecip, x) }

// Sqrt returns the square root of x.
func (c *Context) Sqrt(x NodeID) (NodeID, error) { return c.unary(OpSqrt, x) }

func (c *Context) binary(op Op, a, b NodeID) (NodeID, error) {
	// A missing operand makes the op an identity on the other one.
	if a == NoNode {
		a, b = b, NoNode
	}
	lhs, err := c.Lookup(a)
	if err != nil {
		return NoNode, fmt.Errorf("%s: %w", op, err)
	}
	shape := lhs.Shape
	requiresGrad := lhs.RequiresGrad
	if b != NoNode {
		rhs, err := c.Lookup(b)
		if err != nil {
			return NoNode, fmt.Errorf("%s: %w", op, err)
		}
		if lhs.DType != rhs.DType {
			return NoNode, fmt.Errorf("%s: %w: %s vs %s", op, ErrTypeMismatch, lhs.DType, rhs.DType)
		}
		shape, err = BroadcastShape(lhs.Shape, rhs.Shape)
		if err != nil {
			return NoNode, fmt.Errorf("%s: %w", op, err)
		}
		requiresGrad = requiresGrad || rhs.RequiresGrad
	}
	return c.add(&Node{
		DType:        lhs.DType,
		Op:           op,
		Shape:        shape,
		Stride:       shape.Strides(),
		Src:          [2]NodeID{a, b},
		RequiresGrad: requiresGrad,
	})
}

// Add returns a+b with broadcasting. Either operand may be NoNode.
func (c *Context) Add(a, b NodeID) (NodeID, error) { return c.binary(OpAdd, a, b) }

// Mul returns a*b with broadcasting. Either operand may be NoNode.
func (c *Context) Mul(a, b NodeID) (NodeID, error) { return c.binary(OpMul, a, b) }

// Sum reduces x over the given axes, keeping them as size 1.
func (c *Context) Sum(x NodeID, axes ...int) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("sum: %w", err)
	}
	if len(axes) == 0 || len(axes) > MaxDims {
		return NoNode, fmt.Errorf("sum: %w: %d axes", ErrInvalidAxes, len(axes))
	}
	shape := src.Shape
	var seen [MaxDims]bool
	for _, ax := range axes {
		if ax < 0 || ax >= MaxDims || seen[ax] {
			return NoNode, fmt.Errorf("sum: %w: %v", ErrInvalidAxes, axes)
		}
		seen[ax] = true
		shape[ax] = 1
	}
	return c.add(&Node{
		DType:        src.DType,
		Op:           OpSum,
		Shape:        shape,
		Stride:       shape.Strides(),
		Src:          [2]NodeID{x, NoNode},
		RequiresGrad: src.RequiresGrad,
	})
}

// Reshape returns a view of x with a new shape of equal element count.
func (c *Context) Reshape(x NodeID, dims ...int) (NodeID, error) {
	shape, err := NewShape(dims...)
	if err != nil {
		return NoNode, fmt.Errorf("reshape: %w", err)
	}
	return c.ReshapeTo(x, shape)
}

// ReshapeTo is Reshape with a ready Shape.
func (c *Context) ReshapeTo(x NodeID, shape Shape) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("reshape: %w", err)
	}
	if err := shape.Validate(); err != nil {
		return NoNode, fmt.Errorf("reshape: %w", err)
	}
	if shape.NumElements() != src.NumElements() {
		return NoNode, fmt.Errorf("%w: %v (%d) to %v (%d)", ErrReshapeSize,
			src.Shape, src.NumElements(), shape, shape.NumElements())
	}
	return c.add(&Node{
		DType:        src.DType,
		Op:           OpReshape,
		Shape:        shape,
		Stride:       shape.Strides(),
		Src:          [2]NodeID{x, NoNode},
		RequiresGrad: src.RequiresGrad,
	})
}

// Permute returns a view of x with axes reordered: result axis i is
// operand axis perm[i]. Missing trailing entries keep their position.
func (c *Context) Permute(x NodeID, perm ...int) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("permute: %w", err)
	}
	full, err := completePerm(perm)
	if err != nil {
		return NoNode, err
	}
	n := &Node{
		DType:        src.DType,
		Op:           OpPermute,
		Src:          [2]NodeID{x, NoNode},
		RequiresGrad: src.RequiresGrad,
		Perm:         full,
	}
	for i, p := range full {
		n.Shape[i] = src.Shape[p]
		n.Stride[i] = src.Stride[p]
	}
	return c.add(n)
}

func completePerm(perm []int) ([MaxDims]int, error) {
	full := [MaxDims]int{0, 1, 2, 3}
	if len(perm) == 0 || len(perm) > MaxDims {
		return full, fmt.Errorf("%w: %v", ErrInvalidPermutation, perm)
	}
	var seen [MaxDims]bool
	copy(full[:], perm)
	for _, p := range full {
		if p < 0 || p >= MaxDims || seen[p] {
			return full, fmt.Errorf("%w: %v", ErrInvalidPermutation, perm)
		}
		seen[p] = true
	}
	return full, nil
}

// InversePerm returns q with q[perm[i]] = i.
func InversePerm(perm [MaxDims]int) [MaxDims]int {
	var inv [MaxDims]int
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// Save marks x as a result the host reads back.
func (c *Context) Save(x NodeID) (NodeID, error) {
	src, err := c.Lookup(x)
	if err != nil {
		return NoNode, fmt.Errorf("save: %w", err)
	}
	return c.add(&Node{
		DType:        src.DType,
		Op:           OpSave,
		Buffer:       BufferPerm,
		Shape:        src.Shape,
		Stride:       src.Shape.Strides(),
		Src:          [2]NodeID{x, NoNode},
		RequiresGrad: src.RequiresGrad,
	})
}
