package tensor

import (
	"fmt"
	"strings"
)

// MaxDims is the fixed rank of every node. Unused trailing axes hold 1.
const MaxDims = 4

// Shape holds the extent of each of the four axes.
type Shape [MaxDims]int

// Stride holds the element step of each axis in row-major storage.
type Stride [MaxDims]int

// NewShape builds a Shape from one to four dimensions, padding with 1.
func NewShape(dims ...int) (Shape, error) {
	s := Shape{1, 1, 1, 1}
	if len(dims) == 0 || len(dims) > MaxDims {
		return s, fmt.Errorf("%w: rank %d (must be 1..%d)", ErrInvalidShape, len(dims), MaxDims)
	}
	copy(s[:], dims)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// MustShape is NewShape for literals known to be valid.
func MustShape(dims ...int) Shape {
	s, err := NewShape(dims...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension at index %d: %d (must be > 0)", ErrInvalidShape, i, dim)
		}
	}
	return nil
}

// NumElements returns the product of all axes.
func (s Shape) NumElements() int {
	return s[0] * s[1] * s[2] * s[3]
}

// Rank returns one past the last axis whose extent is not 1, and at least 1.
func (s Shape) Rank() int {
	last := 0
	for i, dim := range s {
		if dim != 1 {
			last = i
		}
	}
	return last + 1
}

// Dims returns the leading Rank axes.
func (s Shape) Dims() []int {
	out := make([]int, s.Rank())
	copy(out, s[:])
	return out
}

// IsMatrix reports whether only the first two axes may exceed 1.
func (s Shape) IsMatrix() bool {
	return s[2] == 1 && s[3] == 1
}

// Strides calculates row-major strides: stride[i] = product of shape[i+1:].
func (s Shape) Strides() Stride {
	var st Stride
	st[MaxDims-1] = 1
	for i := MaxDims - 2; i >= 0; i-- {
		st[i] = st[i+1] * s[i+1]
	}
	return st
}

// String formats the shape as [d0, d1, ...] up to its rank.
func (s Shape) String() string {
	parts := make([]string, 0, MaxDims)
	for _, d := range s.Dims() {
		parts = append(parts, fmt.Sprint(d))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// CanBroadcast reports whether every axis pair is equal or has a 1.
func CanBroadcast(a, b Shape) bool {
	for i := range MaxDims {
		if a[i] != b[i] && a[i] != 1 && b[i] != 1 {
			return false
		}
	}
	return true
}

// BroadcastShape returns the axis-wise maximum of two compatible shapes.
//
// Axes are matched positionally, not right-aligned:
//
//	[2, 1] + [2, 3] -> [2, 3]
//	[1, 5] + [3, 1] -> [3, 5]
//	[3, 4] + [3, 5] -> error
func BroadcastShape(a, b Shape) (Shape, error) {
	if !CanBroadcast(a, b) {
		return Shape{}, fmt.Errorf("%w: %v vs %v", ErrBroadcast, a, b)
	}
	var out Shape
	for i := range MaxDims {
		out[i] = max(a[i], b[i])
	}
	return out, nil
}
