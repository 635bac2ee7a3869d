// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/ccml/internal/arena"
	"github.com/born-ml/ccml/internal/tensor"
)

// Context records the nodes of one graph.
type Context = tensor.Context

// Node is a graph node record.
type Node = tensor.Node

// NodeID identifies a node within its Context.
type NodeID = tensor.NodeID

// NoNode marks an absent node.
const NoNode = tensor.NoNode

// MaxDims is the number of axes of every tensor.
const MaxDims = tensor.MaxDims

// Shape holds the four dimensions of a tensor.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Element types.
const (
	Float32 = tensor.Float32
	Float16 = tensor.Float16
)

// Op is a node operation tag.
type Op = tensor.Op

// Common errors.
var (
	ErrInvalidShape       = tensor.ErrInvalidShape
	ErrBroadcast          = tensor.ErrBroadcast
	ErrReshapeSize        = tensor.ErrReshapeSize
	ErrInvalidAxes        = tensor.ErrInvalidAxes
	ErrInvalidPermutation = tensor.ErrInvalidPermutation
	ErrTypeMismatch       = tensor.ErrTypeMismatch
	ErrDataSize           = tensor.ErrDataSize
)

// New creates a Context over an arena of capacity bytes. Release the arena
// with ctx.Arena().Release() once the graph and its compiled program are no
// longer needed.
func New(capacity int) (*Context, error) {
	a, err := arena.New(capacity)
	if err != nil {
		return nil, err
	}
	return tensor.NewContext(a), nil
}

// NewShape validates dims and pads them to four axes.
func NewShape(dims ...int) (Shape, error) {
	return tensor.NewShape(dims...)
}

// MustShape is like NewShape but panics on invalid dims.
func MustShape(dims ...int) Shape {
	return tensor.MustShape(dims...)
}

// ParseDataType resolves an element type name such as "float16".
func ParseDataType(name string) (DataType, error) {
	return tensor.ParseDataType(name)
}
