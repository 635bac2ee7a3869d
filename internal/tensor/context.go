package tensor

import (
	"fmt"

	"github.com/born-ml/ccml/internal/arena"
)

// Context creates and owns nodes. Every node record and constant buffer is
// charged to the Context's arena, so a bounded arena bounds the graph.
//
// A Context is not safe for concurrent use.
type Context struct {
	arena *arena.Arena
	nodes []*Node
}

// NewContext creates a Context allocating from a.
func NewContext(a *arena.Arena) *Context {
	return &Context{arena: a}
}

// Arena returns the allocator backing the Context.
func (c *Context) Arena() *arena.Arena { return c.arena }

// Len returns the number of nodes created so far.
func (c *Context) Len() int { return len(c.nodes) }

// Node returns the node for id, or nil when id is out of range.
func (c *Context) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(c.nodes) {
		return nil
	}
	return c.nodes[id]
}

// Lookup returns the node for id or ErrUnknownNode.
func (c *Context) Lookup(id NodeID) (*Node, error) {
	n := c.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

// Nodes returns every node in creation order.
func (c *Context) Nodes() []*Node { return c.nodes }

func (c *Context) add(n *Node) (NodeID, error) {
	if err := c.arena.Charge(nodeRecordSize); err != nil {
		return NoNode, fmt.Errorf("tensor: node record: %w", err)
	}
	n.ID = NodeID(len(c.nodes)) //nolint:gosec // G115: node count bounded by arena
	n.Grad = NoNode
	n.Index = -1
	c.nodes = append(c.nodes, n)
	return n.ID, nil
}

// NewTensor creates a placeholder leaf. Placeholders become host-visible
// input buffers unless data is attached with Set or Fill.
func (c *Context) NewTensor(dtype DataType, shape Shape, requiresGrad bool) (NodeID, error) {
	if err := shape.Validate(); err != nil {
		return NoNode, err
	}
	if dtype != Float32 && dtype != Float16 {
		return NoNode, fmt.Errorf("%w: %d", ErrUnknownDataType, dtype)
	}
	return c.add(&Node{
		DType:        dtype,
		Op:           OpLoad,
		Buffer:       BufferPerm,
		Shape:        shape,
		Stride:       shape.Strides(),
		Src:          [2]NodeID{NoNode, NoNode},
		RequiresGrad: requiresGrad,
	})
}

// New1D creates a rank-1 placeholder leaf.
func (c *Context) New1D(dtype DataType, d0 int, requiresGrad bool) (NodeID, error) {
	return c.newDims(dtype, requiresGrad, d0)
}

// New2D creates a rank-2 placeholder leaf.
func (c *Context) New2D(dtype DataType, d0, d1 int, requiresGrad bool) (NodeID, error) {
	return c.newDims(dtype, requiresGrad, d0, d1)
}

// New3D creates a rank-3 placeholder leaf.
func (c *Context) New3D(dtype DataType, d0, d1, d2 int, requiresGrad bool) (NodeID, error) {
	return c.newDims(dtype, requiresGrad, d0, d1, d2)
}

// New4D creates a rank-4 placeholder leaf.
func (c *Context) New4D(dtype DataType, d0, d1, d2, d3 int, requiresGrad bool) (NodeID, error) {
	return c.newDims(dtype, requiresGrad, d0, d1, d2, d3)
}

func (c *Context) newDims(dtype DataType, requiresGrad bool, dims ...int) (NodeID, error) {
	shape, err := NewShape(dims...)
	if err != nil {
		return NoNode, err
	}
	return c.NewTensor(dtype, shape, requiresGrad)
}

// Set copies data into a leaf and turns it into a constant.
func (c *Context) Set(id NodeID, data []float32) error {
	n, err := c.leaf(id)
	if err != nil {
		return err
	}
	if len(data) != n.NumElements() {
		return fmt.Errorf("%w: got %d, want %d", ErrDataSize, len(data), n.NumElements())
	}
	if err := c.ensureData(n); err != nil {
		return err
	}
	for i, v := range data {
		n.Data[i] = n.DType.Round(v)
	}
	return nil
}

// Fill sets every element of a leaf to v and turns it into a constant.
func (c *Context) Fill(id NodeID, v float32) error {
	n, err := c.leaf(id)
	if err != nil {
		return err
	}
	if err := c.ensureData(n); err != nil {
		return err
	}
	v = n.DType.Round(v)
	for i := range n.Data {
		n.Data[i] = v
	}
	return nil
}

// Data returns the host data of a constant leaf, or nil.
func (c *Context) Data(id NodeID) []float32 {
	if n := c.Node(id); n != nil {
		return n.Data
	}
	return nil
}

func (c *Context) leaf(id NodeID) (*Node, error) {
	n, err := c.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !n.Op.IsLeaf() {
		return nil, fmt.Errorf("%w: node %d is %s", ErrNotLeaf, id, n.Op)
	}
	return n, nil
}

func (c *Context) ensureData(n *Node) error {
	if n.Data == nil {
		data, err := c.arena.Float32s(n.NumElements())
		if err != nil {
			return fmt.Errorf("tensor: data for node %d: %w", n.ID, err)
		}
		n.Data = data
	}
	n.Op = OpConst
	n.Buffer = BufferConst
	return nil
}

// Full creates a constant of the given shape filled with v.
func (c *Context) Full(dtype DataType, shape Shape, v float32) (NodeID, error) {
	id, err := c.NewTensor(dtype, shape, false)
	if err != nil {
		return NoNode, err
	}
	if err := c.Fill(id, v); err != nil {
		return NoNode, err
	}
	return id, nil
}

// Scalar creates a single-element constant.
func (c *Context) Scalar(dtype DataType, v float32) (NodeID, error) {
	return c.Full(dtype, Shape{1, 1, 1, 1}, v)
}
