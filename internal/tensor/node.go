package tensor

import (
	"fmt"
	"unsafe"
)

// NodeID addresses a node inside its Context.
type NodeID int32

// NoNode marks an absent operand or gradient.
const NoNode NodeID = -1

// Node is one vertex of the computation graph.
//
// Operands are referenced by id, never by pointer, so a graph can be
// rewritten in place. Data is non-nil only for constant leaves and is
// allocated from the owning arena.
type Node struct {
	ID           NodeID
	DType        DataType
	Op           Op
	Buffer       BufferClass
	Shape        Shape
	Stride       Stride
	Src          [2]NodeID
	Grad         NodeID
	Index        int // position in the linearized graph, -1 until placed
	RequiresGrad bool
	Data         []float32
	Perm         [MaxDims]int // axis order of OpPermute
}

// nodeRecordSize is what each node charges against the arena.
var nodeRecordSize = int(unsafe.Sizeof(Node{}))

// IsLeaf reports whether the node has no operands.
func (n *Node) IsLeaf() bool {
	return n.Src[0] == NoNode && n.Src[1] == NoNode
}

// NumElements returns the element count of the node's shape.
func (n *Node) NumElements() int { return n.Shape.NumElements() }

// Bytes returns the storage size of the node's elements.
func (n *Node) Bytes() int { return n.NumElements() * n.DType.Size() }

// HasBuffer reports whether the node is backed by device memory.
func (n *Node) HasBuffer() bool { return n.Buffer != BufferNone }

// Operands returns the present operand ids in slot order.
func (n *Node) Operands() []NodeID {
	ops := make([]NodeID, 0, 2)
	for _, s := range n.Src {
		if s != NoNode {
			ops = append(ops, s)
		}
	}
	return ops
}

// ReducedAxes reports which axes a sum collapses, given its operand.
func (n *Node) ReducedAxes(operand *Node) [MaxDims]bool {
	var axes [MaxDims]bool
	for i := range MaxDims {
		axes[i] = n.Shape[i] == 1 && operand.Shape[i] != 1
	}
	return axes
}

// String renders a short description used by logs and diagnostics.
func (n *Node) String() string {
	return fmt.Sprintf("%%%d = %s%v %s", n.ID, n.Op, n.Shape, n.DType)
}
