// Package graph linearizes tensor nodes into a topologically ordered graph
// and runs the common-subexpression pass over it.
package graph

import (
	"errors"
	"fmt"

	"github.com/born-ml/ccml/internal/hashindex"
	"github.com/born-ml/ccml/internal/tensor"
)

// Common errors.
var (
	ErrTooManyNodes    = errors.New("graph node limit exceeded")
	ErrCycle           = errors.New("graph contains a cycle")
	ErrInvalidMaxNodes = errors.New("max nodes out of range")
)

// MaxNodesLimit bounds maxNodes so CSE signatures op*K*K+a*K+b, with
// K = maxNodes+1 and fewer than 16 op tags, stay below 2^64.
const MaxNodesLimit = 1 << 30

// Graph is the ordered list of nodes reachable from a root, plus the
// gradient nodes appended by backpropagation.
//
// Position i of the list holds the node whose Index is i.
type Graph struct {
	ctx      *tensor.Context
	nodes    []tensor.NodeID
	placed   *hashindex.Index // node id -> position
	exprs    *hashindex.Index // CSE signature -> position
	maxNodes int
	root     tensor.NodeID
}

// New creates an empty graph holding at most maxNodes nodes. The position
// list and both index tables are charged to the Context's arena.
func New(ctx *tensor.Context, maxNodes int) (*Graph, error) {
	if maxNodes <= 0 || maxNodes > MaxNodesLimit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxNodes, maxNodes)
	}
	a := ctx.Arena()
	if err := a.Charge(maxNodes * 4); err != nil {
		return nil, fmt.Errorf("graph: node list: %w", err)
	}
	placed, err := hashindex.New(a, maxNodes)
	if err != nil {
		return nil, err
	}
	exprs, err := hashindex.New(a, maxNodes)
	if err != nil {
		return nil, err
	}
	return &Graph{
		ctx:      ctx,
		nodes:    make([]tensor.NodeID, 0, maxNodes),
		placed:   placed,
		exprs:    exprs,
		maxNodes: maxNodes,
		root:     tensor.NoNode,
	}, nil
}

// Context returns the Context owning the nodes.
func (g *Graph) Context() *tensor.Context { return g.ctx }

// MaxNodes returns the node bound.
func (g *Graph) MaxNodes() int { return g.maxNodes }

// Len returns the number of placed nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// IDs returns node ids in topological order.
func (g *Graph) IDs() []tensor.NodeID { return g.nodes }

// At returns the node at position i.
func (g *Graph) At(i int) *tensor.Node { return g.ctx.Node(g.nodes[i]) }

// Node returns the node for id.
func (g *Graph) Node(id tensor.NodeID) *tensor.Node { return g.ctx.Node(id) }

// Contains reports whether id has been placed.
func (g *Graph) Contains(id tensor.NodeID) bool {
	return g.placed.Has(uint64(id)) //nolint:gosec // G115: ids are non-negative
}

// Root returns the id passed to SetRoot, or NoNode.
func (g *Graph) Root() tensor.NodeID { return g.root }

// SetRoot records the graph's output node and marks it host visible.
func (g *Graph) SetRoot(id tensor.NodeID) error {
	n, err := g.ctx.Lookup(id)
	if err != nil {
		return err
	}
	g.root = id
	if !n.Op.IsView() && n.Buffer != tensor.BufferConst {
		n.Buffer = tensor.BufferPerm
	}
	return nil
}

func (g *Graph) place(n *tensor.Node) error {
	if len(g.nodes) >= g.maxNodes {
		return fmt.Errorf("%w: %d nodes", ErrTooManyNodes, g.maxNodes)
	}
	pos := len(g.nodes)
	if err := g.placed.Set(uint64(n.ID), int32(pos)); err != nil { //nolint:gosec // G115: bounded by maxNodes
		return err
	}
	n.Index = pos
	g.nodes = append(g.nodes, n.ID)
	return nil
}
