package graph

import (
	"fmt"

	"github.com/emirpasic/gods/v2/stacks/arraystack"

	"github.com/born-ml/ccml/internal/tensor"
)

type frame struct {
	id       tensor.NodeID
	expanded bool
}

// Forward places id and every node it depends on, operands before
// consumers, operand 0 before operand 1. Nodes already in the graph are
// skipped, so Forward can be called repeatedly as the graph grows.
func (g *Graph) Forward(id tensor.NodeID) error {
	if id == tensor.NoNode || g.Contains(id) {
		return nil
	}
	if _, err := g.ctx.Lookup(id); err != nil {
		return fmt.Errorf("forward: %w", err)
	}

	stack := arraystack.New[frame]()
	active := make(map[tensor.NodeID]bool)
	stack.Push(frame{id: id})

	for !stack.Empty() {
		f, _ := stack.Pop()
		if g.Contains(f.id) {
			continue
		}
		n := g.ctx.Node(f.id)
		if f.expanded {
			delete(active, f.id)
			if err := g.place(n); err != nil {
				return fmt.Errorf("forward: %w", err)
			}
			continue
		}
		if active[f.id] {
			return fmt.Errorf("forward: %w through node %d", ErrCycle, f.id)
		}
		active[f.id] = true
		stack.Push(frame{id: f.id, expanded: true})
		// Pushed in reverse so operand 0 is visited first.
		for i := len(n.Src) - 1; i >= 0; i-- {
			src := n.Src[i]
			if src == tensor.NoNode || src == f.id || g.Contains(src) {
				continue
			}
			if g.ctx.Node(src) == nil {
				return fmt.Errorf("forward: operand of node %d: %w: %d", f.id, tensor.ErrUnknownNode, src)
			}
			stack.Push(frame{id: src})
		}
	}
	return nil
}
