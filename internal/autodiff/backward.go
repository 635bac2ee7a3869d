// Package autodiff extends a linearized graph with the nodes that compute
// gradients by reverse-mode automatic differentiation.
package autodiff

import (
	"fmt"

	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/tensor"
)

// Backward appends gradient nodes for every tracked node that root depends on.
//
// Algorithm:
//  1. Seed root.Grad with a constant 1 expanded to the root's shape
//  2. Walk the nodes up to root in reverse topological order
//  3. For each tracked operand, multiply the node's gradient by the local
//     partial derivative and fit the product to the operand's shape
//  4. Add the contribution to whatever the operand already accumulated
//
// Every node is visited once, after all its consumers have contributed.
// Each synthesized node is merged into g with Forward. Finally the
// gradient of each tracked leaf is wrapped in a Save node so it gets a
// host-visible buffer.
//
// Backward is a no-op when root does not require gradients.
func Backward(g *graph.Graph, root tensor.NodeID) error {
	ctx := g.Context()
	r, err := ctx.Lookup(root)
	if err != nil {
		return fmt.Errorf("backward: %w", err)
	}
	if !r.RequiresGrad {
		return nil
	}
	if err := g.Forward(root); err != nil {
		return err
	}

	seed, err := ctx.Scalar(r.DType, 1)
	if err != nil {
		return fmt.Errorf("backward: seed: %w", err)
	}
	if seed, err = fit(ctx, seed, r.Shape); err != nil {
		return fmt.Errorf("backward: seed: %w", err)
	}
	r.Grad = seed
	if err := g.Forward(seed); err != nil {
		return err
	}

	order := append([]tensor.NodeID(nil), g.IDs()[:r.Index+1]...)
	for i := len(order) - 1; i >= 0; i-- {
		n := ctx.Node(order[i])
		if n.Grad == tensor.NoNode || !n.RequiresGrad || n.IsLeaf() {
			continue
		}
		for slot, src := range n.Src {
			if src == tensor.NoNode || !ctx.Node(src).RequiresGrad {
				continue
			}
			if err := propagate(g, n, slot); err != nil {
				return fmt.Errorf("backward: %s node %d: %w", n.Op, n.ID, err)
			}
		}
	}

	for _, id := range order {
		n := ctx.Node(id)
		if !n.IsLeaf() || !n.RequiresGrad || n.Grad == tensor.NoNode {
			continue
		}
		saved, err := ctx.Save(n.Grad)
		if err != nil {
			return fmt.Errorf("backward: save gradient of node %d: %w", id, err)
		}
		n.Grad = saved
		if err := g.Forward(saved); err != nil {
			return err
		}
	}
	return nil
}

// Gradients returns the gradient node of every tracked leaf in g, keyed by leaf id.
func Gradients(g *graph.Graph) map[tensor.NodeID]tensor.NodeID {
	grads := make(map[tensor.NodeID]tensor.NodeID)
	for _, id := range g.IDs() {
		n := g.Node(id)
		if n.IsLeaf() && n.RequiresGrad && n.Grad != tensor.NoNode {
			grads[id] = n.Grad
		}
	}
	return grads
}

func propagate(g *graph.Graph, n *tensor.Node, slot int) error {
	ctx := g.Context()
	operand := ctx.Node(n.Src[slot])

	p, err := localPartial(ctx, n, slot)
	if err != nil {
		return err
	}
	contrib := n.Grad
	if !p.identity {
		if contrib, err = ctx.Mul(n.Grad, p.id); err != nil {
			return err
		}
	}
	if p.view != nil {
		if contrib, err = p.view(contrib); err != nil {
			return err
		}
	}
	if contrib, err = fit(ctx, contrib, operand.Shape); err != nil {
		return err
	}

	if operand.Grad == tensor.NoNode {
		operand.Grad = contrib
	} else if operand.Grad, err = ctx.Add(operand.Grad, contrib); err != nil {
		return err
	}
	return g.Forward(operand.Grad)
}
