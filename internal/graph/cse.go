package graph

import "github.com/born-ml/ccml/internal/tensor"

// EliminateCommonSubexpressions rewrites every node that repeats an
// earlier node's operation on the same operands into an OpCopy of that
// earlier node. It returns the number of rewritten nodes.
//
// The signature of a node is op*K^2 + a*K + b, where a and b are the
// positions of its operands after following copies, K is MaxNodes+1 and an
// absent operand counts as MaxNodes. Candidates must also agree on dtype,
// shape, stride and permutation before they merge. Leaves and copies are
// never rewritten, so running the pass twice changes nothing.
func (g *Graph) EliminateCommonSubexpressions() (int, error) {
	g.exprs.Reset()
	k := uint64(g.maxNodes) + 1 //nolint:gosec // G115: positive
	rewritten := 0

	for _, id := range g.nodes {
		n := g.ctx.Node(id)
		if n.IsLeaf() || n.Op == tensor.OpCopy {
			continue
		}
		sig := uint64(n.Op)*k*k + g.operandKey(n.Src[0])*k + g.operandKey(n.Src[1]) //nolint:gosec // G115: op tags are small
		if pos, ok := g.exprs.Get(sig); ok {
			first := g.At(int(pos))
			if sameView(first, n) {
				n.Op = tensor.OpCopy
				n.Src = [2]tensor.NodeID{first.ID, tensor.NoNode}
				n.Perm = [tensor.MaxDims]int{}
				rewritten++
			}
			continue
		}
		if err := g.exprs.Set(sig, int32(n.Index)); err != nil { //nolint:gosec // G115: bounded by maxNodes
			return rewritten, err
		}
	}
	return rewritten, nil
}

// Resolve follows copy nodes to the node that computes the value.
func (g *Graph) Resolve(id tensor.NodeID) tensor.NodeID {
	for id != tensor.NoNode {
		n := g.ctx.Node(id)
		if n.Op != tensor.OpCopy {
			break
		}
		id = n.Src[0]
	}
	return id
}

func (g *Graph) operandKey(id tensor.NodeID) uint64 {
	if id == tensor.NoNode {
		return uint64(g.maxNodes) //nolint:gosec // G115: positive
	}
	return uint64(g.ctx.Node(g.Resolve(id)).Index) //nolint:gosec // G115: placed nodes have a non-negative index
}

func sameView(a, b *tensor.Node) bool {
	return a.DType == b.DType && a.Shape == b.Shape && a.Stride == b.Stride && a.Perm == b.Perm
}
