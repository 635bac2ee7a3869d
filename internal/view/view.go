// Package view computes how a node's elements are addressed: the buffer
// index of a read or write and the coordinate translation through reshape
// and permute views.
package view

import (
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// Coords are the four logical coordinates a node is read at.
type Coords [tensor.MaxDims]ir.IntExpr

// Own returns the work-item coordinates id0..id3.
func Own() Coords {
	return Coords{ir.Var("id0"), ir.Var("id1"), ir.Var("id2"), ir.Var("id3")}
}

// Offset indexes n's storage at c, one term id_k*stride_k*f_k per axis up
// to n's rank. f_k is 0 where n has extent 1, so a broadcast operand is read
// at coordinate 0 on that axis and a reduction output folds every reduced
// run onto one cell.
func Offset(n *tensor.Node, c Coords) ir.Index {
	rank := n.Shape.Rank()
	terms := make([]ir.Term, 0, rank)
	for k := range rank {
		terms = append(terms, ir.Term{Coord: c[k], Stride: n.Stride[k], Mask: mask(n, k)})
	}
	return ir.Index{Terms: terms}
}

func mask(n *tensor.Node, k int) int {
	if n.Shape[k] == 1 {
		return 0
	}
	return 1
}

// Translate maps coordinates of view v onto its operand.
//
// Reshape flattens c in v's row-major order and unflattens the result in
// the operand's. Permute relabels: result axis i is operand axis Perm[i].
func Translate(v, operand *tensor.Node, c Coords) Coords {
	c = normalize(v, c)
	switch v.Op {
	case tensor.OpPermute:
		var out Coords
		for i, p := range v.Perm {
			out[p] = c[i]
		}
		return normalize(operand, out)
	case tensor.OpReshape:
		if v.Shape == operand.Shape {
			return c
		}
		vs := v.Shape.Strides()
		var flat ir.IntExpr = ir.Int(0)
		for k := range tensor.MaxDims {
			flat = ir.Add(flat, ir.Mul(c[k], ir.Int(vs[k])))
		}
		os := operand.Shape.Strides()
		var out Coords
		for k := range tensor.MaxDims {
			if operand.Shape[k] == 1 {
				out[k] = ir.Int(0)
				continue
			}
			q := ir.Div(flat, ir.Int(os[k]))
			if k > 0 {
				q = ir.Mod(q, ir.Int(operand.Shape[k]))
			}
			out[k] = q
		}
		return out
	default:
		return c
	}
}

// normalize pins coordinates of extent-1 axes to zero.
func normalize(n *tensor.Node, c Coords) Coords {
	for k := range tensor.MaxDims {
		if n.Shape[k] == 1 {
			c[k] = ir.Int(0)
		}
	}
	return c
}
