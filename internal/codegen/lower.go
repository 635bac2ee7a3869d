package codegen

import (
	"fmt"
	"slices"

	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
	"github.com/born-ml/ccml/internal/view"
)

// DefaultKernelName names the generated entry point.
const DefaultKernelName = "ccml_kernel"

// Lower turns each slice into a kernel. Classify must have run on the
// same slices. Slices without computed nodes produce no kernel.
func Lower(g *graph.Graph, plan []Slice, name string) (*ir.Program, error) {
	if err := ValidateSlices(g.Len(), plan); err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultKernelName
	}
	l := &lowerer{g: g, slice: sliceIndex(g.Len(), plan)}
	prog := &ir.Program{DType: tensor.Float32}
	if root := g.Node(g.Root()); root != nil {
		prog.DType = root.DType
	}
	used := make(map[int]bool)

	for s, sl := range plan {
		k, err := l.kernel(s, sl)
		if err != nil {
			return nil, err
		}
		if k == nil {
			continue
		}
		for _, p := range k.Params {
			used[p.Buf] = true
		}
		prog.Kernels = append(prog.Kernels, k)
	}
	if len(prog.Kernels) > 1 {
		for i, k := range prog.Kernels {
			k.Name = fmt.Sprintf("%s_%d", name, i)
		}
	} else if len(prog.Kernels) == 1 {
		prog.Kernels[0].Name = name
	}

	for pos := range g.Len() {
		n := g.At(pos)
		if !n.HasBuffer() || n.Op.IsView() {
			continue
		}
		if !used[pos] && n.Buffer != tensor.BufferPerm {
			continue
		}
		b := &ir.Buffer{
			ID:       pos,
			Node:     n.ID,
			DType:    n.DType,
			Elements: n.NumElements(),
			Class:    n.Buffer,
		}
		if n.Op == tensor.OpConst {
			b.Init = slices.Clone(n.Data)
		}
		prog.Buffers = append(prog.Buffers, b)
	}
	return prog, nil
}

type lowerer struct {
	g     *graph.Graph
	slice []int
	cur   int
	grid  tensor.Shape
	uses  map[int]bool
	temps int
	loops int
}

func (l *lowerer) kernel(s int, sl Slice) (*ir.Kernel, error) {
	l.cur = s
	l.uses = make(map[int]bool)
	l.temps, l.loops = 0, 0

	l.grid = tensor.Shape{1, 1, 1, 1}
	computed := 0
	for pos := sl.Start; pos < sl.End; pos++ {
		n := l.g.At(pos)
		if n.IsLeaf() || n.Op.IsView() {
			continue
		}
		computed++
		for k := range tensor.MaxDims {
			l.grid[k] = max(l.grid[k], n.Shape[k])
		}
	}
	if computed == 0 {
		return nil, nil
	}

	var body []ir.Stmt
	for pos := sl.Start; pos < sl.End; pos++ {
		n := l.g.At(pos)
		switch {
		case n.IsLeaf():
		case n.Op.IsView():
			base := l.g.Node(resolveViews(l.g, n.ID))
			if l.inMemory(base) {
				l.uses[base.Index] = true
				body = append(body, ir.Alias{View: pos, Base: base.Index})
			}
		default:
			stmts, err := l.node(n)
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
		}
	}

	ids := make([]int, 0, len(l.uses))
	for id := range l.uses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	params := make([]ir.Param, len(ids))
	for i, id := range ids {
		params[i] = ir.Param{Slot: i, Buf: id}
	}

	return &ir.Kernel{
		Shape:  l.grid,
		Grid:   ir.GridFor(l.grid),
		Params: params,
		Body:   body,
		First:  sl.Start,
		Last:   sl.End - 1,
	}, nil
}

// node emits the statements computing n for the work-item's own coordinates.
func (l *lowerer) node(n *tensor.Node) ([]ir.Stmt, error) {
	reg := ir.RegName(n.Index)
	own := view.Own()

	var inner []ir.Stmt
	if n.Op == tensor.OpSum {
		if err := l.reduce(&inner, reg, n, own); err != nil {
			return nil, err
		}
	} else {
		v, err := l.apply(&inner, n, own, true)
		if err != nil {
			return nil, err
		}
		inner = append(inner, ir.Assign{Reg: reg, Value: v})
	}
	if n.HasBuffer() {
		l.uses[n.Index] = true
		store := ir.Store{Buf: n.Index, Index: view.Offset(n, own), Value: ir.Reg(reg)}
		inner = append(inner, guard(l.ownerConds(n), store)...)
	}

	out := []ir.Stmt{ir.Declare{Reg: reg}}
	return append(out, guard(l.boundConds(n), inner...)...), nil
}

// apply builds the value of computed node n at c from its operands.
// own is true when c are the work-item's coordinates, so same-kernel
// operands can be read from their registers.
func (l *lowerer) apply(out *[]ir.Stmt, n *tensor.Node, c view.Coords, own bool) (ir.Expr, error) {
	x, err := l.value(out, n.Src[0], c, own)
	if err != nil {
		return nil, err
	}
	switch {
	case n.Op.IsUnary():
		return ir.Unary{Op: n.Op, X: x}, nil
	case n.Op.IsBinary():
		if n.Src[1] == tensor.NoNode {
			return x, nil
		}
		y, err := l.value(out, n.Src[1], c, own)
		if err != nil {
			return nil, err
		}
		return ir.Binary{Op: n.Op, X: x, Y: y}, nil
	case n.Op == tensor.OpCopy || n.Op == tensor.OpSave:
		return x, nil
	default:
		return nil, fmt.Errorf("codegen: node %d: %w: %s", n.ID, ErrUnknownOp, n.Op)
	}
}

// value reads node id at coordinates c.
func (l *lowerer) value(out *[]ir.Stmt, id tensor.NodeID, c view.Coords, own bool) (ir.Expr, error) {
	x := l.g.Node(id)
	switch {
	case isInlineConst(x):
		return ir.Lit(x.Data[0]), nil
	case x.Op.IsView():
		base := l.g.Node(x.Src[0])
		return l.value(out, base.ID, view.Translate(x, base, c), false)
	case l.inMemory(x):
		l.uses[x.Index] = true
		return ir.Load{Buf: x.Index, Index: view.Offset(x, c)}, nil
	case l.slice[x.Index] != l.cur:
		return nil, fmt.Errorf("codegen: node %d: %w", x.ID, ErrUnmaterialized)
	case own:
		return ir.Reg(ir.RegName(x.Index)), nil
	case x.Op == tensor.OpSum:
		// Another work-item owns this element; recompute it here.
		tmp := l.temp(x)
		*out = append(*out, ir.Declare{Reg: tmp})
		if err := l.reduce(out, tmp, x, c); err != nil {
			return nil, err
		}
		return ir.Reg(tmp), nil
	default:
		return l.apply(out, x, c, false)
	}
}

// reduce accumulates the sum n at c into register target.
func (l *lowerer) reduce(out *[]ir.Stmt, target string, n *tensor.Node, c view.Coords) error {
	x := l.g.Node(n.Src[0])
	axes := n.ReducedAxes(x)
	count := 1
	for k, r := range axes {
		if r {
			count *= x.Shape[k]
		}
	}

	lv := ir.Var(fmt.Sprintf("k%d", l.loops))
	l.loops++
	rem := count
	first := true
	for k, r := range axes {
		if !r {
			continue
		}
		rem /= x.Shape[k]
		coord := ir.Div(lv, ir.Int(rem))
		if !first {
			coord = ir.Mod(coord, ir.Int(x.Shape[k]))
		}
		c[k] = coord
		first = false
	}

	var body []ir.Stmt
	v, err := l.value(&body, x.ID, c, false)
	if err != nil {
		return err
	}
	body = append(body, ir.Accumulate{Reg: target, Value: v})
	*out = append(*out, ir.Loop{Var: string(lv), Count: count, Body: body})
	return nil
}

// inMemory reports whether x is read from a bound buffer in the current kernel.
func (l *lowerer) inMemory(x *tensor.Node) bool {
	if x.IsLeaf() {
		return !isInlineConst(x)
	}
	return x.HasBuffer() && l.slice[x.Index] < l.cur
}

func (l *lowerer) temp(x *tensor.Node) string {
	l.temps++
	return fmt.Sprintf("%s_%d", ir.RegName(x.Index), l.temps)
}

// boundConds keeps work-items beyond n's extent from computing it.
func (l *lowerer) boundConds(n *tensor.Node) []ir.Cond {
	var conds []ir.Cond
	own := view.Own()
	for k := range tensor.MaxDims {
		if n.Shape[k] != 1 && l.grid[k] > n.Shape[k] {
			conds = append(conds, ir.Cond{X: own[k], Op: ir.Less, N: n.Shape[k]})
		}
	}
	return conds
}

// ownerConds elects one work-item to store each element of a node that is
// broadcast across the grid.
func (l *lowerer) ownerConds(n *tensor.Node) []ir.Cond {
	var conds []ir.Cond
	own := view.Own()
	for k := range tensor.MaxDims {
		if n.Shape[k] == 1 && l.grid[k] > 1 {
			conds = append(conds, ir.Cond{X: own[k], Op: ir.Equal, N: 0})
		}
	}
	return conds
}

func guard(conds []ir.Cond, body ...ir.Stmt) []ir.Stmt {
	if len(conds) == 0 {
		return body
	}
	return []ir.Stmt{ir.Guard{Conds: conds, Body: body}}
}

func isInlineConst(n *tensor.Node) bool {
	return n.Op == tensor.OpConst && n.NumElements() == 1
}
