// Package codegen lowers a linearized graph into kernels and prints them
// as Metal, OpenCL, CUDA or WGSL source.
package codegen

import (
	"fmt"

	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/tensor"
)

// Policy decides where the node list is cut into kernels.
type Policy int

// Fusion policies.
const (
	// FuseAll emits a single kernel for the whole graph.
	FuseAll Policy = iota
	// SplitAtReduce starts a new kernel after every reduction.
	SplitAtReduce
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case FuseAll:
		return "fuse-all"
	case SplitAtReduce:
		return "split-at-reduce"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the names produced by String.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "fuse-all", "":
		return FuseAll, nil
	case "split-at-reduce":
		return SplitAtReduce, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Slice is the half-open range [Start, End) of graph positions fused into one kernel.
type Slice struct {
	Start, End int
}

// Plan cuts the graph into slices.
func Plan(g *graph.Graph, policy Policy) []Slice {
	n := g.Len()
	if n == 0 {
		return nil
	}
	if policy != SplitAtReduce {
		return []Slice{{Start: 0, End: n}}
	}
	var plan []Slice
	start := 0
	for i := range n {
		if g.At(i).Op == tensor.OpSum && i+1 < n {
			plan = append(plan, Slice{Start: start, End: i + 1})
			start = i + 1
		}
	}
	return append(plan, Slice{Start: start, End: n})
}

// ValidateSlices checks that plan cuts positions [0, n) into non-empty,
// contiguous slices in order.
func ValidateSlices(n int, plan []Slice) error {
	next := 0
	for s, sl := range plan {
		if sl.Start != next {
			return fmt.Errorf("%w: slice %d starts at %d, want %d", ErrMalformedSlice, s, sl.Start, next)
		}
		if sl.End <= sl.Start {
			return fmt.Errorf("%w: slice %d is empty", ErrMalformedSlice, s)
		}
		if sl.End > n {
			return fmt.Errorf("%w: slice %d ends at %d past %d nodes", ErrMalformedSlice, s, sl.End, n)
		}
		next = sl.End
	}
	if next != n {
		return fmt.Errorf("%w: slices cover %d of %d nodes", ErrMalformedSlice, next, n)
	}
	return nil
}

// sliceIndex maps each graph position to the slice containing it.
// plan must have passed ValidateSlices.
func sliceIndex(n int, plan []Slice) []int {
	idx := make([]int, n)
	for s, sl := range plan {
		for pos := sl.Start; pos < sl.End; pos++ {
			idx[pos] = s
		}
	}
	return idx
}

// Classify assigns buffer classes once slices are known.
//
// Views never own storage. Reductions always write a buffer. Any computed
// node read from a later kernel, directly or through views, gets a scratch
// buffer. Leaves, saves and the root keep the class they were given.
func Classify(g *graph.Graph, plan []Slice) error {
	if err := ValidateSlices(g.Len(), plan); err != nil {
		return err
	}
	slice := sliceIndex(g.Len(), plan)
	for pos := range g.Len() {
		n := g.At(pos)
		switch {
		case n.Op.IsView():
			n.Buffer = tensor.BufferNone
		case n.Op == tensor.OpSum && n.Buffer == tensor.BufferNone:
			n.Buffer = tensor.BufferScratch
		}
	}
	for pos := range g.Len() {
		n := g.At(pos)
		if n.IsLeaf() || n.Op.IsView() {
			continue
		}
		for _, src := range n.Operands() {
			base := g.Node(resolveViews(g, src))
			if base.IsLeaf() || base.HasBuffer() {
				continue
			}
			if slice[base.Index] < slice[pos] {
				base.Buffer = tensor.BufferScratch
			}
		}
	}
	return nil
}

// resolveViews follows reshape and permute nodes to the node owning the data.
func resolveViews(g *graph.Graph, id tensor.NodeID) tensor.NodeID {
	for {
		n := g.Node(id)
		if !n.Op.IsView() {
			return id
		}
		id = n.Src[0]
	}
}
