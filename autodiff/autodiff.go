// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff appends reverse-mode gradient nodes to a graph.
//
// Backward walks the graph from the root in reverse topological order and
// records, for every node that requires a gradient, the sum of the
// contributions of its consumers. Gradients of leaf tensors are saved to
// their own buffers so a compiled program writes them out.
//
// Most callers use compiler.Compile, which runs Backward as one of its
// passes. Use this package directly when driving the passes by hand.
package autodiff

import (
	"github.com/born-ml/ccml/internal/autodiff"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/tensor"
)

// ErrNoDerivative is returned for operations without a derivative rule.
var ErrNoDerivative = autodiff.ErrNoDerivative

// Graph is a forward graph built from a root node.
type Graph = graph.Graph

// Backward appends the gradient graph of root to g.
func Backward(g *Graph, root tensor.NodeID) error {
	return autodiff.Backward(g, root)
}

// Gradients maps every tracked leaf to its saved gradient node.
func Gradients(g *Graph) map[tensor.NodeID]tensor.NodeID {
	return autodiff.Gradients(g)
}
