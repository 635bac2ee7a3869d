// Package compiler runs the full pipeline from a root tensor node to a
// kernel program: linearization, autodiff, CSE, fusion and lowering.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/ccml/internal/autodiff"
	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/graph"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/tensor"
)

// DefaultMaxNodes bounds the graph when Options leaves it unset.
const DefaultMaxNodes = 1024

// ErrNoBuffer is returned when reading a node that owns no buffer in the program.
var ErrNoBuffer = errors.New("node has no buffer")

// Options configures Compile.
type Options struct {
	MaxNodes   int
	Policy     codegen.Policy
	KernelName string
	Logger     logger.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxNodes == 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.KernelName == "" {
		o.KernelName = codegen.DefaultKernelName
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

// Result is a compiled graph.
type Result struct {
	Graph     *graph.Graph
	Root      tensor.NodeID
	Program   *ir.Program
	Gradients map[tensor.NodeID]tensor.NodeID // leaf id -> saved gradient id
	Rewritten int                             // nodes merged by CSE
}

// Compile builds the graph of root inside ctx and lowers it. A root that is
// a view is wrapped in a Save node so its values land in a buffer.
func Compile(ctx *tensor.Context, root tensor.NodeID, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	r, err := ctx.Lookup(root)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if r.Op.IsView() {
		if root, err = ctx.Save(root); err != nil {
			return nil, fmt.Errorf("compile: save view root: %w", err)
		}
	}

	g, err := graph.New(ctx, opts.MaxNodes)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := g.Forward(root); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := g.SetRoot(root); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	log.Debug("forward", "nodes", g.Len(), "root", root)

	if err := autodiff.Backward(g, root); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	grads := autodiff.Gradients(g)
	log.Debug("backward", "nodes", g.Len(), "gradients", len(grads))

	rewritten, err := g.EliminateCommonSubexpressions()
	if err != nil {
		return nil, fmt.Errorf("compile: cse: %w", err)
	}
	log.Debug("cse", "rewritten", rewritten)

	plan := codegen.Plan(g, opts.Policy)
	if err := codegen.Classify(g, plan); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	prog, err := codegen.Lower(g, plan, opts.KernelName)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	log.Debug("lower", "policy", opts.Policy, "slices", len(plan),
		"kernels", len(prog.Kernels), "buffers", len(prog.Buffers))

	return &Result{
		Graph:     g,
		Root:      root,
		Program:   prog,
		Gradients: grads,
		Rewritten: rewritten,
	}, nil
}

// Emit prints every kernel in dialect d.
func (r *Result) Emit(d codegen.Dialect) ([]codegen.Source, error) {
	return codegen.Emit(d, r.Program)
}

// Manifest describes the program for a platform adapter in dialect d.
func (r *Result) Manifest(d codegen.Dialect) (*codegen.Manifest, error) {
	return codegen.NewManifest(d, r.Program)
}

// Buffer returns the program buffer that holds the values of node id.
func (r *Result) Buffer(id tensor.NodeID) (*ir.Buffer, error) {
	n := r.Graph.Node(id)
	if n == nil || !r.Graph.Contains(id) {
		return nil, fmt.Errorf("%w: %d", tensor.ErrUnknownNode, id)
	}
	b := r.Program.Buffer(n.Index)
	if b == nil {
		return nil, fmt.Errorf("%w: node %d", ErrNoBuffer, id)
	}
	return b, nil
}

// Inputs converts placeholder data keyed by node id into backend inputs.
func (r *Result) Inputs(data map[tensor.NodeID][]float32) (map[int][]float32, error) {
	out := make(map[int][]float32, len(data))
	for id, values := range data {
		b, err := r.Buffer(id)
		if err != nil {
			return nil, err
		}
		out[b.ID] = values
	}
	return out, nil
}

// Read returns the values of node id from backend results.
func (r *Result) Read(res backend.Results, id tensor.NodeID) ([]float32, error) {
	b, err := r.Buffer(id)
	if err != nil {
		return nil, err
	}
	values, ok := res[b.ID]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNoBuffer, id)
	}
	return values, nil
}

// Gradient reads the gradient of tracked leaf id.
func (r *Result) Gradient(res backend.Results, id tensor.NodeID) ([]float32, error) {
	g, ok := r.Gradients[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d has no gradient", ErrNoBuffer, id)
	}
	return r.Read(res, g)
}

// Execute runs the program of r on b with placeholder data keyed by node id.
func Execute(ctx context.Context, b backend.Backend, r *Result, data map[tensor.NodeID][]float32) (backend.Results, error) {
	inputs, err := r.Inputs(data)
	if err != nil {
		return nil, err
	}
	res, err := b.Run(ctx, r.Program, inputs)
	if err != nil {
		return nil, fmt.Errorf("execute on %s: %w", b.Name(), err)
	}
	return res, nil
}
