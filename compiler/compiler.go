// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package compiler turns a tensor graph into GPU kernel source.
//
// Compile runs the whole pipeline on a root node: graph construction,
// reverse-mode differentiation, common subexpression elimination, kernel
// planning and lowering. The Result prints its kernels in any supported
// dialect or runs them on a Backend.
//
// Example:
//
//	r, err := compiler.Compile(ctx, loss, compiler.Options{Policy: compiler.SplitAtReduce})
//	if err != nil {
//	    return err
//	}
//	srcs, err := r.Emit(compiler.Metal)
package compiler

import (
	"context"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/tensor"
)

// Options configures Compile.
type Options = compiler.Options

// Result is a compiled graph.
type Result = compiler.Result

// Backend runs compiled programs.
type Backend = backend.Backend

// Results holds the final buffer contents of a run.
type Results = backend.Results

// Policy decides where kernels are split.
type Policy = codegen.Policy

// Fusion policies.
const (
	FuseAll       = codegen.FuseAll
	SplitAtReduce = codegen.SplitAtReduce
)

// Dialect is a kernel language.
type Dialect = codegen.Dialect

// Supported dialects.
var (
	Metal  Dialect = codegen.Metal{}
	OpenCL Dialect = codegen.OpenCL{}
	CUDA   Dialect = codegen.CUDA{}
	WGSL   Dialect = codegen.WGSL{}
)

// Source is the printed code of one kernel.
type Source = codegen.Source

// Manifest describes buffers and dispatches of a program for a platform adapter.
type Manifest = codegen.Manifest

// ErrNoBuffer is returned when reading a node that owns no buffer.
var ErrNoBuffer = compiler.ErrNoBuffer

// Compile builds, differentiates, optimizes and lowers the graph of root.
func Compile(ctx *tensor.Context, root tensor.NodeID, opts Options) (*Result, error) {
	return compiler.Compile(ctx, root, opts)
}

// Execute runs r on b. data fills placeholder tensors, keyed by node.
func Execute(ctx context.Context, b Backend, r *Result, data map[tensor.NodeID][]float32) (Results, error) {
	return compiler.Execute(ctx, b, r, data)
}

// DialectByName resolves "metal", "opencl", "cuda" or "wgsl".
func DialectByName(name string) (Dialect, error) {
	return codegen.DialectByName(name)
}
