// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor builds lazy tensor graphs for the ccml compiler.
//
// # Overview
//
// A Context records tensor nodes in an arena. Nothing is computed while the
// graph is built; operations only check shapes and append nodes:
//   - leaves: NewTensor, Full, Scalar
//   - elementwise: Log, Exp, Sin, Recip, Sqrt, Add, Mul and their compositions
//   - reductions: Sum over any subset of the four axes
//   - views: Reshape and Permute, which never copy data
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/ccml/compiler"
//	    "github.com/born-ml/ccml/tensor"
//	)
//
//	func main() {
//	    ctx, err := tensor.New(1 << 20)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Arena().Release()
//
//	    a, _ := ctx.New2D(tensor.Float32, 2, 3, true)
//	    b, _ := ctx.Full(tensor.Float32, tensor.MustShape(3, 4), 1)
//	    c, _ := ctx.MatMul(a, b)
//
//	    r, _ := compiler.Compile(ctx, c, compiler.Options{})
//	}
//
// # Limits
//
// Tensors have at most four axes. Shapes broadcast positionally: a
// dimension of 1 stretches to match the other operand.
package tensor
