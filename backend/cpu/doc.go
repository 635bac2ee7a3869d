// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu runs compiled programs without a GPU.
//
// # Overview
//
// The backend interprets the kernel IR directly: every kernel is executed
// once per grid work item, the same way a GPU dispatch would run it.
// Work items are spread over goroutines and the outputs match the GPU
// kernels up to float rounding. Half precision buffers round every stored
// value to float16.
//
// # Thread Safety
//
// A Backend has no mutable state and may run several programs at once.
package cpu
