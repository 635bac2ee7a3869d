// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/ccml/internal/backend/cpu"
	"github.com/born-ml/ccml/internal/parallel"
)

// Backend interprets compiled programs on the host.
type Backend = internalcpu.Backend

// Option configures a Backend.
type Option = internalcpu.Option

// WithWorkers spreads the work items of each kernel over n goroutines.
// n <= 1 runs them sequentially.
func WithWorkers(n int) Option {
	cfg := parallel.DefaultConfig()
	if n <= 1 {
		cfg = parallel.Sequential()
	} else {
		cfg.Enabled = true
		cfg.NumWorkers = n
	}
	return internalcpu.WithParallel(cfg)
}

// New creates a CPU backend.
//
// Example:
//
//	r, _ := compiler.Compile(ctx, root, compiler.Options{})
//	res, err := compiler.Execute(context.Background(), cpu.New(), r, nil)
func New(opts ...Option) *Backend {
	return internalcpu.New(opts...)
}
