package main

import (
	"fmt"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/backend/cpu"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/parallel"
)

// openBackend returns the named backend and a function releasing it.
func openBackend(name string, log logger.Logger) (backend.Backend, func(), error) {
	switch name {
	case "cpu", "":
		b := cpu.New(cpu.WithParallel(parallel.DefaultConfig()), cpu.WithLogger(log))
		return b, func() {}, nil
	case "webgpu":
		return openWebGPU(log)
	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q", backend.ErrUnavailable, name)
	}
}
