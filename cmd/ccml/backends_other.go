//go:build !windows

package main

import (
	"fmt"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/logger"
)

func openWebGPU(logger.Logger) (backend.Backend, func(), error) {
	return nil, nil, fmt.Errorf("webgpu: %w: built without the WebGPU adapter", backend.ErrUnavailable)
}
