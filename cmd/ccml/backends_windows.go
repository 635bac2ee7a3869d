//go:build windows

package main

import (
	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/backend/webgpu"
	"github.com/born-ml/ccml/internal/logger"
)

func openWebGPU(log logger.Logger) (backend.Backend, func(), error) {
	b, err := webgpu.New(log)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Release, nil
}
