package main

import (
	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/compiler"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/serialization"
)

// programTensors names the buffers of r the way kernels bind them. With
// values nil only buffers that carry initial data are included.
func programTensors(r *compiler.Result, values backend.Results) map[string]serialization.Tensor {
	out := make(map[string]serialization.Tensor)
	for _, b := range r.Program.Buffers {
		data := b.Init
		if values != nil {
			data = values[b.ID]
		}
		if data == nil {
			continue
		}
		out[ir.BufferName(b.ID)] = serialization.Tensor{
			DType: b.DType,
			Shape: r.Graph.Node(b.Node).Shape.Dims(),
			Data:  data,
		}
	}
	return out
}
