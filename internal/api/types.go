package api

import (
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/graphspec"
)

// CompileRequest asks for the kernels of a graph.
type CompileRequest struct {
	Graph      graphspec.Spec `json:"graph"`
	Dialect    string         `json:"dialect,omitempty"` // a dialect name or "all"
	Fusion     string         `json:"fusion,omitempty"`
	KernelName string         `json:"kernel_name,omitempty"`
}

// CompileResponse carries one manifest per requested dialect.
type CompileResponse struct {
	ID        string              `json:"id"`
	Nodes     int                 `json:"nodes"`
	Rewritten int                 `json:"rewritten"`
	Manifests []*codegen.Manifest `json:"manifests"`
}

// RunRequest compiles a graph and evaluates it on the server backend.
type RunRequest struct {
	Graph  graphspec.Spec       `json:"graph"`
	Inputs map[string][]float32 `json:"inputs,omitempty"`
	Fusion string               `json:"fusion,omitempty"`
}

// RunResponse holds the root values and the gradient of every tracked tensor.
type RunResponse struct {
	ID        string               `json:"id"`
	Backend   string               `json:"backend"`
	Root      []float32            `json:"root"`
	Gradients map[string][]float32 `json:"gradients,omitempty"`
}

// ResponseError is the body of every failed request.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
