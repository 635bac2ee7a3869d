package codegen

import (
	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/ccml/internal/ir"
)

// Manifest is what a platform adapter needs to run a program: kernel
// sources, dispatch sizes, the slot of every bound buffer, and buffer
// sizes with the host data of constants.
type Manifest struct {
	Dialect string                                          `json:"dialect"`
	DType   string                                          `json:"dtype"`
	Kernels []KernelManifest                                `json:"kernels"`
	Buffers *orderedmap.OrderedMap[string, BufferManifest] `json:"buffers"`
}

// KernelManifest describes one dispatch.
type KernelManifest struct {
	Name   string          `json:"name"`
	Source string          `json:"source"`
	Grid   [3]int          `json:"grid"`
	Params []ParamManifest `json:"params"`
}

// ParamManifest binds a buffer to an argument slot.
type ParamManifest struct {
	Slot   int    `json:"slot"`
	Buffer string `json:"buffer"`
}

// BufferManifest describes one device allocation.
type BufferManifest struct {
	Node     int       `json:"node"`
	Elements int       `json:"elements"`
	DType    string    `json:"dtype"`
	Class    string    `json:"class"`
	Init     []float32 `json:"init,omitempty"`
}

// NewManifest prints p in dialect d and collects the adapter metadata.
func NewManifest(d Dialect, p *ir.Program) (*Manifest, error) {
	sources, err := Emit(d, p)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Dialect: d.Name(),
		DType:   p.DType.String(),
		Kernels: make([]KernelManifest, len(p.Kernels)),
		Buffers: orderedmap.New[string, BufferManifest](),
	}
	for i, k := range p.Kernels {
		km := KernelManifest{
			Name:   k.Name,
			Source: sources[i].Code,
			Grid:   [3]int{k.Grid.X, k.Grid.Y, k.Grid.Z},
			Params: make([]ParamManifest, len(k.Params)),
		}
		for j, prm := range k.Params {
			km.Params[j] = ParamManifest{Slot: prm.Slot, Buffer: ir.BufferName(prm.Buf)}
		}
		m.Kernels[i] = km
	}
	for _, b := range p.Buffers {
		m.Buffers.Set(ir.BufferName(b.ID), BufferManifest{
			Node:     int(b.Node),
			Elements: b.Elements,
			DType:    b.DType.String(),
			Class:    b.Class.String(),
			Init:     b.Init,
		})
	}
	return m, nil
}

// Marshal encodes the manifest as indented JSON with buffers in id order.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalManifest decodes a manifest produced by Marshal.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Buffers: orderedmap.New[string, BufferManifest]()}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
