// Package graphspec reads graph descriptions written in YAML or JSON and
// builds them into a tensor Context.
//
//	dtype: float32
//	root: loss
//	tensors:
//	  - {name: x, shape: [2, 3], grad: true}
//	  - {name: w, shape: [3, 1], fill: 0.5}
//	ops:
//	  - {name: y, op: matmul, args: [x, w]}
//	  - {name: loss, op: sum, args: [y], axes: [0, 1]}
//
// Tensors with data or fill are constants; the rest are placeholders fed
// at run time.
package graphspec

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/ccml/internal/tensor"
)

// Common errors.
var (
	ErrUnknownName   = errors.New("unknown tensor name")
	ErrDuplicateName = errors.New("duplicate tensor name")
	ErrUnknownOp     = errors.New("unknown op")
	ErrArity         = errors.New("wrong number of arguments")
	ErrNoRoot        = errors.New("root is not set")
)

// Spec is a parsed graph description.
type Spec struct {
	DType   string   `yaml:"dtype" json:"dtype"`
	Root    string   `yaml:"root" json:"root"`
	Tensors []Tensor `yaml:"tensors" json:"tensors"`
	Ops     []Op     `yaml:"ops" json:"ops"`
}

// Tensor declares a leaf.
type Tensor struct {
	Name  string    `yaml:"name" json:"name"`
	Shape []int     `yaml:"shape" json:"shape"`
	Grad  bool      `yaml:"grad" json:"grad"`
	Data  []float32 `yaml:"data,omitempty" json:"data,omitempty"`
	Fill  *float32  `yaml:"fill,omitempty" json:"fill,omitempty"`
}

// Op declares a computed node.
type Op struct {
	Name  string   `yaml:"name" json:"name"`
	Op    string   `yaml:"op" json:"op"`
	Args  []string `yaml:"args" json:"args"`
	Axes  []int    `yaml:"axes,omitempty" json:"axes,omitempty"`
	Shape []int    `yaml:"shape,omitempty" json:"shape,omitempty"`
	Perm  []int    `yaml:"perm,omitempty" json:"perm,omitempty"`
	Axis  int      `yaml:"axis,omitempty" json:"axis,omitempty"`
}

// Parse decodes a description. Documents starting with '{' are JSON,
// anything else is YAML.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("graphspec: json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("graphspec: yaml: %w", err)
	}
	if s.Root == "" {
		return nil, ErrNoRoot
	}
	return &s, nil
}

// ReadFile parses the description stored at path.
func ReadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphspec: %w", err)
	}
	return Parse(data)
}

// Built maps the names of a description to the nodes created for them.
type Built struct {
	Root         tensor.NodeID
	Nodes        map[string]tensor.NodeID
	Placeholders []string // in declaration order
}

// Build creates every tensor and op of s in ctx.
func (s *Spec) Build(ctx *tensor.Context) (*Built, error) {
	dtype, err := tensor.ParseDataType(s.DType)
	if err != nil {
		return nil, fmt.Errorf("graphspec: %w", err)
	}
	b := &Built{Root: tensor.NoNode, Nodes: make(map[string]tensor.NodeID)}

	for _, t := range s.Tensors {
		if err := b.declare(t.Name); err != nil {
			return nil, err
		}
		shape, err := tensor.NewShape(t.Shape...)
		if err != nil {
			return nil, fmt.Errorf("graphspec: tensor %s: %w", t.Name, err)
		}
		id, err := ctx.NewTensor(dtype, shape, t.Grad)
		if err != nil {
			return nil, fmt.Errorf("graphspec: tensor %s: %w", t.Name, err)
		}
		switch {
		case t.Data != nil:
			err = ctx.Set(id, t.Data)
		case t.Fill != nil:
			err = ctx.Fill(id, *t.Fill)
		default:
			b.Placeholders = append(b.Placeholders, t.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("graphspec: tensor %s: %w", t.Name, err)
		}
		b.Nodes[t.Name] = id
	}

	for _, op := range s.Ops {
		if err := b.declare(op.Name); err != nil {
			return nil, err
		}
		args := make([]tensor.NodeID, len(op.Args))
		for i, name := range op.Args {
			id, ok := b.Nodes[name]
			if !ok {
				return nil, fmt.Errorf("graphspec: op %s: %w: %q", op.Name, ErrUnknownName, name)
			}
			args[i] = id
		}
		id, err := apply(ctx, op, args)
		if err != nil {
			return nil, fmt.Errorf("graphspec: op %s: %w", op.Name, err)
		}
		b.Nodes[op.Name] = id
	}

	root, ok := b.Nodes[s.Root]
	if !ok {
		return nil, fmt.Errorf("graphspec: root: %w: %q", ErrUnknownName, s.Root)
	}
	b.Root = root
	return b, nil
}

func (b *Built) declare(name string) error {
	if name == "" {
		return fmt.Errorf("graphspec: %w: empty", ErrUnknownName)
	}
	if _, ok := b.Nodes[name]; ok {
		return fmt.Errorf("graphspec: %w: %q", ErrDuplicateName, name)
	}
	return nil
}

// Inputs converts placeholder data keyed by name.
func (b *Built) Inputs(data map[string][]float32) (map[tensor.NodeID][]float32, error) {
	out := make(map[tensor.NodeID][]float32, len(data))
	for name, values := range data {
		id, ok := b.Nodes[name]
		if !ok {
			return nil, fmt.Errorf("graphspec: input: %w: %q", ErrUnknownName, name)
		}
		out[id] = values
	}
	return out, nil
}

type (
	unaryFn  func(tensor.NodeID) (tensor.NodeID, error)
	binaryFn func(a, b tensor.NodeID) (tensor.NodeID, error)
)

func apply(ctx *tensor.Context, op Op, args []tensor.NodeID) (tensor.NodeID, error) {
	unary := map[string]unaryFn{
		"log": ctx.Log, "exp": ctx.Exp, "sin": ctx.Sin, "recip": ctx.Recip,
		"sqrt": ctx.Sqrt, "neg": ctx.Neg, "square": ctx.Square, "cos": ctx.Cos,
		"tanh": ctx.Tanh, "save": ctx.Save,
	}
	binary := map[string]binaryFn{
		"add": ctx.Add, "mul": ctx.Mul, "sub": ctx.Sub, "div": ctx.Div, "matmul": ctx.MatMul,
	}

	if f, ok := unary[op.Op]; ok {
		if len(args) != 1 {
			return tensor.NoNode, arity(op, 1)
		}
		return f(args[0])
	}
	if f, ok := binary[op.Op]; ok {
		if len(args) != 2 {
			return tensor.NoNode, arity(op, 2)
		}
		return f(args[0], args[1])
	}
	switch op.Op {
	case "sum", "reshape", "permute", "softmax":
		if len(args) != 1 {
			return tensor.NoNode, arity(op, 1)
		}
	default:
		return tensor.NoNode, fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
	}
	switch op.Op {
	case "sum":
		return ctx.Sum(args[0], op.Axes...)
	case "reshape":
		return ctx.Reshape(args[0], op.Shape...)
	case "permute":
		return ctx.Permute(args[0], op.Perm...)
	default:
		return ctx.SoftMax(args[0], op.Axis)
	}
}

func arity(op Op, want int) error {
	return fmt.Errorf("%w: %s takes %d, got %d", ErrArity, op.Op, want, len(op.Args))
}
