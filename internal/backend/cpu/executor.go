// Package cpu implements the reference backend: it interprets the kernel IR
// on the host, one goroutine chunk per range of work-items.
package cpu

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/parallel"
	"github.com/born-ml/ccml/internal/tensor"
)

// Backend runs programs on the CPU.
type Backend struct {
	cfg parallel.Config
	log logger.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithParallel sets the work-item scheduling.
func WithParallel(cfg parallel.Config) Option {
	return func(b *Backend) { b.cfg = cfg }
}

// WithLogger sets the logger used for per-kernel debug records.
func WithLogger(log logger.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// New creates a CPU backend.
func New(opts ...Option) *Backend {
	b := &Backend{cfg: parallel.DefaultConfig(), log: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "cpu"
}

// Run executes the kernels of p in order. Each kernel is a barrier: the
// next one starts after every work-item of the previous one finished.
func (b *Backend) Run(ctx context.Context, p *ir.Program, inputs map[int][]float32) (backend.Results, error) {
	bufs, err := backend.HostBuffers(p, inputs)
	if err != nil {
		return nil, err
	}
	dtypes := make(map[int]tensor.DataType, len(p.Buffers))
	for _, buf := range p.Buffers {
		dtypes[buf.ID] = buf.DType
	}

	for _, k := range p.Kernels {
		for _, prm := range k.Params {
			if _, ok := bufs[prm.Buf]; !ok {
				return nil, fmt.Errorf("cpu: kernel %s: %w: %s", k.Name, backend.ErrUnknownBuf, ir.BufferName(prm.Buf))
			}
		}
		b.log.Debug("dispatch", "kernel", k.Name, "grid", fmt.Sprintf("%dx%dx%d", k.Grid.X, k.Grid.Y, k.Grid.Z))

		s1 := k.Shape[1]
		frames := sync.Pool{New: func() any {
			return &frame{
				bufs:   bufs,
				dtypes: dtypes,
				regs:   make(map[string]float32),
				vars:   make(map[ir.Var]int, tensor.MaxDims+2),
			}
		}}
		err := parallel.ForGrid(ctx, k.Grid.X, k.Grid.Y, k.Grid.Z, func(gx, gy, gz int) {
			f := frames.Get().(*frame)
			f.vars["id0"] = gx / s1
			f.vars["id1"] = gx % s1
			f.vars["id2"] = gy
			f.vars["id3"] = gz
			f.exec(k.Body)
			clear(f.regs)
			frames.Put(f)
		}, b.cfg)
		if err != nil {
			return nil, fmt.Errorf("cpu: kernel %s: %w", k.Name, err)
		}
	}
	return bufs, nil
}

// frame is the private state of one work-item. Frames are pooled per
// kernel and reused by later work-items.
type frame struct {
	bufs   backend.Results
	dtypes map[int]tensor.DataType
	regs   map[string]float32
	vars   map[ir.Var]int
}

func (f *frame) lookup(v ir.Var) int { return f.vars[v] }

func (f *frame) exec(body []ir.Stmt) {
	for _, s := range body {
		switch s := s.(type) {
		case ir.Declare:
			f.regs[s.Reg] = 0
		case ir.Assign:
			f.regs[s.Reg] = f.eval(s.Value)
		case ir.Accumulate:
			f.regs[s.Reg] += f.eval(s.Value)
		case ir.Store:
			v := f.eval(s.Value)
			f.bufs[s.Buf][s.Index.Eval(f.lookup)] = f.dtypes[s.Buf].Round(v)
		case ir.Guard:
			if f.holds(s.Conds) {
				f.exec(s.Body)
			}
		case ir.Loop:
			v := ir.Var(s.Var)
			for i := range s.Count {
				f.vars[v] = i
				f.exec(s.Body)
			}
			delete(f.vars, v)
		case ir.Alias:
			// Loads through views already address the base buffer.
		default:
			panic(fmt.Sprintf("cpu: unknown statement %T", s))
		}
	}
}

func (f *frame) holds(conds []ir.Cond) bool {
	for _, c := range conds {
		x := ir.EvalInt(c.X, f.lookup)
		switch c.Op {
		case ir.Less:
			if x >= c.N {
				return false
			}
		case ir.Equal:
			if x != c.N {
				return false
			}
		}
	}
	return true
}

func (f *frame) eval(e ir.Expr) float32 {
	switch e := e.(type) {
	case ir.Lit:
		return float32(e)
	case ir.Reg:
		return f.regs[string(e)]
	case ir.Load:
		return f.bufs[e.Buf][e.Index.Eval(f.lookup)]
	case ir.Unary:
		return unary(e.Op, f.eval(e.X))
	case ir.Binary:
		x, y := f.eval(e.X), f.eval(e.Y)
		if e.Op == tensor.OpMul {
			return x * y
		}
		return x + y
	default:
		panic(fmt.Sprintf("cpu: unknown expression %T", e))
	}
}

func unary(op tensor.Op, x float32) float32 {
	switch op {
	case tensor.OpLog:
		return float32(math.Log(float64(x)))
	case tensor.OpExp:
		return float32(math.Exp(float64(x)))
	case tensor.OpSin:
		return float32(math.Sin(float64(x)))
	case tensor.OpRecip:
		return 1 / x
	case tensor.OpSqrt:
		return float32(math.Sqrt(float64(x)))
	default:
		panic(fmt.Sprintf("cpu: unknown unary op %s", op))
	}
}
