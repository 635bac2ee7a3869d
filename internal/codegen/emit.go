package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/tensor"
)

// Source is the generated text of one kernel.
type Source struct {
	Kernel  string
	Dialect string
	Code    string
}

// Emitter prints kernels of one program in one dialect.
type Emitter struct {
	dialect Dialect
	prog    *ir.Program
	buf     *bytes.Buffer
	indent  int
}

// NewEmitter creates an emitter for p.
func NewEmitter(d Dialect, p *ir.Program) *Emitter {
	return &Emitter{dialect: d, prog: p, buf: &bytes.Buffer{}}
}

// Emit prints every kernel of p in dialect d.
func Emit(d Dialect, p *ir.Program) ([]Source, error) {
	e := NewEmitter(d, p)
	out := make([]Source, 0, len(p.Kernels))
	for _, k := range p.Kernels {
		code, err := e.EmitKernel(k)
		if err != nil {
			return nil, err
		}
		out = append(out, Source{Kernel: k.Name, Dialect: d.Name(), Code: code})
	}
	return out, nil
}

// EmitKernel returns the complete source of k, preamble included.
func (e *Emitter) EmitKernel(k *ir.Kernel) (string, error) {
	e.buf.Reset()
	e.indent = 0

	bufs := make([]*ir.Buffer, len(k.Params))
	for i, p := range k.Params {
		b := e.prog.Buffer(p.Buf)
		if b == nil {
			return "", fmt.Errorf("codegen: kernel %s: parameter %d has no buffer", k.Name, p.Buf)
		}
		bufs[i] = b
	}

	if pre := e.dialect.Preamble(k, bufs); pre != "" {
		e.buf.WriteString(pre)
	}
	sig, err := e.dialect.Signature(k, bufs)
	if err != nil {
		return "", err
	}
	e.buf.WriteString(sig)
	e.buf.WriteByte('\n')

	e.indent = 1
	for _, line := range e.dialect.Prologue(k) {
		e.line("%s", line)
	}
	e.stmts(k.Body)
	e.indent = 0
	e.line("}")
	return e.buf.String(), nil
}

func (e *Emitter) line(format string, args ...any) {
	e.buf.WriteString(strings.Repeat("    ", e.indent))
	fmt.Fprintf(e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *Emitter) stmts(body []ir.Stmt) {
	for _, s := range body {
		e.stmt(s)
	}
}

func (e *Emitter) stmt(s ir.Stmt) {
	switch s := s.(type) {
	case ir.Declare:
		e.line("%s", e.dialect.Declare(s.Reg))
	case ir.Assign:
		e.line("%s = %s;", s.Reg, e.expr(s.Value))
	case ir.Accumulate:
		e.line("%s += %s;", s.Reg, e.expr(s.Value))
	case ir.Store:
		e.line("%s", e.dialect.Store(ir.BufferName(s.Buf), s.Index.String(), e.expr(s.Value), e.dtype(s.Buf)))
	case ir.Guard:
		conds := make([]string, len(s.Conds))
		for i, c := range s.Conds {
			op := " < "
			if c.Op == ir.Equal {
				op = " == "
			}
			conds[i] = ir.FormatInt(c.X) + op + fmt.Sprint(c.N)
		}
		e.line("if (%s) {", strings.Join(conds, " && "))
		e.indent++
		e.stmts(s.Body)
		e.indent--
		e.line("}")
	case ir.Loop:
		e.line("%s", e.dialect.LoopHeader(s.Var, s.Count))
		e.indent++
		e.stmts(s.Body)
		e.indent--
		e.line("}")
	case ir.Alias:
		if a := e.dialect.Alias(ir.BufferName(s.View), ir.BufferName(s.Base), e.dtype(s.Base)); a != "" {
			e.line("%s", a)
		}
	default:
		panic(fmt.Sprintf("codegen: unknown statement %T", s))
	}
}

func (e *Emitter) expr(x ir.Expr) string {
	switch x := x.(type) {
	case ir.Lit:
		return e.dialect.Literal(float32(x))
	case ir.Reg:
		return string(x)
	case ir.Load:
		return e.dialect.Load(ir.BufferName(x.Buf), x.Index.String(), e.dtype(x.Buf))
	case ir.Unary:
		return e.dialect.Call(x.Op, e.expr(x.X))
	case ir.Binary:
		op := " + "
		if x.Op == tensor.OpMul {
			op = " * "
		}
		return "(" + e.expr(x.X) + op + e.expr(x.Y) + ")"
	default:
		panic(fmt.Sprintf("codegen: unknown expression %T", x))
	}
}

func (e *Emitter) dtype(buf int) tensor.DataType {
	if b := e.prog.Buffer(buf); b != nil {
		return b.DType
	}
	return e.prog.DType
}
