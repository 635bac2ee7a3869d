package tensor

// Op tags the operation that produces a node.
type Op int

// Operation tags. Leaves are OpConst and OpLoad.
const (
	OpConst Op = iota
	OpLoad
	OpLog
	OpExp
	OpSin
	OpRecip
	OpSqrt
	OpAdd
	OpMul
	OpSum
	OpReshape
	OpPermute
	OpCopy
	OpSave
	numOps
)

var opNames = [numOps]string{
	OpConst:   "const",
	OpLoad:    "load",
	OpLog:     "log",
	OpExp:     "exp",
	OpSin:     "sin",
	OpRecip:   "recip",
	OpSqrt:    "sqrt",
	OpAdd:     "add",
	OpMul:     "mul",
	OpSum:     "sum",
	OpReshape: "reshape",
	OpPermute: "permute",
	OpCopy:    "copy",
	OpSave:    "save",
}

// String returns the lower-case op name.
func (op Op) String() string {
	if op < 0 || op >= numOps {
		return "unknown"
	}
	return opNames[op]
}

// Valid reports whether op is a known tag.
func (op Op) Valid() bool { return op >= 0 && op < numOps }

// IsLeaf reports whether op has no operands.
func (op Op) IsLeaf() bool { return op == OpConst || op == OpLoad }

// IsUnary reports whether op is an elementwise function of one operand.
func (op Op) IsUnary() bool { return op >= OpLog && op <= OpSqrt }

// IsBinary reports whether op is an elementwise function of two operands.
func (op Op) IsBinary() bool { return op == OpAdd || op == OpMul }

// IsView reports whether op relabels its operand without storage.
func (op Op) IsView() bool { return op == OpReshape || op == OpPermute }

// IsReduce reports whether op collapses axes.
func (op Op) IsReduce() bool { return op == OpSum }

// BufferClass tells code generation whether a node lives in device memory.
type BufferClass int

// Buffer classes.
const (
	// BufferNone nodes exist only as registers or views.
	BufferNone BufferClass = iota
	// BufferConst nodes are uploaded once from host data.
	BufferConst
	// BufferPerm nodes are inputs or results visible to the host.
	BufferPerm
	// BufferScratch nodes are intermediates that must be materialized.
	BufferScratch
)

// String returns the class name.
func (b BufferClass) String() string {
	switch b {
	case BufferNone:
		return "none"
	case BufferConst:
		return "const"
	case BufferPerm:
		return "perm"
	case BufferScratch:
		return "scratch"
	default:
		return "unknown"
	}
}
