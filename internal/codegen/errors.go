package codegen

import "errors"

// Common errors.
var (
	ErrUnknownOp      = errors.New("unknown operation")
	ErrUnmaterialized = errors.New("value read across kernels has no buffer")
	ErrUnknownPolicy  = errors.New("unknown fusion policy")
	ErrUnknownDialect = errors.New("unknown dialect")
	ErrMalformedSlice = errors.New("malformed kernel slice")
)
