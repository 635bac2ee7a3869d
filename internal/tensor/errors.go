package tensor

import "errors"

// Common errors.
var (
	ErrInvalidShape       = errors.New("invalid shape")
	ErrBroadcast          = errors.New("incompatible dimensions for broadcasting")
	ErrReshapeSize        = errors.New("reshaped and source tensor must have the same size")
	ErrInvalidAxes        = errors.New("invalid summed axes")
	ErrInvalidPermutation = errors.New("invalid permutation")
	ErrTypeMismatch       = errors.New("operand element types differ")
	ErrUnknownNode        = errors.New("unknown node")
	ErrUnknownDataType    = errors.New("unknown data type")
	ErrDataSize           = errors.New("data length does not match tensor size")
	ErrNotLeaf            = errors.New("data can only be set on leaf tensors")
	ErrNotMatrix          = errors.New("tensor must be a matrix")
	ErrMatMulShape        = errors.New("inner matrix dimensions differ")
)
