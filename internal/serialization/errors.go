package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrOffsetOverlap     = errors.New("tensor offsets overlap")
	ErrOutOfBounds       = errors.New("tensor extends beyond data section")
	ErrNegativeOffset    = errors.New("negative offset or size")
	ErrTooManyTensors    = errors.New("too many tensors in file")
	ErrInvalidTensorName = errors.New("invalid tensor name")
	ErrHeaderTooLarge    = errors.New("header exceeds maximum size")
	ErrUnsupportedDType  = errors.New("unsupported dtype")
	ErrShapeMismatch     = errors.New("shape does not match data size")
)

// ValidationError describes a header entry that failed validation.
type ValidationError struct {
	Tensor  string // primary tensor
	Tensor2 string // second tensor of an overlap
	Err     error
	Details string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%v: tensors %q and %q: %s", e.Err, e.Tensor, e.Tensor2, e.Details)
	}
	return fmt.Sprintf("%v: tensor %q: %s", e.Err, e.Tensor, e.Details)
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error { return e.Err }
