// Package tensor provides the node model of the ccml compiler: element
// types, four-axis shapes, operation tags and the Context that creates nodes.
package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// DataType represents the element type of a tensor node.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float16
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// Round converts v to the nearest value representable by the element type.
// Host data is always held as float32; half tensors keep it pre-rounded.
func (dt DataType) Round(v float32) float32 {
	if dt == Float16 {
		return float16.Fromfloat32(v).Float32()
	}
	return v
}

// ParseDataType parses the names produced by String, plus the short forms
// "f32" and "f16".
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "float32", "f32", "":
		return Float32, nil
	case "float16", "f16", "half":
		return Float16, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDataType, name)
	}
}
