package serialization

import (
	"sort"
	"strings"
)

// validate checks names, dtypes and offsets of every entry against the
// data section size.
func validate(entries map[string]header, dataSize int64) error {
	type span struct {
		name       string
		start, end int64
	}
	spans := make([]span, 0, len(entries))
	for name, h := range entries {
		if err := validateName(name); err != nil {
			return err
		}
		dtype, err := parseDType(h.DType)
		if err != nil {
			return &ValidationError{Tensor: name, Err: ErrUnsupportedDType, Details: h.DType}
		}
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{Tensor: name, Err: ErrNegativeOffset, Details: "bad data_offsets"}
		}
		if end > dataSize {
			return &ValidationError{Tensor: name, Err: ErrOutOfBounds, Details: "data ends past the file"}
		}
		elems := int64(1)
		for _, d := range h.Shape {
			if d < 0 {
				return &ValidationError{Tensor: name, Err: ErrShapeMismatch, Details: "negative dimension"}
			}
			elems *= d
		}
		if elems*int64(dtype.Size()) != end-start {
			return &ValidationError{Tensor: name, Err: ErrShapeMismatch, Details: "byte range does not fit shape"}
		}
		spans = append(spans, span{name, start, end})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return &ValidationError{
				Tensor:  spans[i-1].name,
				Tensor2: spans[i].name,
				Err:     ErrOffsetOverlap,
				Details: "byte ranges intersect",
			}
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" || len(name) > MaxNameLength || strings.ContainsAny(name, "\x00\n") {
		return &ValidationError{Tensor: name, Err: ErrInvalidTensorName, Details: "name must be non-empty printable text"}
	}
	return nil
}
