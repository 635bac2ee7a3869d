// Package arena provides the bump allocator that owns every node record,
// index table and constant buffer of one compilation.
package arena

import (
	"errors"
	"fmt"
	"unsafe"
)

// MaxAlign is the alignment of every allocation returned by Alloc.
const MaxAlign = 16

// Common errors.
var (
	ErrExhausted       = errors.New("arena exhausted")
	ErrReleased        = errors.New("arena already released")
	ErrInvalidCapacity = errors.New("invalid arena capacity")
	ErrInvalidSize     = errors.New("invalid allocation size")
)

// Arena is a fixed-capacity bump allocator.
//
// Allocations are never freed individually. The whole block is returned to
// the system by Release. An Arena is owned by a single goroutine.
type Arena struct {
	block    []byte
	used     int
	released bool
	unmap    func([]byte) error
}

// New reserves a block of capacity bytes.
func New(capacity int) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	block, unmap, err := reserve(capacity)
	if err != nil {
		return nil, fmt.Errorf("arena: reserve %d bytes: %w", capacity, err)
	}
	return &Arena{block: block, unmap: unmap}, nil
}

// Alloc returns size zeroed bytes rounded up to MaxAlign.
// It fails with ErrExhausted when the request does not fit.
func (a *Arena) Alloc(size int) ([]byte, error) {
	if a.released {
		return nil, ErrReleased
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	rounded := alignUp(size)
	if rounded > len(a.block)-a.used {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrExhausted, rounded, a.used, len(a.block))
	}
	mem := a.block[a.used : a.used+size : a.used+rounded]
	a.used += rounded
	return mem, nil
}

// Charge accounts size bytes against the capacity without handing out memory.
// Node records live in a Go slice but still count toward the arena bound.
func (a *Arena) Charge(size int) error {
	_, err := a.Alloc(size)
	return err
}

// Float32s carves a slice of n float32 values out of the arena.
func (a *Arena) Float32s(n int) ([]float32, error) {
	if n == 0 {
		return []float32{}, nil
	}
	mem, err := a.Alloc(n * 4)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G103: block is MaxAlign aligned and sized for n float32 values
	return unsafe.Slice((*float32)(unsafe.Pointer(&mem[0])), n), nil
}

// Used reports the bytes consumed so far, including alignment padding.
func (a *Arena) Used() int { return a.used }

// Capacity reports the total size of the block.
func (a *Arena) Capacity() int { return len(a.block) }

// Available reports the bytes left.
func (a *Arena) Available() int { return len(a.block) - a.used }

// Release returns the block. Slices handed out earlier must not be used afterwards.
func (a *Arena) Release() error {
	if a.released {
		return ErrReleased
	}
	a.released = true
	block := a.block
	a.block = nil
	a.used = 0
	if a.unmap != nil {
		return a.unmap(block)
	}
	return nil
}

func alignUp(n int) int {
	return (n + MaxAlign - 1) &^ (MaxAlign - 1)
}
