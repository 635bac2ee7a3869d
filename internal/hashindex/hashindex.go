// Package hashindex implements the fixed-capacity open-addressing table the
// graph builder uses for node identity and CSE signatures.
package hashindex

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/born-ml/ccml/internal/arena"
)

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

// ErrFull is returned when every slot is occupied.
var ErrFull = errors.New("hash index full")

type slot struct {
	key   uint64
	value int32
	used  bool
}

// Index maps integer keys to int32 values with linear probing.
// Its table is carved out of an arena and never grows.
type Index struct {
	slots []slot
	mask  uint64
	count int
}

// New allocates a table with at least capacity slots, rounded up to a power of two.
func New(a *arena.Arena, capacity int) (*Index, error) {
	size := 1
	for size < capacity {
		size <<= 1
	}
	slotSize := int(unsafe.Sizeof(slot{}))
	mem, err := a.Alloc(size * slotSize)
	if err != nil {
		return nil, fmt.Errorf("hashindex: table of %d slots: %w", size, err)
	}
	//nolint:gosec // G103: arena memory is zeroed and MaxAlign aligned
	slots := unsafe.Slice((*slot)(unsafe.Pointer(&mem[0])), size)
	return &Index{slots: slots, mask: uint64(size - 1)}, nil
}

// Hash mixes an integer key in the style of FNV-1a.
func Hash(key uint64) uint64 {
	return (fnvOffset ^ key) * fnvPrime
}

// Get returns the value stored for key.
func (x *Index) Get(key uint64) (int32, bool) {
	i := Hash(key) & x.mask
	for range x.slots {
		s := &x.slots[i]
		if !s.used {
			return 0, false
		}
		if s.key == key {
			return s.value, true
		}
		i = (i + 1) & x.mask
	}
	return 0, false
}

// Has reports whether key is present.
func (x *Index) Has(key uint64) bool {
	_, ok := x.Get(key)
	return ok
}

// Set stores value for key, replacing an existing entry.
func (x *Index) Set(key uint64, value int32) error {
	i := Hash(key) & x.mask
	for range x.slots {
		s := &x.slots[i]
		if !s.used {
			*s = slot{key: key, value: value, used: true}
			x.count++
			return nil
		}
		if s.key == key {
			s.value = value
			return nil
		}
		i = (i + 1) & x.mask
	}
	return fmt.Errorf("%w: %d slots", ErrFull, len(x.slots))
}

// Len returns the number of stored keys.
func (x *Index) Len() int { return x.count }

// Cap returns the number of slots.
func (x *Index) Cap() int { return len(x.slots) }

// Reset clears every slot.
func (x *Index) Reset() {
	clear(x.slots)
	x.count = 0
}
