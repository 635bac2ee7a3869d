//go:build !unix

package arena

import "unsafe"

func reserve(capacity int) ([]byte, func([]byte) error, error) {
	raw := make([]byte, capacity+MaxAlign)
	//nolint:gosec // G103: address only used to compute the aligned start
	shift := int(-uintptr(unsafe.Pointer(&raw[0])) & (MaxAlign - 1))
	return raw[shift : shift+capacity : shift+capacity], nil, nil
}
