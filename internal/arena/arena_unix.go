//go:build unix

package arena

import "golang.org/x/sys/unix"

// reserve maps an anonymous private region. Pages are zeroed by the kernel
// and page aligned, which satisfies MaxAlign.
func reserve(capacity int) ([]byte, func([]byte) error, error) {
	block, err := unix.Mmap(-1, 0, capacity,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return block, unix.Munmap, nil
}
