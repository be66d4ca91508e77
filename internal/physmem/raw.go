package physmem

import (
	"fmt"
	"math"
	"unsafe"
)

// Raw resolves physical addresses directly in the current address space. It
// is only meaningful on a target where physical memory is identity mapped,
// such as a kernel right after the bootloader handed over control.
//
// Raw performs no validation beyond rejecting the nil address and ranges that
// wrap around. Windows over unmapped memory fault on first access.
type Raw struct{}

func (Raw) Window(addr, size uint64) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("%w: nil address", ErrOutOfRange)
	}
	if size > math.MaxInt || addr > math.MaxUint64-size || uint64(uintptr(addr)) != addr {
		return nil, fmt.Errorf("%w: [%#x, +%#x) wraps the address space", ErrOutOfRange, addr, size)
	}
	if size == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), int(size)), nil
}
