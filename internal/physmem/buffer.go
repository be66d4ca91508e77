// Package physmem provides physical memory backends that hand out zero-copy
// windows over guest or host memory.
package physmem

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a requested address range is not backed by
// the memory.
var ErrOutOfRange = errors.New("address range not backed by memory")

// Buffer is a flat byte slice mapped at a physical base address. Offsets passed
// to ReadAt and WriteAt are physical addresses, not slice indices.
type Buffer struct {
	base uint64
	mem  []byte
}

// NewBuffer allocates size bytes of zeroed memory at base.
func NewBuffer(base, size uint64) *Buffer {
	return &Buffer{base: base, mem: make([]byte, size)}
}

// BufferFrom maps data at base without copying it.
func BufferFrom(base uint64, data []byte) *Buffer {
	return &Buffer{base: base, mem: data}
}

func (b *Buffer) MemoryBase() uint64 { return b.base }
func (b *Buffer) MemorySize() uint64 { return uint64(len(b.mem)) }

// Bytes returns the backing slice.
func (b *Buffer) Bytes() []byte { return b.mem }

func (b *Buffer) translate(addr, size uint64) (int, error) {
	if addr < b.base {
		return 0, fmt.Errorf("%w: [%#x, +%#x) below memory base %#x", ErrOutOfRange, addr, size, b.base)
	}
	off := addr - b.base
	if off > uint64(len(b.mem)) || size > uint64(len(b.mem))-off {
		return 0, fmt.Errorf("%w: [%#x, +%#x) past memory end %#x", ErrOutOfRange, addr, size, b.base+uint64(len(b.mem)))
	}
	return int(off), nil
}

// Window returns the bytes backing [addr, addr+size). The returned slice
// aliases the buffer and is capped so appends cannot spill into neighbouring
// memory.
func (b *Buffer) Window(addr, size uint64) ([]byte, error) {
	off, err := b.translate(addr, size)
	if err != nil {
		return nil, err
	}
	end := off + int(size)
	return b.mem[off:end:end], nil
}

// ReadAt implements io.ReaderAt.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	idx, err := b.translate(uint64(off), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, b.mem[idx:]), nil
}

// WriteAt implements io.WriterAt.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	idx, err := b.translate(uint64(off), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(b.mem[idx:], p), nil
}
