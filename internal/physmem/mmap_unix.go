//go:build unix

package physmem

import (
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping is a memory image file mapped into the process with mmap. The
// mapping is shared, so writes through a writable Mapping land in the file.
type Mapping struct {
	*Buffer

	data     []byte
	writable bool
}

// MapFile maps the whole of path at physical address base.
func MapFile(path string, base uint64, writable bool) (*Mapping, error) {
	flag := os.O_RDONLY
	prot := unix.PROT_READ
	if writable {
		flag = os.O_RDWR
		prot |= unix.PROT_WRITE
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open memory image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat memory image: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("memory image %q is empty", path)
	}
	if info.Size() > math.MaxInt {
		return nil, fmt.Errorf("memory image %q too large to map (%d bytes)", path, info.Size())
	}
	if uint64(info.Size()) > math.MaxUint64-base {
		return nil, fmt.Errorf("memory image %q at %#x wraps the address space", path, base)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap memory image: %w", err)
	}

	return &Mapping{
		Buffer:   BufferFrom(base, data),
		data:     data,
		writable: writable,
	}, nil
}

// WriteAt implements io.WriterAt. It fails on read-only mappings instead of
// faulting.
func (m *Mapping) WriteAt(p []byte, off int64) (int, error) {
	if !m.writable {
		return 0, errors.New("memory image is mapped read-only")
	}
	return m.Buffer.WriteAt(p, off)
}

// Close unmaps the image. Windows obtained from the mapping must not be used
// afterwards.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	m.Buffer = BufferFrom(m.Buffer.base, nil)
	if err != nil {
		return fmt.Errorf("munmap memory image: %w", err)
	}
	return nil
}
