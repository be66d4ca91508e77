// Package stivale reads the stivale boot protocol structures a bootloader
// leaves in memory for a freshly started kernel, and describes the header a
// kernel embeds so the bootloader can discover its requirements.
//
// Every type in this package is a view: it wraps a window of the memory the
// bootloader wrote and decodes fields on each access. Nothing is copied up
// front. The bootloader finishes writing before control is transferred and the
// memory is never modified afterwards, so views may be shared freely between
// goroutines or processors without locking. The memory must outlive every view
// and iterator derived from it.
package stivale

import (
	"errors"

	"github.com/tinyrange/stivale/internal/physmem"
)

// Signature is the value ("stivale!") a stivale bootloader passes alongside
// the boot info address. Check it before calling Load.
const Signature uint64 = 0x73746976616c6521

// CheckSignature reports whether v identifies a stivale handoff.
func CheckSignature(v uint64) bool {
	return v == Signature
}

// Memory resolves physical address ranges to byte windows.
//
// Window returns the bytes backing [addr, addr+size) without copying them, or
// an error wrapping ErrOutOfRange when the range is not backed.
type Memory interface {
	Window(addr, size uint64) ([]byte, error)
}

var (
	// ErrOutOfRange reports a physical range that the Memory cannot resolve.
	ErrOutOfRange = physmem.ErrOutOfRange

	// ErrNilAddress is returned when a structure would have to be read from
	// address zero.
	ErrNilAddress = errors.New("stivale: nil address")

	// ErrUnterminatedCmdline is returned when no NUL terminator is found
	// within MaxCmdlineLen bytes of the command line pointer.
	ErrUnterminatedCmdline = errors.New("stivale: command line not terminated")

	// ErrModuleListTruncated is returned by ModuleIter.Err when the linked
	// list ends before the advertised module count was reached.
	ErrModuleListTruncated = errors.New("stivale: module list shorter than module count")
)

// NewMemory maps data at physical address base. It is mostly useful for
// reading boot info out of a memory dump or a test fixture.
func NewMemory(base uint64, data []byte) Memory {
	return physmem.BufferFrom(base, data)
}

// LoadAddr overlays the boot info structure at addr in the current address
// space.
//
// LoadAddr is inherently unsafe: addr must be the pointer a stivale bootloader
// handed over (after the signature was checked) and physical memory must be
// identity mapped. Nothing about the structure can be validated; a bad address
// faults or yields garbage. It panics only for a zero address.
func LoadAddr(addr uintptr) *Info {
	info, err := Load(physmem.Raw{}, uint64(addr))
	if err != nil {
		panic(err)
	}
	return info
}
