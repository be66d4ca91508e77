package stivale

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"time"

	"github.com/tinyrange/stivale/internal/wire"
)

// MaxCmdlineLen bounds the command line scan. The protocol sets no limit, so
// a missing terminator is reported instead of reading indefinitely.
const MaxCmdlineLen = 4096

const cmdlineChunk = 256

// Info is a view of the root boot info structure.
type Info struct {
	mem  Memory
	addr uint64
	raw  []byte
}

// Load interprets addr as a stivale boot info structure in mem. It fails when
// addr is zero or the structure is not backed by mem. That the bytes really
// are a live boot info structure is a precondition the caller upholds.
func Load(mem Memory, addr uint64) (*Info, error) {
	if addr == 0 {
		return nil, fmt.Errorf("load boot info: %w", ErrNilAddress)
	}
	raw, err := mem.Window(addr, wire.InfoSize)
	if err != nil {
		return nil, fmt.Errorf("load boot info at %#x: %w", addr, err)
	}
	return &Info{mem: mem, addr: addr, raw: raw}, nil
}

func (i *Info) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(i.raw[off : off+8])
}

// Addr returns the physical address of the structure.
func (i *Info) Addr() uint64 { return i.addr }

// Raw pointers and counts as written by the bootloader. Addresses are
// physical; zero means absent.
func (i *Info) CmdlineAddr() uint64    { return i.u64(wire.InfoCmdlineOffset) }
func (i *Info) MemoryMapAddr() uint64  { return i.u64(wire.InfoMemoryMapOffset) }
func (i *Info) MemoryMapCount() uint64 { return i.u64(wire.InfoMemoryMapCountOffset) }
func (i *Info) ModuleCount() uint64    { return i.u64(wire.InfoModuleCountOffset) }
func (i *Info) ModuleListAddr() uint64 { return i.u64(wire.InfoModulesOffset) }

// RSDP returns the physical address of the ACPI root system description
// pointer, or zero if the bootloader did not find one.
func (i *Info) RSDP() uint64 { return i.u64(wire.InfoRSDPOffset) }

// Epoch returns the UNIX time at boot as reported by the bootloader.
func (i *Info) Epoch() uint64 { return i.u64(wire.InfoEpochOffset) }

// BootTime returns Epoch as a UTC time.
func (i *Info) BootTime() time.Time {
	return time.Unix(int64(i.Epoch()), 0).UTC()
}

// Flags returns the informational bits set by the bootloader.
func (i *Info) Flags() Flags { return Flags(i.u64(wire.InfoFlagsOffset)) }

// Framebuffer returns a view of the framebuffer description embedded in the
// structure. Its fields are meaningless unless the kernel header requested a
// framebuffer.
func (i *Info) Framebuffer() Framebuffer {
	return Framebuffer{raw: i.raw[wire.InfoFramebufferOffset : wire.InfoFramebufferOffset+wire.FramebufferSize]}
}

// Cmdline returns the NUL terminated command line. ok is false when the
// pointer is zero or the command line is empty. A command line without a
// terminator in its first MaxCmdlineLen bytes yields ErrUnterminatedCmdline.
func (i *Info) Cmdline() (cmdline string, ok bool, err error) {
	addr := i.CmdlineAddr()
	if addr == 0 {
		return "", false, nil
	}
	b, err := readCString(i.mem, addr, MaxCmdlineLen)
	if err != nil {
		return "", false, fmt.Errorf("read command line at %#x: %w", addr, err)
	}
	if len(b) == 0 {
		return "", false, nil
	}
	return string(b), true, nil
}

// readCString collects bytes at addr up to the first NUL. Ranges that cannot
// be resolved in one window are retried a byte at a time so a string close to
// the end of memory is still readable.
func readCString(mem Memory, addr uint64, limit int) ([]byte, error) {
	var out []byte
	for len(out) < limit {
		cur := addr + uint64(len(out))
		if cur < addr {
			return nil, ErrOutOfRange
		}
		n := min(cmdlineChunk, limit-len(out))
		buf, err := mem.Window(cur, uint64(n))
		if err != nil && n > 1 {
			buf, err = mem.Window(cur, 1)
		}
		if err != nil {
			return nil, err
		}
		if idx := bytes.IndexByte(buf, 0); idx >= 0 {
			return append(out, buf[:idx]...), nil
		}
		out = append(out, buf...)
	}
	return nil, ErrUnterminatedCmdline
}

// MemoryMap returns a fresh cursor over the memory map array.
func (i *Info) MemoryMap() *MemoryMapIter {
	return &MemoryMapIter{
		mem:   i.mem,
		base:  i.MemoryMapAddr(),
		count: i.MemoryMapCount(),
	}
}

// Modules returns a fresh cursor over the module list.
func (i *Info) Modules() *ModuleIter {
	return &ModuleIter{
		mem:   i.mem,
		next:  i.ModuleListAddr(),
		count: i.ModuleCount(),
	}
}

// MemoryMapEntries ranges over the memory map. Iteration stops silently on a
// malformed table; use MemoryMap when the error matters.
func (i *Info) MemoryMapEntries() iter.Seq[MemoryMapEntry] {
	return func(yield func(MemoryMapEntry) bool) {
		it := i.MemoryMap()
		for e, ok := it.Next(); ok; e, ok = it.Next() {
			if !yield(e) {
				return
			}
		}
	}
}

// ModuleList ranges over the loaded modules. Iteration stops silently on a
// malformed list; use Modules when the error matters.
func (i *Info) ModuleList() iter.Seq[Module] {
	return func(yield func(Module) bool) {
		it := i.Modules()
		for m, ok := it.Next(); ok; m, ok = it.Next() {
			if !yield(m) {
				return
			}
		}
	}
}
