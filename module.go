package stivale

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/stivale/internal/wire"
)

// MaxModuleNameLen is the longest name a module record can carry. The last
// byte of the inline buffer is kept for the terminator.
const MaxModuleNameLen = wire.ModuleNameSize - 1

// Module is a view of one module record: a blob the bootloader loaded next to
// the kernel, such as an initial ramdisk.
type Module struct {
	raw []byte
}

func (m Module) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(m.raw[off : off+8])
}

// Start returns the physical address of the first byte of the module.
func (m Module) Start() uint64 { return m.u64(wire.ModuleStartOffset) }

// End returns the physical address just past the module.
func (m Module) End() uint64 { return m.u64(wire.ModuleEndOffset) }

// Size returns End minus Start.
func (m Module) Size() uint64 { return m.End() - m.Start() }

// Next returns the address of the following record, zero for the last one.
func (m Module) Next() uint64 { return m.u64(wire.ModuleNextOffset) }

// Name returns the module string. ok is false when it is empty. Without a
// terminator the name is cut at MaxModuleNameLen bytes.
func (m Module) Name() (name string, ok bool) {
	buf := m.raw[wire.ModuleNameOffset : wire.ModuleNameOffset+MaxModuleNameLen]
	if buf[0] == 0 {
		return "", false
	}
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		buf = buf[:idx]
	}
	return string(buf), true
}

// String formats the module as its name and half-open address range.
func (m Module) String() string {
	name, _ := m.Name()
	return fmt.Sprintf("module %q [%#x, %#x)", name, m.Start(), m.End())
}

// ModuleIter is a forward-only cursor over the module list. The list has two
// end markers: the module count in the boot info structure and a zero next
// pointer. Whichever comes first ends the iteration; reaching the zero pointer
// early is reported by Err as ErrModuleListTruncated.
type ModuleIter struct {
	mem   Memory
	next  uint64
	index uint64
	count uint64
	err   error
}

// Next returns the next module, or false at the end of the list.
func (it *ModuleIter) Next() (Module, bool) {
	if it.err != nil || it.index >= it.count {
		return Module{}, false
	}
	if it.next == 0 {
		it.err = fmt.Errorf("module list ended after %d of %d modules: %w", it.index, it.count, ErrModuleListTruncated)
		return Module{}, false
	}

	raw, err := it.mem.Window(it.next, wire.ModuleSize)
	if err != nil {
		it.err = fmt.Errorf("module %d at %#x: %w", it.index, it.next, err)
		return Module{}, false
	}
	m := Module{raw: raw}
	it.index++
	it.next = m.Next()
	return m, true
}

// Err returns the error that stopped the iteration, if any.
func (it *ModuleIter) Err() error { return it.err }
