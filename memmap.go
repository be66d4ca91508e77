package stivale

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tinyrange/stivale/internal/wire"
)

// EntryType classifies a memory map entry.
type EntryType uint32

const (
	EntryUsable          EntryType = 1
	EntryReserved        EntryType = 2
	EntryACPIReclaimable EntryType = 3
	EntryACPINVS         EntryType = 4
	EntryBadMemory       EntryType = 5
	EntryKernel          EntryType = 10
)

var entryTypeNames = map[EntryType]string{
	EntryUsable:          "usable",
	EntryReserved:        "reserved",
	EntryACPIReclaimable: "acpi-reclaimable",
	EntryACPINVS:         "acpi-nvs",
	EntryBadMemory:       "bad-memory",
	EntryKernel:          "kernel",
}

// String implements fmt.Stringer for EntryType.
func (t EntryType) String() string {
	if name, ok := entryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%#x)", uint32(t))
}

// Known reports whether t is one of the types defined by the protocol.
func (t EntryType) Known() bool {
	_, ok := entryTypeNames[t]
	return ok
}

// ParseEntryType accepts the names produced by EntryType.String as well as
// plain numbers.
func ParseEntryType(s string) (EntryType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range entryTypeNames {
		if name == s {
			return t, nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown memory map entry type %q", s)
	}
	return EntryType(v), nil
}

// MemoryMapEntry is a view of one physical memory region.
type MemoryMapEntry struct {
	raw []byte
}

// Base returns the physical start of the region.
func (e MemoryMapEntry) Base() uint64 {
	return binary.LittleEndian.Uint64(e.raw[wire.MemoryMapBaseOffset : wire.MemoryMapBaseOffset+8])
}

// Length returns the size of the region in bytes.
func (e MemoryMapEntry) Length() uint64 {
	return binary.LittleEndian.Uint64(e.raw[wire.MemoryMapLengthOffset : wire.MemoryMapLengthOffset+8])
}

// EndAddress returns the first address past the region.
func (e MemoryMapEntry) EndAddress() uint64 {
	return e.Base() + e.Length()
}

// Type returns the region type. Values outside the known set are passed
// through unchanged.
func (e MemoryMapEntry) Type() EntryType {
	return EntryType(binary.LittleEndian.Uint32(e.raw[wire.MemoryMapTypeOffset : wire.MemoryMapTypeOffset+4]))
}

// String formats the entry as a half-open range and its type.
func (e MemoryMapEntry) String() string {
	return fmt.Sprintf("[%#x, %#x) %s", e.Base(), e.EndAddress(), e.Type())
}

// MemoryMapIter is a forward-only cursor over the memory map array. The count
// comes from the boot info structure and is trusted; an entry that cannot be
// resolved ends the iteration and is reported by Err.
type MemoryMapIter struct {
	mem   Memory
	base  uint64
	index uint64
	count uint64
	err   error
}

// Next returns the next entry, or false once count entries were returned or
// an error occurred.
func (it *MemoryMapIter) Next() (MemoryMapEntry, bool) {
	if it.err != nil || it.index >= it.count {
		return MemoryMapEntry{}, false
	}
	if it.base == 0 {
		it.err = fmt.Errorf("memory map with %d entries: %w", it.count, ErrNilAddress)
		return MemoryMapEntry{}, false
	}
	if it.index > (math.MaxUint64-it.base)/wire.MemoryMapEntrySize {
		it.err = fmt.Errorf("memory map entry %d: %w", it.index, ErrOutOfRange)
		return MemoryMapEntry{}, false
	}

	addr := it.base + it.index*wire.MemoryMapEntrySize
	raw, err := it.mem.Window(addr, wire.MemoryMapEntrySize)
	if err != nil {
		it.err = fmt.Errorf("memory map entry %d at %#x: %w", it.index, addr, err)
		return MemoryMapEntry{}, false
	}
	it.index++
	return MemoryMapEntry{raw: raw}, true
}

// Remaining returns how many entries the structure still advertises.
func (it *MemoryMapIter) Remaining() uint64 {
	if it.err != nil {
		return 0
	}
	return it.count - it.index
}

// Err returns the error that stopped the iteration, if any.
func (it *MemoryMapIter) Err() error { return it.err }
