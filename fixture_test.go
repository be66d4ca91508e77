package stivale

import (
	"encoding/binary"
	"testing"

	"github.com/tinyrange/stivale/internal/physmem"
	"github.com/tinyrange/stivale/internal/wire"
)

const testBase = 0x10000

// image is a hand-assembled physical memory fixture.
type image struct {
	t   *testing.T
	mem *physmem.Buffer
}

func newImage(t *testing.T, size uint64) *image {
	t.Helper()
	return &image{t: t, mem: physmem.NewBuffer(testBase, size)}
}

func (im *image) put(addr uint64, b []byte) {
	im.t.Helper()
	if _, err := im.mem.WriteAt(b, int64(addr)); err != nil {
		im.t.Fatalf("write fixture at %#x: %v", addr, err)
	}
}

func (im *image) putU64(addr, v uint64) {
	im.t.Helper()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	im.put(addr, b[:])
}

type infoFields struct {
	cmdline     uint64
	memmap      uint64
	memmapCount uint64
	fbAddr      uint64
	fbPitch     uint16
	fbWidth     uint16
	fbHeight    uint16
	fbBpp       uint16
	rsdp        uint64
	moduleCount uint64
	modules     uint64
	epoch       uint64
	flags       uint64
}

func (im *image) putInfo(addr uint64, f infoFields) {
	im.t.Helper()
	b := make([]byte, wire.InfoSize)
	le := binary.LittleEndian
	le.PutUint64(b[wire.InfoCmdlineOffset:], f.cmdline)
	le.PutUint64(b[wire.InfoMemoryMapOffset:], f.memmap)
	le.PutUint64(b[wire.InfoMemoryMapCountOffset:], f.memmapCount)
	fb := b[wire.InfoFramebufferOffset:]
	le.PutUint64(fb[wire.FramebufferAddressOffset:], f.fbAddr)
	le.PutUint16(fb[wire.FramebufferPitchOffset:], f.fbPitch)
	le.PutUint16(fb[wire.FramebufferWidthOffset:], f.fbWidth)
	le.PutUint16(fb[wire.FramebufferHeightOffset:], f.fbHeight)
	le.PutUint16(fb[wire.FramebufferBppOffset:], f.fbBpp)
	le.PutUint64(b[wire.InfoRSDPOffset:], f.rsdp)
	le.PutUint64(b[wire.InfoModuleCountOffset:], f.moduleCount)
	le.PutUint64(b[wire.InfoModulesOffset:], f.modules)
	le.PutUint64(b[wire.InfoEpochOffset:], f.epoch)
	le.PutUint64(b[wire.InfoFlagsOffset:], f.flags)
	im.put(addr, b)
}

func (im *image) putEntry(addr, base, length uint64, typ EntryType) {
	im.t.Helper()
	b := make([]byte, wire.MemoryMapEntrySize)
	binary.LittleEndian.PutUint64(b[wire.MemoryMapBaseOffset:], base)
	binary.LittleEndian.PutUint64(b[wire.MemoryMapLengthOffset:], length)
	binary.LittleEndian.PutUint32(b[wire.MemoryMapTypeOffset:], uint32(typ))
	im.put(addr, b)
}

func (im *image) putModule(addr, start, end uint64, name []byte, next uint64) {
	im.t.Helper()
	b := make([]byte, wire.ModuleSize)
	binary.LittleEndian.PutUint64(b[wire.ModuleStartOffset:], start)
	binary.LittleEndian.PutUint64(b[wire.ModuleEndOffset:], end)
	copy(b[wire.ModuleNameOffset : wire.ModuleNameOffset+wire.ModuleNameSize], name)
	binary.LittleEndian.PutUint64(b[wire.ModuleNextOffset:], next)
	im.put(addr, b)
}

func (im *image) load(addr uint64) *Info {
	im.t.Helper()
	info, err := Load(im.mem, addr)
	if err != nil {
		im.t.Fatalf("Load(%#x): %v", addr, err)
	}
	return info
}
