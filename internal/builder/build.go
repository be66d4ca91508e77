// Package builder lays out stivale boot information in guest memory the way a
// bootloader does before jumping to the kernel.
package builder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/tinyrange/stivale"
	"github.com/tinyrange/stivale/internal/wire"
)

const (
	tableAlign   = 8
	rsdpAlign    = 16
	payloadAlign = 0x1000

	// Entries reserved for the generated memory map when the config has none.
	defaultRegionSlots = 3
)

// Target is writable guest memory. Offsets passed to WriteAt are physical
// addresses.
type Target interface {
	io.WriterAt
	MemoryBase() uint64
	MemorySize() uint64
}

// Region is a memory map entry as written by the builder.
type Region struct {
	Base   uint64
	Length uint64
	Type   stivale.EntryType
}

// PlacedModule records where a module and its record ended up.
type PlacedModule struct {
	Name       string
	RecordAddr uint64
	Start      uint64
	End        uint64
}

// Layout describes where every part of the boot information was placed.
type Layout struct {
	InfoAddr      uint64
	CmdlineAddr   uint64
	RSDPAddr      uint64
	MemoryMapAddr uint64
	ModulesAddr   uint64
	End           uint64

	MemoryMap []Region
	Modules   []PlacedModule
}

// Builder writes boot information into guest memory.
type Builder struct {
	Logger *slog.Logger

	// Progress, when set, is called before each module payload is copied. The
	// returned writer observes the payload bytes as they are written.
	Progress func(name string, size int64) io.Writer
}

// Build places the boot information described by cfg at base using a zero
// Builder.
func Build(mem Target, base uint64, cfg *Config) (*Layout, error) {
	var b Builder
	return b.Build(mem, base, cfg)
}

type payload struct {
	name string
	size uint64
	open func() (io.ReadCloser, error)
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build places the boot information described by cfg at base. The root
// structure lands exactly at base; everything else follows it.
func (b *Builder) Build(mem Target, base uint64, cfg *Config) (*Layout, error) {
	if mem == nil {
		return nil, errors.New("guest memory is nil")
	}
	if cfg == nil {
		return nil, errors.New("boot config is nil")
	}
	if base == 0 {
		return nil, errors.New("boot info cannot be placed at address zero")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	payloads, err := resolvePayloads(cfg.Modules)
	if err != nil {
		return nil, err
	}

	layout, err := plan(mem, base, cfg, payloads)
	if err != nil {
		return nil, err
	}

	if err := b.write(mem, "command line", layout.CmdlineAddr, append([]byte(cfg.Cmdline), 0)); err != nil {
		return nil, err
	}

	rsdp := uint64(cfg.RSDP)
	if cfg.ACPI != nil {
		if err := b.write(mem, "rsdp", layout.RSDPAddr, EncodeRSDP(uint64(cfg.ACPI.XSDT), cfg.ACPI.OEMID)); err != nil {
			return nil, err
		}
		rsdp = layout.RSDPAddr
	}

	if err := b.write(mem, "memory map", layout.MemoryMapAddr, encodeMemoryMap(layout.MemoryMap)); err != nil {
		return nil, err
	}

	for i, m := range layout.Modules {
		var next uint64
		if i+1 < len(layout.Modules) {
			next = layout.Modules[i+1].RecordAddr
		}
		if err := b.write(mem, "module record", m.RecordAddr, encodeModule(m, next)); err != nil {
			return nil, err
		}
		if err := b.copyPayload(mem, m, payloads[i]); err != nil {
			return nil, err
		}
	}

	info := make([]byte, wire.InfoSize)
	binary.LittleEndian.PutUint64(info[wire.InfoCmdlineOffset:], layout.CmdlineAddr)
	binary.LittleEndian.PutUint64(info[wire.InfoMemoryMapOffset:], layout.MemoryMapAddr)
	binary.LittleEndian.PutUint64(info[wire.InfoMemoryMapCountOffset:], uint64(len(layout.MemoryMap)))
	if fb := cfg.Framebuffer; fb != nil {
		raw := info[wire.InfoFramebufferOffset:]
		binary.LittleEndian.PutUint64(raw[wire.FramebufferAddressOffset:], uint64(fb.Address))
		binary.LittleEndian.PutUint16(raw[wire.FramebufferPitchOffset:], fb.Pitch)
		binary.LittleEndian.PutUint16(raw[wire.FramebufferWidthOffset:], fb.Width)
		binary.LittleEndian.PutUint16(raw[wire.FramebufferHeightOffset:], fb.Height)
		binary.LittleEndian.PutUint16(raw[wire.FramebufferBppOffset:], fb.Bpp)
	}
	binary.LittleEndian.PutUint64(info[wire.InfoRSDPOffset:], rsdp)
	binary.LittleEndian.PutUint64(info[wire.InfoModuleCountOffset:], uint64(len(layout.Modules)))
	binary.LittleEndian.PutUint64(info[wire.InfoModulesOffset:], layout.ModulesAddr)
	binary.LittleEndian.PutUint64(info[wire.InfoEpochOffset:], cfg.Epoch)
	var flags stivale.Flags
	if cfg.BIOSBoot {
		flags = flags.Union(stivale.FlagBIOSBoot)
	}
	binary.LittleEndian.PutUint64(info[wire.InfoFlagsOffset:], uint64(flags))

	if err := b.write(mem, "boot info", layout.InfoAddr, info); err != nil {
		return nil, err
	}

	b.logger().Debug("boot info placed",
		"info", fmt.Sprintf("%#x", layout.InfoAddr),
		"end", fmt.Sprintf("%#x", layout.End),
		"regions", len(layout.MemoryMap),
		"modules", len(layout.Modules),
	)
	return layout, nil
}

func resolvePayloads(modules []ModuleConfig) ([]payload, error) {
	payloads := make([]payload, 0, len(modules))
	for i, m := range modules {
		if m.Path == "" {
			data := m.Data
			payloads = append(payloads, payload{
				name: m.Name,
				size: uint64(len(data)),
				open: func() (io.ReadCloser, error) {
					return io.NopCloser(strings.NewReader(data)), nil
				},
			})
			continue
		}
		info, err := os.Stat(m.Path)
		if err != nil {
			return nil, fmt.Errorf("modules[%d]: %w", i, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("modules[%d]: %q is not a regular file", i, m.Path)
		}
		path := m.Path
		payloads = append(payloads, payload{
			name: m.Name,
			size: uint64(info.Size()),
			open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return payloads, nil
}

func plan(mem Target, base uint64, cfg *Config, payloads []payload) (*Layout, error) {
	memBase := mem.MemoryBase()
	memEnd := memBase + mem.MemorySize()
	if memEnd < memBase {
		return nil, fmt.Errorf("guest memory [%#x, +%#x) wraps the address space", memBase, mem.MemorySize())
	}

	var overflow bool
	advance := func(cur, n, align uint64) uint64 {
		next, ok := alignUp(cur, align)
		if !ok || next > math.MaxUint64-n {
			overflow = true
			return cur
		}
		return next + n
	}

	l := &Layout{InfoAddr: base}
	cur := advance(base, wire.InfoSize, 1)

	l.CmdlineAddr = cur
	cur = advance(cur, uint64(len(cfg.Cmdline))+1, 1)

	if cfg.ACPI != nil {
		l.RSDPAddr, _ = alignUp(cur, rsdpAlign)
		cur = advance(cur, RSDPSize, rsdpAlign)
	}

	slots := len(cfg.MemoryMap)
	if slots == 0 {
		slots = defaultRegionSlots
	}
	l.MemoryMapAddr, _ = alignUp(cur, tableAlign)
	cur = advance(cur, uint64(slots)*wire.MemoryMapEntrySize, tableAlign)

	if len(payloads) > 0 {
		l.ModulesAddr, _ = alignUp(cur, tableAlign)
		for i, p := range payloads {
			l.Modules = append(l.Modules, PlacedModule{
				Name:       p.name,
				RecordAddr: l.ModulesAddr + uint64(i)*wire.ModuleSize,
			})
		}
		cur = advance(cur, uint64(len(payloads))*wire.ModuleSize, tableAlign)
		for i, p := range payloads {
			start, _ := alignUp(cur, payloadAlign)
			cur = advance(cur, p.size, payloadAlign)
			l.Modules[i].Start = start
			l.Modules[i].End = start + p.size
		}
	}

	l.End = cur
	if overflow {
		return nil, errors.New("boot info layout overflows the address space")
	}
	if base < memBase || l.End > memEnd {
		return nil, fmt.Errorf("boot info [%#x, %#x) outside guest memory [%#x, %#x)", base, l.End, memBase, memEnd)
	}

	if len(cfg.MemoryMap) > 0 {
		for _, r := range cfg.MemoryMap {
			typ, err := stivale.ParseEntryType(r.Type)
			if err != nil {
				return nil, err
			}
			l.MemoryMap = append(l.MemoryMap, Region{Base: uint64(r.Base), Length: uint64(r.Length), Type: typ})
		}
	} else {
		l.MemoryMap = defaultMemoryMap(memBase, memEnd, base, l.End)
	}

	return l, nil
}

// defaultMemoryMap marks the boot information as kernel memory and the rest
// of guest RAM as usable.
func defaultMemoryMap(memBase, memEnd, start, end uint64) []Region {
	var regions []Region
	if start > memBase {
		regions = append(regions, Region{Base: memBase, Length: start - memBase, Type: stivale.EntryUsable})
	}
	if aligned, ok := alignUp(end, payloadAlign); ok && aligned < memEnd {
		end = aligned
	} else {
		end = memEnd
	}
	regions = append(regions, Region{Base: start, Length: end - start, Type: stivale.EntryKernel})
	if end < memEnd {
		regions = append(regions, Region{Base: end, Length: memEnd - end, Type: stivale.EntryUsable})
	}
	return regions
}

func alignUp(v, align uint64) (uint64, bool) {
	if align <= 1 {
		return v, true
	}
	r := v % align
	if r == 0 {
		return v, true
	}
	if v > math.MaxUint64-(align-r) {
		return 0, false
	}
	return v + align - r, true
}

func encodeMemoryMap(regions []Region) []byte {
	out := make([]byte, len(regions)*wire.MemoryMapEntrySize)
	for i, r := range regions {
		e := out[i*wire.MemoryMapEntrySize:]
		binary.LittleEndian.PutUint64(e[wire.MemoryMapBaseOffset:], r.Base)
		binary.LittleEndian.PutUint64(e[wire.MemoryMapLengthOffset:], r.Length)
		binary.LittleEndian.PutUint32(e[wire.MemoryMapTypeOffset:], uint32(r.Type))
	}
	return out
}

func encodeModule(m PlacedModule, next uint64) []byte {
	rec := make([]byte, wire.ModuleSize)
	binary.LittleEndian.PutUint64(rec[wire.ModuleStartOffset:], m.Start)
	binary.LittleEndian.PutUint64(rec[wire.ModuleEndOffset:], m.End)
	copy(rec[wire.ModuleNameOffset : wire.ModuleNameOffset+stivale.MaxModuleNameLen], m.Name)
	binary.LittleEndian.PutUint64(rec[wire.ModuleNextOffset:], next)
	return rec
}

func (b *Builder) write(mem Target, what string, addr uint64, data []byte) error {
	if addr > math.MaxInt64 {
		return fmt.Errorf("%s at %#x: address exceeds host offset range", what, addr)
	}
	if _, err := mem.WriteAt(data, int64(addr)); err != nil {
		return fmt.Errorf("write %s at %#x: %w", what, addr, err)
	}
	return nil
}

func (b *Builder) copyPayload(mem Target, m PlacedModule, p payload) error {
	if m.Start > math.MaxInt64 {
		return fmt.Errorf("module %q at %#x: address exceeds host offset range", m.Name, m.Start)
	}
	r, err := p.open()
	if err != nil {
		return fmt.Errorf("open module %q: %w", m.Name, err)
	}
	defer r.Close()

	var w io.Writer = io.NewOffsetWriter(mem, int64(m.Start))
	if b.Progress != nil {
		if pw := b.Progress(m.Name, int64(p.size)); pw != nil {
			w = io.MultiWriter(w, pw)
		}
	}

	n, err := io.Copy(w, io.LimitReader(r, int64(p.size)))
	if err != nil {
		return fmt.Errorf("copy module %q: %w", m.Name, err)
	}
	if uint64(n) != p.size {
		return fmt.Errorf("module %q shrank while copying: got %d of %d bytes", m.Name, n, p.size)
	}

	b.logger().Debug("module placed",
		"name", m.Name,
		"record", fmt.Sprintf("%#x", m.RecordAddr),
		"start", fmt.Sprintf("%#x", m.Start),
		"size", p.size,
	)
	return nil
}
