package stivale

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/stivale/internal/wire"
)

// HeaderSection is the ELF section a stivale bootloader scans for the kernel
// header.
const HeaderSection = ".stivalehdr"

// HeaderSize is the encoded size of a Header.
const HeaderSize = wire.HeaderSize

// Header is the structure a kernel places in its HeaderSection to tell the
// bootloader where its stack is, what framebuffer it wants and where to
// enter it. It is built once and never changes; the With methods return
// modified copies.
type Header struct {
	stack             uint64
	flags             HeaderFlags
	framebufferWidth  uint16
	framebufferHeight uint16
	framebufferBpp    uint16
	entryPoint        uint64
}

// NewHeader returns a header with the given stack top and flags. The
// framebuffer request is left to the bootloader and the entry point defaults
// to the ELF entry.
func NewHeader(stack uint64, flags HeaderFlags) Header {
	return Header{stack: stack, flags: flags}
}

// WithEntryPoint overrides the ELF entry point.
func (h Header) WithEntryPoint(entry uint64) Header {
	h.entryPoint = entry
	return h
}

// WithFramebuffer requests a framebuffer resolution. Zero values let the
// bootloader pick.
func (h Header) WithFramebuffer(width, height, bpp uint16) Header {
	h.framebufferWidth = width
	h.framebufferHeight = height
	h.framebufferBpp = bpp
	return h
}

// Accessors for the fields set by NewHeader and the With methods.
func (h Header) Stack() uint64             { return h.stack }
func (h Header) Flags() HeaderFlags        { return h.flags }
func (h Header) EntryPoint() uint64        { return h.entryPoint }
func (h Header) FramebufferWidth() uint16  { return h.framebufferWidth }
func (h Header) FramebufferHeight() uint16 { return h.framebufferHeight }
func (h Header) FramebufferBpp() uint16    { return h.framebufferBpp }

// MarshalBinary encodes the header in its packed on-disk layout.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, wire.HeaderSize)
	binary.LittleEndian.PutUint64(b[wire.HeaderStackOffset:], h.stack)
	binary.LittleEndian.PutUint64(b[wire.HeaderFlagsOffset:], uint64(h.flags))
	binary.LittleEndian.PutUint16(b[wire.HeaderFbWidthOffset:], h.framebufferWidth)
	binary.LittleEndian.PutUint16(b[wire.HeaderFbHeightOffset:], h.framebufferHeight)
	binary.LittleEndian.PutUint16(b[wire.HeaderFbBppOffset:], h.framebufferBpp)
	binary.LittleEndian.PutUint64(b[wire.HeaderEntryPointOffset:], h.entryPoint)
	return b, nil
}

// UnmarshalBinary decodes a packed header. Trailing bytes are ignored.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < wire.HeaderSize {
		return fmt.Errorf("stivale header needs %d bytes, got %d", wire.HeaderSize, len(b))
	}
	*h = Header{
		stack:             binary.LittleEndian.Uint64(b[wire.HeaderStackOffset:]),
		flags:             HeaderFlags(binary.LittleEndian.Uint64(b[wire.HeaderFlagsOffset:])),
		framebufferWidth:  binary.LittleEndian.Uint16(b[wire.HeaderFbWidthOffset:]),
		framebufferHeight: binary.LittleEndian.Uint16(b[wire.HeaderFbHeightOffset:]),
		framebufferBpp:    binary.LittleEndian.Uint16(b[wire.HeaderFbBppOffset:]),
		entryPoint:        binary.LittleEndian.Uint64(b[wire.HeaderEntryPointOffset:]),
	}
	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("stack=%#x flags=%s framebuffer=%dx%dx%d entry=%#x",
		h.stack, h.flags, h.framebufferWidth, h.framebufferHeight, h.framebufferBpp, h.entryPoint)
}
