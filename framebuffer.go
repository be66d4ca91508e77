package stivale

import (
	"encoding/binary"

	"github.com/tinyrange/stivale/internal/wire"
)

// Framebuffer describes the linear framebuffer the bootloader set up.
type Framebuffer struct {
	raw []byte
}

func (f Framebuffer) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(f.raw[off : off+2])
}

// Address returns the physical start address of the framebuffer.
func (f Framebuffer) Address() uint64 {
	return binary.LittleEndian.Uint64(f.raw[wire.FramebufferAddressOffset : wire.FramebufferAddressOffset+8])
}

// Pitch returns the length of one row in bytes. Width and Height are in
// pixels and Bpp is bits per pixel.
func (f Framebuffer) Pitch() uint16  { return f.u16(wire.FramebufferPitchOffset) }
func (f Framebuffer) Width() uint16  { return f.u16(wire.FramebufferWidthOffset) }
func (f Framebuffer) Height() uint16 { return f.u16(wire.FramebufferHeightOffset) }
func (f Framebuffer) Bpp() uint16    { return f.u16(wire.FramebufferBppOffset) }

// Size returns pitch * height * bytes per pixel. Bits per pixel is assumed to
// be a multiple of 8; other values are truncated.
func (f Framebuffer) Size() uint64 {
	return uint64(f.Pitch()) * uint64(f.Height()) * uint64(f.Bpp()/8)
}

// EndAddress returns the first address past the framebuffer.
func (f Framebuffer) EndAddress() uint64 {
	return f.Address() + f.Size()
}
