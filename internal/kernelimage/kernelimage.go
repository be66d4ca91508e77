// Package kernelimage reads the stivale header a kernel embeds in its ELF
// image.
package kernelimage

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tinyrange/stivale"
)

// ErrNoHeader is returned when the kernel has no .stivalehdr section.
var ErrNoHeader = errors.New("kernel has no " + stivale.HeaderSection + " section")

// FindHeader locates and decodes the stivale header of an x86_64 ELF kernel.
func FindHeader(r io.ReaderAt) (stivale.Header, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return stivale.Header{}, fmt.Errorf("open elf kernel: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 {
		return stivale.Header{}, fmt.Errorf("unsupported ELF machine %s (want x86_64)", f.Machine)
	}

	sec := f.Section(stivale.HeaderSection)
	if sec == nil {
		return stivale.Header{}, ErrNoHeader
	}
	if sec.Type == elf.SHT_NOBITS {
		return stivale.Header{}, fmt.Errorf("%s section has no file contents", stivale.HeaderSection)
	}
	if sec.Size < stivale.HeaderSize {
		return stivale.Header{}, fmt.Errorf("%s section is %d bytes, need %d", stivale.HeaderSection, sec.Size, stivale.HeaderSize)
	}

	buf := make([]byte, stivale.HeaderSize)
	if _, err := sec.ReadAt(buf, 0); err != nil {
		return stivale.Header{}, fmt.Errorf("read %s: %w", stivale.HeaderSection, err)
	}

	var hdr stivale.Header
	if err := hdr.UnmarshalBinary(buf); err != nil {
		return stivale.Header{}, err
	}
	return hdr, nil
}

// Open reads the stivale header from the kernel at path.
func Open(path string) (stivale.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return stivale.Header{}, err
	}
	defer f.Close()
	return FindHeader(f)
}
