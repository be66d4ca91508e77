package stivale

import (
	"fmt"
	"strings"
)

// HeaderFlags are the requests a kernel makes to the bootloader through its
// Header.
type HeaderFlags uint64

const (
	// HeaderFlagFramebuffer asks for a graphical framebuffer instead of text
	// mode.
	HeaderFlagFramebuffer HeaderFlags = 1 << iota
	// HeaderFlagFiveLevelPaging enables 5-level paging when available.
	HeaderFlagFiveLevelPaging
	// HeaderFlagKASLR allows the bootloader to randomise the load address.
	HeaderFlagKASLR
)

var headerFlagNames = []string{"framebuffer", "five-level-paging", "kaslr"}

// Has reports whether every bit of flag is set in f.
func (f HeaderFlags) Has(flag HeaderFlags) bool { return f&flag == flag }

// Union returns f with the bits of other added.
func (f HeaderFlags) Union(other HeaderFlags) HeaderFlags { return f | other }

// String lists the set flags separated by "|", or "none".
func (f HeaderFlags) String() string { return flagString(uint64(f), headerFlagNames) }

// Flags are the informational bits the bootloader reports in the boot info
// structure.
type Flags uint64

const (
	// FlagBIOSBoot is set when the machine was booted through legacy BIOS
	// rather than UEFI.
	FlagBIOSBoot Flags = 1 << iota
)

var flagNames = []string{"bios-boot"}

// Has reports whether every bit of flag is set in f.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

// Union returns f with the bits of other added.
func (f Flags) Union(other Flags) Flags { return f | other }

// String lists the set flags separated by "|", or "none".
func (f Flags) String() string { return flagString(uint64(f), flagNames) }

func flagString(v uint64, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for bit, name := range names {
		if v&(1<<bit) != 0 {
			parts = append(parts, name)
			v &^= 1 << bit
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("%#x", v))
	}
	return strings.Join(parts, "|")
}
