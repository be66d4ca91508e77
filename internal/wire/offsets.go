// Package wire holds the packed byte layout of the stivale structures.
// All multi-byte fields are little-endian and there is no padding between
// fields.
package wire

const (
	InfoSize = 80

	InfoCmdlineOffset        = 0
	InfoMemoryMapOffset      = 8
	InfoMemoryMapCountOffset = 16
	InfoFramebufferOffset    = 24
	InfoRSDPOffset           = 40
	InfoModuleCountOffset    = 48
	InfoModulesOffset        = 56
	InfoEpochOffset          = 64
	InfoFlagsOffset          = 72

	FramebufferSize          = 16
	FramebufferAddressOffset = 0
	FramebufferPitchOffset   = 8
	FramebufferWidthOffset   = 10
	FramebufferHeightOffset  = 12
	FramebufferBppOffset     = 14

	MemoryMapEntrySize    = 24
	MemoryMapBaseOffset   = 0
	MemoryMapLengthOffset = 8
	MemoryMapTypeOffset   = 16
	MemoryMapUnusedOffset = 20

	ModuleSize        = 152
	ModuleStartOffset = 0
	ModuleEndOffset   = 8
	ModuleNameOffset  = 16
	ModuleNameSize    = 128
	ModuleNextOffset  = 144

	HeaderSize             = 30
	HeaderStackOffset      = 0
	HeaderFlagsOffset      = 8
	HeaderFbWidthOffset    = 16
	HeaderFbHeightOffset   = 18
	HeaderFbBppOffset      = 20
	HeaderEntryPointOffset = 22
)
