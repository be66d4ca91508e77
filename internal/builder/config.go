package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/stivale"
)

// Addr is a physical address or size. In YAML it may be written as a number
// or as a string with a 0x, 0o or 0b prefix.
type Addr uint64

func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q", value.Line, value.Value)
	}
	*a = Addr(v)
	return nil
}

func (a Addr) MarshalYAML() (any, error) {
	return fmt.Sprintf("%#x", uint64(a)), nil
}

// Config describes the boot info structure a bootloader would hand over.
type Config struct {
	Cmdline     string             `yaml:"cmdline"`
	Epoch       uint64             `yaml:"epoch"`
	BIOSBoot    bool               `yaml:"bios_boot"`
	RSDP        Addr               `yaml:"rsdp,omitempty"`
	ACPI        *ACPIConfig        `yaml:"acpi,omitempty"`
	Framebuffer *FramebufferConfig `yaml:"framebuffer,omitempty"`
	MemoryMap   []RegionConfig     `yaml:"memory_map,omitempty"`
	Modules     []ModuleConfig     `yaml:"modules,omitempty"`
}

// ACPIConfig asks the builder to place an RSDP pointing at XSDT and report it
// in the boot info. It takes precedence over Config.RSDP.
type ACPIConfig struct {
	OEMID string `yaml:"oem_id"`
	XSDT  Addr   `yaml:"xsdt"`
}

type FramebufferConfig struct {
	Address Addr   `yaml:"address"`
	Pitch   uint16 `yaml:"pitch"`
	Width   uint16 `yaml:"width"`
	Height  uint16 `yaml:"height"`
	Bpp     uint16 `yaml:"bpp"`
}

// RegionConfig is one memory map entry. Type accepts the names printed by
// stivale.EntryType or a number.
type RegionConfig struct {
	Base   Addr   `yaml:"base"`
	Length Addr   `yaml:"length"`
	Type   string `yaml:"type"`
}

// ModuleConfig is a module payload taken either from a file or inline data.
type ModuleConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"`
	Data string `yaml:"data,omitempty"`
}

// LoadConfig reads a YAML boot description. Relative module paths are
// resolved against the directory of the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range cfg.Modules {
		if p := cfg.Modules[i].Path; p != "" && !filepath.IsAbs(p) {
			cfg.Modules[i].Path = filepath.Join(dir, p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything that can be checked without a target memory.
// Strings must survive the NUL-terminated encoding unchanged.
func (c *Config) Validate() error {
	if len(c.Cmdline) >= stivale.MaxCmdlineLen {
		return fmt.Errorf("cmdline is %d bytes, limit is %d", len(c.Cmdline), stivale.MaxCmdlineLen-1)
	}
	if strings.IndexByte(c.Cmdline, 0) >= 0 {
		return errors.New("cmdline contains a NUL byte")
	}
	for i, r := range c.MemoryMap {
		if _, err := stivale.ParseEntryType(r.Type); err != nil {
			return fmt.Errorf("memory_map[%d]: %w", i, err)
		}
		if uint64(r.Base)+uint64(r.Length) < uint64(r.Base) {
			return fmt.Errorf("memory_map[%d]: region [%#x, +%#x) wraps the address space", i, uint64(r.Base), uint64(r.Length))
		}
	}
	for i, m := range c.Modules {
		if len(m.Name) > stivale.MaxModuleNameLen {
			return fmt.Errorf("modules[%d]: name is %d bytes, limit is %d", i, len(m.Name), stivale.MaxModuleNameLen)
		}
		if strings.IndexByte(m.Name, 0) >= 0 {
			return fmt.Errorf("modules[%d]: name contains a NUL byte", i)
		}
		if m.Path != "" && m.Data != "" {
			return fmt.Errorf("modules[%d]: path and data are mutually exclusive", i)
		}
	}
	if c.ACPI != nil && len(c.ACPI.OEMID) > rsdpOEMIDSize {
		return fmt.Errorf("acpi: oem_id %q longer than %d bytes", c.ACPI.OEMID, rsdpOEMIDSize)
	}
	return nil
}
