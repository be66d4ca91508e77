package main

import (
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/tinyrange/stivale"
	"github.com/tinyrange/stivale/internal/builder"
	"github.com/tinyrange/stivale/internal/physmem"
)

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	image := fs.String("image", "", "memory image file")
	base := addrFlag(defaultBase)
	fs.Var(&base, "base", "physical address of the first byte of the image")
	var info addrFlag
	fs.Var(&info, "info", "physical address of the boot info structure")
	kv := fs.Bool("cmdline-kv", false, "print the command line as key/value pairs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" || info == 0 {
		fs.Usage()
		return fmt.Errorf("dump needs -image and -info")
	}

	m, err := physmem.MapFile(*image, uint64(base), false)
	if err != nil {
		return err
	}
	defer m.Close()

	return dump(newOutput(os.Stdout), m, uint64(info), *kv)
}

func dump(o *output, mem stivale.Memory, addr uint64, kv bool) error {
	info, err := stivale.Load(mem, addr)
	if err != nil {
		return err
	}

	o.heading(fmt.Sprintf("boot info @ %#x", info.Addr()))

	cmdline, ok, err := info.Cmdline()
	switch {
	case err != nil:
		o.field("cmdline", "<%v>", err)
	case !ok:
		o.field("cmdline", "<none>")
	default:
		o.field("cmdline", "%q", cmdline)
	}
	if ok && kv {
		args := stivale.ParseCmdline(cmdline)
		for _, k := range slices.Sorted(maps.Keys(args)) {
			o.field("  "+k, "%s", args[k])
		}
	}

	o.field("epoch", "%d (%s)", info.Epoch(), info.BootTime().Format(time.RFC3339))
	o.field("flags", "%s", info.Flags())
	o.field("rsdp", "%s", describeRSDP(mem, info.RSDP()))

	fb := info.Framebuffer()
	if fb.Address() == 0 {
		o.field("framebuffer", "<none>")
	} else {
		o.field("framebuffer", "%#x %dx%dx%d pitch %d (%d bytes)", fb.Address(), fb.Width(), fb.Height(), fb.Bpp(), fb.Pitch(), fb.Size())
	}

	o.heading(fmt.Sprintf("memory map @ %#x (%d entries)", info.MemoryMapAddr(), info.MemoryMapCount()))
	var rows [][]string
	mit := info.MemoryMap()
	for e, ok := mit.Next(); ok; e, ok = mit.Next() {
		rows = append(rows, []string{
			fmt.Sprintf("%#x", e.Base()),
			fmt.Sprintf("%#x", e.EndAddress()),
			fmt.Sprintf("%#x", e.Length()),
			e.Type().String(),
		})
	}
	o.table([]string{"BASE", "END", "LENGTH", "TYPE"}, rows)
	if err := mit.Err(); err != nil {
		slog.Warn("memory map incomplete", "error", err)
	}

	o.heading(fmt.Sprintf("modules @ %#x (%d advertised)", info.ModuleListAddr(), info.ModuleCount()))
	rows = rows[:0]
	modIt := info.Modules()
	for mod, ok := modIt.Next(); ok; mod, ok = modIt.Next() {
		name, named := mod.Name()
		if !named {
			name = "<unnamed>"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%#x", mod.Start()),
			fmt.Sprintf("%#x", mod.End()),
			fmt.Sprintf("%d", mod.Size()),
			name,
		})
	}
	o.table([]string{"START", "END", "SIZE", "NAME"}, rows)
	if err := modIt.Err(); err != nil {
		slog.Warn("module list incomplete", "error", err)
	}
	return nil
}

// describeRSDP reports the RSDP address and, when the table lies inside the
// image, whether its checksums hold.
func describeRSDP(mem stivale.Memory, addr uint64) string {
	if addr == 0 {
		return "<none>"
	}
	for _, size := range []uint64{builder.RSDPSize, builder.RSDPV1Size} {
		b, err := mem.Window(addr, size)
		if err != nil {
			continue
		}
		if err := builder.VerifyRSDP(b); err != nil {
			return fmt.Sprintf("%#x (%v)", addr, err)
		}
		rev, _ := builder.RSDPRevision(b)
		return fmt.Sprintf("%#x (valid, revision %d)", addr, rev)
	}
	return fmt.Sprintf("%#x (outside image)", addr)
}
