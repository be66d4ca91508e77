package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/stivale"
	"github.com/tinyrange/stivale/internal/physmem"
)

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	image := fs.String("image", "", "memory image file")
	base := addrFlag(defaultBase)
	fs.Var(&base, "base", "physical address of the first byte of the image")
	var info addrFlag
	fs.Var(&info, "info", "physical address of the boot info structure")
	dir := fs.String("dir", ".", "directory to write modules to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" || info == 0 {
		fs.Usage()
		return fmt.Errorf("extract needs -image and -info")
	}

	m, err := physmem.MapFile(*image, uint64(base), false)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	return extract(m, uint64(info), *dir, func(name string, size int64) io.WriteCloser {
		return progressbar.DefaultBytes(size, fmt.Sprintf("extract %s", name))
	})
}

// moduleFileName turns a module name into a file name inside the output
// directory. Unnamed modules are numbered.
func moduleFileName(index int, name string, named bool) string {
	if !named {
		return fmt.Sprintf("module%d", index)
	}
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return fmt.Sprintf("module%d", index)
	}
	return name
}

func extract(mem stivale.Memory, addr uint64, dir string, progress func(name string, size int64) io.WriteCloser) error {
	info, err := stivale.Load(mem, addr)
	if err != nil {
		return err
	}

	it := info.Modules()
	used := make(map[string]bool)
	var index int
	for mod, ok := it.Next(); ok; mod, ok = it.Next() {
		name, named := mod.Name()
		base := moduleFileName(index, name, named)
		index++
		fileName := base
		for n := 1; used[fileName]; n++ {
			fileName = fmt.Sprintf("%s.%d", base, n)
		}
		used[fileName] = true
		if fileName != base {
			slog.Warn("module file name already taken", "name", name, "path", fileName)
		}
		file := filepath.Join(dir, fileName)

		if mod.End() < mod.Start() {
			slog.Warn("skipping module with negative size", "name", name, "start", mod.Start(), "end", mod.End())
			continue
		}
		data, err := mem.Window(mod.Start(), mod.Size())
		if err != nil {
			return fmt.Errorf("module %q: %w", name, err)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("create %s: %w", file, err)
		}
		var w io.Writer = f
		var bar io.WriteCloser
		if progress != nil {
			bar = progress(name, int64(len(data)))
			w = io.MultiWriter(f, bar)
		}
		_, err = io.Copy(w, bytes.NewReader(data))
		if bar != nil {
			bar.Close()
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", file, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", file, err)
		}
		slog.Debug("module extracted", "name", name, "path", file, "size", len(data))
	}
	return it.Err()
}
