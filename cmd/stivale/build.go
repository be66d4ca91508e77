package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/stivale/internal/builder"
	"github.com/tinyrange/stivale/internal/physmem"
)

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML boot description")
	out := fs.String("out", "", "memory image to write")
	base := addrFlag(defaultBase)
	fs.Var(&base, "base", "physical address of the first byte of the image")
	size := addrFlag(16 << 20)
	fs.Var(&size, "size", "size of the image in bytes")
	var at addrFlag
	fs.Var(&at, "at", "physical address of the boot info structure (default: -base)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("build needs -config and -out")
	}
	atSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "at" {
			atSet = true
		}
	})
	if !atSet {
		at = base
	}

	cfg, err := builder.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	var bars []*progressbar.ProgressBar
	defer func() {
		for _, bar := range bars {
			bar.Close()
		}
	}()
	b := builder.Builder{
		Logger: slog.Default(),
		Progress: func(name string, size int64) io.Writer {
			bar := progressbar.DefaultBytes(size, fmt.Sprintf("load %s", name))
			bars = append(bars, bar)
			return bar
		},
	}

	mem := physmem.NewBuffer(uint64(base), uint64(size))
	layout, err := b.Build(mem, uint64(at), cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, mem.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write memory image: %w", err)
	}

	slog.Info("memory image written", "path", *out, "base", fmt.Sprintf("%#x", uint64(base)), "end", fmt.Sprintf("%#x", layout.End))
	fmt.Printf("%#x\n", layout.InfoAddr)
	return nil
}
