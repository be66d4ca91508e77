package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/stivale"
	"github.com/tinyrange/stivale/internal/builder"
	"github.com/tinyrange/stivale/internal/physmem"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{in: "4096", want: 4096, ok: true},
		{in: "0x100000", want: 0x100000, ok: true},
		{in: "0o17", want: 0o17, ok: true},
		{in: "0b101", want: 5, ok: true},
		{in: "zz"},
		{in: "-1"},
		{in: "0x10000000000000000"},
	}
	for _, tt := range tests {
		got, err := parseAddr(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("parseAddr(%q) got %#x, %v", tt.in, got, err)
		}
	}
}

func TestTableAlignsAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	o := &output{w: &buf, width: 24}
	o.table([]string{"A", "B"}, [][]string{
		{"0x1", "short"},
		{"0x1000", strings.Repeat("x", 40)},
	})
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if lines[0] != "  A       B" || lines[1] != "  0x1     short" {
		t.Fatalf("columns misaligned: %q", lines[:2])
	}
	if !strings.HasSuffix(lines[2], truncationTail) || len([]rune(lines[2])) != 24 {
		t.Fatalf("long row not truncated to width: %q", lines[2])
	}
}

func TestModuleFileName(t *testing.T) {
	tests := []struct {
		name  string
		named bool
		want  string
	}{
		{name: "", named: false, want: "module3"},
		{name: "initrd", named: true, want: "initrd"},
		{name: "../etc/passwd", named: true, want: ".._etc_passwd"},
		{name: "..", named: true, want: "module3"},
		{name: "a\nb", named: true, want: "a_b"},
	}
	for _, tt := range tests {
		if got := moduleFileName(3, tt.name, tt.named); got != tt.want {
			t.Fatalf("moduleFileName(%q) got %q want %q", tt.name, got, tt.want)
		}
	}
}

func buildImage(t *testing.T) (*physmem.Buffer, *builder.Layout) {
	t.Helper()
	mem := physmem.NewBuffer(defaultBase, 0x40000)
	cfg := &builder.Config{
		Cmdline: "console=ttyS0 root=/dev/vda quiet",
		Epoch:   86400,
		ACPI:    &builder.ACPIConfig{XSDT: 0xe0000},
		Modules: []builder.ModuleConfig{
			{Name: "initrd", Data: "initial ramdisk"},
			{Data: "anonymous"},
		},
	}
	layout, err := builder.Build(mem, defaultBase, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mem, layout
}

func TestDump(t *testing.T) {
	mem, _ := buildImage(t)

	var buf bytes.Buffer
	if err := dump(&output{w: &buf, width: fallbackWidth}, mem, defaultBase, true); err != nil {
		t.Fatalf("dump: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"boot info @ 0x100000",
		`"console=ttyS0 root=/dev/vda quiet"`,
		"root:",
		"1970-01-02T00:00:00Z",
		"(valid, revision 2)",
		"kernel",
		"usable",
		"initrd",
		"<unnamed>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("dump output styled for a non-terminal:\n%s", out)
	}
}

type nopBar struct{ bytes.Buffer }

func (*nopBar) Close() error { return nil }

func TestExtract(t *testing.T) {
	mem, _ := buildImage(t)
	dir := t.TempDir()

	var bars []*nopBar
	err := extract(mem, defaultBase, dir, func(name string, size int64) io.WriteCloser {
		bar := &nopBar{}
		bars = append(bars, bar)
		return bar
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	for name, want := range map[string]string{"initrd": "initial ramdisk", "module1": "anonymous"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s got %q want %q", name, got, want)
		}
	}
	if len(bars) != 2 || bars[0].String() != "initial ramdisk" {
		t.Fatalf("progress writers got %d", len(bars))
	}
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	hdr := stivale.NewHeader(0x80000, stivale.HeaderFlagFramebuffer).WithFramebuffer(800, 600, 32)
	printHeader(&output{w: &buf, width: fallbackWidth}, "kernel.elf", hdr)
	out := buf.String()
	for _, want := range []string{".stivalehdr in kernel.elf", "0x80000", "<ELF entry>", "800x600x32"} {
		if !strings.Contains(out, want) {
			t.Fatalf("header output missing %q:\n%s", want, out)
		}
	}
}

func TestRunBuildThenExtract(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "boot.yaml")
	if err := os.WriteFile(filepath.Join(dir, "payload.bin"), []byte("payload bytes"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	body := "cmdline: quiet\nmodules:\n  - name: payload\n    path: payload.bin\n"
	if err := os.WriteFile(config, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	img := filepath.Join(dir, "mem.img")
	if err := run([]string{"build", "-config", config, "-out", img, "-size", "0x20000"}); err != nil {
		t.Fatalf("build: %v", err)
	}

	out := filepath.Join(dir, "out")
	if err := run([]string{"extract", "-image", img, "-info", "0x100000", "-dir", out}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "payload"))
	if err != nil || string(got) != "payload bytes" {
		t.Fatalf("extracted payload got %q, %v", got, err)
	}

	if err := run([]string{"frobnicate"}); err == nil {
		t.Fatalf("unknown command accepted")
	}
}

func TestExtractKeepsCollidingNames(t *testing.T) {
	mem := physmem.NewBuffer(defaultBase, 0x40000)
	cfg := &builder.Config{
		Modules: []builder.ModuleConfig{
			{Name: "x", Data: "first"},
			{Name: "x", Data: "second"},
			{Data: "anonymous"},
			{Name: "module2", Data: "named like a number"},
		},
	}
	if _, err := builder.Build(mem, defaultBase, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}

	dir := t.TempDir()
	if err := extract(mem, defaultBase, dir, nil); err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := map[string]string{
		"x":         "first",
		"x.1":       "second",
		"module2":   "anonymous",
		"module2.1": "named like a number",
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("extracted %d files, want %d", len(entries), len(want))
	}
	for name, data := range want {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != data {
			t.Fatalf("%s got %q want %q", name, got, data)
		}
	}
}

func TestRunBuildPlacement(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "boot.yaml")
	if err := os.WriteFile(config, []byte("cmdline: quiet\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	img := filepath.Join(dir, "mem.img")

	if err := run([]string{"build", "-config", config, "-out", img, "-size", "0x10000", "-at", "0"}); err == nil {
		t.Fatalf("explicit -at 0 was treated as unset")
	}
	if err := run([]string{"build", "-config", config, "-out", img, "-size", "0x10000", "-at", "0x104000"}); err != nil {
		t.Fatalf("build: %v", err)
	}

	m, err := physmem.MapFile(img, defaultBase, false)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	defer m.Close()
	info, err := stivale.Load(m, 0x104000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, ok, err := info.Cmdline(); err != nil || !ok || got != "quiet" {
		t.Fatalf("Cmdline got (%q, %v, %v)", got, ok, err)
	}
}
