package stivale

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// putModuleList writes m linked module records starting at addr and returns
// their addresses.
func putModuleList(im *image, addr uint64, m int) []uint64 {
	im.t.Helper()
	addrs := make([]uint64, m)
	for i := range m {
		addrs[i] = addr + uint64(i)*0x100
	}
	for i, a := range addrs {
		var next uint64
		if i+1 < m {
			next = addrs[i+1]
		}
		start := 0x200000 + uint64(i)*0x10000
		im.putModule(a, start, start+uint64(i+1)*0x1000, []byte(fmt.Sprintf("mod%d", i)), next)
	}
	return addrs
}

func TestModuleTraversalCountAndSentinel(t *testing.T) {
	const actual = 3
	tests := []struct {
		count     uint64
		want      int
		truncated bool
	}{
		{count: 0, want: 0},
		{count: 2, want: 2},
		{count: 3, want: 3},
		{count: 4, want: 3, truncated: true},
		{count: 100, want: 3, truncated: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d", tt.count), func(t *testing.T) {
			im := newImage(t, 0x1000)
			addrs := putModuleList(im, testBase+0x100, actual)
			im.putInfo(testBase, infoFields{modules: addrs[0], moduleCount: tt.count})

			it := im.load(testBase).Modules()
			var got int
			for m, ok := it.Next(); ok; m, ok = it.Next() {
				name, _ := m.Name()
				if want := fmt.Sprintf("mod%d", got); name != want {
					t.Fatalf("module %d name got %q want %q", got, name, want)
				}
				got++
			}
			if got != tt.want {
				t.Fatalf("yielded %d modules, want %d", got, tt.want)
			}
			if tt.truncated != errors.Is(it.Err(), ErrModuleListTruncated) {
				t.Fatalf("Err got %v, truncated=%v", it.Err(), tt.truncated)
			}
			if _, ok := it.Next(); ok {
				t.Fatalf("exhausted iterator resumed")
			}
		})
	}
}

func TestModuleTraversalNilHead(t *testing.T) {
	im := newImage(t, 0x1000)
	im.putInfo(testBase, infoFields{modules: 0, moduleCount: 1})

	it := im.load(testBase).Modules()
	if _, ok := it.Next(); ok {
		t.Fatalf("iterator dereferenced a nil module list")
	}
	if !errors.Is(it.Err(), ErrModuleListTruncated) {
		t.Fatalf("Err got %v, want ErrModuleListTruncated", it.Err())
	}
}

func TestModuleTraversalUnbackedRecord(t *testing.T) {
	im := newImage(t, 0x1000)
	im.putModule(testBase+0x100, 0, 0x1000, []byte("a"), 0xfff00000)
	im.putInfo(testBase, infoFields{modules: testBase + 0x100, moduleCount: 2})

	it := im.load(testBase).Modules()
	if _, ok := it.Next(); !ok {
		t.Fatalf("first module missing: %v", it.Err())
	}
	if _, ok := it.Next(); ok {
		t.Fatalf("iterator yielded an unbacked record")
	}
	if !errors.Is(it.Err(), ErrOutOfRange) {
		t.Fatalf("Err got %v, want ErrOutOfRange", it.Err())
	}
}

func TestModuleTraversalCycleBoundedByCount(t *testing.T) {
	im := newImage(t, 0x1000)
	const rec = testBase + 0x100
	im.putModule(rec, 0, 0x1000, []byte("loop"), rec)
	im.putInfo(testBase, infoFields{modules: rec, moduleCount: 5})

	var got int
	for range im.load(testBase).ModuleList() {
		got++
	}
	if got != 5 {
		t.Fatalf("yielded %d modules, want 5", got)
	}
}

func TestModuleName(t *testing.T) {
	full := bytes.Repeat([]byte{'n'}, 128)
	tests := []struct {
		name   string
		raw    []byte
		want   string
		wantOK bool
	}{
		{name: "empty", raw: nil},
		{name: "empty with trailing garbage", raw: []byte("\x00garbage")},
		{name: "initrd", raw: []byte("initrd"), want: "initrd", wantOK: true},
		{name: "stops at first nul", raw: []byte("a\x00b"), want: "a", wantOK: true},
		{name: "127 bytes", raw: full[:127], want: string(full[:127]), wantOK: true},
		{name: "unterminated", raw: full, want: string(full[:127]), wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := newImage(t, 0x1000)
			im.putModule(testBase+0x100, 0, 0, tt.raw, 0)
			im.putInfo(testBase, infoFields{modules: testBase + 0x100, moduleCount: 1})

			m, ok := im.load(testBase).Modules().Next()
			if !ok {
				t.Fatalf("module missing")
			}
			got, gotOK := m.Name()
			if got != tt.want || gotOK != tt.wantOK {
				t.Fatalf("Name got (%q, %v) want (%q, %v)", got, gotOK, tt.want, tt.wantOK)
			}
		})
	}
}

func TestModuleGeometry(t *testing.T) {
	im := newImage(t, 0x1000)
	im.putModule(testBase+0x100, 0x400000, 0x4a0000, []byte("kernel.sym"), 0)
	im.putInfo(testBase, infoFields{modules: testBase + 0x100, moduleCount: 1})

	m, ok := im.load(testBase).Modules().Next()
	if !ok {
		t.Fatalf("module missing")
	}
	if m.Start() != 0x400000 || m.End() != 0x4a0000 || m.Size() != 0xa0000 || m.Next() != 0 {
		t.Fatalf("geometry got start %#x end %#x size %#x next %#x", m.Start(), m.End(), m.Size(), m.Next())
	}
	if got, want := m.String(), `module "kernel.sym" [0x400000, 0x4a0000)`; got != want {
		t.Fatalf("String got %s want %s", got, want)
	}
}
