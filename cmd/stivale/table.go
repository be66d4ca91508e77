package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

const (
	columnGap      = 2
	fallbackWidth  = 120
	truncationTail = "…"
)

// output writes human readable reports. Styling is only emitted when the
// destination is a terminal.
type output struct {
	w     io.Writer
	color bool
	width int
}

func newOutput(f *os.File) *output {
	o := &output{w: f, width: fallbackWidth}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		o.color = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			o.width = w
		}
	}
	return o
}

func (o *output) heading(title string) {
	if o.color {
		title = ansi.Style{}.Bold().Styled(title)
	}
	fmt.Fprintln(o.w, title)
}

func (o *output) field(name string, format string, args ...any) {
	fmt.Fprintf(o.w, "  %-16s %s\n", name+":", fmt.Sprintf(format, args...))
}

// table prints rows with aligned columns. The last column is truncated so
// that each line fits the output width.
func (o *output) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = ansi.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := ansi.StringWidth(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style bool) {
		var b strings.Builder
		b.WriteString("  ")
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)+columnGap))
		}
		s := ansi.Truncate(b.String(), o.width, truncationTail)
		if !o.color {
			s = ansi.Strip(s)
		} else if style {
			s = ansi.Style{}.Faint().Styled(s)
		}
		fmt.Fprintln(o.w, s)
	}

	line(header, true)
	for _, row := range rows {
		line(row, false)
	}
}
