package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinyrange/stivale"
	"github.com/tinyrange/stivale/internal/kernelimage"
)

func runHeader(args []string) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("header needs exactly one kernel path")
	}

	hdr, err := kernelimage.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	printHeader(newOutput(os.Stdout), fs.Arg(0), hdr)
	return nil
}

func printHeader(o *output, path string, hdr stivale.Header) {
	o.heading(fmt.Sprintf("%s in %s", stivale.HeaderSection, path))
	o.field("stack", "%#x", hdr.Stack())
	o.field("flags", "%s", hdr.Flags())
	if hdr.EntryPoint() == 0 {
		o.field("entry point", "<ELF entry>")
	} else {
		o.field("entry point", "%#x", hdr.EntryPoint())
	}
	if hdr.Flags().Has(stivale.HeaderFlagFramebuffer) {
		o.field("framebuffer", "%dx%dx%d", hdr.FramebufferWidth(), hdr.FramebufferHeight(), hdr.FramebufferBpp())
	}
}
