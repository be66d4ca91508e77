// Command stivale inspects and produces stivale boot information.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

const defaultBase = 0x100000

func usage() {
	fmt.Fprintf(os.Stderr, `stivale - inspect and build stivale boot information

USAGE:
  stivale [-v] <command> [flags]

COMMANDS:
  dump     Print the boot info found in a memory image
  build    Lay out boot info from a YAML description into a new memory image
  header   Print the stivale header of an ELF kernel
  extract  Copy the modules of a memory image into a directory

Run "stivale <command> -h" for the flags of a command.
`)
}

// parseAddr accepts decimal or 0x/0o/0b prefixed numbers.
func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

// addrFlag is a flag.Value for physical addresses.
type addrFlag uint64

func (a *addrFlag) String() string { return fmt.Sprintf("%#x", uint64(*a)) }

func (a *addrFlag) Set(s string) error {
	v, err := parseAddr(s)
	if err != nil {
		return err
	}
	*a = addrFlag(v)
	return nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("stivale", flag.ContinueOnError)
	fs.Usage = usage
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if fs.NArg() < 1 {
		usage()
		return flag.ErrHelp
	}

	rest := fs.Args()[1:]
	switch fs.Arg(0) {
	case "dump":
		return runDump(rest)
	case "build":
		return runBuild(rest)
	case "header":
		return runHeader(rest)
	case "extract":
		return runExtract(rest)
	default:
		usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "stivale: %v\n", err)
		}
		os.Exit(1)
	}
}
