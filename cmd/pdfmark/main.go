package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// commands is filled in init: the run functions read their usage line
// back from it.
var commands map[string]command

func init() {
	commands = map[string]command{
		"watermark": {"[flags] <pdf>", runWatermark},
		"overlay":   {"[flags]", runOverlay},
		"rotate":    {"[flags] <degrees> <pdf>", runRotate},
		"slice":     {"[flags] <first> <last> <pdf>", runSlice},
		"upscale":   {"[flags] <factor> <pdf>", runUpscale},
		"merge":     {"[flags] -out <pdf> <pdf> <pdf>...", runMerge},
		"info":      {"[flags] <pdf>", runInfo},
		"img2pdf":   {"[flags] -out <pdf> <image>...", runImg2PDF},
		"secure":    {"[flags] <pdf>", runSecure},
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pdfmark <command> [flags] [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "pdfmark: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.run(ctx, os.Args[2:]); err != nil {
		if err == errUsage {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "pdfmark %s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}
