package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/wudi/pdfmark/config"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/security"
	"github.com/wudi/pdfmark/tempdir"
	"github.com/wudi/pdfmark/watermark"
	"github.com/wudi/pdfmark/writer"
)

var errUsage = errors.New("usage")

// common holds the flags every subcommand accepts.
type common struct {
	configPath string
	password   string
	out        string
	debug      bool
	compress   bool
	keepTemp   bool
}

func newFlagSet(name, usage string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfmark %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "JSON settings file")
	fs.StringVar(&c.password, "password", "", "Password to open encrypted PDFs (prompted when needed)")
	fs.StringVar(&c.out, "out", "", "Output path (default: input name with a suffix)")
	fs.BoolVar(&c.debug, "debug", false, "Log progress at debug level")
	fs.BoolVar(&c.compress, "compress", false, "Flate-compress uncompressed streams in the output")
	fs.BoolVar(&c.keepTemp, "keep-temp", false, "Keep the temporary working directory")
	return fs, c
}

func parse(fs *flag.FlagSet, args []string, nargs int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return err
	}
	if nargs >= 0 && fs.NArg() != nargs {
		fs.Usage()
		return errUsage
	}
	return nil
}

// env is the per-run state shared by subcommands.
type env struct {
	cfg      *config.Config
	flags    *common
	logger   observability.Logger
	arena    *tempdir.Arena
	pipeline *watermark.Pipeline
}

func newEnv(c *common) (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.debug {
		cfg.Debug = true
	}
	if c.compress {
		cfg.Compress = true
	}
	if c.keepTemp {
		cfg.KeepTemp = true
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	arena, err := tempdir.New(cfg.TempDir)
	if err != nil {
		return nil, err
	}
	if cfg.KeepTemp {
		arena.Keep()
		logger.Info("keeping temp directory", observability.String("path", arena.Path()))
	}
	wcfg := writer.Config{}
	if cfg.Compress {
		wcfg.Compression = 6
	}
	return &env{
		cfg:    cfg,
		flags:  c,
		logger: logger,
		arena:  arena,
		pipeline: &watermark.Pipeline{
			Observer: observability.LogObserver(logger),
			Logger:   logger,
			Workers:  cfg.Workers,
			Scale:    cfg.Scale,
			Writer:   wcfg,
		},
	}, nil
}

func (e *env) Close() error { return e.arena.Close() }

// open reads a PDF, prompting for a password on the terminal when the
// document is encrypted and the given one does not fit.
func (e *env) open(ctx context.Context, path string) (*document.Document, error) {
	opts := document.Options{Password: e.flags.password, Logger: e.logger}
	doc, err := watermark.OpenFile(ctx, path, opts)
	if !errors.Is(err, security.ErrInvalidPassword) || !term.IsTerminal(int(syscall.Stdin)) {
		return doc, err
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", path)
	pw, rerr := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if rerr != nil {
		return nil, rerr
	}
	opts.Password = string(pw)
	return watermark.OpenFile(ctx, path, opts)
}

// output picks the destination: -out when given, otherwise the input with
// suffix appended to its stem.
func (e *env) output(in, suffix string) string {
	if e.flags.out != "" {
		return e.flags.out
	}
	return tempdir.AddSuffix(in, suffix)
}

func (e *env) save(ctx context.Context, doc *document.Document, dst string) error {
	return e.pipeline.Persist(ctx, e.arena, dst, func(w io.Writer) error {
		return doc.Write(ctx, w, e.pipeline.Writer)
	})
}
