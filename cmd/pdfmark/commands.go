package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wudi/pdfmark/assets"
	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/config"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/flatten"
	"github.com/wudi/pdfmark/fonts"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/secure"
	"github.com/wudi/pdfmark/watermark"
)

const producer = "pdfmark"

// watermarkFlags overlays the watermark section of the settings file.
// Only flags given on the command line take effect.
func watermarkFlags(fs *flag.FlagSet) func(*config.Watermark) {
	text1 := fs.String("text1", "", "First line of text")
	text2 := fs.String("text2", "", "Second line of text")
	noCopyright := fs.Bool("no-copyright", false, "Leave out the copyright line")
	img := fs.String("image", "", "Built-in asset name or image file")
	noImage := fs.Bool("no-image", false, "Leave out the image")
	rotate := fs.Float64("rotate", watermark.DefaultRotate, "Rotation of each object in degrees")
	opacity := fs.Float64("opacity", watermark.DefaultOpacity, "Opacity in [0,1]")
	compression := fs.Int("compression", 0, "Image compression level 0-9")
	sheet := fs.Int("sheet-rotation", 0, "Turn the whole overlay: 0, 90, 180 or 270")
	placement := fs.String("placement", "top", "top or underneath")
	pageSize := fs.String("page-size", "", "letter, a4 or WxH in points (default: first page)")
	color := fs.String("color", "", "Text color as #rrggbb")
	font := fs.String("font", "", "Font name, or a TrueType/OpenType file")
	return func(w *config.Watermark) {
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "text1":
				w.Text1 = *text1
			case "text2":
				w.Text2 = *text2
			case "no-copyright":
				on := !*noCopyright
				w.Copyright = &on
			case "image":
				w.Image = *img
			case "no-image":
				w.NoImage = *noImage
			case "rotate":
				w.Rotate = rotate
			case "opacity":
				w.Opacity = opacity
			case "compression":
				w.Compression = *compression
			case "sheet-rotation":
				w.SheetRotation = *sheet
			case "placement":
				w.Placement = *placement
			case "page-size":
				w.PageSize = *pageSize
			case "color":
				w.Color = *color
			case "font":
				w.Font = *font
			}
		})
	}
}

// params converts the watermark settings, registering a font file when
// the font setting names one.
func (e *env) params(w config.Watermark) (watermark.Params, error) {
	p, err := w.Params()
	if err != nil {
		return p, err
	}
	if p.Font == "" {
		return p, nil
	}
	data, err := os.ReadFile(p.Font)
	if errors.Is(err, os.ErrNotExist) {
		// a face name rather than a file
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("font: %w", err)
	}
	reg, err := fonts.NewRegistry()
	if err != nil {
		return p, err
	}
	name := filepath.Base(p.Font)
	if err := reg.Register(name, data); err != nil {
		return p, err
	}
	e.pipeline.Fonts = reg
	p.Font = name
	return p, nil
}

func runWatermark(ctx context.Context, args []string) error {
	fs, c := newFlagSet("watermark", commands["watermark"].usage)
	apply := watermarkFlags(fs)
	receipt := fs.Bool("receipt", false, "Append a receipt next to the output")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	apply(&e.cfg.Watermark)
	params, err := e.params(e.cfg.Watermark)
	if err != nil {
		return err
	}
	in := fs.Arg(0)
	out := e.output(in, e.cfg.Suffix)
	start := time.Now()

	var rec *observability.Receipt
	if *receipt || e.cfg.Receipt {
		rec = observability.NewReceipt("PDF Watermarker", start, os.Stdout)
		describe(rec, in, e.cfg.Watermark.Image, params)
		e.pipeline.Observer = observability.Multi(e.pipeline.Observer, rec)
	}
	doc, err := e.open(ctx, in)
	if err != nil {
		return err
	}
	merged, err := e.pipeline.Apply(ctx, doc, params)
	if err != nil {
		return err
	}
	merged.SetMetadata(raw.DocumentMetadata{Producer: producer})
	if err := e.save(ctx, merged, out); err != nil {
		return err
	}
	if rec != nil {
		rec.Add("~run time~", time.Since(start).Round(time.Millisecond))
		return rec.AppendFile(filepath.Join(filepath.Dir(out), e.cfg.ReceiptFile))
	}
	return nil
}

// describe records the run settings on the receipt, one line each, in the
// order the watermark tool has always written them.
func describe(rec *observability.Receipt, in, image string, p watermark.Params) {
	rec.Add("Directory", filepath.Dir(in))
	rec.Add("PDF", filepath.Base(in))
	rec.Add("Text1", p.Text1)
	rec.Add("Text2", p.Text2)
	switch {
	case p.NoImage:
		image = "none"
	case image == "":
		image = assets.DefaultImage
	}
	rec.Add("Image", image)
	rec.Add("WM Opacity", fmt.Sprintf("%d%%", int(math.Round(p.Opacity*100))))
	rec.Add("WM Compression", p.Compression)
	rec.Add("WM Placement", p.Placement)
}

func runOverlay(ctx context.Context, args []string) error {
	fs, c := newFlagSet("overlay", commands["overlay"].usage)
	apply := watermarkFlags(fs)
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	apply(&e.cfg.Watermark)
	params, err := e.params(e.cfg.Watermark)
	if err != nil {
		return err
	}
	size := params.PageSize
	if size == (canvas.PageSize{}) {
		size = canvas.Letter
	}
	ov, err := e.pipeline.Overlay(ctx, params, size)
	if err != nil {
		return err
	}
	out := c.out
	if out == "" {
		out = "overlay.pdf"
	}
	return e.pipeline.Persist(ctx, e.arena, out, func(w io.Writer) error {
		return ov.WritePDF(ctx, w)
	})
}

func runRotate(ctx context.Context, args []string) error {
	fs, c := newFlagSet("rotate", commands["rotate"].usage)
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	deg, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("degrees: %w", err)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	doc, err := e.open(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	if err := doc.Rotate(deg); err != nil {
		return err
	}
	return e.save(ctx, doc, e.output(fs.Arg(1), "rotated"))
}

func runSlice(ctx context.Context, args []string) error {
	fs, c := newFlagSet("slice", commands["slice"].usage)
	if err := parse(fs, args, 3); err != nil {
		return err
	}
	first, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("first page: %w", err)
	}
	last, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("last page: %w", err)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	doc, err := e.open(ctx, fs.Arg(2))
	if err != nil {
		return err
	}
	sliced, err := doc.Slice(first, last)
	if err != nil {
		return err
	}
	return e.save(ctx, sliced, e.output(fs.Arg(2), "sliced"))
}

func runUpscale(ctx context.Context, args []string) error {
	fs, c := newFlagSet("upscale", commands["upscale"].usage)
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	factor, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil {
		return fmt.Errorf("factor: %w", err)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	doc, err := e.open(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	if err := doc.Scale(factor); err != nil {
		return err
	}
	return e.save(ctx, doc, e.output(fs.Arg(1), "upscaled"))
}

func runMerge(ctx context.Context, args []string) error {
	fs, c := newFlagSet("merge", commands["merge"].usage)
	if err := parse(fs, args, -1); err != nil {
		return err
	}
	if fs.NArg() < 2 || c.out == "" {
		fs.Usage()
		return errUsage
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	docs := make([]*document.Document, 0, fs.NArg())
	for _, path := range fs.Args() {
		doc, err := e.open(ctx, path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	merged, err := document.Concat(docs[0], docs[1:]...)
	if err != nil {
		return err
	}
	merged.SetMetadata(raw.DocumentMetadata{Producer: producer})
	return e.save(ctx, merged, c.out)
}

func runInfo(ctx context.Context, args []string) error {
	fs, c := newFlagSet("info", commands["info"].usage)
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	doc, err := e.open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	info := doc.Info()
	rec := observability.NewReceipt("PDF Info", time.Now(), os.Stdout)
	rec.Add("File", fs.Arg(0))
	rec.Add("Version", info.Version)
	rec.Add("Pages", info.Pages)
	rec.Add("Encrypted", info.Encrypted)
	if info.Encrypted {
		rec.Add("Printing", info.Permissions.Print)
		rec.Add("Modifying", info.Permissions.Modify)
		rec.Add("Copying", info.Permissions.Copy)
	}
	for _, kv := range []struct{ key, val string }{
		{"Title", info.Metadata.Title}, {"Author", info.Metadata.Author},
		{"Subject", info.Metadata.Subject}, {"Creator", info.Metadata.Creator},
		{"Producer", info.Metadata.Producer},
	} {
		if kv.val != "" {
			rec.Add(kv.key, kv.val)
		}
	}
	for _, p := range info.PageSizes {
		rec.Add(fmt.Sprintf("Page %d", p.Number), fmt.Sprintf("%gx%g rotate %d", p.Width, p.Height, p.Rotation))
	}
	return nil
}

func runImg2PDF(ctx context.Context, args []string) error {
	fs, c := newFlagSet("img2pdf", commands["img2pdf"].usage)
	compression := fs.Int("compression", 0, "Image compression level 0-9")
	quality := fs.Int("quality", 0, "JPEG quality for opaque pages; 0 keeps them lossless")
	if err := parse(fs, args, -1); err != nil {
		return err
	}
	if fs.NArg() == 0 || c.out == "" {
		fs.Usage()
		return errUsage
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	sources := make([][]byte, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, data)
	}
	doc, err := flatten.ImagesToPDF(ctx, sources, *compression, *quality)
	if err != nil {
		return err
	}
	return e.save(ctx, doc, c.out)
}

func runSecure(ctx context.Context, args []string) error {
	fs, c := newFlagSet("secure", commands["secure"].usage)
	user := fs.String("user-password", "", "Password required to open the output")
	owner := fs.String("owner-password", "", "Password granting full access (default: user password)")
	algorithm := fs.String("algorithm", "", "aes or rc4")
	keyLength := fs.Int("key-length", 0, "Key length in bits: 40/128 for rc4, 128/256 for aes")
	allowAll := fs.Bool("allow-all", false, "Grant every permission instead of printing only")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	s := e.cfg.Secure
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "user-password":
			s.UserPassword = *user
		case "owner-password":
			s.OwnerPassword = *owner
		case "algorithm":
			s.Algorithm = *algorithm
		case "key-length":
			s.KeyLength = *keyLength
		case "allow-all":
			s.AllowAll = *allowAll
		}
	})
	opts, err := s.Options()
	if err != nil {
		return err
	}
	in := fs.Arg(0)
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.pipeline.Persist(ctx, e.arena, e.output(in, "secured"), func(w io.Writer) error {
		return secure.Encrypt(ctx, f, w, opts)
	})
}
