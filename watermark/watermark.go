// Package watermark wires the pieces into the end-to-end run: build the
// drawable objects, render the overlay, merge it onto a document and
// persist the result.
package watermark

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/wudi/pdfmark/assets"
	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/fonts"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/tempdir"
	"github.com/wudi/pdfmark/writer"
)

const (
	DefaultRotate  = 30
	DefaultOpacity = 0.08
	CopyrightSize  = 16
)

// Params describes the standard watermark: an image, an optional copyright
// line and one or two lines of text.
type Params struct {
	Text1     string
	Text2     string
	Copyright bool
	// Image names an asset; empty selects assets.DefaultImage. ImageData,
	// when set, is used instead. NoImage leaves the image out.
	Image     string
	ImageData []byte
	NoImage   bool
	// Rotate turns every object about its own center, in degrees.
	Rotate      float64
	Opacity     float64
	Compression int
	// SheetRotation turns the finished overlay by a multiple of 90.
	SheetRotation int
	Placement     merge.Placement
	// PageSize overrides the overlay size; zero uses the document's first
	// page as displayed.
	PageSize canvas.PageSize
	Font     string
	Color    canvas.Color
}

func DefaultParams() Params {
	return Params{Copyright: true, Rotate: DefaultRotate, Opacity: DefaultOpacity}
}

// Build turns p into drawable objects in paint order: image, copyright,
// then the text lines.
func Build(p Params, provider assets.Provider, year int) (*canvas.Objects, error) {
	objs := canvas.NewObjects()
	if !p.NoImage {
		data := p.ImageData
		if data == nil {
			name := p.Image
			if name == "" {
				name = assets.DefaultImage
			}
			var err error
			if data, err = provider.Open(name); err != nil {
				return nil, &canvas.ConfigurationError{Field: "image", Reason: err.Error()}
			}
		}
		objs.Add(&canvas.ImageObject{
			Placement: canvas.Placement{X: 200, Y: -200, Opacity: p.Opacity, Rotation: p.Rotate},
			Source:    data,
		})
	}
	if p.Copyright {
		objs.Add(&canvas.TextObject{
			Placement: canvas.Placement{Y: 10, Opacity: p.Opacity, Rotation: p.Rotate},
			Content:   "© copyright " + strconv.Itoa(year),
			Size:      CopyrightSize,
			Font:      p.Font,
			Color:     p.Color,
		})
	}
	text := func(s string, y float64) *canvas.TextObject {
		return &canvas.TextObject{
			Placement: canvas.Placement{Y: y, Opacity: p.Opacity, Rotation: p.Rotate},
			Content:   s,
			Font:      p.Font,
			Color:     p.Color,
		}
	}
	switch {
	case p.Text1 != "" && p.Text2 != "":
		objs.Add(text(p.Text1, -140), text(p.Text2, -90))
	case p.Text1 != "":
		objs.Add(text(p.Text1, -115))
	case p.Text2 != "":
		objs.Add(text(p.Text2, -115))
	}
	return objs, nil
}

// Pipeline holds the collaborators shared by runs.
type Pipeline struct {
	Assets   assets.Provider
	Fonts    *fonts.Registry
	Observer observability.Observer
	Tracer   observability.Tracer
	Logger   observability.Logger
	Workers  int
	// Scale is the overlay resolution in pixels per point.
	Scale float64
	Now   func() time.Time
	// Writer controls serialization of every persisted file.
	Writer writer.Config
}

func (p *Pipeline) defaults() {
	if p.Assets == nil {
		p.Assets = assets.Builtin()
	}
	if p.Observer == nil {
		p.Observer = observability.NopObserver{}
	}
	if p.Tracer == nil {
		p.Tracer = observability.NopTracer()
	}
	if p.Logger == nil {
		p.Logger = observability.NopLogger{}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
}

// Overlay renders the watermark for a page of the given size.
func (p *Pipeline) Overlay(ctx context.Context, params Params, size canvas.PageSize) (*render.Overlay, error) {
	p.defaults()
	objs, err := Build(params, p.Assets, p.Now().Year())
	if err != nil {
		return nil, err
	}
	return render.Render(ctx, objs, render.Options{
		PageSize:    size,
		Rotation:    params.SheetRotation,
		Compression: params.Compression,
		Scale:       p.Scale,
		Fonts:       p.Fonts,
		Observer:    p.Observer,
		Tracer:      p.Tracer,
	})
}

// Apply watermarks doc and returns the merged copy; doc is unchanged.
func (p *Pipeline) Apply(ctx context.Context, doc *document.Document, params Params) (*document.Document, error) {
	p.defaults()
	size := params.PageSize
	if size == (canvas.PageSize{}) {
		geom, err := doc.PageGeometry(0)
		if err != nil {
			return nil, &canvas.PageMismatchError{Reason: "source document has no pages"}
		}
		size = geom.Effective()
	}
	ov, err := p.Overlay(ctx, params, size)
	if err != nil {
		return nil, err
	}
	merged, err := merge.Merge(ctx, doc, ov, merge.Options{
		Placement: params.Placement,
		Workers:   p.Workers,
		Observer:  p.Observer,
		Tracer:    p.Tracer,
	})
	if err != nil {
		return nil, err
	}
	return merged.(*document.Document), nil
}

// Run watermarks the file at in and writes the result to out. Nothing is
// written to out unless every step succeeds.
func (p *Pipeline) Run(ctx context.Context, arena *tempdir.Arena, in, out string, params Params, open document.Options) error {
	p.defaults()
	if open.Logger == nil {
		open.Logger = p.Logger
	}
	doc, err := OpenFile(ctx, in, open)
	if err != nil {
		return err
	}
	merged, err := p.Apply(ctx, doc, params)
	if err != nil {
		return err
	}
	return p.Persist(ctx, arena, out, func(w io.Writer) error {
		return merged.Write(ctx, w, p.Writer)
	})
}

// OpenFile opens a PDF from disk.
func OpenFile(ctx context.Context, path string, opts document.Options) (*document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := document.Open(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return doc, nil
}

// Persist writes through a temp file in arena and publishes it as dst only
// after write succeeded and the context is still live.
func (p *Pipeline) Persist(ctx context.Context, arena *tempdir.Arena, dst string, write func(io.Writer) error) error {
	p.defaults()
	_, span := p.Tracer.StartSpan(ctx, observability.SpanWrite)
	defer span.Finish()
	start := p.Now()
	f, err := arena.CreateTemp("pdfmark-*.pdf")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		span.SetError(err)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := arena.Publish(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", dst, err)
	}
	p.Logger.Info("wrote document", observability.String("path", dst))
	p.Observer.Observe(observability.Event{Kind: observability.Persisted, Path: dst, Duration: p.Now().Sub(start)})
	return nil
}
