// Package flatten turns pages into images and images back into pages.
package flatten

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/raster"
	"github.com/wudi/pdfmark/render"
)

// Rasterizer renders document pages to bitmaps. No PDF renderer ships
// with this module; callers plug one in.
type Rasterizer interface {
	PageCount() int
	RasterizePage(ctx context.Context, i int) (image.Image, error)
}

type Options struct {
	// Scale is the pixels per point the rasterizer produces; zero selects
	// render.DefaultScale.
	Scale float64
	// Quality is the JPEG quality for the rebuilt pages; zero embeds them
	// losslessly.
	Quality int
	// Overlay, when set, is merged onto the bitmaps before they are
	// reassembled.
	Overlay   *render.Overlay
	Placement merge.Placement
	Workers   int
	Observer  observability.Observer
}

// Flatten rasterizes every page and reassembles the bitmaps into a new
// document with the original page sizes.
func Flatten(ctx context.Context, r Rasterizer, opts Options) (*document.Document, error) {
	if opts.Scale == 0 {
		opts.Scale = render.DefaultScale
	}
	n := r.PageCount()
	if n == 0 {
		return nil, &canvas.PageMismatchError{Reason: "nothing to flatten"}
	}
	imgs := make([]image.Image, n)
	for i := range imgs {
		img, err := r.RasterizePage(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rasterize page %d: %w", i+1, err)
		}
		imgs[i] = img
	}
	pages, err := raster.New(opts.Scale, imgs...)
	if err != nil {
		return nil, err
	}
	if opts.Overlay != nil {
		merged, err := merge.Merge(ctx, pages, opts.Overlay, merge.Options{
			Placement: opts.Placement,
			Workers:   opts.Workers,
			Observer:  opts.Observer,
		})
		if err != nil {
			return nil, err
		}
		pages = merged.(*raster.Document)
	}
	out := make([]document.PageImage, pages.PageCount())
	for i := range out {
		geom, err := pages.PageGeometry(i)
		if err != nil {
			return nil, err
		}
		size := geom.Size()
		out[i] = document.PageImage{Image: pages.Page(i), Width: size.Width, Height: size.Height}
	}
	return document.FromImages(ctx, out, document.ImageOptions{Quality: opts.Quality})
}

// ImagesToPDF places each encoded image on a page of its own pixel size,
// one point per pixel. Every image goes through the overlay renderer so
// the same decoders and compression apply.
func ImagesToPDF(ctx context.Context, sources [][]byte, compression, quality int) (*document.Document, error) {
	if len(sources) == 0 {
		return nil, document.ErrNoPages
	}
	pages := make([]document.PageImage, 0, len(sources))
	for i, src := range sources {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
		if err != nil {
			return nil, &canvas.UnsupportedAssetError{Object: i, Err: err}
		}
		size := canvas.PageSize{Width: float64(cfg.Width), Height: float64(cfg.Height)}
		objs := canvas.NewObjects(&canvas.ImageObject{Placement: canvas.Placement{Opacity: 1}, Source: src})
		ov, err := render.Render(ctx, objs, render.Options{PageSize: size, Compression: compression, Scale: 1})
		if err != nil {
			var ua *canvas.UnsupportedAssetError
			if errors.As(err, &ua) {
				ua.Object = i
			}
			return nil, err
		}
		pages = append(pages, document.PageImage{Image: ov.Image, Width: size.Width, Height: size.Height})
	}
	return document.FromImages(ctx, pages, document.ImageOptions{Quality: quality})
}
