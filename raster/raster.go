// Package raster is an image-backed merge target: every page is a bitmap.
// Scanned and flattened documents merge through it, and its pixels make
// placement easy to inspect.
package raster

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/render"
)

// Page is one bitmap page. Rotation is the clockwise display rotation, the
// same convention PDF pages use.
type Page struct {
	Image    *image.RGBA
	Rotation int
}

type Document struct {
	// Scale is pixels per point for every page.
	Scale float64
	pages []*Page
}

// New wraps imgs as pages at scale pixels per point. The images are copied.
func New(scale float64, imgs ...image.Image) (*Document, error) {
	if !(scale > 0) {
		return nil, &canvas.ConfigurationError{Field: "scale", Reason: fmt.Sprintf("must be positive, got %g", scale)}
	}
	d := &Document{Scale: scale}
	for _, img := range imgs {
		d.pages = append(d.pages, &Page{Image: toRGBA(img)})
	}
	return d, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// SetRotation records a display rotation for page i.
func (d *Document) SetRotation(i, deg int) error {
	if i < 0 || i >= len(d.pages) {
		return fmt.Errorf("page %d out of range", i)
	}
	if err := canvas.ValidateRotation("rotation", deg); err != nil {
		return err
	}
	d.pages[i].Rotation = canvas.NormalizeRotation(deg)
	return nil
}

// Page returns page i's pixels.
func (d *Document) Page(i int) *image.RGBA { return d.pages[i].Image }

// Images lists the page bitmaps in order.
func (d *Document) Images() []image.Image {
	out := make([]image.Image, len(d.pages))
	for i, p := range d.pages {
		out[i] = p.Image
	}
	return out
}

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) PageGeometry(i int) (merge.Geometry, error) {
	if i < 0 || i >= len(d.pages) {
		return merge.Geometry{}, fmt.Errorf("page %d out of range", i)
	}
	p := d.pages[i]
	b := p.Image.Bounds()
	return merge.Geometry{
		Box:      coords.Rect{URX: float64(b.Dx()) / d.Scale, URY: float64(b.Dy()) / d.Scale},
		Rotation: p.Rotation,
	}, nil
}

func (d *Document) Clone() merge.Document {
	c := &Document{Scale: d.Scale, pages: make([]*Page, len(d.pages))}
	for i, p := range d.pages {
		img := image.NewRGBA(p.Image.Bounds())
		copy(img.Pix, p.Image.Pix)
		c.pages[i] = &Page{Image: img, Rotation: p.Rotation}
	}
	return c
}

// Stamp resamples the overlay through s.Matrix onto page i. Underneath
// paints the page over the overlay, so opaque pages hide it completely.
func (d *Document) Stamp(ctx context.Context, i int, s merge.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	geom, err := d.PageGeometry(i)
	if err != nil {
		return err
	}
	page := d.pages[i].Image
	ov := s.Overlay.Image
	ob := ov.Bounds()
	// overlay pixels to its unit square, y up
	unit := coords.Translate(-float64(ob.Min.X), -float64(ob.Min.Y)).
		Multiply(coords.Scale(1/float64(ob.Dx()), -1/float64(ob.Dy()))).
		Multiply(coords.Translate(0, 1))
	m := unit.Multiply(s.Matrix).
		Multiply(coords.Translate(-geom.Box.LLX, -geom.Box.LLY)).
		Multiply(coords.DeviceMatrix(geom.Box.Height(), d.Scale))
	aff := render.Aff3(m)

	if s.Placement == merge.Underneath {
		layer := image.NewRGBA(page.Bounds())
		draw.BiLinear.Transform(layer, aff, ov, ob, draw.Src, nil)
		draw.Draw(layer, layer.Bounds(), page, page.Bounds().Min, draw.Over)
		copy(page.Pix, layer.Pix)
		return nil
	}
	draw.BiLinear.Transform(page, aff, ov, ob, draw.Over, nil)
	return nil
}
