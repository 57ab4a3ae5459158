package render

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/writer"
)

// Overlay is one rendered watermark page. It is never modified after
// Render returns and may be shared by concurrent merges.
type Overlay struct {
	// Size is the page extent after the global rotation.
	Size     canvas.PageSize
	Rotation int
	// Scale is the raster resolution in pixels per point.
	Scale float64
	// Image holds premultiplied pixels on a transparent background,
	// origin top-left.
	Image *image.RGBA
}

// Rotated returns a copy turned counter-clockwise by deg, a multiple of 90.
// Quarter turns only permute pixels, so four of them restore the original.
func (o *Overlay) Rotated(deg int) (*Overlay, error) {
	if err := canvas.ValidateRotation("rotation", deg); err != nil {
		return nil, err
	}
	return &Overlay{
		Size:     o.Size.Rotated(deg),
		Rotation: canvas.NormalizeRotation(o.Rotation + deg),
		Scale:    o.Scale,
		Image:    rotateImage(o.Image, deg),
	}, nil
}

// PixelAt samples the overlay at a page point (origin bottom-left, y up).
// Points outside the page report a transparent pixel.
func (o *Overlay) PixelAt(x, y float64) color.RGBA {
	px := int(math.Floor(x * o.Scale))
	py := int(math.Floor((o.Size.Height - y) * o.Scale))
	if !(image.Point{px, py}).In(o.Image.Bounds()) {
		return color.RGBA{}
	}
	return o.Image.RGBAAt(px, py)
}

// Empty reports whether no pixel of the overlay carries any coverage.
func (o *Overlay) Empty() bool {
	for i := 3; i < len(o.Image.Pix); i += 4 {
		if o.Image.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// WritePDF persists the overlay as a one-page PDF whose page has the
// overlay's size.
func (o *Overlay) WritePDF(ctx context.Context, w io.Writer) error {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict(), Version: "1.4"}
	xobj, smask, err := writer.ImageXObject(o.Image, 0)
	if err != nil {
		return err
	}
	if smask != nil {
		xobj.Dict.Set("SMask", doc.Add(smask))
	}
	imgRef := doc.Add(xobj)

	content := raw.NewStream(raw.Dict(), DrawImageOp("Im0", o.Size.Width, o.Size.Height))
	xobjects := raw.Dict()
	xobjects.Set("Im0", imgRef)
	resources := raw.Dict()
	resources.Set("XObject", xobjects)

	pages := raw.Dict()
	pagesRef := doc.Add(pages)
	page := raw.Dict()
	page.Set("Type", raw.Name("Page"))
	page.Set("Parent", pagesRef)
	page.Set("MediaBox", raw.Numbers(0, 0, o.Size.Width, o.Size.Height))
	page.Set("Resources", resources)
	page.Set("Contents", doc.Add(content))
	pageRef := doc.Add(page)
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", raw.NewArray(pageRef))
	pages.Set("Count", raw.Int(1))

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	doc.Trailer.Set("Root", doc.Add(catalog))
	return writer.NewWriter().Write(ctx, doc, w, writer.Config{Compression: 6, Deterministic: true})
}

// DrawImageOp returns a content stream painting the named image XObject
// over a w×h rectangle at the origin.
func DrawImageOp(name string, w, h float64) []byte {
	return []byte("q " + writer.FormatReal(w) + " 0 0 " + writer.FormatReal(h) + " 0 0 cm /" + name + " Do Q\n")
}
