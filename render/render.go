package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/fonts"
	"github.com/wudi/pdfmark/observability"
)

// DefaultScale is the overlay resolution in pixels per point (144 dpi).
const DefaultScale = 2

// MaxCompression is the highest accepted compression level.
const MaxCompression = 9

type Options struct {
	PageSize canvas.PageSize
	// Rotation turns the finished sheet counter-clockwise: 0, 90, 180 or 270.
	Rotation int
	// Compression 1-9 re-encodes image objects lossily before they are
	// painted; 0 keeps them untouched. Text is never affected.
	Compression int
	// Scale is pixels per point; zero selects DefaultScale.
	Scale    float64
	Fonts    *fonts.Registry
	Observer observability.Observer
	Tracer   observability.Tracer
}

func (o *Options) validate() error {
	if err := o.PageSize.Validate(); err != nil {
		return err
	}
	switch o.Rotation {
	case 0, 90, 180, 270:
	default:
		return &canvas.ConfigurationError{Field: "rotation", Reason: fmt.Sprintf("must be 0, 90, 180 or 270, got %d", o.Rotation)}
	}
	if o.Compression < 0 || o.Compression > MaxCompression {
		return &canvas.ConfigurationError{Field: "compression", Reason: fmt.Sprintf("must be within [0,%d], got %d", MaxCompression, o.Compression)}
	}
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	if !(o.Scale > 0) || math.IsInf(o.Scale, 0) {
		return &canvas.ConfigurationError{Field: "scale", Reason: fmt.Sprintf("must be positive, got %g", o.Scale)}
	}
	if o.Observer == nil {
		o.Observer = observability.NopObserver{}
	}
	if o.Tracer == nil {
		o.Tracer = observability.NopTracer()
	}
	return nil
}

// Render paints objs in insertion order onto a transparent page and applies
// the global rotation. The same input always yields identical pixels.
func Render(ctx context.Context, objs *canvas.Objects, opts Options) (*Overlay, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx, span := opts.Tracer.StartSpan(ctx, observability.SpanRender)
	defer span.Finish()

	items := objs.Snapshot()
	for i, obj := range items {
		if err := obj.Validate(i); err != nil {
			span.SetError(err)
			return nil, err
		}
	}
	reg := opts.Fonts
	if reg == nil {
		var err error
		if reg, err = fonts.NewRegistry(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	opts.Observer.Observe(observability.Event{Kind: observability.RenderStarted, Total: len(items)})
	size := opts.PageSize
	w := int(math.Ceil(size.Width * opts.Scale))
	h := int(math.Ceil(size.Height * opts.Scale))
	page := image.NewRGBA(image.Rect(0, 0, w, h))

	for i, obj := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		objStart := time.Now()
		var (
			t   *tile
			err error
		)
		switch o := obj.(type) {
		case *canvas.TextObject:
			t, err = textTile(i, o, reg, opts.Scale)
		case *canvas.ImageObject:
			t, err = imageTile(i, o, opts.Compression)
		default:
			err = fmt.Errorf("object %d: unsupported drawable %T", i, obj)
		}
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		if t != nil {
			if err := composite(page, t, obj.Attrs(), size, opts.Scale); err != nil {
				span.SetError(err)
				return nil, err
			}
		}
		opts.Observer.Observe(observability.Event{Kind: observability.ObjectRendered, Index: i, Total: len(items), Duration: time.Since(objStart)})
	}

	ov := &Overlay{Size: size.Rotated(opts.Rotation), Rotation: opts.Rotation, Scale: opts.Scale, Image: rotateImage(page, opts.Rotation)}
	objs.MarkRendered()
	span.SetTag("objects", len(items))
	opts.Observer.Observe(observability.Event{Kind: observability.RenderFinished, Total: len(items), Duration: time.Since(start)})
	return ov, nil
}

// tile is one object's pixels with the extent they cover in points.
type tile struct {
	img           image.Image
	width, height float64
}

func textTile(idx int, o *canvas.TextObject, reg *fonts.Registry, scale float64) (*tile, error) {
	face, err := reg.Lookup(o.Font)
	if err != nil {
		return nil, &canvas.ConfigurationError{Field: fmt.Sprintf("object %d font", idx), Reason: err.Error()}
	}
	text := norm.NFC.String(o.Content)
	if r, missing := face.FirstMissing(text); missing {
		return nil, &canvas.EncodingError{Object: idx, Rune: r}
	}
	if text == "" {
		return nil, nil
	}
	size := o.FontSize()
	ft, err := face.Rasterize(face.Shape(text, size), size, scale, o.Color.RGBA())
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", idx, err)
	}
	return &tile{img: ft.Image, width: ft.Width, height: ft.Height}, nil
}

func imageTile(idx int, o *canvas.ImageObject, compression int) (*tile, error) {
	img, err := decodeImage(o.Source)
	if err != nil {
		return nil, &canvas.UnsupportedAssetError{Object: idx, Err: err}
	}
	if compression > 0 {
		if img, err = compress(img, compression); err != nil {
			return nil, fmt.Errorf("object %d: compress: %w", idx, err)
		}
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, &canvas.UnsupportedAssetError{Object: idx, Err: fmt.Errorf("empty image")}
	}
	w, h := o.Extent(b.Dx(), b.Dy())
	if w == 0 || h == 0 {
		return nil, nil
	}
	return &tile{img: img, width: w, height: h}, nil
}

// composite paints t centered on the object's anchored position, rotated
// about its own center, with uniform opacity: dst = src*a + dst*(1-a).
func composite(page *image.RGBA, t *tile, p canvas.Placement, size canvas.PageSize, scale float64) error {
	if p.Opacity == 0 {
		return nil
	}
	center, err := coords.AnchorOffset(size, p.Anchor, p.X, p.Y)
	if err != nil {
		return err
	}
	tb := t.img.Bounds()
	m := TileMatrix(tb, t.width, t.height).
		Multiply(coords.RotateDegrees(p.Rotation)).
		Multiply(coords.Translate(center.X, center.Y)).
		Multiply(coords.DeviceMatrix(size.Height, scale))
	var opts *draw.Options
	if p.Opacity < 1 {
		opts = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: uint8(math.Round(p.Opacity * 255))})}
	}
	draw.BiLinear.Transform(page, Aff3(m), t.img, tb, draw.Over, opts)
	return nil
}

// TileMatrix maps pixel coordinates of an image with bounds b (top-left
// origin) onto a w×h point rectangle centered on the origin, y up.
func TileMatrix(b image.Rectangle, w, h float64) coords.Matrix {
	return coords.Translate(-float64(b.Min.X)-float64(b.Dx())/2, -float64(b.Min.Y)-float64(b.Dy())/2).
		Multiply(coords.Scale(w/float64(b.Dx()), -h/float64(b.Dy())))
}

// Aff3 converts a row-vector matrix to the column form used by x/image/draw.
func Aff3(m coords.Matrix) f64.Aff3 {
	return f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
}

// rotateImage turns src counter-clockwise by deg (a multiple of 90) by
// permuting pixels.
func rotateImage(src *image.RGBA, deg int) *image.RGBA {
	deg = canvas.NormalizeRotation(deg)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	if deg%180 == 0 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch deg {
			case 0:
				dx, dy = x, y
			case 90:
				dx, dy = y, w-1-x
			case 180:
				dx, dy = w-1-x, h-1-y
			default:
				dx, dy = h-1-y, x
			}
			si := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
