package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/render"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	red   = color.NRGBA{R: 255, A: 255}
)

func blank(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func square(t *testing.T, n int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func overlay(t *testing.T, objs ...canvas.Object) *render.Overlay {
	t.Helper()
	ov, err := render.Render(context.Background(), canvas.NewObjects(objs...), render.Options{PageSize: canvas.Letter, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	return ov
}

func isRed(c color.RGBA) bool  { return c.R > 250 && c.G < 5 && c.B < 5 && c.A > 250 }
func isWhite(c color.RGBA) bool { return c.R > 250 && c.G > 250 && c.B > 250 }

func TestOnTopShowsOverlay(t *testing.T) {
	ov := overlay(t, &canvas.ImageObject{Placement: canvas.Placement{Opacity: 1}, Source: square(t, 40)})
	src, err := New(1, blank(612, 792, white), blank(612, 792, white))
	if err != nil {
		t.Fatal(err)
	}
	out, err := merge.Merge(context.Background(), src, ov, merge.Options{})
	if err != nil {
		t.Fatal(err)
	}
	doc := out.(*Document)
	if doc.PageCount() != 2 {
		t.Fatalf("page count %d", doc.PageCount())
	}
	for i := 0; i < 2; i++ {
		if c := doc.Page(i).RGBAAt(306, 396); !isRed(c) {
			t.Fatalf("page %d anchor pixel %v, want overlay red", i, c)
		}
		if c := doc.Page(i).RGBAAt(10, 10); !isWhite(c) {
			t.Fatalf("page %d background changed: %v", i, c)
		}
	}
	if c := src.Page(0).RGBAAt(306, 396); !isWhite(c) {
		t.Fatalf("source page modified")
	}
}

func TestUnderneathHiddenByOpaquePage(t *testing.T) {
	ov := overlay(t, &canvas.ImageObject{Placement: canvas.Placement{Opacity: 1}, Source: square(t, 40)})
	page := image.NewRGBA(image.Rect(0, 0, 612, 792))
	// opaque everywhere except a transparent window on the left
	for y := 0; y < 792; y++ {
		for x := 100; x < 612; x++ {
			page.SetRGBA(x, y, white)
		}
	}
	src, _ := New(1, page)
	out, err := merge.Merge(context.Background(), src, ov, merge.Options{Placement: merge.Underneath})
	if err != nil {
		t.Fatal(err)
	}
	doc := out.(*Document)
	if c := doc.Page(0).RGBAAt(306, 396); !isWhite(c) {
		t.Fatalf("anchor pixel %v, want original white", c)
	}

	ov = overlay(t, &canvas.ImageObject{Placement: canvas.Placement{Opacity: 1, X: -256}, Source: square(t, 40)})
	out, err = merge.Merge(context.Background(), src, ov, merge.Options{Placement: merge.Underneath})
	if err != nil {
		t.Fatal(err)
	}
	if c := out.(*Document).Page(0).RGBAAt(50, 396); !isRed(c) {
		t.Fatalf("overlay not visible through transparent window: %v", c)
	}
}

func TestA4PageStretchesOverlay(t *testing.T) {
	// 20pt square hugging the top-right corner of a Letter overlay
	ov := overlay(t, &canvas.ImageObject{
		Placement: canvas.Placement{Opacity: 1, Anchor: canvas.AnchorOrigin, X: -10, Y: -10},
		Source:    square(t, 20),
	})
	src, _ := New(1, blank(595, 842, white))
	out, err := merge.Merge(context.Background(), src, ov, merge.Options{})
	if err != nil {
		t.Fatal(err)
	}
	page := out.(*Document).Page(0)
	if page.Bounds().Dx() != 595 || page.Bounds().Dy() != 842 {
		t.Fatalf("page resized to %v", page.Bounds())
	}
	if c := page.RGBAAt(592, 3); !isRed(c) {
		t.Fatalf("top-right corner %v, want overlay red", c)
	}
	if c := page.RGBAAt(560, 3); !isWhite(c) {
		t.Fatalf("mark wider than its scaled footprint: %v", c)
	}
}

func TestRotatedPageReadsUpright(t *testing.T) {
	// landscape overlay with a mark in its top-left corner
	ov, err := render.Render(context.Background(), canvas.NewObjects(&canvas.ImageObject{
		Placement: canvas.Placement{Opacity: 1, Anchor: canvas.AnchorOrigin, X: 10, Y: -10},
		Source:    square(t, 20),
	}), render.Options{PageSize: canvas.PageSize{Width: 792, Height: 612}, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	// portrait bitmap shown rotated 90 clockwise: its displayed top-left
	// is the stored bottom-left
	src, _ := New(1, blank(612, 792, white))
	if err := src.SetRotation(0, 90); err != nil {
		t.Fatal(err)
	}
	out, err := merge.Merge(context.Background(), src, ov, merge.Options{})
	if err != nil {
		t.Fatal(err)
	}
	page := out.(*Document).Page(0)
	if !isRed(page.RGBAAt(10, 782)) {
		t.Fatalf("mark not found in the stored bottom-left corner: %v", page.RGBAAt(10, 782))
	}
	if !isWhite(page.RGBAAt(10, 10)) {
		t.Fatalf("mark drawn in the stored top-left corner")
	}
}

func TestNewRejectsBadScale(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatalf("zero scale accepted")
	}
}

func TestSetRotationRejectsBadPage(t *testing.T) {
	d, err := New(1, blank(10, 10, white))
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{-1, 1} {
		if err := d.SetRotation(i, 90); err == nil {
			t.Fatalf("page %d: expected error", i)
		}
	}
	var cfg *canvas.ConfigurationError
	if err := d.SetRotation(0, 45); !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
