package flatten

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/render"
)

type bitmaps []image.Image

func (b bitmaps) PageCount() int { return len(b) }

func (b bitmaps) RasterizePage(ctx context.Context, i int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b[i], nil
}

func white(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func sizes(d *document.Document) []document.PageInfo { return d.Info().PageSizes }

func TestFlattenKeepsPageSizes(t *testing.T) {
	ctx := context.Background()
	ov, err := render.Render(ctx, canvas.NewObjects(&canvas.TextObject{Placement: canvas.Placement{Opacity: 0.5}, Content: "SCANNED"}), render.Options{PageSize: canvas.Letter, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	src := bitmaps{white(1224, 1584), white(1190, 1684)}
	d, err := Flatten(ctx, src, Options{Scale: 2, Quality: 75, Overlay: ov})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	want := []document.PageInfo{
		{Number: 1, Width: 612, Height: 792},
		{Number: 2, Width: 595, Height: 842},
	}
	if diff := cmp.Diff(want, sizes(d)); diff != "" {
		t.Fatalf("page sizes (-want +got):\n%s", diff)
	}
}

func TestFlattenEmpty(t *testing.T) {
	var mismatch *canvas.PageMismatchError
	if _, err := Flatten(context.Background(), bitmaps{}, Options{}); !errors.As(err, &mismatch) {
		t.Fatalf("expected PageMismatchError, got %v", err)
	}
}

func TestFlattenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Flatten(ctx, bitmaps{white(10, 10)}, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImagesToPDF(t *testing.T) {
	d, err := ImagesToPDF(context.Background(), [][]byte{encodePNG(t, 300, 200), encodePNG(t, 50, 80)}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []document.PageInfo{
		{Number: 1, Width: 300, Height: 200},
		{Number: 2, Width: 50, Height: 80},
	}
	if diff := cmp.Diff(want, sizes(d)); diff != "" {
		t.Fatalf("page sizes (-want +got):\n%s", diff)
	}

	var ua *canvas.UnsupportedAssetError
	_, err = ImagesToPDF(context.Background(), [][]byte{encodePNG(t, 10, 10), []byte("GIF? no")}, 0, 0)
	if !errors.As(err, &ua) || ua.Object != 1 {
		t.Fatalf("expected UnsupportedAssetError for image 1, got %v", err)
	}
	if _, err := ImagesToPDF(context.Background(), nil, 0, 0); !errors.Is(err, document.ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}
