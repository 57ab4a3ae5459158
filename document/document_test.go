package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/writer"
)

// samplePDF writes a three page file. Pages inherit a Letter MediaBox and
// a shared font resource from the tree root; the last page is A4 and
// displayed rotated by 90 degrees.
func samplePDF(t *testing.T) []byte {
	t.Helper()
	rd := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict(), Version: "1.7"}
	font := raw.Dict()
	font.Set("Type", raw.Name("Font"))
	font.Set("Subtype", raw.Name("Type1"))
	font.Set("BaseFont", raw.Name("Helvetica"))
	fonts := raw.Dict()
	fonts.Set("F1", rd.Add(font))
	res := raw.Dict()
	res.Set("Font", fonts)

	pages := raw.Dict()
	pagesRef := rd.Add(pages)
	kids := raw.NewArray()
	for i := 1; i <= 3; i++ {
		content := raw.NewStream(raw.Dict(), []byte("BT /F1 12 Tf 72 720 Td (PAGE-"+string(rune('0'+i))+") Tj ET"))
		pg := raw.Dict()
		pg.Set("Type", raw.Name("Page"))
		pg.Set("Parent", pagesRef)
		pg.Set("Contents", rd.Add(content))
		if i == 3 {
			pg.Set("MediaBox", raw.Numbers(0, 0, 595, 842))
			pg.Set("Rotate", raw.Int(90))
		}
		kids.Append(rd.Add(pg))
	}
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.Int(3))
	pages.Set("MediaBox", raw.Numbers(0, 0, 612, 792))
	pages.Set("Resources", res)

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	rd.Trailer.Set("Root", rd.Add(catalog))
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Sample")))
	rd.Trailer.Set("Info", rd.Add(info))

	var buf bytes.Buffer
	if err := writer.NewWriter().Write(context.Background(), rd, &buf, writer.Config{Deterministic: true}); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return buf.Bytes()
}

func openSample(t *testing.T) *Document {
	t.Helper()
	d, err := Open(context.Background(), bytes.NewReader(samplePDF(t)), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return d
}

func reopen(t *testing.T, d *Document) *Document {
	t.Helper()
	var buf bytes.Buffer
	if err := d.Write(context.Background(), &buf, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := Open(context.Background(), bytes.NewReader(buf.Bytes()), Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	return out
}

// pageText concatenates the page's content streams.
func pageText(d *Document, i int) string {
	var b strings.Builder
	c, _ := d.pages[i].dict.Get("Contents")
	items := []raw.Object{c}
	if arr, ok := d.raw.Resolve(c).(*raw.ArrayObj); ok {
		items = arr.Items
	}
	for _, it := range items {
		if s, ok := d.raw.Resolve(it).(*raw.StreamObj); ok {
			b.Write(s.Data)
			b.WriteByte('|')
		}
	}
	return b.String()
}

func TestOpenIndexesInheritedAttributes(t *testing.T) {
	d := openSample(t)
	if d.PageCount() != 3 {
		t.Fatalf("page count %d", d.PageCount())
	}
	want := []merge.Geometry{
		{Box: coords.Rect{URX: 612, URY: 792}},
		{Box: coords.Rect{URX: 612, URY: 792}},
		{Box: coords.Rect{URX: 595, URY: 842}, Rotation: 90},
	}
	for i, w := range want {
		got, err := d.PageGeometry(i)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Fatalf("page %d geometry (-want +got):\n%s", i, diff)
		}
	}
	if _, err := d.PageGeometry(3); !errors.Is(err, ErrPageIndex) {
		t.Fatalf("expected ErrPageIndex, got %v", err)
	}
	if got := d.Info().Metadata.Title; got != "Sample" {
		t.Fatalf("title %q", got)
	}
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16*16; i++ {
		img.Set(i%16, i/16, c)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMergeRoundTrip(t *testing.T) {
	ctx := context.Background()
	objs := canvas.NewObjects(
		&canvas.TextObject{Placement: canvas.Placement{Opacity: 0.3, Rotation: 30}, Content: "CONFIDENTIAL"},
		&canvas.ImageObject{Placement: canvas.Placement{Opacity: 0.5, X: 200, Y: -200}, Source: solidPNG(t, color.NRGBA{B: 255, A: 255})},
	)
	ov, err := render.Render(ctx, objs, render.Options{PageSize: canvas.Letter, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	src := openSample(t)
	merged, err := merge.Merge(ctx, src, ov, merge.Options{Workers: 3})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if strings.Contains(pageText(src, 0), "Do") {
		t.Fatalf("source document was modified")
	}

	out := reopen(t, merged.(*Document))
	if out.PageCount() != 3 {
		t.Fatalf("page count %d", out.PageCount())
	}
	images := map[raw.ObjectRef]bool{}
	for i := 0; i < 3; i++ {
		text := pageText(out, i)
		marker := "(PAGE-" + string(rune('1'+i)) + ") Tj"
		if !strings.Contains(text, marker) {
			t.Fatalf("page %d lost its content: %q", i, text)
		}
		if !strings.HasPrefix(text, "q\n|") || !strings.Contains(text, "/PdfmarkOv Do Q") {
			t.Fatalf("page %d not stamped on top: %q", i, text)
		}
		res, ok := out.raw.ResolveDict(out.pages[i].dict.KV["Resources"])
		if !ok {
			t.Fatalf("page %d has no resources", i)
		}
		if _, ok := res.Get("Font"); !ok {
			t.Fatalf("page %d lost inherited fonts", i)
		}
		xo, _ := out.raw.ResolveDict(res.KV["XObject"])
		ref, ok := xo.KV["PdfmarkOv"].(raw.RefObj)
		if !ok {
			t.Fatalf("page %d overlay XObject missing", i)
		}
		images[ref.R] = true
		img, _ := out.raw.Resolve(ref).(*raw.StreamObj)
		if _, ok := img.Dict.Get("SMask"); !ok {
			t.Fatalf("overlay image without soft mask")
		}
		geom, _ := out.PageGeometry(i)
		if geom.Size() != src.mustGeometry(t, i).Size() {
			t.Fatalf("page %d size changed", i)
		}
	}
	if len(images) != 1 {
		t.Fatalf("overlay embedded %d times", len(images))
	}
	// the rotated A4 page gets the stretched, counter-rotated placement
	if text := pageText(out, 2); !strings.Contains(text, "q 0 842 -595 0 595 0 cm") {
		t.Fatalf("unexpected placement on rotated page: %q", text)
	}
}

func (d *Document) mustGeometry(t *testing.T, i int) merge.Geometry {
	t.Helper()
	g, err := d.PageGeometry(i)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestMergeUnderneath(t *testing.T) {
	ctx := context.Background()
	ov, err := render.Render(ctx, canvas.NewObjects(&canvas.TextObject{Content: "x"}), render.Options{PageSize: canvas.Letter, Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	merged, err := merge.Merge(ctx, openSample(t), ov, merge.Options{Placement: merge.Underneath})
	if err != nil {
		t.Fatal(err)
	}
	text := pageText(merged.(*Document), 0)
	if !strings.HasPrefix(text, "q 612 0 0 792 0 0 cm /PdfmarkOv Do Q\n|BT") {
		t.Fatalf("overlay not painted first: %q", text)
	}
}

func TestRotate(t *testing.T) {
	d := openSample(t)
	if err := d.Rotate(45); err == nil {
		t.Fatalf("45 degrees accepted")
	}
	if err := d.Rotate(-90); err != nil {
		t.Fatal(err)
	}
	out := reopen(t, d)
	got := []int{out.mustGeometry(t, 0).Rotation, out.mustGeometry(t, 1).Rotation, out.mustGeometry(t, 2).Rotation}
	if diff := cmp.Diff([]int{270, 270, 0}, got); diff != "" {
		t.Fatalf("rotations (-want +got):\n%s", diff)
	}
}

func TestSlice(t *testing.T) {
	d := openSample(t)
	s, err := d.Slice(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if d.PageCount() != 3 {
		t.Fatalf("source lost pages")
	}
	out := reopen(t, s)
	if out.PageCount() != 2 {
		t.Fatalf("slice has %d pages", out.PageCount())
	}
	if !strings.Contains(pageText(out, 0), "(PAGE-2)") || !strings.Contains(pageText(out, 1), "(PAGE-3)") {
		t.Fatalf("wrong pages kept")
	}
	if g := out.mustGeometry(t, 0); g.Box.URX != 612 {
		t.Fatalf("inherited media box lost: %+v", g)
	}
	for _, obj := range out.raw.Objects {
		if st, ok := obj.(*raw.StreamObj); ok && bytes.Contains(st.Data, []byte("(PAGE-1)")) {
			t.Fatalf("dropped page content still written")
		}
	}
	var cfg *canvas.ConfigurationError
	if _, err := d.Slice(0, 2); !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if _, err := d.Slice(2, 4); !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestScale(t *testing.T) {
	d := openSample(t)
	if err := d.Scale(2); err != nil {
		t.Fatal(err)
	}
	out := reopen(t, d)
	if g := out.mustGeometry(t, 0); g.Box != (coords.Rect{URX: 1224, URY: 1584}) {
		t.Fatalf("scaled box %+v", g.Box)
	}
	if text := pageText(out, 0); !strings.HasPrefix(text, "q 2 0 0 2 0 0 cm\n|BT") {
		t.Fatalf("content not scaled: %q", text)
	}
	if err := d.Scale(0); err == nil {
		t.Fatalf("zero scale accepted")
	}
}

func TestConcat(t *testing.T) {
	a, b := openSample(t), openSample(t)
	c, err := Concat(a, b)
	if err != nil {
		t.Fatal(err)
	}
	out := reopen(t, c)
	if out.PageCount() != 6 {
		t.Fatalf("concat has %d pages", out.PageCount())
	}
	if !strings.Contains(pageText(out, 3), "(PAGE-1)") {
		t.Fatalf("second document not appended in order")
	}
	if g := out.mustGeometry(t, 5); g.Rotation != 90 || g.Box.URX != 595 {
		t.Fatalf("appended page geometry %+v", g)
	}
	if a.PageCount() != 3 || b.PageCount() != 3 {
		t.Fatalf("inputs modified")
	}
}

func TestInfo(t *testing.T) {
	info := openSample(t).Info()
	want := []PageInfo{
		{Number: 1, Width: 612, Height: 792},
		{Number: 2, Width: 612, Height: 792},
		{Number: 3, Width: 595, Height: 842, Rotation: 90},
	}
	if diff := cmp.Diff(want, info.PageSizes); diff != "" {
		t.Fatalf("page sizes (-want +got):\n%s", diff)
	}
	if info.Pages != 3 || info.Encrypted || info.Version != "1.7" {
		t.Fatalf("info %+v", info)
	}
}

func TestFromImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	d, err := FromImages(context.Background(), []PageImage{{Image: img, Width: 200, Height: 100}, {Image: img, Width: 20, Height: 10}}, ImageOptions{Quality: 80, Producer: "pdfmark"})
	if err != nil {
		t.Fatal(err)
	}
	out := reopen(t, d)
	if out.PageCount() != 2 || out.mustGeometry(t, 0).Size() != (canvas.PageSize{Width: 200, Height: 100}) {
		t.Fatalf("unexpected pages: %+v", out.Info().PageSizes)
	}
	if out.Info().Metadata.Producer != "pdfmark" {
		t.Fatalf("producer not set")
	}
	var dct int
	for _, obj := range out.raw.Objects {
		if st, ok := obj.(*raw.StreamObj); ok {
			if f, _ := st.Dict.Name("Filter"); f == "DCTDecode" {
				dct++
			}
		}
	}
	if dct != 2 {
		t.Fatalf("expected 2 JPEG images, got %d", dct)
	}
	if _, err := FromImages(context.Background(), nil, ImageOptions{}); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}
