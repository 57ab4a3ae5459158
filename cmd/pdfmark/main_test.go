package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfmark/config"
	"github.com/wudi/pdfmark/document"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/watermark"
	"github.com/wudi/pdfmark/writer"
)

func sourcePDF(t *testing.T, pages int) string {
	t.Helper()
	var imgs []document.PageImage
	for i := 0; i < pages; i++ {
		imgs = append(imgs, document.PageImage{Image: image.NewGray(image.Rect(0, 0, 4, 4)), Width: 612, Height: 792})
	}
	d, err := document.FromImages(context.Background(), imgs, document.ImageOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := d.Write(context.Background(), &buf, writer.Config{}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pages(t *testing.T, path string) *document.Document {
	t.Helper()
	d, err := watermark.OpenFile(context.Background(), path, document.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestWatermarkCommand(t *testing.T) {
	in := sourcePDF(t, 2)
	args := []string{"-text1", "Draft", "-opacity", "0.5", "-receipt", "-config", "", in}
	if err := runWatermark(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(filepath.Dir(in), "doc_watermarked.pdf")
	d := pages(t, out)
	if d.PageCount() != 2 {
		t.Fatalf("pages %d", d.PageCount())
	}
	if got := d.Info().Metadata.Producer; got != producer {
		t.Fatalf("producer %q", got)
	}
	receipt, err := os.ReadFile(filepath.Join(filepath.Dir(in), "watermark receipt.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Text1               --> Draft",
		"WM Opacity          --> 50%",
		"Pages               --> 2 of 2",
		"~run time~          --> ",
	} {
		if !strings.Contains(string(receipt), want) {
			t.Fatalf("receipt missing %q:\n%s", want, receipt)
		}
	}
}

func TestPageCommands(t *testing.T) {
	in := sourcePDF(t, 3)
	dir := filepath.Dir(in)
	ctx := context.Background()
	if err := runRotate(ctx, []string{"90", in}); err != nil {
		t.Fatal(err)
	}
	if g, _ := pages(t, filepath.Join(dir, "doc_rotated.pdf")).PageGeometry(0); g.Rotation != 90 {
		t.Fatalf("rotation %d", g.Rotation)
	}
	if err := runSlice(ctx, []string{"2", "3", in}); err != nil {
		t.Fatal(err)
	}
	if n := pages(t, filepath.Join(dir, "doc_sliced.pdf")).PageCount(); n != 2 {
		t.Fatalf("sliced pages %d", n)
	}
	merged := filepath.Join(dir, "all.pdf")
	if err := runMerge(ctx, []string{"-out", merged, in, in}); err != nil {
		t.Fatal(err)
	}
	if n := pages(t, merged).PageCount(); n != 6 {
		t.Fatalf("merged pages %d", n)
	}
}

func TestUsageErrors(t *testing.T) {
	ctx := context.Background()
	for name, args := range map[string][]string{
		"rotate": {"90"},
		"merge":  {"only-one.pdf"},
		"slice":  {"1", "x.pdf"},
	} {
		if err := commands[name].run(ctx, args); err != errUsage {
			t.Fatalf("%s %v: expected usage error, got %v", name, args, err)
		}
	}
}

func TestCommandTable(t *testing.T) {
	for _, name := range []string{"watermark", "overlay", "rotate", "slice", "upscale", "merge", "info", "img2pdf", "secure"} {
		cmd, ok := commands[name]
		if !ok || cmd.run == nil || cmd.usage == "" {
			t.Fatalf("command %q not registered", name)
		}
	}
}

func TestReceiptDescribesRun(t *testing.T) {
	rec := observability.NewReceipt("PDF Watermarker", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), nil)
	p := watermark.DefaultParams()
	p.Text1, p.Text2 = "200 Park Avenue", "New York"
	p.Compression = 3
	p.Placement = merge.Underneath
	describe(rec, filepath.Join("docs", "report.pdf"), "", p)
	want := []string{
		"PDF Watermarker     --> 2024-05-01 09:30",
		"Directory           --> docs",
		"PDF                 --> report.pdf",
		"Text1               --> 200 Park Avenue",
		"Text2               --> New York",
		"Image               --> wide.png",
		"WM Opacity          --> 8%",
		"WM Compression      --> 3",
		"WM Placement        --> underneath",
	}
	if diff := cmp.Diff(want, rec.Lines()); diff != "" {
		t.Fatalf("receipt (-want +got):\n%s", diff)
	}
}

func TestFontSetting(t *testing.T) {
	e := &env{pipeline: &watermark.Pipeline{}}
	p, err := e.params(config.Watermark{Font: "Go-Mono"})
	if err != nil || p.Font != "Go-Mono" || e.pipeline.Fonts != nil {
		t.Fatalf("face name: font %q registry %v err %v", p.Font, e.pipeline.Fonts, err)
	}
	// unreadable, but present: a directory
	if _, err := e.params(config.Watermark{Font: t.TempDir()}); err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected read error, got %v", err)
	}
}
