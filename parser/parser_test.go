package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfmark/ir/raw"
)

// buildPDF lays out numbered object bodies with a classic xref table.
func buildPDF(trailer string, bodies ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make([]int, len(bodies))
	for i, body := range bodies {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(bodies)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, trailer, xrefAt)
	return buf.Bytes()
}

func TestDocumentParserParsesClassicXRef(t *testing.T) {
	data := buildPDF("/Root 1 0 R /Info 4 0 R",
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Title (Quarterly report) /Author <FEFF00C900760061> >>",
	)
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.Version != "1.7" {
		t.Fatalf("expected version 1.7, got %q", doc.Version)
	}
	if len(doc.Objects) != 4 {
		t.Fatalf("expected 4 objects, got %d", len(doc.Objects))
	}
	if doc.Metadata.Title != "Quarterly report" {
		t.Fatalf("title: %q", doc.Metadata.Title)
	}
	if doc.Metadata.Author != "Éva" {
		t.Fatalf("author: %q", doc.Metadata.Author)
	}
	if doc.Encrypted {
		t.Fatalf("plain document reported as encrypted")
	}
}

func TestDocumentParserRejectsNonPDF(t *testing.T) {
	_, err := NewDocumentParser(Config{}).Parse(context.Background(), bytes.NewReader([]byte("hello world")))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestDocumentParserReadsObjectStreams(t *testing.T) {
	pages := "<< /Type /Pages /Kids [3 0 R] /Count 1 >> "
	objs := pages + "<< /Type /Page /Parent 2 0 R >>"
	header := fmt.Sprintf("2 0 3 %d ", len(pages))
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write([]byte(header + objs))
	zw.Close()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off4 := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", len(header), z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	// xref stream: W [1 4 2]
	var rows bytes.Buffer
	row := func(typ byte, f2 uint32, f3 uint16) {
		rows.WriteByte(typ)
		rows.Write([]byte{byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2)})
		rows.Write([]byte{byte(f3 >> 8), byte(f3)})
	}
	off5 := buf.Len()
	row(0, 0, 65535)
	row(1, uint32(off1), 0)
	row(2, 4, 0)
	row(2, 4, 1)
	row(1, uint32(off4), 0)
	row(1, uint32(off5), 0)
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n", rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", off5)

	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	page, ok := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.DictObj)
	if !ok {
		t.Fatalf("page from object stream missing: %#v", doc.Objects)
	}
	if typ, _ := page.Name("Type"); typ != "Page" {
		t.Fatalf("unexpected page type %q", typ)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 4}]; ok {
		t.Fatalf("object stream container should not be kept")
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 5}]; ok {
		t.Fatalf("xref stream should not be kept")
	}
	if _, ok := doc.Trailer.Get("W"); ok {
		t.Fatalf("xref stream keys leaked into trailer")
	}
}

func TestDocumentParserRepairsBrokenStartXRef(t *testing.T) {
	data := buildPDF("/Root 1 0 R",
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	)
	data = bytes.Replace(data, []byte("startxref\n"), []byte("startxref\n9"), 1)
	doc, err := NewDocumentParser(Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Objects) != 2 {
		t.Fatalf("expected 2 objects after repair, got %d", len(doc.Objects))
	}
}

func TestDocumentParserHonoursCancellation(t *testing.T) {
	data := buildPDF("/Root 1 0 R", "<< /Type /Catalog >>")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocumentParser(Config{}).Parse(ctx, bytes.NewReader(data)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDetectHeaderVersion(t *testing.T) {
	cases := map[string]string{
		"%PDF-1.4\n":          "1.4",
		"junk\r\n%PDF-2.0\r":  "2.0",
		"%PDF-1.7 %comment\n": "1.7",
	}
	for in, want := range cases {
		got, ok := detectHeaderVersion([]byte(in))
		if !ok || got != want {
			t.Fatalf("%q: got %q %v, want %q", in, got, ok, want)
		}
	}
}
