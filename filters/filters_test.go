package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfmark/ir/raw"
)

func TestFlateRoundTrip(t *testing.T) {
	enc, err := FlateEncode([]byte("hello world"), 9)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	out, err := NewFlateDecoder(Limits{}).Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeAcceptsRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("no zlib header"))
	w.Close()

	out, err := NewFlateDecoder(Limits{}).Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "no zlib header" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp, err := FlateEncode([]byte{1, 10, 12, 20, 2, 1, 1, 1}, 6)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	params := raw.Dict()
	params.Set("Predictor", raw.Int(12))
	params.Set("Colors", raw.Int(1))
	params.Set("BitsPerComponent", raw.Int(8))
	params.Set("Columns", raw.Int(3))

	out, err := NewFlateDecoder(Limits{}).Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42, 11, 23, 43}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestFlateDecodeLimit(t *testing.T) {
	comp, _ := FlateEncode(bytes.Repeat([]byte("a"), 4096), 9)
	_, err := NewFlateDecoder(Limits{MaxDecompressedSize: 100}).Decode(context.Background(), comp, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestASCIIDecoders(t *testing.T) {
	ctx := context.Background()
	out, err := NewASCIIHexDecoder().Decode(ctx, []byte("48 65 6c\n6c 6F>"), nil)
	if err != nil || string(out) != "Hello" {
		t.Fatalf("hex decode: %q %v", out, err)
	}
	out, err = NewASCII85Decoder().Decode(ctx, []byte("<~87cURD]i,\"Ebo80~>"), nil)
	if err != nil || string(out) != "Hello World!" {
		t.Fatalf("a85 decode: %q %v", out, err)
	}
}

func TestRunLengthDecode(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'z', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "abczzz" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	comp, _ := FlateEncode([]byte("chain"), 6)
	var hexed bytes.Buffer
	for _, b := range comp {
		hexed.WriteString(string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xF]))
	}
	hexed.WriteByte('>')

	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.Name("AHx"), raw.Name("FlateDecode")))
	stm := raw.NewStream(dict, hexed.Bytes())
	out, err := Default(Limits{}).DecodeStream(context.Background(), stm)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "chain" {
		t.Fatalf("unexpected output %q", out)
	}

	dict.Set("Filter", raw.Name("JBIG2Decode"))
	if _, err := Default(Limits{}).DecodeStream(context.Background(), stm); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected unknown filter error, got %v", err)
	}
}
