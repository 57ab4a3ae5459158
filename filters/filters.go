package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfmark/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrSizeLimit     = errors.New("decompressed size exceeds limit")
)

// Pipeline applies a stream's filter chain in order.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Default returns a pipeline with every supported decoder registered.
func Default(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits),
		NewLZWDecoder(limits),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[abbreviation(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes the stream's data using its Filter and DecodeParms.
func (p *Pipeline) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	names, params := ExtractFilters(s.Dict)
	return p.Decode(ctx, s.Data, names, params)
}

// abbreviation maps inline-image filter abbreviations to full names.
func abbreviation(name string) string {
	switch name {
	case "Fl":
		return "FlateDecode"
	case "LZW":
		return "LZWDecode"
	case "A85":
		return "ASCII85Decode"
	case "AHx":
		return "ASCIIHexDecode"
	case "RL":
		return "RunLengthDecode"
	}
	return name
}

type flateDecoder struct{ limits Limits }

func (flateDecoder) Name() string             { return "FlateDecode" }
func NewFlateDecoder(limits Limits) Decoder { return flateDecoder{limits: limits} }

// Decode inflates zlib data, falling back to raw deflate for writers that omit the header.
func (f flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var rc io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		rc = flate.NewReader(bytes.NewReader(in))
	} else {
		rc = zr
	}
	defer rc.Close()
	out, err := readLimited(rc, f.limits)
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		return nil, err
	}
	return applyPredictor(out, params)
}

type lzwDecoder struct{ limits Limits }

func (lzwDecoder) Name() string             { return "LZWDecode" }
func NewLZWDecoder(limits Limits) Decoder { return lzwDecoder{limits: limits} }

func (l lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := true
	if params != nil {
		if v, ok := params.Int("EarlyChange"); ok {
			early = v != 0
		}
	}
	rc := lzw.NewReader(bytes.NewReader(in), early)
	defer rc.Close()
	out, err := readLimited(rc, l.limits)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		switch c {
		case ' ', '\t', '\r', '\n', '\f', 0:
			continue
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, errors.New("run length literal overruns input")
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat missing byte")
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }

func readLimited(r io.Reader, limits Limits) ([]byte, error) {
	if limits.MaxDecompressedSize <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, limits.MaxDecompressedSize+1))
	if int64(len(out)) > limits.MaxDecompressedSize {
		return nil, ErrSizeLimit
	}
	return out, err
}

// FlateEncode compresses data as a zlib stream at the given level (0-9, -1 default).
func FlateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
