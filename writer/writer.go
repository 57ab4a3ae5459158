package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfmark/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version overrides the header version. Empty keeps the document's
	// own version, falling back to 1.7.
	Version PDFVersion
	// Compression is the flate level (1-9) applied to streams that carry
	// no filter yet. Zero leaves streams untouched.
	Compression int
	// Deterministic derives the file identifier from the content only.
	Deterministic bool
}

// Writer serializes a raw document as a complete PDF file with a classic
// cross-reference table.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes every indirect object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// NewWriter returns a writer without interceptors.
func NewWriter() Writer { return &impl{} }
