// Package document is the PDF backend for merges: it opens a file into raw
// objects, exposes its pages and writes the edited object graph back out.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/merge"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/parser"
	"github.com/wudi/pdfmark/render"
	"github.com/wudi/pdfmark/security"
	"github.com/wudi/pdfmark/writer"
)

var (
	ErrNoCatalog   = errors.New("document has no catalog")
	ErrNoPageTree  = errors.New("catalog has no page tree")
	ErrPageIndex   = errors.New("page index out of range")
	ErrPageTreeCyc = errors.New("page tree contains a cycle")
)

type Options struct {
	// Password unlocks encrypted inputs. Either the user or the owner
	// password works; the document is decrypted on open.
	Password string
	Limits   security.Limits
	Logger   observability.Logger
}

// Document is an open PDF. Stamping is safe for concurrent use on distinct
// pages; the other mutating operations are not.
type Document struct {
	raw    *raw.Document
	pages  []*page
	logger observability.Logger

	mu       sync.Mutex
	overlays map[*render.Overlay]raw.RefObj
}

// page caches a leaf of the page tree with its inherited attributes.
type page struct {
	ref       raw.ObjectRef
	dict      *raw.DictObj
	box       coords.Rect
	rotate    int
	resources raw.Object
}

// Open parses r and indexes its page tree.
func Open(ctx context.Context, r io.ReaderAt, opts Options) (*Document, error) {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	p := parser.NewDocumentParser(parser.Config{Password: opts.Password, Limits: opts.Limits, Logger: opts.Logger})
	rd, err := p.Parse(ctx, r)
	if err != nil {
		return nil, err
	}
	return FromRaw(rd, opts.Logger)
}

// FromRaw wraps an already parsed or built object graph.
func FromRaw(rd *raw.Document, logger observability.Logger) (*Document, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	d := &Document{raw: rd, logger: logger, overlays: map[*render.Overlay]raw.RefObj{}}
	pages, err := collectPages(rd)
	if err != nil {
		return nil, err
	}
	d.pages = pages
	return d, nil
}

// Raw exposes the underlying object graph.
func (d *Document) Raw() *raw.Document { return d.raw }

func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) PageGeometry(i int) (merge.Geometry, error) {
	if i < 0 || i >= len(d.pages) {
		return merge.Geometry{}, fmt.Errorf("%w: %d", ErrPageIndex, i)
	}
	p := d.pages[i]
	return merge.Geometry{Box: p.box, Rotation: p.rotate}, nil
}

// Clone deep-copies the object graph. Overlay XObjects already embedded are
// carried along but not shared with the clone's cache.
func (d *Document) Clone() merge.Document { return d.clone() }

func (d *Document) clone() *Document {
	rd := d.raw.Clone()
	c := &Document{raw: rd, logger: d.logger, overlays: map[*render.Overlay]raw.RefObj{}}
	c.pages = make([]*page, len(d.pages))
	for i, p := range d.pages {
		dict, _ := rd.Objects[p.ref].(*raw.DictObj)
		c.pages[i] = &page{ref: p.ref, dict: dict, box: p.box, rotate: p.rotate, resources: raw.DeepCopy(p.resources)}
	}
	return c
}

// Write serializes the document.
func (d *Document) Write(ctx context.Context, w io.Writer, cfg writer.Config) error {
	return writer.NewWriter().Write(ctx, d.raw, w, cfg)
}

// add allocates a new indirect object.
func (d *Document) add(obj raw.Object) raw.RefObj {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw.Add(obj)
}
