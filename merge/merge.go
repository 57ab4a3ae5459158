// Package merge composites a rendered overlay onto every page of a document.
package merge

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfmark/canvas"
	"github.com/wudi/pdfmark/coords"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/render"
)

// Placement selects whether the overlay paints above or below the page.
type Placement int

const (
	OnTop Placement = iota
	// Underneath paints the overlay first. On pages whose content is opaque
	// (scans, flattened pages) the overlay ends up invisible.
	Underneath
)

func (p Placement) String() string {
	if p == Underneath {
		return "underneath"
	}
	return "on-top"
}

// ParsePlacement accepts "top"/"on-top" and "underneath"/"under".
func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "", "top", "on-top", "ontop":
		return OnTop, nil
	case "underneath", "under", "bottom":
		return Underneath, nil
	}
	return OnTop, &canvas.ConfigurationError{Field: "placement", Reason: fmt.Sprintf("unknown placement %q", s)}
}

// Geometry describes a page as stored: its box in default user space and the
// clockwise display rotation.
type Geometry struct {
	Box      coords.Rect
	Rotation int
}

func (g Geometry) Size() canvas.PageSize {
	b := g.Box.Normalize()
	return canvas.PageSize{Width: b.Width(), Height: b.Height()}
}

// Effective is the page extent as displayed, after rotation.
func (g Geometry) Effective() canvas.PageSize { return g.Size().Rotated(g.Rotation) }

// Stamp is one page's share of a merge.
type Stamp struct {
	Overlay *render.Overlay
	// Matrix maps the overlay's unit square into the page's user space.
	Matrix    coords.Matrix
	Placement Placement
}

// Document is a paged backend that can take overlays. Stamp must be safe to
// call concurrently for distinct pages.
type Document interface {
	PageCount() int
	PageGeometry(i int) (Geometry, error)
	// Clone returns an independent copy; stamping the copy never changes
	// the receiver.
	Clone() Document
	Stamp(ctx context.Context, i int, s Stamp) error
}

type Options struct {
	Placement Placement
	// Workers bounds concurrent page merges; zero uses GOMAXPROCS.
	Workers  int
	Observer observability.Observer
	Tracer   observability.Tracer
}

// Reconcile returns the matrix placing the overlay over the page's displayed
// area. The overlay is stretched to the effective page size and turned
// against the page rotation so it reads upright once the page is displayed.
func Reconcile(geom Geometry) coords.Matrix {
	eff := geom.Effective()
	m := coords.Scale(eff.Width, eff.Height).Multiply(coords.RotateDegrees(float64(canvas.NormalizeRotation(geom.Rotation))))
	b := coords.Bounds(coords.Rect{URX: 1, URY: 1}, m)
	box := geom.Box.Normalize()
	return m.Multiply(coords.Translate(box.LLX-b.LLX, box.LLY-b.LLY))
}

// Merge stamps ov onto every page of a clone of src. Either every page is
// stamped or an error is returned and no document is produced.
func Merge(ctx context.Context, src Document, ov *render.Overlay, opts Options) (Document, error) {
	if ov == nil || ov.Image == nil {
		return nil, &canvas.ConfigurationError{Field: "overlay", Reason: "missing"}
	}
	n := src.PageCount()
	if n == 0 {
		return nil, &canvas.PageMismatchError{Reason: "source document has no pages"}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Observer == nil {
		opts.Observer = observability.NopObserver{}
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.NopTracer()
	}
	ctx, span := opts.Tracer.StartSpan(ctx, observability.SpanMerge)
	defer span.Finish()
	span.SetTag("pages", n)

	start := time.Now()
	dst := src.Clone()
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pageStart := time.Now()
			geom, err := dst.PageGeometry(i)
			if err != nil {
				return &canvas.CompositingError{Page: i, Err: err}
			}
			if err := dst.Stamp(gctx, i, Stamp{Overlay: ov, Matrix: Reconcile(geom), Placement: opts.Placement}); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return &canvas.CompositingError{Page: i, Err: err}
			}
			done.Add(1)
			opts.Observer.Observe(observability.Event{Kind: observability.PageMerged, Index: i, Total: n, Duration: time.Since(pageStart)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.Observer.Observe(observability.Event{Kind: observability.MergeFinished, Index: int(done.Load()), Total: n, Duration: time.Since(start)})
	return dst, nil
}
