package fonts

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Tile is a rasterized text run. The run's advance box is centered in the
// image; Width and Height give the image extent in points.
type Tile struct {
	Image         *image.RGBA
	Width, Height float64
}

// Rasterize fills the outlines of a shaped run at size points with col,
// scale pixels per point. The baseline sits at the face's ascent below the
// top of the advance box.
func (f *Face) Rasterize(glyphs []ShapedGlyph, size, scale float64, col color.Color) (*Tile, error) {
	if size <= 0 || scale <= 0 {
		return nil, fmt.Errorf("rasterize: invalid size %g at scale %g", size, scale)
	}
	m, err := f.Metrics(size)
	if err != nil {
		return nil, err
	}
	// room for ink outside the advance box (negative bearings, accents)
	pad := int(math.Ceil(size*scale/8)) + 1
	w := int(math.Ceil(Advance(glyphs)*scale)) + 2*pad
	h := int(math.Ceil((m.Ascent+m.Descent)*scale)) + 2*pad
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	filler := rasterx.NewFiller(w, h, scanner)
	filler.SetWinding(true)
	filler.SetColor(col)

	ppem := fixed.Int26_6(math.Round(size * scale * 64))
	penX := float64(pad)
	baseline := float64(pad) + m.Ascent*scale

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range glyphs {
		segs, err := f.outl.LoadGlyph(&f.buf, sfnt.GlyphIndex(g.ID), ppem, nil)
		if err != nil {
			return nil, fmt.Errorf("glyph %d: %w", g.ID, err)
		}
		off := fixed.Point26_6{
			X: fixed.Int26_6(math.Round((penX + g.XOffset*scale) * 64)),
			Y: fixed.Int26_6(math.Round((baseline - g.YOffset*scale) * 64)),
		}
		open := false
		for _, s := range segs {
			switch s.Op {
			case sfnt.SegmentOpMoveTo:
				if open {
					filler.Stop(true)
				}
				filler.Start(s.Args[0].Add(off))
				open = true
			case sfnt.SegmentOpLineTo:
				filler.Line(s.Args[0].Add(off))
			case sfnt.SegmentOpQuadTo:
				filler.QuadBezier(s.Args[0].Add(off), s.Args[1].Add(off))
			case sfnt.SegmentOpCubeTo:
				filler.CubeBezier(s.Args[0].Add(off), s.Args[1].Add(off), s.Args[2].Add(off))
			}
		}
		if open {
			filler.Stop(true)
		}
		penX += g.XAdvance * scale
	}
	filler.Draw()
	return &Tile{Image: img, Width: float64(w) / scale, Height: float64(h) / scale}, nil
}
