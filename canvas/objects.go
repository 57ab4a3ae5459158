package canvas

import (
	"fmt"
	"image/color"
	"math"
	"sync"
)

// DefaultTextSize matches the font size the watermark tool has always used.
const DefaultTextSize = 40

// Anchor selects the reference point of an object's offsets.
type Anchor int

const (
	// AnchorCenter measures offsets from the page center, y up.
	AnchorCenter Anchor = iota
	// AnchorOrigin measures offsets from the bottom-left corner; negative
	// offsets are measured back from the far edge.
	AnchorOrigin
)

// Placement holds the attributes shared by every drawable object.
type Placement struct {
	X, Y     float64
	Opacity  float64
	Rotation float64 // degrees, counter-clockwise about the object's center
	Anchor   Anchor
}

// Attrs returns the shared attributes.
func (p Placement) Attrs() Placement { return p }

func (p Placement) validate(idx int) error {
	if math.IsNaN(p.Opacity) || p.Opacity < 0 || p.Opacity > 1 {
		return &ConfigurationError{Field: fmt.Sprintf("object %d opacity", idx), Reason: fmt.Sprintf("must be within [0,1], got %g", p.Opacity)}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"x", p.X}, {"y", p.Y}, {"rotation", p.Rotation}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ConfigurationError{Field: fmt.Sprintf("object %d %s", idx, f.name), Reason: "must be finite"}
		}
	}
	return nil
}

// Color is an opaque RGB triple.
type Color struct{ R, G, B uint8 }

var Black = Color{}

func (c Color) RGBA() color.RGBA { return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff} }

// Object is a drawable primitive. The set is closed: *TextObject and
// *ImageObject are the only implementations.
type Object interface {
	Attrs() Placement
	Validate(idx int) error
	clone() Object
}

// TextObject is a single run of text in one font, size and color.
type TextObject struct {
	Placement
	Content string
	Size    float64 // font size in points; zero means DefaultTextSize
	Color   Color
	Font    string // registered face name; empty selects the default face
}

// FontSize resolves the zero value to DefaultTextSize.
func (t *TextObject) FontSize() float64 {
	if t.Size == 0 {
		return DefaultTextSize
	}
	return t.Size
}

func (t *TextObject) Validate(idx int) error {
	if err := t.Placement.validate(idx); err != nil {
		return err
	}
	if t.Size < 0 || math.IsNaN(t.Size) {
		return &ConfigurationError{Field: fmt.Sprintf("object %d size", idx), Reason: fmt.Sprintf("must be positive, got %g", t.Size)}
	}
	return nil
}

func (t *TextObject) clone() Object {
	c := *t
	return &c
}

// ImageObject places encoded image bytes. A zero Width and Height keep the
// native pixel size at one point per pixel; a single zero keeps the aspect.
type ImageObject struct {
	Placement
	Source        []byte
	Width, Height float64
}

func (im *ImageObject) Validate(idx int) error {
	if err := im.Placement.validate(idx); err != nil {
		return err
	}
	if im.Width < 0 || im.Height < 0 || math.IsNaN(im.Width) || math.IsNaN(im.Height) {
		return &ConfigurationError{Field: fmt.Sprintf("object %d size", idx), Reason: fmt.Sprintf("must not be negative, got %gx%g", im.Width, im.Height)}
	}
	return nil
}

// Extent resolves the drawn size for an image of w×h pixels.
func (im *ImageObject) Extent(w, h int) (float64, float64) {
	switch {
	case im.Width > 0 && im.Height > 0:
		return im.Width, im.Height
	case im.Width > 0 && w > 0:
		return im.Width, im.Width * float64(h) / float64(w)
	case im.Height > 0 && h > 0:
		return im.Height * float64(w) / float64(h), im.Height
	}
	return float64(w), float64(h)
}

func (im *ImageObject) clone() Object {
	c := *im
	c.Source = append([]byte(nil), im.Source...)
	return &c
}

type State int

const (
	Building State = iota
	Rendered
)

func (s State) String() string {
	if s == Rendered {
		return "rendered"
	}
	return "building"
}

// Objects is an ordered collection of drawables; insertion order is paint
// order. Once rendered it stays rendered: later additions need a new render.
type Objects struct {
	mu    sync.Mutex
	items []Object
	state State
}

func NewObjects(objs ...Object) *Objects {
	o := &Objects{}
	o.Add(objs...)
	return o
}

// Add appends objects; nil entries are ignored.
func (o *Objects) Add(objs ...Object) *Objects {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, obj := range objs {
		if obj != nil {
			o.items = append(o.items, obj)
		}
	}
	return o
}

func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Snapshot returns deep copies of the objects in paint order.
func (o *Objects) Snapshot() []Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Object, len(o.items))
	for i, obj := range o.items {
		out[i] = obj.clone()
	}
	return out
}

func (o *Objects) MarkRendered() {
	o.mu.Lock()
	o.state = Rendered
	o.mu.Unlock()
}

func (o *Objects) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}
