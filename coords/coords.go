package coords

import (
	"errors"
	"math"

	"github.com/wudi/pdfmark/canvas"
)

// Matrix is a PDF-style affine transform [a b c d e f]. Points are row
// vectors: [x y 1] × M.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

var ErrSingular = errors.New("matrix singular")

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate turns counter-clockwise by angle radians. Quarter turns are exact.
func Rotate(angle float64) Matrix {
	c, s := sincos(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// RotateDegrees is Rotate with the angle in degrees.
func RotateDegrees(deg float64) Matrix { return Rotate(deg * math.Pi / 180) }

// RotateAboutMatrix rotates by deg degrees about pivot.
func RotateAboutMatrix(pivot Point, deg float64) Matrix {
	return Translate(-pivot.X, -pivot.Y).Multiply(RotateDegrees(deg)).Multiply(Translate(pivot.X, pivot.Y))
}

// RotateAbout rotates p counter-clockwise by deg degrees about pivot.
func RotateAbout(p, pivot Point, deg float64) Point {
	return RotateAboutMatrix(pivot, deg).Transform(p)
}

func sincos(angle float64) (float64, float64) {
	quarter := angle / (math.Pi / 2)
	if q := math.Round(quarter); math.Abs(quarter-q) < 1e-12 {
		switch int(math.Mod(math.Mod(q, 4)+4, 4)) {
		case 0:
			return 1, 0
		case 1:
			return 0, 1
		case 2:
			return -1, 0
		default:
			return 0, -1
		}
	}
	return math.Cos(angle), math.Sin(angle)
}

// Rect is an axis-aligned rectangle given by its lower-left and upper-right corners.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) Center() Point   { return Point{X: (r.LLX + r.URX) / 2, Y: (r.LLY + r.URY) / 2} }

// Normalize orders the corners so that LL is below and left of UR.
func (r Rect) Normalize() Rect {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

// Bounds returns the axis-aligned box enclosing r after transforming it by m.
func Bounds(r Rect, m Matrix) Rect {
	corners := [4]Point{
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.URX, r.URY}),
		m.Transform(Point{r.LLX, r.URY}),
	}
	out := Rect{LLX: corners[0].X, LLY: corners[0].Y, URX: corners[0].X, URY: corners[0].Y}
	for _, c := range corners[1:] {
		out.LLX = math.Min(out.LLX, c.X)
		out.LLY = math.Min(out.LLY, c.Y)
		out.URX = math.Max(out.URX, c.X)
		out.URY = math.Max(out.URY, c.Y)
	}
	return out
}

// ValidateSize rejects non-positive page extents.
func ValidateSize(w, h float64) error {
	return canvas.PageSize{Width: w, Height: h}.Validate()
}

// AnchorOffset maps an object's signed offset to an absolute page position
// with the origin at the bottom-left corner and y growing up.
func AnchorOffset(size canvas.PageSize, anchor canvas.Anchor, x, y float64) (Point, error) {
	if err := size.Validate(); err != nil {
		return Point{}, err
	}
	switch anchor {
	case canvas.AnchorOrigin:
		p := Point{X: x, Y: y}
		if x < 0 {
			p.X = size.Width + x
		}
		if y < 0 {
			p.Y = size.Height + y
		}
		return p, nil
	case canvas.AnchorCenter:
		return Point{X: size.Width/2 + x, Y: size.Height/2 + y}, nil
	}
	return Point{}, &canvas.ConfigurationError{Field: "anchor", Reason: "unknown anchor"}
}

// ToDevice maps a page point to raster coordinates with a top-left origin,
// scale pixels per point.
func ToDevice(p Point, pageHeight, scale float64) Point {
	return DeviceMatrix(pageHeight, scale).Transform(p)
}

// DeviceMatrix flips the y axis and scales page points to pixels.
func DeviceMatrix(pageHeight, scale float64) Matrix {
	return Matrix{scale, 0, 0, -scale, 0, pageHeight * scale}
}
