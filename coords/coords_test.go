package coords

import (
	"errors"
	"math"
	"testing"

	"github.com/wudi/pdfmark/canvas"
)

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestRotateAboutPivot(t *testing.T) {
	pivot := Point{10, 10}
	cases := []struct {
		deg  float64
		want Point
	}{
		{0, Point{20, 10}},
		{90, Point{10, 20}},
		{180, Point{0, 10}},
		{270, Point{10, 0}},
		{-90, Point{10, 0}},
		{45, Point{10 + 10/math.Sqrt2, 10 + 10/math.Sqrt2}},
	}
	for _, tc := range cases {
		if got := RotateAbout(Point{20, 10}, pivot, tc.deg); !near(got, tc.want) {
			t.Fatalf("rotate %g: got %+v want %+v", tc.deg, got, tc.want)
		}
	}
}

func TestQuarterTurnsAreExact(t *testing.T) {
	m := Identity()
	for i := 0; i < 4; i++ {
		m = m.Multiply(RotateDegrees(90))
	}
	if m != Identity() {
		t.Fatalf("four quarter turns should be identity, got %v", m)
	}
}

func TestMultiplyAppliesLeftFirst(t *testing.T) {
	m := Scale(2, 2).Multiply(Translate(5, 0))
	if got := m.Transform(Point{1, 1}); got != (Point{7, 2}) {
		t.Fatalf("got %+v", got)
	}
}

func TestInverse(t *testing.T) {
	m := RotateAboutMatrix(Point{3, 4}, 30).Multiply(Scale(2, 3))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	p := Point{12.5, -7}
	if got := inv.Transform(m.Transform(p)); !near(got, p) {
		t.Fatalf("inverse round trip: %+v", got)
	}
	if _, err := Scale(0, 1).Inverse(); !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestAnchorOffset(t *testing.T) {
	size := canvas.PageSize{Width: 612, Height: 792}
	p, err := AnchorOffset(size, canvas.AnchorCenter, 200, -200)
	if err != nil {
		t.Fatal(err)
	}
	if p != (Point{506, 196}) {
		t.Fatalf("center anchor: %+v", p)
	}
	p, _ = AnchorOffset(size, canvas.AnchorOrigin, -12, 30)
	if p != (Point{600, 30}) {
		t.Fatalf("origin anchor: %+v", p)
	}
	var cfgErr *canvas.ConfigurationError
	if _, err := AnchorOffset(canvas.PageSize{Width: -1, Height: 5}, canvas.AnchorCenter, 0, 0); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestToDeviceFlipsY(t *testing.T) {
	if got := ToDevice(Point{0, 0}, 792, 2); got != (Point{0, 1584}) {
		t.Fatalf("origin: %+v", got)
	}
	if got := ToDevice(Point{10, 792}, 792, 2); got != (Point{20, 0}) {
		t.Fatalf("top edge: %+v", got)
	}
}

func TestBounds(t *testing.T) {
	r := Rect{0, 0, 10, 20}
	b := Bounds(r, RotateAboutMatrix(r.Center(), 90))
	want := Rect{-5, 5, 15, 15}
	if math.Abs(b.LLX-want.LLX)+math.Abs(b.LLY-want.LLY)+math.Abs(b.URX-want.URX)+math.Abs(b.URY-want.URY) > 1e-9 {
		t.Fatalf("bounds: %+v", b)
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(595.28, 841.89); err != nil {
		t.Fatal(err)
	}
	if err := ValidateSize(0, 1); err == nil {
		t.Fatal("zero width accepted")
	}
}
