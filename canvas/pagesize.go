package canvas

import (
	"fmt"
	"math"
)

// PageSize is a page extent in points.
type PageSize struct {
	Width, Height float64
}

var (
	Letter = PageSize{Width: 612, Height: 792}
	A4     = PageSize{Width: 595.28, Height: 841.89}
)

func (s PageSize) Validate() error {
	if !(s.Width > 0) || math.IsInf(s.Width, 0) {
		return &ConfigurationError{Field: "page width", Reason: fmt.Sprintf("must be positive, got %g", s.Width)}
	}
	if !(s.Height > 0) || math.IsInf(s.Height, 0) {
		return &ConfigurationError{Field: "page height", Reason: fmt.Sprintf("must be positive, got %g", s.Height)}
	}
	return nil
}

// Rotated returns the extent after turning the page by deg, a multiple of 90.
func (s PageSize) Rotated(deg int) PageSize {
	if NormalizeRotation(deg)%180 != 0 {
		return PageSize{Width: s.Height, Height: s.Width}
	}
	return s
}

func (s PageSize) String() string { return fmt.Sprintf("%gx%g", s.Width, s.Height) }

// NormalizeRotation maps any angle to [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// ValidateRotation accepts only quarter turns.
func ValidateRotation(field string, deg int) error {
	if deg%90 != 0 {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be a multiple of 90, got %d", deg)}
	}
	return nil
}
