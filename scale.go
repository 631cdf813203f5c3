package kittiscale

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultDecimals is the number of fractional digits scaled coordinates are rounded to.
const DefaultDecimals = 2

// Size is an image size in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// checkSource returns ErrDivisionByZero unless both dimensions of src are positive.
func checkSource(src Size) error {
	if src.Width <= 0 || src.Height <= 0 {
		return fmt.Errorf("%w, got %v", ErrDivisionByZero, src)
	}
	return nil
}

// ScaleBox maps box from an image of size src to an image of size dst.
//
// The horizontal and vertical scale factors are independent, matching a resize that does not
// preserve the aspect ratio. Coordinates are rounded half to even at the given number of decimals
// and are not clamped to the image bounds.
func ScaleBox(box Box, src, dst Size, decimals int) (Box, error) {
	if err := checkSource(src); err != nil {
		return Box{}, err
	}
	scaleX := float64(dst.Width) / float64(src.Width)
	scaleY := float64(dst.Height) / float64(src.Height)

	var scaled Box
	for i, v := range box {
		if i&1 == 0 {
			scaled[i] = roundHalfEven(v*scaleX, decimals)
		} else {
			scaled[i] = roundHalfEven(v*scaleY, decimals)
		}
	}
	return scaled, nil
}

// roundHalfEven rounds v to the given number of decimals, with ties going to the even neighbour.
//
// The value is shifted by a power of ten, rounded and shifted back, the same way numpy.round does
// it, floating-point artifacts included.
func roundHalfEven(v float64, decimals int) float64 {
	if decimals >= 0 {
		p := math.Pow(10, float64(decimals))
		return math.RoundToEven(v*p) / p
	}
	p := math.Pow(10, float64(-decimals))
	return math.RoundToEven(v/p) * p
}

// formatCoord formats v with the fewest digits that represent it exactly, e.g. "108.3" and "143".
func formatCoord(v float64) string {
	if v == 0 {
		v = 0 // Drop the sign of -0.
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
