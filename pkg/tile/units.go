package tile

import "math"

const mmPerInch = 25.4

// roundPx rounds half away from zero, saturating instead of overflowing
func roundPx(v float64) int {
	r := math.Round(v)
	if r >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}

// MillimetersToPixels converts a physical length to whole pixels at dpi
func MillimetersToPixels(mm float64, dpi int) int {
	return roundPx(mm / mmPerInch * float64(dpi))
}

// InchesToPixels converts a physical length to whole pixels at dpi
func InchesToPixels(in float64, dpi int) int {
	return roundPx(in * float64(dpi))
}

// PixelsToMillimeters returns the physical length of px pixels at dpi
func PixelsToMillimeters(px, dpi int) float64 {
	return float64(px) * mmPerInch / float64(dpi)
}

// PixelsToInches returns the physical length of px pixels at dpi
func PixelsToInches(px, dpi int) float64 {
	return float64(px) / float64(dpi)
}
