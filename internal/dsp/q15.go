// Package dsp implements the fixed-point front end that turns raw PCM frames
// into the rolling, quantized spectrogram consumed by the classifier.
package dsp

import "math"

// q15 limits.
const (
	q15Max   = math.MaxInt16
	q15Min   = math.MinInt16
	q15Shift = 15
)

// SaturateQ15 clamps v to the int16 range.
func SaturateQ15(v int32) int16 {
	switch {
	case v > q15Max:
		return q15Max
	case v < q15Min:
		return q15Min
	default:
		return int16(v)
	}
}

// FloatToQ15 converts a value in [-1, 1) to q15 with rounding and saturation.
func FloatToQ15(f float64) int16 {
	v := f * 32768
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	switch {
	case v >= q15Max:
		return q15Max
	case v <= q15Min:
		return q15Min
	default:
		return int16(v)
	}
}

// HannQ15 returns an n-point periodic Hann window, 0.5*(1-cos(2*pi*i/n)), in q15.
func HannQ15(n int) []int16 {
	w := make([]int16, n)
	for i := range w {
		f := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
		w[i] = FloatToQ15(f)
	}
	return w
}

// MulQ15 multiplies a and b element-wise into dst with saturation.
// All slices must have the same length.
func MulQ15(a, b, dst []int16) {
	for i := range dst {
		dst[i] = SaturateQ15((int32(a[i]) * int32(b[i])) >> q15Shift)
	}
}

// ShiftQ15 copies src into dst shifted left (positive) or right (negative)
// by shift bits, saturating on overflow.
func ShiftQ15(src []int16, shift int, dst []int16) {
	switch {
	case shift == 0:
		copy(dst, src)
	case shift > 0:
		for i, v := range src {
			dst[i] = SaturateQ15(int32(v) << shift)
		}
	default:
		for i, v := range src {
			dst[i] = v >> -shift
		}
	}
}
