package dsp

import "math"

// ScaleFactor converts the classifier input scale into the integer divisor
// applied to FFT magnitudes.
const ScaleFactor = 64

// Quantize maps a magnitude to a signed 8-bit cell:
// clamp(mag/divisor + zeroPoint, -128, 127). divisor must be positive.
func Quantize(mag, divisor, zeroPoint int32) int8 {
	v := mag/divisor + zeroPoint
	switch {
	case v > math.MaxInt8:
		return math.MaxInt8
	case v < math.MinInt8:
		return math.MinInt8
	default:
		return int8(v)
	}
}

// Divisor returns the integer divisor for a classifier input scale.
func Divisor(inputScale float32) int32 {
	return int32(ScaleFactor * inputScale)
}
