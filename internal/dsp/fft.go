package dsp

import (
	"fmt"
	"math"
	"math/bits"
)

// FFT is a fixed-point radix-2 transform of a real q15 signal.
// Every butterfly stage scales by 1/2, so the output is the DFT divided by n.
type FFT struct {
	n      int
	stages int
	cos    []int32 // q15 twiddles, n/2 entries
	sin    []int32
	re, im []int32
}

// NewFFT prepares a transform of size n, which must be a power of two >= 2.
func NewFFT(n int) (*FFT, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft size %d is not a power of two", n)
	}
	f := &FFT{
		n:      n,
		stages: bits.TrailingZeros(uint(n)),
		cos:    make([]int32, n/2),
		sin:    make([]int32, n/2),
		re:     make([]int32, n),
		im:     make([]int32, n),
	}
	for k := range f.cos {
		angle := -2 * math.Pi * float64(k) / float64(n)
		f.cos[k] = int32(FloatToQ15(math.Cos(angle)))
		f.sin[k] = int32(FloatToQ15(math.Sin(angle)))
	}
	return f, nil
}

// Size returns the transform length.
func (f *FFT) Size() int { return f.n }

// Bins returns the number of non-redundant output bins, n/2+1.
func (f *FFT) Bins() int { return f.n/2 + 1 }

// Magnitude transforms the real input and writes |X[k]| for the first
// len(mag) bins. len(input) must equal Size and len(mag) must not exceed Bins.
func (f *FFT) Magnitude(input []int16, mag []int16) {
	n := f.n
	for i, v := range input {
		f.re[i] = int32(v)
		f.im[i] = 0
	}

	// Bit-reversal permutation.
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			f.re[i], f.re[j] = f.re[j], f.re[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half
				wr, wi := f.cos[k*step], f.sin[k*step]

				tr := (wr*f.re[v] - wi*f.im[v]) >> q15Shift
				ti := (wr*f.im[v] + wi*f.re[v]) >> q15Shift

				ur, ui := f.re[u], f.im[u]
				f.re[u] = (ur + tr) >> 1
				f.im[u] = (ui + ti) >> 1
				f.re[v] = (ur - tr) >> 1
				f.im[v] = (ui - ti) >> 1
			}
		}
	}

	for k := range mag {
		re, im := int64(f.re[k]), int64(f.im[k])
		m := int32(math.Sqrt(float64(re*re + im*im)))
		mag[k] = SaturateQ15(m)
	}
}
