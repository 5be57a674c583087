package dsp

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Front-end defaults for 16 kHz capture.
const (
	DefaultFFTSize    = 256
	DefaultFrameStep  = DefaultFFTSize / 2
	DefaultShift      = 4
	DefaultFrameLen   = DefaultFrameStep * DefaultShift
	DefaultInputShift = 0
	DefaultWidth      = 124
	DefaultHeight     = DefaultFFTSize/2 + 1
)

var (
	// ErrArgument reports a missing model or an unusable quantization parameter.
	ErrArgument = errors.New("invalid argument")
	// ErrLength reports a shape mismatch between the front end and the model input.
	ErrLength = errors.New("length mismatch")
)

// Model exposes the classifier input tensor the spectrogram is written into.
type Model interface {
	InputData() []int8
	InputWidth() int
	InputHeight() int
	InputScale() float32
	InputZeroPoint() int32
}

// Params describes the framing of the front end.
type Params struct {
	FFTSize    int // window length, power of two
	FrameLen   int // samples per raw capture frame
	FrameStep  int // hop between windows
	Shift      int // new columns per frame
	InputShift int // left shift applied to raw samples
}

// DefaultParams returns the standard 16 kHz framing.
func DefaultParams() Params {
	return Params{
		FFTSize:    DefaultFFTSize,
		FrameLen:   DefaultFrameLen,
		FrameStep:  DefaultFrameStep,
		Shift:      DefaultShift,
		InputShift: DefaultInputShift,
	}
}

// Preprocessor maintains the audio history and the rolling spectrogram.
// The spectrogram is column-major: cell (col,row) lives at col*height+row,
// with the newest columns at the highest indices.
// It is not safe for concurrent use; the audio actor owns it.
type Preprocessor struct {
	p Params

	window   []int16
	fft      *FFT
	history  []int16 // FrameLen + FrameStep samples
	windowed []int16
	mag      []int16

	image     []int8
	width     int
	height    int
	divisor   int32
	zeroPoint int32

	ready bool
}

// New creates a preprocessor. Init must succeed before UpdateSpectrum is used.
func New(p Params) *Preprocessor {
	return &Preprocessor{p: p}
}

// Init binds the preprocessor to the model input tensor and builds the
// window and transform tables.
func (pp *Preprocessor) Init(model Model) error {
	if model == nil {
		return fmt.Errorf("%w: no model", ErrArgument)
	}
	p := pp.p
	if p.FrameStep <= 0 || p.Shift <= 0 || p.FrameLen != p.FrameStep*p.Shift {
		return fmt.Errorf("%w: frame_len %d must equal frame_step %d * shift %d", ErrLength, p.FrameLen, p.FrameStep, p.Shift)
	}

	fft, err := NewFFT(p.FFTSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLength, err)
	}
	// The last window starts at (Shift-1)*FrameStep and must end inside the history.
	if p.FFTSize > 2*p.FrameStep {
		return fmt.Errorf("%w: fft size %d exceeds history window", ErrLength, p.FFTSize)
	}

	width, height := model.InputWidth(), model.InputHeight()
	if height != fft.Bins() {
		return fmt.Errorf("%w: input height %d, want %d", ErrLength, height, fft.Bins())
	}
	if width < p.Shift {
		return fmt.Errorf("%w: input width %d smaller than shift %d", ErrLength, width, p.Shift)
	}
	data := model.InputData()
	if len(data) != width*height {
		return fmt.Errorf("%w: input tensor holds %d cells, want %d", ErrLength, len(data), width*height)
	}

	scale := model.InputScale()
	if math.IsNaN(float64(scale)) || scale <= 0 {
		return fmt.Errorf("%w: input scale %v", ErrArgument, scale)
	}
	divisor := Divisor(scale)
	if divisor <= 0 {
		return fmt.Errorf("%w: divisor %d from input scale %v", ErrArgument, divisor, scale)
	}

	pp.window = HannQ15(p.FFTSize)
	pp.fft = fft
	pp.history = make([]int16, p.FrameLen+p.FrameStep)
	pp.windowed = make([]int16, p.FFTSize)
	pp.mag = make([]int16, fft.Bins())
	pp.image = data
	pp.width = width
	pp.height = height
	pp.divisor = divisor
	pp.zeroPoint = model.InputZeroPoint()
	pp.ready = true

	slog.Debug("spectrogram front end ready",
		"width", width, "height", height, "divisor", divisor, "zero_point", pp.zeroPoint)
	return nil
}

// FrameLen returns the number of samples UpdateSpectrum expects.
func (pp *Preprocessor) FrameLen() int { return pp.p.FrameLen }

// Image returns the spectrogram cells. The slice aliases the model input.
func (pp *Preprocessor) Image() []int8 { return pp.image }

// Width returns the number of spectrogram columns.
func (pp *Preprocessor) Width() int { return pp.width }

// Height returns the number of spectrogram rows.
func (pp *Preprocessor) Height() int { return pp.height }

// Column returns column col of the image.
func (pp *Preprocessor) Column(col int) []int8 {
	return pp.image[col*pp.height : (col+1)*pp.height]
}

// UpdateSpectrum consumes one raw frame: it slides the audio history,
// shifts the image left by Shift columns and computes the new columns.
func (pp *Preprocessor) UpdateSpectrum(raw []int16) error {
	if !pp.ready {
		return fmt.Errorf("%w: not initialized", ErrArgument)
	}
	p := pp.p
	if len(raw) != p.FrameLen {
		return fmt.Errorf("%w: frame has %d samples, want %d", ErrLength, len(raw), p.FrameLen)
	}

	// The last FrameStep samples of the previous frame lead the new window set.
	copy(pp.history[:p.FrameStep], pp.history[p.FrameLen:p.FrameLen+p.FrameStep])
	ShiftQ15(raw, p.InputShift, pp.history[p.FrameStep:])

	pp.shiftImage(p.Shift)

	for i := range p.Shift {
		start := i * p.FrameStep
		col := pp.width - p.Shift + i
		pp.calculateSpectrum(pp.history[start:start+p.FFTSize], pp.Column(col))
	}
	return nil
}

// shiftImage drops the oldest n columns.
func (pp *Preprocessor) shiftImage(n int) {
	copy(pp.image, pp.image[n*pp.height:])
}

// calculateSpectrum writes the quantized magnitude spectrum of one window into out.
func (pp *Preprocessor) calculateSpectrum(input []int16, out []int8) {
	MulQ15(pp.window, input, pp.windowed)
	pp.fft.Magnitude(pp.windowed, pp.mag)
	for i, m := range pp.mag {
		out[i] = Quantize(int32(m), pp.divisor, pp.zeroPoint)
	}
}
