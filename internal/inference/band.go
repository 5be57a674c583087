package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// Band weights the mean energy of rows [Low, High] of the spectrogram.
type Band struct {
	Name   string  `json:"name"`
	Low    int     `json:"low"`
	High   int     `json:"high"`
	Weight float64 `json:"weight"`
}

// Quantization holds tensor quantization parameters.
type Quantization struct {
	Scale     float32 `json:"scale"`
	ZeroPoint int32   `json:"zero_point"`
}

// BandSpec is the on-disk form of a band-energy logistic classifier.
type BandSpec struct {
	InputShape []int        `json:"input_shape"` // [batch, width, height, channels]
	Input      Quantization `json:"input"`
	Output     Quantization `json:"output"`
	Columns    int          `json:"columns"` // newest columns averaged per prediction
	Bias       float64      `json:"bias"`
	Bands      []Band       `json:"bands"`
}

// BandModel is a pure-Go Runtime that scores a spectrogram by a weighted
// sum of mean band energies followed by a logistic function.
type BandModel struct {
	spec   BandSpec
	input  *Tensor
	output *Tensor
}

// NewBandModel validates spec and returns a runtime for it.
func NewBandModel(spec BandSpec) (*BandModel, error) {
	if len(spec.InputShape) < 3 {
		return nil, fmt.Errorf("input_shape %v needs at least 3 dimensions", spec.InputShape)
	}
	if (&Tensor{Shape: spec.InputShape}).Elements() == 0 {
		return nil, fmt.Errorf("%w: input_shape %v", ErrInvalidShape, spec.InputShape)
	}
	width, height := spec.InputShape[1], spec.InputShape[2]
	if spec.Output.Scale <= 0 {
		return nil, errors.New("output scale must be positive")
	}
	if spec.Columns <= 0 || spec.Columns > width {
		spec.Columns = width
	}
	for _, b := range spec.Bands {
		if b.Low < 0 || b.High >= height || b.Low > b.High {
			return nil, fmt.Errorf("band %q rows [%d,%d] outside height %d", b.Name, b.Low, b.High, height)
		}
	}
	return &BandModel{spec: spec}, nil
}

// LoadBandModel reads a BandSpec from a JSON file.
func LoadBandModel(path string) (*BandModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.WrapError("read model file", err)
	}
	var spec BandSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, util.WrapError("parse model file", err)
	}
	m, err := NewBandModel(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	slog.Info("loaded band model", "path", path, "bands", len(spec.Bands), "columns", m.spec.Columns)
	return m, nil
}

// AllocateTensors implements Runtime.
func (b *BandModel) AllocateTensors() error {
	in := &Tensor{
		Shape:     append([]int(nil), b.spec.InputShape...),
		Scale:     b.spec.Input.Scale,
		ZeroPoint: b.spec.Input.ZeroPoint,
	}
	n := in.Elements()
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidShape, in.Shape)
	}
	in.Data = make([]int8, n)
	for i := range in.Data {
		in.Data[i] = int8(max(min(in.ZeroPoint, math.MaxInt8), math.MinInt8))
	}
	b.input = in
	b.output = &Tensor{
		Shape:     []int{1, 1},
		Scale:     b.spec.Output.Scale,
		ZeroPoint: b.spec.Output.ZeroPoint,
		Data:      make([]int8, 1),
	}
	return nil
}

// Invoke implements Runtime.
func (b *BandModel) Invoke() error {
	if b.input == nil {
		return ErrNotInitialized
	}
	width, height := b.spec.InputShape[1], b.spec.InputShape[2]
	first := width - b.spec.Columns

	logit := b.spec.Bias
	for _, band := range b.spec.Bands {
		var sum float64
		for col := first; col < width; col++ {
			cells := b.input.Data[col*height : (col+1)*height]
			for row := band.Low; row <= band.High; row++ {
				sum += float64(int32(cells[row])-b.input.ZeroPoint) * float64(b.input.Scale)
			}
		}
		n := float64(b.spec.Columns * (band.High - band.Low + 1))
		logit += band.Weight * sum / n
	}

	p := 1 / (1 + math.Exp(-logit))
	q := math.Round(p/float64(b.output.Scale)) + float64(b.output.ZeroPoint)
	b.output.Data[0] = int8(max(min(q, math.MaxInt8), math.MinInt8))
	return nil
}

// Input implements Runtime.
func (b *BandModel) Input(i int) *Tensor {
	if i != 0 {
		return nil
	}
	return b.input
}

// Output implements Runtime.
func (b *BandModel) Output(i int) *Tensor {
	if i != 0 {
		return nil
	}
	return b.output
}

// SampleBandSpec returns a starter classifier tuned to the 2.8-3.5 kHz band
// typical of smoke and heat alarms at 16 kHz with a 256-point transform.
func SampleBandSpec() BandSpec {
	return BandSpec{
		InputShape: []int{1, 124, 129, 1},
		Input:      Quantization{Scale: 0.5, ZeroPoint: -128},
		Output:     Quantization{Scale: 1.0 / 256, ZeroPoint: -128},
		Columns:    16,
		Bias:       -4,
		Bands: []Band{
			{Name: "alarm", Low: 45, High: 56, Weight: 0.25},
			{Name: "broadband", Low: 1, High: 128, Weight: -0.08},
		},
	}
}

// WriteSampleModel writes SampleBandSpec to path.
func WriteSampleModel(path string) error {
	data, err := json.MarshalIndent(SampleBandSpec(), "", "  ")
	if err != nil {
		return util.WrapError("marshal model", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return util.WrapError("write model file", err)
	}
	slog.Info("created sample model", "path", path)
	return nil
}
