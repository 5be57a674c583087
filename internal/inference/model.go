package inference

import (
	"log/slog"
	"math"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// Model wraps a Runtime and exposes the input tensor geometry and a scalar
// prediction. It is not safe for concurrent use; the audio actor owns it.
type Model struct {
	rt     Runtime
	load   func() (Runtime, error)
	input  *Tensor
	output *Tensor
	ready  bool
}

// NewModel wraps rt. Init must be called before use.
func NewModel(rt Runtime) *Model {
	return &Model{rt: rt}
}

// OpenModel defers reading the model file at path to Init, so a missing or
// broken file fails the caller's setup rather than startup.
func OpenModel(path string) *Model {
	return &Model{load: func() (Runtime, error) { return Load(path) }}
}

// Init loads the runtime if needed, allocates tensors and caches the first
// input and output.
func (m *Model) Init() error {
	if m.rt == nil && m.load != nil {
		rt, err := m.load()
		if err != nil {
			return util.WrapError("load model", err)
		}
		m.rt = rt
	}
	if m.rt == nil {
		return util.WrapError("initialize model", ErrNotInitialized)
	}
	if err := m.rt.AllocateTensors(); err != nil {
		return util.WrapError("allocate tensors", err)
	}
	m.input = m.rt.Input(0)
	m.output = m.rt.Output(0)
	if m.input == nil || m.output == nil {
		return util.WrapError("locate tensors", ErrNotInitialized)
	}
	m.ready = true
	slog.Info("classifier ready",
		"input_shape", m.input.Shape, "input_scale", m.input.Scale, "input_zero_point", m.input.ZeroPoint,
		"output_scale", m.output.Scale, "output_zero_point", m.output.ZeroPoint)
	return nil
}

// Infer runs the classifier and returns the dequantized first output.
// Any failure yields NaN.
func (m *Model) Infer() float32 {
	if !m.ready {
		slog.Debug("inference skipped: model not initialized")
		return float32(math.NaN())
	}
	if err := m.rt.Invoke(); err != nil {
		slog.Warn("inference failed", "error", err)
		return float32(math.NaN())
	}
	if len(m.output.Data) == 0 {
		slog.Warn("inference produced no output")
		return float32(math.NaN())
	}
	raw := float32(m.output.Data[0])
	return (raw - float32(m.output.ZeroPoint)) * m.output.Scale
}

// InputData returns the input tensor cells, or nil before Init.
func (m *Model) InputData() []int8 {
	if m.input == nil {
		return nil
	}
	return m.input.Data
}

// InputScale returns the input quantization scale, or NaN before Init.
func (m *Model) InputScale() float32 {
	if m.input == nil {
		return float32(math.NaN())
	}
	return m.input.Scale
}

// InputZeroPoint returns the input zero point, or 0 before Init.
func (m *Model) InputZeroPoint() int32 {
	if m.input == nil {
		return 0
	}
	return m.input.ZeroPoint
}

// InputWidth returns input dimension 1, or -1 when absent.
func (m *Model) InputWidth() int { return m.input.Dim(1) }

// InputHeight returns input dimension 2, or -1 when absent.
func (m *Model) InputHeight() int { return m.input.Dim(2) }
