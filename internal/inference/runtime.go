// Package inference adapts a quantized classifier runtime to the single
// scalar prediction the alarm pipeline consumes.
package inference

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

var (
	// ErrNotInitialized is returned when tensors are used before allocation.
	ErrNotInitialized = errors.New("runtime not initialized")
	// ErrUnsupportedModel is returned by Load for unknown model formats.
	ErrUnsupportedModel = errors.New("unsupported model format")
	// ErrInvalidShape is returned for tensor shapes that cannot be allocated.
	ErrInvalidShape = errors.New("invalid tensor shape")
)

// Tensor is a quantized int8 tensor. Real values are (Data[i]-ZeroPoint)*Scale.
type Tensor struct {
	Shape     []int
	Scale     float32
	ZeroPoint int32
	Data      []int8
}

// Dim returns dimension i of the shape, or -1 if the shape has fewer dimensions.
func (t *Tensor) Dim(i int) int {
	if t == nil || i >= len(t.Shape) {
		return -1
	}
	return t.Shape[i]
}

// Elements returns the product of the shape dimensions. It returns 0 for an
// empty shape, a non-positive dimension or a product that overflows int.
func (t *Tensor) Elements() int {
	if t == nil || len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 || n > math.MaxInt/d {
			return 0
		}
		n *= d
	}
	return n
}

// Runtime is a classifier interpreter.
type Runtime interface {
	// AllocateTensors prepares the input and output tensors.
	AllocateTensors() error
	// Invoke runs the classifier over the current input tensor.
	Invoke() error
	// Input returns input tensor i, or nil.
	Input(i int) *Tensor
	// Output returns output tensor i, or nil.
	Output(i int) *Tensor
}

// Load opens a model file and returns a runtime for it.
// JSON files are band-energy classifiers.
func Load(path string) (Runtime, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadBandModel(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, filepath.Ext(path))
	}
}
