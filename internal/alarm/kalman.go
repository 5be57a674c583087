// Package alarm turns noisy per-frame predictions into edge-triggered alarm
// transitions.
package alarm

import "math"

// Default filter tuning.
const (
	DefaultMeasurementNoise = 0.01
	DefaultEstimateNoise    = 0.01
	DefaultProcessNoise     = 0.0005
	DefaultThreshold        = 0.3
)

// Kalman is a one-dimensional Kalman estimator.
type Kalman struct {
	MeasurementNoise float64 // expected spread of measurements
	EstimateNoise    float64 // current estimate error, adapted on every update
	ProcessNoise     float64 // how fast the true value is expected to move
	Estimate         float64
}

// NewKalman returns a filter starting at estimate 0.
func NewKalman(measurementNoise, estimateNoise, processNoise float64) *Kalman {
	return &Kalman{
		MeasurementNoise: measurementNoise,
		EstimateNoise:    estimateNoise,
		ProcessNoise:     processNoise,
	}
}

// Update folds one measurement into the estimate and returns the new estimate.
func (k *Kalman) Update(measurement float64) float64 {
	gain := k.EstimateNoise / (k.EstimateNoise + k.MeasurementNoise)
	last := k.Estimate
	k.Estimate = last + gain*(measurement-last)
	k.EstimateNoise = (1-gain)*k.EstimateNoise + math.Abs(last-k.Estimate)*k.ProcessNoise
	return k.Estimate
}
