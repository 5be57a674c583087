package alarm

import (
	"math"
	"sync"
)

// Config tunes the detector.
type Config struct {
	Threshold        float64
	MeasurementNoise float64
	EstimateNoise    float64
	ProcessNoise     float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:        DefaultThreshold,
		MeasurementNoise: DefaultMeasurementNoise,
		EstimateNoise:    DefaultEstimateNoise,
		ProcessNoise:     DefaultProcessNoise,
	}
}

// Decision is the result of one detector update.
type Decision struct {
	Measurement float64
	Estimate    float64
	On          bool // alarm state after the update
	Changed     bool // true exactly once per transition
	Skipped     bool // measurement was NaN, nothing changed
}

// Detector is a two-state machine (off, on) driven by a smoothed prediction.
// The alarm is on while the estimate is at or above the threshold.
// There is no hysteresis band; the filter supplies the noise rejection.
// It is safe for concurrent use.
type Detector struct {
	mu        sync.Mutex
	filter    *Kalman
	threshold float64
	on        bool
	last      Decision
}

// NewDetector creates a detector in the off state.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		filter:    NewKalman(cfg.MeasurementNoise, cfg.EstimateNoise, cfg.ProcessNoise),
		threshold: cfg.Threshold,
	}
}

// Update processes one prediction. NaN predictions are skipped and leave
// the filter untouched.
func (d *Detector) Update(measurement float64) Decision {
	d.mu.Lock()
	defer d.mu.Unlock()

	if math.IsNaN(measurement) {
		return Decision{Measurement: measurement, Estimate: d.filter.Estimate, On: d.on, Skipped: true}
	}

	estimate := d.filter.Update(measurement)
	on := estimate >= d.threshold
	dec := Decision{
		Measurement: measurement,
		Estimate:    estimate,
		On:          on,
		Changed:     on != d.on,
	}
	d.on = on
	d.last = dec
	return dec
}

// On reports the current alarm state.
func (d *Detector) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

// Last returns the most recent non-skipped decision.
func (d *Detector) Last() Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// SetThreshold changes the threshold. The state is re-evaluated on the next update.
func (d *Detector) SetThreshold(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

// Threshold returns the current threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}
