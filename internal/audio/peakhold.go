package audio

import "time"

// DefaultPeakHoldDuration is how long a peak is held before it may decay.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks peak-hold state for the level meter.
type PeakHolder struct {
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a peak holder at MinDB with the default hold duration.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{held: MinDB, holdDuration: DefaultPeakHoldDuration}
}

// Update records peak and returns the held value.
func (p *PeakHolder) Update(peak float64, now time.Time) float64 {
	if peak >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = peak
		p.heldAt = now
	}
	return p.held
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.held = MinDB
	p.heldAt = time.Time{}
}
