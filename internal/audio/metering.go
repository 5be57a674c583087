// Package audio captures mono PCM from the platform audio driver, hands frames
// to the processing actor and meters the input level.
package audio

import "math"

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// LevelData accumulates raw sample statistics for one measurement period.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// Add accumulates samples.
func (d *LevelData) Add(samples []int16) {
	for _, s := range samples {
		v := float64(s)
		d.SumSquares += v * v
		if a := math.Abs(v); a > d.Peak {
			d.Peak = a
		}
		if s >= ClipThreshold || s <= -ClipThreshold {
			d.ClipCount++
		}
	}
	d.SampleCount += len(samples)
}

// Reset clears the accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}

// CalculateLevels computes RMS and peak levels in dB, floored at MinDB.
func CalculateLevels(d *LevelData) (rms, peak float64) {
	if d.SampleCount == 0 {
		return MinDB, MinDB
	}
	rms = 20 * math.Log10(math.Sqrt(d.SumSquares/float64(d.SampleCount))/MaxSampleValue)
	peak = 20 * math.Log10(d.Peak/MaxSampleValue)
	return max(rms, MinDB), max(peak, MinDB)
}
