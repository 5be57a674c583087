package audio

import (
	"sync"
	"time"
)

// LevelUpdateSamples is the number of samples per level measurement (100 ms).
const LevelUpdateSamples = SampleRate / 10

// SilenceFunc receives silence transitions (JustEntered or JustRecovered).
type SilenceFunc func(event SilenceEvent)

// LevelFunc receives every published measurement.
type LevelFunc func(levels Levels, at time.Time)

// Meter measures input levels and watches for a silent microphone.
// Process is called from the capture goroutine; Levels is safe for concurrent use.
type Meter struct {
	levelData     LevelData
	peakHolder    *PeakHolder
	silenceDetect *SilenceDetector
	silenceCfg    SilenceConfig
	onSilence     SilenceFunc
	onLevels      LevelFunc

	mu     sync.Mutex
	levels Levels
}

// NewMeter creates a meter. onSilence may be nil.
func NewMeter(cfg SilenceConfig, onSilence SilenceFunc) *Meter {
	return &Meter{
		peakHolder:    NewPeakHolder(),
		silenceDetect: NewSilenceDetector(),
		silenceCfg:    cfg,
		onSilence:     onSilence,
		levels:        Levels{RMS: MinDB, Peak: MinDB},
	}
}

// OnLevels sets a callback for each measurement. It must be set before
// the first Process call.
func (m *Meter) OnLevels(fn LevelFunc) { m.onLevels = fn }

// Process accumulates samples and publishes a measurement every LevelUpdateSamples.
func (m *Meter) Process(samples []int16) {
	m.process(samples, time.Now())
}

func (m *Meter) process(samples []int16, now time.Time) {
	m.levelData.Add(samples)
	if m.levelData.SampleCount < LevelUpdateSamples {
		return
	}

	rms, peak := CalculateLevels(&m.levelData)
	held := m.peakHolder.Update(peak, now)
	event := m.silenceDetect.Update(rms, m.silenceCfg, now)

	levels := Levels{
		RMS:               rms,
		Peak:              held,
		Clips:             m.levelData.ClipCount,
		Silence:           event.InSilence,
		SilenceDurationMs: event.DurationMs,
		SilenceLevel:      event.Level,
	}
	m.mu.Lock()
	m.levels = levels
	m.mu.Unlock()

	m.levelData.Reset()

	if m.onLevels != nil {
		m.onLevels(levels, now)
	}

	if m.onSilence != nil && (event.JustEntered || event.JustRecovered) {
		m.onSilence(event)
	}
}

// Levels returns the most recent measurement.
func (m *Meter) Levels() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}
