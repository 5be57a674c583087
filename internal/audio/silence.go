package audio

import "time"

// SilenceConfig holds the thresholds for input silence detection.
type SilenceConfig struct {
	Threshold  float64 // dB level below which input is considered silent
	DurationMs int64   // milliseconds of silence before triggering
	RecoveryMs int64   // milliseconds of signal before considering recovered
}

// SilenceEvent is the result of one silence detection update.
type SilenceEvent struct {
	InSilence  bool
	DurationMs int64
	Level      SilenceLevel
	CurrentDB  float64

	JustEntered     bool  // set on the update that confirms silence
	JustRecovered   bool  // set on the update that completes recovery
	TotalDurationMs int64 // silence length, only set with JustRecovered
}

// SilenceDetector tracks input silence. A dead or unplugged microphone makes
// the alarm detector blind, so silence is surfaced as its own condition.
type SilenceDetector struct {
	silenceStart      time.Time
	recoveryStart     time.Time
	inSilence         bool
	silenceDurationMs int64
}

// NewSilenceDetector creates a new silence detector.
func NewSilenceDetector() *SilenceDetector {
	return &SilenceDetector{}
}

// Update feeds one level measurement and returns the current state.
func (d *SilenceDetector) Update(db float64, cfg SilenceConfig, now time.Time) SilenceEvent {
	event := SilenceEvent{CurrentDB: db}

	if db < cfg.Threshold {
		d.recoveryStart = time.Time{}
		if d.silenceStart.IsZero() {
			d.silenceStart = now
		}
		d.silenceDurationMs = now.Sub(d.silenceStart).Milliseconds()

		switch {
		case d.inSilence:
			event.InSilence = true
		case d.silenceDurationMs >= cfg.DurationMs:
			d.inSilence = true
			event.InSilence = true
			event.JustEntered = true
		}
		if event.InSilence {
			event.DurationMs = d.silenceDurationMs
			event.Level = SilenceLevelActive
		}
		return event
	}

	if !d.inSilence {
		d.silenceStart = time.Time{}
		return event
	}

	// Signal is back; silence ends after the recovery period.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}
	if now.Sub(d.recoveryStart).Milliseconds() >= cfg.RecoveryMs {
		event.JustRecovered = true
		event.TotalDurationMs = d.silenceDurationMs
		d.Reset()
		return event
	}
	event.InSilence = true
	event.Level = SilenceLevelActive
	return event
}

// Reset clears the silence detection state.
func (d *SilenceDetector) Reset() {
	*d = SilenceDetector{}
}
