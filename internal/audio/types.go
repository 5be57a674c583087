package audio

import "time"

// Capture format. The classifier front end expects mono 16 kHz s16le.
const (
	// SampleRate is the capture sample rate in Hz.
	SampleRate = 16000
	// Channels is the number of captured channels.
	Channels = 1
	// BytesPerSample is the size of one s16le sample.
	BytesPerSample = 2
)

// Source restart policy.
const (
	// InitialRetryDelay is the starting delay between capture restarts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay caps the delay between capture restarts.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxRetries is the number of consecutive fast failures before giving up.
	MaxRetries = 10
	// SuccessThreshold is the run time after which the retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
	// ShutdownTimeout is how long the capture process gets to exit after a signal.
	ShutdownTimeout = 3000 * time.Millisecond
)

// SilenceLevel represents the silence detection state.
type SilenceLevel string

// SilenceLevelActive indicates silence is confirmed.
const SilenceLevelActive SilenceLevel = "active"

// Levels is the current input level measurement.
type Levels struct {
	// RMS is the RMS level in dB.
	RMS float64 `json:"rms"`
	// Peak is the held peak level in dB.
	Peak float64 `json:"peak"`
	// Clips is how many samples clipped in the last measurement period.
	Clips int `json:"clips,omitzero"`
	// Silence reports whether input is below the silence threshold.
	Silence bool `json:"silence,omitzero"`
	// SilenceDurationMs is how long silence has lasted in milliseconds.
	SilenceDurationMs int64 `json:"silence_duration_ms,omitzero"`
	// SilenceLevel indicates the silence detection state (active or empty).
	SilenceLevel SilenceLevel `json:"silence_level,omitzero"`
}

// Device represents an available audio input device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
