// Package indicator drives the alarm indicator outputs.
package indicator

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Output is one physical or remote indicator.
type Output interface {
	// SetAlarm shows the alarm state.
	SetAlarm(on bool) error
	// Blink acknowledges a system event such as link bring-up.
	Blink() error
	Close() error
}

// State is the indicator state reported by the status API.
type State struct {
	On      bool      `json:"on"`
	Since   time.Time `json:"since,omitzero"`
	Blinks  int       `json:"blinks"`
	Outputs int       `json:"outputs"`
}

// Indicator fans state changes out to its outputs. Output errors are logged
// and never reach the caller.
// It is safe for concurrent use.
type Indicator struct {
	mu      sync.Mutex
	outputs []Output
	state   State
}

// New creates an indicator with the given outputs.
func New(outputs ...Output) *Indicator {
	return &Indicator{outputs: outputs, state: State{Outputs: len(outputs)}}
}

// Set shows the alarm state on every output.
func (ind *Indicator) Set(on bool) {
	ind.mu.Lock()
	ind.state.On = on
	ind.state.Since = time.Now()
	outputs := ind.outputs
	ind.mu.Unlock()

	for _, out := range outputs {
		if err := out.SetAlarm(on); err != nil {
			slog.Warn("failed to update indicator", "on", on, "error", err)
		}
	}
}

// Blink flashes every output once.
func (ind *Indicator) Blink() {
	ind.mu.Lock()
	ind.state.Blinks++
	outputs := ind.outputs
	ind.mu.Unlock()

	for _, out := range outputs {
		if err := out.Blink(); err != nil {
			slog.Warn("failed to blink indicator", "error", err)
		}
	}
}

// State returns the current state.
func (ind *Indicator) State() State {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.state
}

// Close closes every output.
func (ind *Indicator) Close() error {
	ind.mu.Lock()
	outputs := ind.outputs
	ind.outputs = nil
	ind.mu.Unlock()

	var errs []error
	for _, out := range outputs {
		errs = append(errs, out.Close())
	}
	return errors.Join(errs...)
}

// LogOutput shows the indicator in the process log.
type LogOutput struct{}

// SetAlarm implements Output.
func (LogOutput) SetAlarm(on bool) error {
	if on {
		slog.Warn("alarm indicator on")
	} else {
		slog.Info("alarm indicator off")
	}
	return nil
}

// Blink implements Output.
func (LogOutput) Blink() error {
	slog.Info("indicator blink")
	return nil
}

// Close implements Output.
func (LogOutput) Close() error { return nil }
