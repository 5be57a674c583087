package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
)

// setupAudio prepares the classifier and the front end. A failure terminates
// the audio actor only; the app and net actors keep running.
func (a *App) setupAudio(_ context.Context) error {
	if err := a.deps.Model.Init(); err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	if err := a.deps.Spectrogram.Init(a.deps.Model); err != nil {
		return fmt.Errorf("failed to initialize spectrogram: %w", err)
	}
	slog.Info("audio pipeline ready",
		"input_width", a.deps.Model.InputWidth(),
		"input_height", a.deps.Model.InputHeight(),
		"frame_len", len(a.frame))
	return nil
}

// onFrame runs once per hand-off notification: spectrogram update, inference
// and a copy of the prediction to the app actor.
func (a *App) onFrame(_ context.Context) {
	source, ok := a.deps.Frames.Acquire(a.frame)
	if !ok {
		return
	}

	if err := a.deps.Spectrogram.UpdateSpectrum(a.frame); err != nil {
		a.badFrames.Add(1)
		slog.Warn("failed to update spectrum", "source", source, "error", err)
		return
	}

	p := a.deps.Model.Infer()
	a.inferences.Add(1)
	slog.Debug("inference", "source", source, "prediction", p)

	if err := a.app.Post(events.Inference(p)); err != nil {
		a.overflows.Add(1)
		slog.Debug("dropping inference result", "error", err)
	}
}
