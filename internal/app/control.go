package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
)

func (a *App) handleApp(ctx context.Context, msg events.Message) {
	switch msg.AppTrigger() {
	case events.AppLinkUp:
		a.onLinkUp(ctx)
	case events.AppLinkDown:
		slog.Warn("network link down")
		a.logLink(false)
	case events.AppInference:
		a.onInference(msg.Probability())
	default:
		slog.Warn("unsupported app trigger", "actor", AppActor, "trigger", msg.AppTrigger())
	}
}

// onLinkUp starts the audio pipeline on the first link up. Later link ups
// only blink the indicator.
func (a *App) onLinkUp(ctx context.Context) {
	slog.Info("network link up")
	a.logLink(true)
	if a.deps.Indicator != nil {
		a.deps.Indicator.Blink()
	}
	if a.audio.Start(ctx) {
		slog.Info("audio actor started")
	}
}

func (a *App) logLink(up bool) {
	if a.deps.Events == nil {
		return
	}
	var iface string
	if p := a.linkIface.Load(); p != nil {
		iface = *p
	}
	if err := a.deps.Events.LogLink(up, iface, ""); err != nil {
		slog.Warn("failed to log link change", "error", err)
	}
}

// onInference feeds the detector and reports transitions exactly once.
func (a *App) onInference(p float32) {
	now := time.Now()
	dec := a.deps.Detector.Update(float64(p))
	if dec.Skipped {
		slog.Debug("skipping invalid prediction")
		return
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordInference(dec.Measurement, dec.Estimate, dec.On, now)
	}
	if !dec.Changed {
		return
	}

	state := events.InferenceAlarmOff
	if dec.On {
		state = events.InferenceAlarmOn
	}
	slog.Info("alarm state changed", "state", state, "measurement", dec.Measurement, "estimate", dec.Estimate)

	if a.deps.Indicator != nil {
		a.deps.Indicator.Set(dec.On)
	}
	if err := a.net.Post(events.AlarmState(state)); err != nil {
		slog.Error("failed to post alarm state", "state", state, "error", err)
	}
	if dec.On && a.deps.Evidence != nil {
		a.deps.Evidence.OnAlarm()
	}
	if a.deps.Events != nil {
		if err := a.deps.Events.LogAlarm(dec.On, dec.Measurement, dec.Estimate, a.deps.Detector.Threshold()); err != nil {
			slog.Warn("failed to log alarm", "error", err)
		}
	}
}

// logTerminated records an actor that stopped itself.
func (a *App) logTerminated(name string, err error) {
	if a.deps.Events == nil || err == nil {
		return
	}
	if lerr := a.deps.Events.LogMessage(eventlog.ActorTerminated, err.Error()); lerr != nil {
		slog.Warn("failed to log actor termination", "actor", name, "error", lerr)
	}
}
