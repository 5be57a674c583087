package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/notify"
)

func (a *App) handleNetSystem(_ context.Context, msg events.Message) {
	switch msg.SystemTrigger() {
	case events.SysSoftwareTimer:
		if msg.LParam == events.Timer1Hz {
			a.deps.Alert.Update()
		}
	case events.SysEthIf:
		a.lastIRQ.Store(msg.LParam)
		flags := events.DecodeInterrupts(msg.LParam)
		slog.Debug("link interrupt", "flags", flags.String(), "word", msg.LParam)
	default:
		slog.Warn("unsupported system trigger", "actor", NetActor, "trigger", msg.SystemTrigger())
	}
}

func (a *App) handleNetApp(_ context.Context, msg events.Message) {
	switch msg.AppTrigger() {
	case events.AppInference:
		a.onAlarmState(msg.InferenceState())
	case events.AppAlertState:
		a.onAlertReport(notify.MessageState(msg.UParam))
	default:
		slog.Warn("unsupported app trigger", "actor", NetActor, "trigger", msg.AppTrigger())
	}
}

// onAlarmState turns an alarm transition into an alert text.
func (a *App) onAlarmState(state events.InferenceState) {
	var text string
	switch state {
	case events.InferenceAlarmOn:
		text = a.cfg.TextOn
	case events.InferenceAlarmOff:
		text = a.cfg.TextOff
	default:
		slog.Warn("no alert for inference state", "state", state)
		return
	}
	if a.alertBusy.Load() {
		slog.Info("alert in flight, latest text will follow", "text", text)
	}
	a.deps.Alert.Send(text)
}

// onAlertState is the client callback. It runs on whichever goroutine
// called Send or Update and only posts the report.
func (a *App) onAlertState(state notify.MessageState) {
	if err := a.net.Post(events.App(events.AppAlertState, uint32(state), 0)); err != nil {
		slog.Warn("failed to post alert state", "state", state, "error", err)
	}
}

func (a *App) onAlertReport(state notify.MessageState) {
	now := time.Now()
	switch state {
	case notify.MessageSending:
		a.alertBusy.Store(true)
		slog.Info("sending alert")
		return
	case notify.MessageSentSuccess, notify.MessageSentFail:
		a.alertBusy.Store(false)
	default:
		slog.Warn("unknown alert state", "state", state)
		return
	}

	st := a.deps.Alert.Status()
	sent := state == notify.MessageSentSuccess
	if sent {
		slog.Info("alert delivered", "text", st.LastText)
	} else {
		slog.Warn("alert delivery failed", "text", st.LastText, "status", st.LastStatus)
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordAlert(state.String(), now)
	}
	if a.deps.Events != nil {
		if err := a.deps.Events.LogAlert(sent, st.LastText, st.LastStatus); err != nil {
			slog.Warn("failed to log alert", "error", err)
		}
	}
}
