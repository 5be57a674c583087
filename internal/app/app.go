// Package app wires the detector into three actors: audio runs the
// spectrogram and classifier, app owns the alarm decision and the indicator,
// and net drives the alert client from a periodic tick.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/actor"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/alarm"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/dsp"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/notify"
)

// Actor names.
const (
	AudioActor = "audio"
	AppActor   = "app"
	NetActor   = "net"
)

// DefaultTickInterval drives the alert client.
const DefaultTickInterval = time.Second

// Classifier runs the model on the spectrogram written into its input tensor.
type Classifier interface {
	dsp.Model
	Init() error
	Infer() float32
}

// Spectrogram is the fixed-point front end.
type Spectrogram interface {
	Init(model dsp.Model) error
	UpdateSpectrum(raw []int16) error
}

// FrameSource hands captured frames to the audio actor.
type FrameSource interface {
	Notify() <-chan struct{}
	Acquire(dst []int16) (source int, ok bool)
	FrameLen() int
}

// Indicator shows the alarm state.
type Indicator interface {
	Set(on bool)
	Blink()
}

// AlertSender delivers alert texts.
type AlertSender interface {
	Send(text string)
	Update()
	Status() notify.Status
	SetStateCallback(fn notify.StateFunc)
}

// Recorder stores time series.
type Recorder interface {
	RecordInference(measurement, estimate float64, alarm bool, at time.Time)
	RecordAlert(report string, at time.Time)
}

// EvidenceTrigger starts an audio clip on alarm onset.
type EvidenceTrigger interface {
	OnAlarm()
}

// EventLog records transitions.
type EventLog interface {
	LogAlarm(on bool, measurement, estimate, threshold float64) error
	LogAlert(sent bool, text string, status int) error
	LogLink(up bool, iface, flags string) error
	LogMessage(eventType eventlog.EventType, msg string) error
}

// Config holds the actor settings.
type Config struct {
	MailboxSize  int
	TickInterval time.Duration
	TextOn       string
	TextOff      string
}

// Deps are the components the actors drive. Frames, Model, Spectrogram,
// Detector and Alert are required; the rest may be nil.
type Deps struct {
	Frames      FrameSource
	Model       Classifier
	Spectrogram Spectrogram
	Detector    *alarm.Detector
	Alert       AlertSender
	Indicator   Indicator
	Metrics     Recorder
	Evidence    EvidenceTrigger
	Events      EventLog
}

// Status is a point-in-time view for the status API.
type Status struct {
	Alarm          AlarmStatus   `json:"alarm"`
	AudioActive    bool          `json:"audio_active"`
	LinkUp         bool          `json:"link_up"`
	Inferences     uint64        `json:"inferences"`
	Overflows      uint64        `json:"overflows"`
	BadFrames      uint64        `json:"bad_frames"`
	AlertBusy      bool          `json:"alert_busy"`
	Alert          notify.Status `json:"alert"`
	Actors         []actor.Stats `json:"actors"`
	Uptime         string        `json:"uptime,omitempty"`
	StartedAt      time.Time     `json:"started_at,omitzero"`
	LastInterrupts string        `json:"last_interrupts"`
}

// AlarmStatus is the detector state.
type AlarmStatus struct {
	On          bool    `json:"on"`
	Measurement float64 `json:"measurement"`
	Estimate    float64 `json:"estimate"`
	Threshold   float64 `json:"threshold"`
}

// App owns the actor system.
type App struct {
	cfg  Config
	deps Deps

	system *actor.System
	audio  *actor.Actor
	app    *actor.Actor
	net    *actor.Actor

	// audio actor state
	frame []int16

	alertBusy  atomic.Bool
	linkUp     atomic.Bool
	linkIface  atomic.Pointer[string]
	inferences atomic.Uint64
	overflows  atomic.Uint64
	badFrames  atomic.Uint64
	lastIRQ    atomic.Uint32
	startedAt  time.Time
}

// New builds the three actors. Nothing runs until Start.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Frames == nil || deps.Model == nil || deps.Spectrogram == nil || deps.Detector == nil || deps.Alert == nil {
		return nil, errors.New("app: missing required dependency")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TextOn == "" {
		cfg.TextOn = notify.TextAlarmOn
	}
	if cfg.TextOff == "" {
		cfg.TextOff = notify.TextAlarmOff
	}

	a := &App{
		cfg:       cfg,
		deps:      deps,
		frame:     make([]int16, deps.Frames.FrameLen()),
		startedAt: time.Now(),
	}

	a.audio = actor.New(AudioActor,
		actor.WithMailboxSize(cfg.MailboxSize),
		actor.WithLockedThread(),
		actor.WithManualStart(),
		actor.WithSetup(a.setupAudio),
		actor.WithSignal(deps.Frames.Notify(), a.onFrame),
	)
	a.app = actor.New(AppActor, actor.WithMailboxSize(cfg.MailboxSize))
	a.net = actor.New(NetActor, actor.WithMailboxSize(cfg.MailboxSize))

	a.app.Handle(events.EventApp, a.handleApp)
	a.net.Handle(events.EventSystem, a.handleNetSystem)
	a.net.Handle(events.EventApp, a.handleNetApp)
	a.net.Every(cfg.TickInterval, events.System(events.SysSoftwareTimer, 0, events.Timer1Hz))

	deps.Alert.SetStateCallback(a.onAlertState)

	system, err := actor.NewSystem(a.audio, a.app, a.net)
	if err != nil {
		return nil, err
	}
	a.system = system
	return a, nil
}

// Start launches the app and net actors. The audio actor starts on the first link up.
func (a *App) Start(ctx context.Context) {
	a.system.Start(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-a.audio.Done():
			a.logTerminated(AudioActor, a.audio.Err())
		}
	}()
}

// Wait blocks until all started actors have exited.
func (a *App) Wait() {
	a.system.Wait()
}

// LinkChanged reports a link transition to the app actor.
func (a *App) LinkChanged(up bool, iface string) {
	a.linkUp.Store(up)
	a.linkIface.Store(&iface)
	trigger := events.AppLinkDown
	if up {
		trigger = events.AppLinkUp
	}
	if err := a.app.Post(events.App(trigger, 0, 0)); err != nil {
		slog.Warn("failed to post link change", "up", up, "interface", iface, "error", err)
	}
}

// Diagnostics forwards a packed interrupt word to the net actor.
func (a *App) Diagnostics(word uint32) {
	if err := a.net.Post(events.System(events.SysEthIf, 0, word)); err != nil {
		slog.Debug("failed to post link diagnostics", "error", err)
	}
}

// SendTestAlert delivers text outside the alarm flow.
func (a *App) SendTestAlert(text string) {
	a.deps.Alert.Send(text)
}

// SetThreshold changes the detector threshold.
func (a *App) SetThreshold(threshold float64) {
	a.deps.Detector.SetThreshold(threshold)
}

// Status returns a snapshot for the status API.
func (a *App) Status() Status {
	last := a.deps.Detector.Last()
	s := Status{
		Alarm: AlarmStatus{
			On:          a.deps.Detector.On(),
			Measurement: last.Measurement,
			Estimate:    last.Estimate,
			Threshold:   a.deps.Detector.Threshold(),
		},
		AudioActive:    a.audio.State() == actor.StateRunning,
		LinkUp:         a.linkUp.Load(),
		Inferences:     a.inferences.Load(),
		Overflows:      a.overflows.Load(),
		BadFrames:      a.badFrames.Load(),
		AlertBusy:      a.alertBusy.Load(),
		Alert:          a.deps.Alert.Status(),
		Actors:         a.system.Stats(),
		StartedAt:      a.startedAt,
		LastInterrupts: events.DecodeInterrupts(a.lastIRQ.Load()).String(),
	}
	s.Uptime = time.Since(a.startedAt).Truncate(time.Second).String()
	return s
}
