package app

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/actor"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/alarm"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/dsp"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/inference"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/notify"
)

const waitTimeout = 2 * time.Second

type fakeFrames struct {
	ch chan struct{}
}

func newFakeFrames() *fakeFrames { return &fakeFrames{ch: make(chan struct{}, 1)} }

func (f *fakeFrames) Notify() <-chan struct{} { return f.ch }
func (f *fakeFrames) FrameLen() int           { return dsp.DefaultFrameLen }

func (f *fakeFrames) Acquire(dst []int16) (int, bool) {
	clear(dst)
	return 0, true
}

func (f *fakeFrames) push() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

type fakeModel struct {
	initErr    error
	prediction atomic.Uint32
}

func (m *fakeModel) set(p float32)         { m.prediction.Store(math.Float32bits(p)) }
func (m *fakeModel) Init() error           { return m.initErr }
func (m *fakeModel) Infer() float32        { return math.Float32frombits(m.prediction.Load()) }
func (m *fakeModel) InputData() []int8     { return nil }
func (m *fakeModel) InputWidth() int       { return dsp.DefaultWidth }
func (m *fakeModel) InputHeight() int      { return dsp.DefaultHeight }
func (m *fakeModel) InputScale() float32   { return 1 }
func (m *fakeModel) InputZeroPoint() int32 { return 0 }

type fakeSpectrogram struct {
	updateErr error
}

func (s *fakeSpectrogram) Init(dsp.Model) error             { return nil }
func (s *fakeSpectrogram) UpdateSpectrum(raw []int16) error { return s.updateErr }

// fakeAlert completes every delivery on the next Update.
type fakeAlert struct {
	mu       sync.Mutex
	fn       notify.StateFunc
	sent     []string
	updates  int
	inflight bool
	fail     bool
}

func (a *fakeAlert) SetStateCallback(fn notify.StateFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fn = fn
}

func (a *fakeAlert) Send(text string) {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.inflight = true
	fn := a.fn
	a.mu.Unlock()
	fn(notify.MessageSending)
}

func (a *fakeAlert) Update() {
	a.mu.Lock()
	a.updates++
	done := a.inflight
	a.inflight = false
	fn, fail := a.fn, a.fail
	a.mu.Unlock()
	if !done {
		return
	}
	if fail {
		fn(notify.MessageSentFail)
	} else {
		fn(notify.MessageSentSuccess)
	}
}

func (a *fakeAlert) Status() notify.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	var s notify.Status
	if n := len(a.sent); n > 0 {
		s.LastText = a.sent[n-1]
	}
	if a.fail {
		s.LastStatus = 500
	} else {
		s.LastStatus = 200
	}
	return s
}

func (a *fakeAlert) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.sent)
}

func (a *fakeAlert) updateCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updates
}

type fakeIndicator struct {
	mu     sync.Mutex
	states []bool
	blinks int
}

func (i *fakeIndicator) Set(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.states = append(i.states, on)
}

func (i *fakeIndicator) Blink() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.blinks++
}

func (i *fakeIndicator) snapshot() ([]bool, int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.states), i.blinks
}

type fakeEvidence struct{ onsets atomic.Int32 }

func (e *fakeEvidence) OnAlarm() { e.onsets.Add(1) }

type fakeEvents struct {
	mu    sync.Mutex
	types []eventlog.EventType
}

func (e *fakeEvents) add(t eventlog.EventType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, t)
	return nil
}

func (e *fakeEvents) LogAlarm(on bool, _, _, _ float64) error {
	if on {
		return e.add(eventlog.AlarmOn)
	}
	return e.add(eventlog.AlarmOff)
}

func (e *fakeEvents) LogAlert(sent bool, _ string, _ int) error {
	if sent {
		return e.add(eventlog.AlertSent)
	}
	return e.add(eventlog.AlertFailed)
}

func (e *fakeEvents) LogLink(up bool, _, _ string) error {
	if up {
		return e.add(eventlog.LinkUp)
	}
	return e.add(eventlog.LinkDown)
}

func (e *fakeEvents) LogMessage(t eventlog.EventType, _ string) error { return e.add(t) }

func (e *fakeEvents) has(t eventlog.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.types, t)
}

func (e *fakeEvents) count(t eventlog.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, got := range e.types {
		if got == t {
			n++
		}
	}
	return n
}

type harness struct {
	app       *App
	frames    *fakeFrames
	model     Classifier
	alert     *fakeAlert
	indicator *fakeIndicator
	evidence  *fakeEvidence
	events    *fakeEvents
}

func newHarness(t *testing.T, model Classifier, spec *fakeSpectrogram) *harness {
	t.Helper()
	h := &harness{
		frames:    newFakeFrames(),
		model:     model,
		alert:     &fakeAlert{},
		indicator: &fakeIndicator{},
		evidence:  &fakeEvidence{},
		events:    &fakeEvents{},
	}
	// A large process noise keeps the estimate responsive in both directions.
	detector := alarm.NewDetector(alarm.Config{
		Threshold:        0.3,
		MeasurementNoise: 0.01,
		EstimateNoise:    0.01,
		ProcessNoise:     1,
	})
	a, err := New(Config{TickInterval: 5 * time.Millisecond, MailboxSize: 16}, Deps{
		Frames:      h.frames,
		Model:       model,
		Spectrogram: spec,
		Detector:    detector,
		Alert:       h.alert,
		Indicator:   h.indicator,
		Evidence:    h.evidence,
		Events:      h.events,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		a.Wait()
	})
	a.Start(ctx)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("New accepted empty deps")
	}
}

func TestAudioStartsOnFirstLinkUp(t *testing.T) {
	h := newHarness(t, &fakeModel{}, &fakeSpectrogram{})

	time.Sleep(20 * time.Millisecond)
	if h.app.Status().AudioActive {
		t.Fatal("audio actor running before link up")
	}

	h.app.LinkChanged(true, "eth0")
	waitFor(t, "audio actor", func() bool { return h.app.Status().AudioActive })

	h.app.LinkChanged(false, "eth0")
	h.app.LinkChanged(true, "eth0")
	waitFor(t, "second blink", func() bool {
		_, blinks := h.indicator.snapshot()
		return blinks == 2
	})
	if !h.events.has(eventlog.LinkDown) || h.events.count(eventlog.LinkUp) != 2 {
		t.Errorf("link events: down %v, up %d", h.events.has(eventlog.LinkDown), h.events.count(eventlog.LinkUp))
	}
	if !h.app.Status().LinkUp {
		t.Error("status reports link down")
	}
}

func TestAlarmTransitionsSendOneAlertEach(t *testing.T) {
	model := &fakeModel{}
	model.set(1)
	h := newHarness(t, model, &fakeSpectrogram{})
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "alarm on alert", func() bool {
		h.frames.push()
		return len(h.alert.texts()) >= 1
	})
	// Keep feeding the same prediction; no further alerts may follow.
	for range 20 {
		h.frames.push()
		time.Sleep(time.Millisecond)
	}
	if got := h.alert.texts(); !slices.Equal(got, []string{notify.TextAlarmOn}) {
		t.Fatalf("alerts = %q, want one alarm-on", got)
	}

	model.set(0)
	waitFor(t, "alarm off alert", func() bool {
		h.frames.push()
		return len(h.alert.texts()) >= 2
	})
	if got := h.alert.texts(); !slices.Equal(got, []string{notify.TextAlarmOn, notify.TextAlarmOff}) {
		t.Errorf("alerts = %q", got)
	}

	states, _ := h.indicator.snapshot()
	if !slices.Equal(states, []bool{true, false}) {
		t.Errorf("indicator states = %v", states)
	}
	if got := h.evidence.onsets.Load(); got != 1 {
		t.Errorf("evidence onsets = %d, want 1", got)
	}
	waitFor(t, "alert log", func() bool { return h.events.count(eventlog.AlertSent) == 2 })
	waitFor(t, "alarm log", func() bool {
		return h.events.count(eventlog.AlarmOn) == 1 && h.events.count(eventlog.AlarmOff) == 1
	})
	waitFor(t, "alert idle", func() bool { return !h.app.Status().AlertBusy })
}

func TestFailedAlertIsLogged(t *testing.T) {
	model := &fakeModel{}
	model.set(1)
	h := newHarness(t, model, &fakeSpectrogram{})
	h.alert.mu.Lock()
	h.alert.fail = true
	h.alert.mu.Unlock()
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "failed alert", func() bool {
		h.frames.push()
		return h.events.has(eventlog.AlertFailed)
	})
	if h.app.Status().AlertBusy {
		t.Error("client still busy after failure")
	}
}

func TestNaNPredictionIsSkipped(t *testing.T) {
	model := &fakeModel{}
	model.set(float32(math.NaN()))
	h := newHarness(t, model, &fakeSpectrogram{})
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "inferences", func() bool {
		h.frames.push()
		return h.app.Status().Inferences >= 10
	})
	time.Sleep(20 * time.Millisecond)
	if got := h.alert.texts(); len(got) != 0 {
		t.Errorf("alerts sent for NaN predictions: %q", got)
	}
	if st := h.app.Status(); st.Alarm.On || st.Alarm.Estimate != 0 {
		t.Errorf("alarm status = %+v", st.Alarm)
	}
}

func TestBadFramesAreCounted(t *testing.T) {
	model := &fakeModel{}
	model.set(1)
	h := newHarness(t, model, &fakeSpectrogram{updateErr: dsp.ErrLength})
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "bad frames", func() bool {
		h.frames.push()
		return h.app.Status().BadFrames >= 3
	})
	if st := h.app.Status(); st.Inferences != 0 {
		t.Errorf("inferences = %d after rejected frames", st.Inferences)
	}
}

func TestSetupFailureTerminatesAudioOnly(t *testing.T) {
	h := newHarness(t, &fakeModel{initErr: errors.New("no tensors")}, &fakeSpectrogram{})
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "termination", func() bool { return h.events.has(eventlog.ActorTerminated) })

	var audioState actor.State
	for _, st := range h.app.Status().Actors {
		if st.Name == AudioActor {
			audioState = st.State
		}
	}
	if audioState != actor.StateTerminated {
		t.Errorf("audio state = %s, want terminated", audioState)
	}

	before := h.alert.updateCount()
	waitFor(t, "net ticks", func() bool { return h.alert.updateCount() > before+2 })
}

func TestMissingModelFileTerminatesAudioOnly(t *testing.T) {
	model := inference.OpenModel(filepath.Join(t.TempDir(), "missing.json"))
	h := newHarness(t, model, &fakeSpectrogram{})
	h.app.LinkChanged(true, "eth0")

	waitFor(t, "termination", func() bool { return h.events.has(eventlog.ActorTerminated) })

	states := map[string]actor.State{}
	for _, st := range h.app.Status().Actors {
		states[st.Name] = st.State
	}
	if states[AudioActor] != actor.StateTerminated {
		t.Errorf("audio state = %s, want terminated", states[AudioActor])
	}
	if states[AppActor] != actor.StateRunning || states[NetActor] != actor.StateRunning {
		t.Errorf("app/net states = %s/%s, want running", states[AppActor], states[NetActor])
	}

	h.app.SendTestAlert("still alive")
	waitFor(t, "alert after audio failure", func() bool { return h.events.has(eventlog.AlertSent) })
}

func TestDiagnosticsAreDecoded(t *testing.T) {
	h := newHarness(t, &fakeModel{}, &fakeSpectrogram{})
	h.app.Diagnostics(events.Interrupts{Unreachable: true, Timeout: true}.Pack())
	waitFor(t, "interrupt status", func() bool {
		return h.app.Status().LastInterrupts == "unreachable|timeout"
	})
}

func TestTestAlertAndThreshold(t *testing.T) {
	h := newHarness(t, &fakeModel{}, &fakeSpectrogram{})
	h.app.SendTestAlert("test alert")
	waitFor(t, "test alert", func() bool { return h.events.has(eventlog.AlertSent) })
	if got := h.alert.texts(); !slices.Equal(got, []string{"test alert"}) {
		t.Errorf("alerts = %q", got)
	}

	h.app.SetThreshold(0.7)
	if got := h.app.Status().Alarm.Threshold; got != 0.7 {
		t.Errorf("threshold = %g", got)
	}
}
