package indicator

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeOutput struct {
	states []bool
	blinks int
	err    error
	closed bool
}

func (f *fakeOutput) SetAlarm(on bool) error {
	f.states = append(f.states, on)
	return f.err
}

func (f *fakeOutput) Blink() error {
	f.blinks++
	return f.err
}

func (f *fakeOutput) Close() error {
	f.closed = true
	return f.err
}

func TestIndicatorFansOut(t *testing.T) {
	a := &fakeOutput{}
	b := &fakeOutput{err: errors.New("broken")}
	ind := New(a, b, LogOutput{})

	ind.Set(true)
	ind.Blink()
	ind.Set(false)

	for _, out := range []*fakeOutput{a, b} {
		if len(out.states) != 2 || !out.states[0] || out.states[1] || out.blinks != 1 {
			t.Errorf("output saw %v, %d blinks", out.states, out.blinks)
		}
	}
	st := ind.State()
	if st.On || st.Blinks != 1 || st.Outputs != 3 || st.Since.IsZero() {
		t.Errorf("state = %+v", st)
	}
	if err := ind.Close(); err == nil {
		t.Error("close error from output was lost")
	}
	if !a.closed || !b.closed {
		t.Error("outputs not closed")
	}
}

type doneToken struct{ err error }

func (d doneToken) Wait() bool                     { return true }
func (d doneToken) WaitTimeout(time.Duration) bool { return true }
func (d doneToken) Error() error                   { return d.err }

func (d doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  any
}

type fakePublisher struct {
	mu           sync.Mutex
	messages     []published
	disconnected bool
}

func (f *fakePublisher) Publish(topic string, _ byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, retained, payload})
	return doneToken{}
}

func (f *fakePublisher) Disconnect(uint) { f.disconnected = true }

func TestMQTTOutputPublishes(t *testing.T) {
	pub := &fakePublisher{}
	out := &MQTTOutput{client: pub, topic: "alarmwatch/studio"}

	if err := out.SetAlarm(true); err != nil {
		t.Fatal(err)
	}
	if err := out.Blink(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil || !pub.disconnected {
		t.Fatal("not disconnected")
	}

	if len(pub.messages) != 2 {
		t.Fatalf("messages = %+v", pub.messages)
	}
	state := pub.messages[0]
	if state.topic != "alarmwatch/studio" || !state.retained {
		t.Errorf("state message = %+v", state)
	}
	var p statePayload
	if err := json.Unmarshal(state.payload.([]byte), &p); err != nil {
		t.Fatal(err)
	}
	if !p.Alarm || p.State != "on" || p.Time == "" {
		t.Errorf("payload = %+v", p)
	}
	if blink := pub.messages[1]; blink.topic != "alarmwatch/studio/blink" || blink.retained {
		t.Errorf("blink message = %+v", blink)
	}
}

func TestStatePayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	p := newStatePayload(false, at)
	if p.Alarm || p.State != "off" || p.Time != "2026-03-01T11:00:00Z" {
		t.Errorf("payload = %+v", p)
	}
}
