package events

import (
	"math"
	"testing"
)

func TestFloatReinterpretation(t *testing.T) {
	tests := []float32{0, 0.3, 0.5, 1, -1, float32(math.Inf(1)), math.SmallestNonzeroFloat32}
	for _, f := range tests {
		msg := Inference(f)
		if msg.Event != EventApp || msg.AppTrigger() != AppInference {
			t.Fatalf("Inference(%v) = %+v, want app/inference", f, msg)
		}
		if got := msg.Probability(); got != f {
			t.Errorf("Probability() = %v, want %v", got, f)
		}
	}

	nan := Inference(float32(math.NaN()))
	if !math.IsNaN(float64(nan.Probability())) {
		t.Errorf("NaN did not survive reinterpretation")
	}
}

func TestAlarmStateMessage(t *testing.T) {
	msg := AlarmState(InferenceAlarmOn)
	if msg.AppTrigger() != AppInference {
		t.Fatalf("trigger = %v, want inference", msg.AppTrigger())
	}
	if msg.InferenceState() != InferenceAlarmOn {
		t.Errorf("state = %v, want alarm_on", msg.InferenceState())
	}
	if msg.LParam != 0 {
		t.Errorf("LParam = %d, want 0", msg.LParam)
	}
}

func TestDecodeInterrupts(t *testing.T) {
	tests := []struct {
		name     string
		ir       uint8
		ir2      uint8
		slir     uint8
		want     Interrupts
		wantText string
	}{
		{"none", 0, 0, 0, Interrupts{}, "none"},
		{"conflict", 0x80, 0, 0, Interrupts{Conflict: true}, "conflict"},
		{"unreachable and ppp", 0x60, 0, 0, Interrupts{Unreachable: true, PPPTerminated: true}, "unreachable|ppp_terminated"},
		{"wol", 0, 0x01, 0, Interrupts{WakeOnLAN: true}, "wol"},
		{"slir all", 0, 0, 0x07, Interrupts{Timeout: true, ARP: true, Ping: true}, "timeout|arp|ping"},
		{"unrelated bits", 0x1F, 0xFE, 0xF8, Interrupts{}, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeInterrupts(PackInterrupts(tt.ir, tt.ir2, tt.slir))
			if got != tt.want {
				t.Errorf("DecodeInterrupts() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.wantText {
				t.Errorf("String() = %q, want %q", got.String(), tt.wantText)
			}
			if got.Any() != (tt.want != Interrupts{}) {
				t.Errorf("Any() = %v", got.Any())
			}
		})
	}
}

func TestTriggerNames(t *testing.T) {
	if SysEthIf.String() != "eth_if" {
		t.Errorf("SysEthIf = %q", SysEthIf.String())
	}
	if AppTrigger(42).String() != "app_trigger(42)" {
		t.Errorf("unknown trigger = %q", AppTrigger(42).String())
	}
	if EventID(7).String() != "event(7)" {
		t.Errorf("unknown event = %q", EventID(7).String())
	}
}

func TestInterruptsPackRoundTrip(t *testing.T) {
	for _, word := range []uint32{0, 0x80, 0x40 | 0x01<<8, 0x07 << 16, PackInterrupts(0xE0, 0x01, 0x07)} {
		if got := DecodeInterrupts(word).Pack(); got != word {
			t.Errorf("Pack(Decode(%#x)) = %#x", word, got)
		}
	}
}
