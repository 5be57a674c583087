package alarm

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestKalmanRecurrence(t *testing.T) {
	k := NewKalman(0.01, 0.01, 0.0005)

	if got := k.Update(0.5); !almostEqual(got, 0.25) {
		t.Fatalf("first estimate = %v, want 0.25", got)
	}
	if !almostEqual(k.EstimateNoise, 0.005125) {
		t.Fatalf("estimate noise = %v, want 0.005125", k.EstimateNoise)
	}

	gain := 0.005125 / (0.005125 + 0.01)
	want := 0.25 + gain*(0.5-0.25)
	if got := k.Update(0.5); !almostEqual(got, want) {
		t.Errorf("second estimate = %v, want %v", got, want)
	}
}

func TestConstantInputTriggersOnce(t *testing.T) {
	d := NewDetector(DefaultConfig())
	transitions := 0
	for i := range 1000 {
		dec := d.Update(0.5)
		if dec.Changed {
			transitions++
			if !dec.On {
				t.Fatalf("update %d: transition to off on constant 0.5", i)
			}
		}
	}
	if transitions != 1 {
		t.Errorf("transitions = %d, want 1", transitions)
	}
	if !d.On() {
		t.Error("detector should be on")
	}
}

func TestBelowThresholdNeverTriggers(t *testing.T) {
	d := NewDetector(DefaultConfig())
	for i := range 500 {
		if dec := d.Update(0.2); dec.Changed || dec.On {
			t.Fatalf("update %d: %+v", i, dec)
		}
	}
}

func TestOnThenOff(t *testing.T) {
	d := NewDetector(DefaultConfig())
	for range 50 {
		d.Update(0.9)
	}
	if !d.On() {
		t.Fatal("expected on after loud input")
	}

	offs := 0
	for range 5000 {
		dec := d.Update(0)
		if dec.Changed {
			offs++
			if dec.On {
				t.Fatal("unexpected transition to on")
			}
		}
	}
	if offs != 1 {
		t.Errorf("off transitions = %d, want 1", offs)
	}
}

func TestNaNIsSkipped(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.Update(0.5)
	before := d.Last()

	dec := d.Update(math.NaN())
	if !dec.Skipped || dec.Changed {
		t.Errorf("NaN decision = %+v", dec)
	}
	if dec.Estimate != before.Estimate {
		t.Errorf("estimate moved on NaN: %v -> %v", before.Estimate, dec.Estimate)
	}
	if d.Last() != before {
		t.Error("Last() changed on NaN")
	}
}

func TestEqualToThresholdIsOn(t *testing.T) {
	d := NewDetector(Config{Threshold: 0.25, MeasurementNoise: 0.01, EstimateNoise: 0.01, ProcessNoise: 0})
	dec := d.Update(0.5)
	if !dec.On || !dec.Changed {
		t.Errorf("estimate at threshold: %+v", dec)
	}
}

func TestSetThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.SetThreshold(0.8)
	if d.Threshold() != 0.8 {
		t.Fatalf("threshold = %v", d.Threshold())
	}
	for range 100 {
		if d.Update(0.5).On {
			t.Fatal("0.5 must not reach a 0.8 threshold")
		}
	}
}
