package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"regexp"
	"runtime"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestHandoffPublishAcquire(t *testing.T) {
	h := NewHandoff(4)
	dst := make([]int16, 4)

	if _, ok := h.Acquire(dst); ok {
		t.Fatal("acquired from empty hand-off")
	}
	if err := h.Publish([]int16{1, 2, 3}); err != ErrFrameLength {
		t.Fatalf("short frame: err = %v, want ErrFrameLength", err)
	}

	if err := h.Publish([]int16{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	first := h.Source()
	select {
	case <-h.Notify():
	default:
		t.Fatal("no notification after publish")
	}
	src, ok := h.Acquire(dst)
	if !ok || src != first || !slices.Equal(dst, []int16{1, 2, 3, 4}) {
		t.Fatalf("acquire = %d %v %v", src, ok, dst)
	}
	if _, ok := h.Acquire(dst); ok {
		t.Error("same frame acquired twice")
	}

	if err := h.Publish([]int16{5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}
	if h.Source() == first {
		t.Error("buffers did not swap")
	}
}

func TestHandoffOverrunKeepsNewest(t *testing.T) {
	h := NewHandoff(2)
	for i := range int16(5) {
		if err := h.Publish([]int16{i, i}); err != nil {
			t.Fatal(err)
		}
	}
	dst := make([]int16, 2)
	if _, ok := h.Acquire(dst); !ok || dst[0] != 4 {
		t.Fatalf("acquired %v, want newest frame", dst)
	}
	st := h.Stats()
	if st.Published != 5 || st.Consumed != 1 || st.Overruns != 4 {
		t.Errorf("stats = %+v", st)
	}
}

func TestApplyGain(t *testing.T) {
	tests := []struct {
		in   int16
		gain int
		want int16
	}{
		{100, 0, 100},
		{100, 2, 400},
		{-100, 3, -800},
		{20000, 1, 32767},
		{-20000, 1, -32768},
		{1, 30, 32767},
	}
	for _, tt := range tests {
		s := []int16{tt.in}
		ApplyGain(s, tt.gain)
		if s[0] != tt.want {
			t.Errorf("ApplyGain(%d, %d) = %d, want %d", tt.in, tt.gain, s[0], tt.want)
		}
	}
}

func TestReadFrames(t *testing.T) {
	var raw bytes.Buffer
	for i := range 10 {
		_ = binary.Write(&raw, binary.LittleEndian, int16(i-5))
	}
	raw.WriteByte(0x7f) // trailing partial sample

	var frames [][]int16
	s := NewSource(SourceConfig{FrameLen: 4, Gain: 1}, func(f []int16) {
		frames = append(frames, slices.Clone(f))
	})
	if err := s.ReadFrames(&raw); err != nil {
		t.Fatal(err)
	}

	want := [][]int16{{-10, -8, -6, -4}, {-2, 0, 2, 4}}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i := range want {
		if !slices.Equal(frames[i], want[i]) {
			t.Errorf("frame %d = %v, want %v", i, frames[i], want[i])
		}
	}
	if s.Status().Frames != 2 {
		t.Errorf("frames counter = %d", s.Status().Frames)
	}
}

func TestSourceRunDeliversFrames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var frames atomic.Int32
	s := NewSource(SourceConfig{
		FrameLen: 512,
		Command:  []string{"sh", "-c", "head -c 4096 /dev/zero"},
	}, func(f []int16) {
		if frames.Add(1) == 4 {
			cancel()
		}
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if frames.Load() != 4 {
		t.Errorf("frames = %d, want 4", frames.Load())
	}
	if s.Status().State != SourceStopped {
		t.Errorf("state = %s", s.Status().State)
	}
}

func TestCalculateLevels(t *testing.T) {
	var d LevelData
	if rms, peak := CalculateLevels(&d); rms != MinDB || peak != MinDB {
		t.Errorf("empty = %v %v", rms, peak)
	}

	d.Add([]int16{32767, -32768, 32767, -32768})
	rms, peak := CalculateLevels(&d)
	if rms < -0.01 || peak < -0.01 {
		t.Errorf("full scale = %v %v, want about 0 dB", rms, peak)
	}
	if d.ClipCount != 4 {
		t.Errorf("clips = %d", d.ClipCount)
	}
}

func TestSilenceDetector(t *testing.T) {
	cfg := SilenceConfig{Threshold: -40, DurationMs: 1000, RecoveryMs: 500}
	d := NewSilenceDetector()
	t0 := time.Unix(0, 0)

	steps := []struct {
		at        time.Duration
		db        float64
		inSilence bool
		entered   bool
		recovered bool
	}{
		{0, -50, false, false, false},
		{500 * time.Millisecond, -50, false, false, false},
		{1000 * time.Millisecond, -50, true, true, false},
		{1500 * time.Millisecond, -50, true, false, false},
		{1600 * time.Millisecond, -20, true, false, false},
		{1800 * time.Millisecond, -20, true, false, false},
		{2100 * time.Millisecond, -20, false, false, true},
		{2200 * time.Millisecond, -20, false, false, false},
	}
	for i, s := range steps {
		ev := d.Update(s.db, cfg, t0.Add(s.at))
		if ev.InSilence != s.inSilence || ev.JustEntered != s.entered || ev.JustRecovered != s.recovered {
			t.Errorf("step %d: %+v", i, ev)
		}
		if s.recovered && ev.TotalDurationMs != 1500 {
			t.Errorf("step %d: total = %d, want 1500", i, ev.TotalDurationMs)
		}
	}
}

func TestMeterReportsSilenceTransitions(t *testing.T) {
	var got []SilenceEvent
	m := NewMeter(SilenceConfig{Threshold: -40}, func(ev SilenceEvent) {
		got = append(got, ev)
	})

	quiet := make([]int16, LevelUpdateSamples)
	loud := make([]int16, LevelUpdateSamples)
	for i := range loud {
		loud[i] = 16000
	}

	t0 := time.Unix(0, 0)
	m.process(quiet[:LevelUpdateSamples/2], t0)
	if len(got) != 0 {
		t.Fatal("measured before a full period")
	}
	m.process(quiet[:LevelUpdateSamples/2], t0)
	if len(got) != 1 || !got[0].JustEntered || !m.Levels().Silence {
		t.Fatalf("after quiet: %+v levels %+v", got, m.Levels())
	}
	m.process(loud, t0.Add(time.Second))
	if len(got) != 2 || !got[1].JustRecovered {
		t.Fatalf("after loud: %+v", got)
	}
	if lv := m.Levels(); lv.Silence || lv.RMS < -7 {
		t.Errorf("levels = %+v", lv)
	}
}

func TestListingParse(t *testing.T) {
	output := `**** List of CAPTURE Hardware Devices ****
card 1: sndrpihifiberry [snd_rpi_hifiberry_dacplusadc], device 0: HiFiBerry
card 2: Device [USB Audio Device], device 0: USB Audio`
	l := listing{
		pattern: regexp.MustCompile(`card\s+\d+:\s+(\w+)\s+\[([^\]]+)\]`),
		device: func(m []string) (Device, bool) {
			return Device{ID: "plughw:CARD=" + m[1], Name: m[2]}, true
		},
	}
	want := []Device{
		{ID: "plughw:CARD=sndrpihifiberry", Name: "snd_rpi_hifiberry_dacplusadc"},
		{ID: "plughw:CARD=Device", Name: "USB Audio Device"},
	}
	if got := l.parse(output); !slices.Equal(got, want) {
		t.Errorf("devices = %+v", got)
	}

	l.begin, l.end = "audio devices:", "video devices:"
	if got := l.parse(output); len(got) != 0 {
		t.Errorf("devices outside the audio section: %+v", got)
	}

	sectioned := "audio devices:\n" + output + "\nvideo devices:\ncard 3: Cam [Webcam]"
	l.skip = "USB Audio Device"
	got := l.parse(sectioned)
	if len(got) != 1 || got[0].Name != "snd_rpi_hifiberry_dacplusadc" {
		t.Errorf("sectioned devices = %+v", got)
	}
}

func TestFFmpegCaptureArgs(t *testing.T) {
	args := ffmpegCaptureArgs("dshow", "audio=Line In")
	for _, want := range []string{"-nostdin", "audio=Line In", "16000", "s16le", "pipe:1"} {
		if !slices.Contains(args, want) {
			t.Errorf("args %v missing %q", args, want)
		}
	}
}

func TestCapturesViaFFmpeg(t *testing.T) {
	if got, want := CapturesViaFFmpeg(), runtime.GOOS != "linux"; got != want {
		t.Errorf("CapturesViaFFmpeg() = %v on %s, want %v", got, runtime.GOOS, want)
	}
}

func TestMeterPublishesEveryMeasurement(t *testing.T) {
	var got []Levels
	var stamps []time.Time
	m := NewMeter(SilenceConfig{Threshold: -40, DurationMs: 60_000}, nil)
	m.OnLevels(func(lv Levels, at time.Time) {
		got = append(got, lv)
		stamps = append(stamps, at)
	})

	loud := make([]int16, LevelUpdateSamples)
	for i := range loud {
		loud[i] = 8000
	}
	t0 := time.Unix(100, 0)
	for i := range 3 {
		m.process(loud, t0.Add(time.Duration(i)*100*time.Millisecond))
	}
	m.process(loud[:10], t0.Add(time.Second))

	if len(got) != 3 {
		t.Fatalf("measurements = %d, want 3", len(got))
	}
	if got[2] != m.Levels() || got[2].Silence {
		t.Errorf("last measurement = %+v, levels = %+v", got[2], m.Levels())
	}
	if !stamps[1].Equal(t0.Add(100 * time.Millisecond)) {
		t.Errorf("stamp = %v", stamps[1])
	}
}
