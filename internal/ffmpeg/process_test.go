package ffmpeg

import (
	"context"
	"slices"
	"testing"
)

func TestArgs(t *testing.T) {
	in := BaseInputArgs()
	if !slices.Contains(in, "16000") || !slices.Contains(in, "pipe:0") {
		t.Errorf("input args = %v", in)
	}
	out := MP3Args("32k", "/tmp/x.mp3")
	if out[len(out)-1] != "/tmp/x.mp3" || !slices.Contains(out, "32k") {
		t.Errorf("output args = %v", out)
	}
}

func TestEncodeMissingBinary(t *testing.T) {
	err := Encode(context.Background(), "/nonexistent/ffmpeg", []byte{0, 0}, MP3Args("32k", "/tmp/none.mp3"))
	if err == nil {
		t.Fatal("encode with a missing binary succeeded")
	}
}

func TestLocateMissing(t *testing.T) {
	if got := Locate("/nonexistent/ffmpeg"); got != "" {
		t.Errorf("Locate(missing) = %q, want empty", got)
	}
}
