// Package ffmpeg runs one-shot FFmpeg encodes of captured PCM.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// DefaultEncodeTimeout bounds a single encode.
const DefaultEncodeTimeout = 30 * time.Second

// BaseInputArgs returns FFmpeg arguments for captured PCM on stdin.
func BaseInputArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
	}
}

// MP3Args returns output arguments for a mono MP3 file at path.
func MP3Args(bitrate, path string) []string {
	return []string{
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		"-y",
		path,
	}
}

// Encode pipes pcm through FFmpeg with the given output arguments.
func Encode(ctx context.Context, ffmpegPath string, pcm []byte, outputArgs []string) error {
	ctx, cancel := context.WithTimeoutCause(ctx, DefaultEncodeTimeout, errors.New("ffmpeg encode timeout"))
	defer cancel()

	args := append(BaseInputArgs(), outputArgs...)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(pcm)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := util.ExtractLastError(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg encoding failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg encoding failed: %w", err)
	}
	return nil
}
