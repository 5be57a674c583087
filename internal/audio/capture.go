package audio

import (
	"errors"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoAudioDevice is returned when no input device is configured or detected.
var ErrNoAudioDevice = errors.New("no audio input device found")

// platform describes how the current OS captures mono s16le audio and how it
// enumerates input devices.
type platform struct {
	tool          string
	viaFFmpeg     bool
	defaultDevice string
	args          func(device string) []string
	listing       listing
}

// listing parses a device enumeration command. Lines between begin and end
// (the whole output when begin is empty) are matched against pattern.
type listing struct {
	argv       []string
	begin, end string
	skip       string
	pattern    *regexp.Regexp
	device     func(m []string) (Device, bool)
	fallback   []Device
}

// BuildCaptureCommand returns the capture command for device. An empty device
// selects the platform default, then the first detected device. ffmpegPath
// replaces the binary on platforms that capture through FFmpeg.
func BuildCaptureCommand(device, ffmpegPath string) (string, []string, error) {
	if device == "" {
		device = current.defaultDevice
	}
	if device == "" {
		found := ListDevices()
		if len(found) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = found[0].ID
	}
	tool := current.tool
	if current.viaFFmpeg && ffmpegPath != "" {
		tool = ffmpegPath
	}
	return tool, current.args(device), nil
}

// CapturesViaFFmpeg reports whether this platform records through FFmpeg,
// so a missing binary also means no audio.
func CapturesViaFFmpeg() bool { return current.viaFFmpeg }

// ListDevices returns the input devices the platform reports, or its
// fallback list when enumeration fails.
func ListDevices() []Device {
	l := current.listing
	if len(l.argv) == 0 {
		return l.fallback
	}
	out, err := exec.Command(l.argv[0], l.argv[1:]...).CombinedOutput()
	if err != nil && len(out) == 0 {
		slog.Error("failed to list audio devices", "command", l.argv[0], "error", err)
		return l.fallback
	}
	if found := l.parse(string(out)); len(found) > 0 {
		return found
	}
	return l.fallback
}

func (l *listing) parse(output string) []Device {
	var found []Device
	inside := l.begin == ""
	for line := range strings.SplitSeq(output, "\n") {
		switch {
		case l.begin != "" && strings.Contains(line, l.begin):
			inside = true
			continue
		case l.end != "" && strings.Contains(line, l.end):
			inside = false
			continue
		case !inside, l.skip != "" && strings.Contains(line, l.skip):
			continue
		}
		if m := l.pattern.FindStringSubmatch(line); m != nil {
			if d, ok := l.device(m); ok {
				found = append(found, d)
			}
		}
	}
	return found
}

// ffmpegCaptureArgs reads device through an FFmpeg input format and writes
// raw mono PCM at the classifier rate to stdout.
func ffmpegCaptureArgs(format, device string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "warning",
		"-f", format, "-i", device,
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-f", "s16le", "pipe:1",
	}
}
