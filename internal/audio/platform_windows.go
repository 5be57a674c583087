//go:build windows

package audio

import (
	"regexp"
	"strings"
)

// DirectShow has no usable default, so the first listed device is taken.
var current = platform{
	tool:      "ffmpeg",
	viaFFmpeg: true,
	args:      func(device string) []string { return ffmpegCaptureArgs("dshow", device) },
	listing: listing{
		argv:    []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		skip:    "Alternative name",
		pattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
		device: func(m []string) (Device, bool) {
			name := strings.TrimSpace(m[1])
			return Device{ID: "audio=" + name, Name: name}, name != ""
		},
	},
}
