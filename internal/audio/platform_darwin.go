//go:build darwin

package audio

import "regexp"

var current = platform{
	tool:          "ffmpeg",
	viaFFmpeg:     true,
	defaultDevice: ":0",
	args:          func(device string) []string { return ffmpegCaptureArgs("avfoundation", device) },
	listing: listing{
		argv:    []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		begin:   "AVFoundation audio devices:",
		end:     "AVFoundation video devices:",
		pattern: regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		device: func(m []string) (Device, bool) {
			return Device{ID: ":" + m[1], Name: m[2]}, true
		},
	},
}
