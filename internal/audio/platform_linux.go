//go:build linux

package audio

import (
	"regexp"
	"strconv"
)

var current = platform{
	tool:          "arecord",
	defaultDevice: "default",
	args: func(device string) []string {
		return []string{
			"-q", "-D", device,
			"-t", "raw", "-f", "S16_LE",
			"-c", strconv.Itoa(Channels),
			"-r", strconv.Itoa(SampleRate),
			"-",
		}
	},
	listing: alsaListing,
}

// alsaListing reads "card N: ID [Name]" lines from arecord -l.
var alsaListing = listing{
	argv:    []string{"arecord", "-l"},
	pattern: regexp.MustCompile(`card\s+\d+:\s+(\w+)\s+\[([^\]]+)\]`),
	device: func(m []string) (Device, bool) {
		return Device{ID: "plughw:CARD=" + m[1], Name: m[2]}, true
	},
	fallback: []Device{{ID: "default", Name: "ALSA default"}},
}
