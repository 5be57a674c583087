package ffmpeg

import (
	"cmp"
	"os/exec"
)

// Locate returns the FFmpeg binary to run, or "" when none is usable. An
// explicit path that fails the lookup is not replaced by the one on PATH.
func Locate(explicit string) string {
	path, err := exec.LookPath(cmp.Or(explicit, "ffmpeg"))
	if err != nil {
		return ""
	}
	return path
}
