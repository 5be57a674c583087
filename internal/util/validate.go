package util

import (
	"fmt"
	"os"
	"slices"
)

// IsConfigured reports whether every value is non-empty.
func IsConfigured(values ...string) bool {
	return !slices.Contains(values, "")
}

// CheckPathWritable creates dir if needed and proves it accepts a write by
// creating and removing a scratch file.
func CheckPathWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("directory %s is not usable: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".alarmwatch-probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	_, werr := f.Write(make([]byte, 512))
	cerr := f.Close()
	rerr := os.Remove(name)
	for _, err := range []error{werr, cerr, rerr} {
		if err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
	}
	return nil
}
