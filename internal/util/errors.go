package util

import (
	"fmt"
	"strings"
)

// stderrTailMax caps the text kept from a child process's stderr.
const stderrTailMax = 200

// WrapError prefixes err with "failed to <op>". A nil err stays nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// ExtractLastError returns the last non-blank line of a process's stderr,
// truncated so it fits in a log line or status field.
func ExtractLastError(stderr string) string {
	trimmed := strings.TrimRight(stderr, " \t\r\n")
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	line := strings.TrimSpace(trimmed)
	if len(line) > stderrTailMax {
		line = line[:stderrTailMax] + "..."
	}
	return line
}
