package util

import (
	"fmt"
	"regexp"
	"time"
)

var fileDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// FileDate returns the first YYYY-MM-DD date in name, as UTC midnight.
func FileDate(name string) (time.Time, bool) {
	s := fileDate.FindString(name)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s)
	return t, err == nil
}

// FormatHumanTime renders an RFC 3339 build stamp in local time. Values that
// do not parse are returned unchanged.
func FormatHumanTime(stamp string) string {
	if stamp == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return stamp
	}
	return t.Local().Format("2 Jan 2006 15:04 MST")
}

// FormatDuration renders a millisecond count as "45s", "2m 34s" or "1h 23m".
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
