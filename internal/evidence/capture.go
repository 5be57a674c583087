// Package evidence keeps a short audio history and saves a clip around each
// alarm onset, optionally uploading it to S3-compatible storage.
package evidence

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
)

// Clip is the audio around one alarm onset.
type Clip struct {
	Samples     []int16
	PreSamples  int // samples recorded before the onset
	TriggeredAt time.Time
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	return time.Duration(len(c.Samples)) * time.Second / audio.SampleRate
}

// Capturer buffers the most recent audio in a ring and cuts a clip once
// enough audio after an onset has arrived.
// It is safe for concurrent use.
type Capturer struct {
	mu sync.Mutex

	ring     []int16
	writePos int
	total    int64 // samples written since creation

	before int
	after  int

	capturing   bool
	triggerPos  int64
	triggerAt   time.Time
	savedBefore []int16

	onClip func(*Clip)
}

// NewCapturer creates a capturer keeping before seconds of history and
// after seconds following the onset.
func NewCapturer(before, after time.Duration, onClip func(*Clip)) *Capturer {
	b := int(math.Round(before.Seconds() * audio.SampleRate))
	a := int(math.Round(after.Seconds() * audio.SampleRate))
	return &Capturer{
		ring:   make([]int16, max(b+a, 1)),
		before: b,
		after:  a,
		onClip: onClip,
	}
}

// WriteAudio appends captured samples.
func (c *Capturer) WriteAudio(samples []int16) {
	c.mu.Lock()
	for _, s := range samples {
		c.ring[c.writePos] = s
		c.writePos = (c.writePos + 1) % len(c.ring)
	}
	c.total += int64(len(samples))

	var clip *Clip
	if c.capturing && c.total >= c.triggerPos+int64(c.after) {
		clip = c.extract()
	}
	c.mu.Unlock()

	if clip != nil && c.onClip != nil {
		c.onClip(clip)
	}
}

// OnAlarm starts a clip. It reports false while a previous clip is still being captured.
func (c *Capturer) OnAlarm(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return false
	}

	// Snapshot the history now so a long after-period cannot overwrite it.
	n := min(c.total, int64(c.before))
	c.savedBefore = make([]int16, n)
	c.copyFromRing(c.savedBefore, c.total-n)

	c.capturing = true
	c.triggerPos = c.total
	c.triggerAt = at

	slog.Debug("evidence capture started", "position", c.triggerPos, "saved_before", n)
	return true
}

// Capturing reports whether a clip is in progress.
func (c *Capturer) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// extract assembles the clip and resets capture state. Caller must hold c.mu.
func (c *Capturer) extract() *Clip {
	samples := make([]int16, len(c.savedBefore)+c.after)
	copy(samples, c.savedBefore)
	c.copyFromRing(samples[len(c.savedBefore):], c.triggerPos)

	clip := &Clip{
		Samples:     samples,
		PreSamples:  len(c.savedBefore),
		TriggeredAt: c.triggerAt,
	}
	c.capturing = false
	c.savedBefore = nil
	c.triggerPos = 0
	c.triggerAt = time.Time{}
	return clip
}

// copyFromRing copies samples starting at absolute position start.
func (c *Capturer) copyFromRing(dst []int16, start int64) {
	size := int64(len(c.ring))
	for i := range dst {
		dst[i] = c.ring[(start+int64(i))%size]
	}
}
