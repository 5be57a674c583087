package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrFrameLength is returned when a published frame has the wrong length.
var ErrFrameLength = errors.New("frame length mismatch")

// Handoff moves frames from the capture goroutine to the processing actor
// through a double buffer and a binary notification. Publish never blocks and
// never allocates. When the consumer falls behind, the newest frame replaces
// the unconsumed one and the overrun is counted.
type Handoff struct {
	mu      sync.Mutex
	bufs    [2][]int16
	latest  int
	pending bool

	notify    chan struct{}
	published atomic.Uint64
	consumed  atomic.Uint64
	overruns  atomic.Uint64
}

// NewHandoff allocates both buffers for frames of frameLen samples.
func NewHandoff(frameLen int) *Handoff {
	return &Handoff{
		bufs:   [2][]int16{make([]int16, frameLen), make([]int16, frameLen)},
		notify: make(chan struct{}, 1),
	}
}

// FrameLen returns the frame length in samples.
func (h *Handoff) FrameLen() int { return len(h.bufs[0]) }

// Publish copies frame into the back buffer, makes it current and signals the consumer.
func (h *Handoff) Publish(frame []int16) error {
	if len(frame) != len(h.bufs[0]) {
		return ErrFrameLength
	}

	h.mu.Lock()
	back := 1 - h.latest
	copy(h.bufs[back], frame)
	h.latest = back
	if h.pending {
		h.overruns.Add(1)
	}
	h.pending = true
	h.mu.Unlock()

	h.published.Add(1)
	select {
	case h.notify <- struct{}{}:
	default:
	}
	return nil
}

// Notify returns the channel signalled after each Publish.
func (h *Handoff) Notify() <-chan struct{} { return h.notify }

// Acquire copies the most recent unconsumed frame into dst. It returns the
// index of the buffer the frame came from and false if no new frame exists.
func (h *Handoff) Acquire(dst []int16) (source int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pending {
		return h.latest, false
	}
	copy(dst, h.bufs[h.latest])
	h.pending = false
	h.consumed.Add(1)
	return h.latest, true
}

// Source returns the index (0 or 1) of the most recently published buffer.
func (h *Handoff) Source() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// HandoffStats holds hand-off counters.
type HandoffStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Overruns  uint64 `json:"overruns"`
}

// Stats returns the hand-off counters.
func (h *Handoff) Stats() HandoffStats {
	return HandoffStats{
		Published: h.published.Load(),
		Consumed:  h.consumed.Load(),
		Overruns:  h.overruns.Load(),
	}
}
