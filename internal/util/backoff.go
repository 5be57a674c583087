package util

import "time"

// Backoff doubles a retry delay up to a ceiling. It is not safe for
// concurrent use; each retry loop owns its own.
type Backoff struct {
	floor, ceiling, next time.Duration
}

// NewBackoff returns a Backoff starting at floor and capped at ceiling.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	return &Backoff{floor: floor, ceiling: max(floor, ceiling), next: floor}
}

// Next returns the delay to wait now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next = min(2*b.next, b.ceiling)
	return d
}

// Reset starts the sequence over after a success.
func (b *Backoff) Reset() { b.next = b.floor }
