package model

import "strings"

// Coalescer buffers text deltas and releases them once the buffer reaches
// the threshold. It bounds the number of partial-update notifications
// regardless of how finely the provider chunks its output.
type Coalescer struct {
	threshold int
	buf       strings.Builder
}

// NewCoalescer returns a coalescer. A threshold <= 0 uses DefaultChunkSize.
func NewCoalescer(threshold int) *Coalescer {
	if threshold <= 0 {
		threshold = DefaultChunkSize
	}
	return &Coalescer{threshold: threshold}
}

// Add buffers delta and reports the buffered text when it reached the threshold.
func (c *Coalescer) Add(delta string) (string, bool) {
	c.buf.WriteString(delta)
	if c.buf.Len() < c.threshold {
		return "", false
	}
	return c.Flush(), true
}

// Flush drains the buffer.
func (c *Coalescer) Flush() string {
	out := c.buf.String()
	c.buf.Reset()
	return out
}

// Pending returns the number of buffered bytes.
func (c *Coalescer) Pending() int { return c.buf.Len() }
