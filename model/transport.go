package model

import (
	"context"
	"io"
)

// RawEvent is one provider stream event as delivered by a transport. Type is
// the framing-level event name (SSE "event:" field, AWS ":event-type" header),
// empty when the framing carries none.
type RawEvent struct {
	Type string
	Data []byte
}

// EventSource yields raw events of one streaming call. Next returns io.EOF
// when the stream is complete. Close must be called on every exit path.
type EventSource interface {
	Next() (RawEvent, error)
	Close() error
}

// Transport issues provider calls for formatted payloads. Retries, timeouts
// and authentication are the transport's responsibility.
type Transport interface {
	Send(ctx context.Context, payload any) ([]byte, error)
	Stream(ctx context.Context, payload any) (EventSource, error)
}

// SliceSource is an EventSource over a fixed list of events.
type SliceSource struct {
	events []RawEvent
	pos    int
	closed bool
}

// NewSliceSource returns a source replaying events in order.
func NewSliceSource(events ...RawEvent) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements EventSource.
func (s *SliceSource) Next() (RawEvent, error) {
	if s.closed || s.pos >= len(s.events) {
		return RawEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Close implements EventSource.
func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool { return s.closed }
