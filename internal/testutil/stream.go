package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/model"
)

// StreamBuilder provides a fluent helper for constructing provider event
// sequences in tests.
// Example:
//
//	events := NewStreamBuilder().
//		Event("message_start", map[string]any{"type": "message_start"}).
//		Raw("ping", `{"type":"ping"}`).
//		Events()
type StreamBuilder struct {
	events []model.RawEvent
}

// NewStreamBuilder creates an empty builder.
func NewStreamBuilder() *StreamBuilder { return &StreamBuilder{} }

// Event appends an event whose data is v encoded as JSON (chainable).
func (b *StreamBuilder) Event(typ string, v any) *StreamBuilder {
	return b.Raw(typ, string(MustJSON(v)))
}

// Data appends an untyped event, as sent by providers without SSE event names (chainable).
func (b *StreamBuilder) Data(v any) *StreamBuilder { return b.Event("", v) }

// Raw appends an event with literal data (chainable).
func (b *StreamBuilder) Raw(typ, data string) *StreamBuilder {
	b.events = append(b.events, model.RawEvent{Type: typ, Data: []byte(data)})
	return b
}

// Events returns a copy of the built sequence.
func (b *StreamBuilder) Events() []model.RawEvent {
	out := make([]model.RawEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Source returns a fresh replaying EventSource.
func (b *StreamBuilder) Source() *model.SliceSource { return model.NewSliceSource(b.Events()...) }

// MustJSON encodes v and panics on failure.
func MustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %T: %v", v, err))
	}
	return data
}

// Drive feeds events into n and returns the emitted deltas. It stops at the
// first error.
func Drive(n model.Normalizer, events []model.RawEvent) ([]string, error) {
	var deltas []string
	for _, ev := range events {
		delta, err := n.Handle(ev)
		if delta != "" {
			deltas = append(deltas, delta)
		}
		if err != nil {
			return deltas, err
		}
	}
	return deltas, nil
}

// Chunks splits s into pieces of at most size bytes.
func Chunks(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// Joined concatenates deltas.
func Joined(deltas []string) string { return strings.Join(deltas, "") }

// ScriptedTransport is a model.Transport returning canned responses and
// recording every payload it receives.
type ScriptedTransport struct {
	// Body is returned by Send.
	Body []byte
	// Events are replayed by Stream.
	Events []model.RawEvent
	// Err fails both Send and Stream.
	Err error

	mu       sync.Mutex
	payloads []any
	sources  []*model.SliceSource
}

// Send implements model.Transport.
func (t *ScriptedTransport) Send(ctx context.Context, payload any) ([]byte, error) {
	if err := t.record(ctx, payload); err != nil {
		return nil, err
	}
	return t.Body, nil
}

// Stream implements model.Transport.
func (t *ScriptedTransport) Stream(ctx context.Context, payload any) (model.EventSource, error) {
	if err := t.record(ctx, payload); err != nil {
		return nil, err
	}

	src := model.NewSliceSource(t.Events...)

	t.mu.Lock()
	t.sources = append(t.sources, src)
	t.mu.Unlock()

	return src, nil
}

func (t *ScriptedTransport) record(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.payloads = append(t.payloads, payload)
	t.mu.Unlock()

	return t.Err
}

// Payloads returns the payloads received so far.
func (t *ScriptedTransport) Payloads() []any {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]any, len(t.payloads))
	copy(out, t.payloads)
	return out
}

// AllClosed reports whether every stream handed out was closed.
func (t *ScriptedTransport) AllClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sources {
		if !s.Closed() {
			return false
		}
	}
	return true
}

var _ model.Transport = (*ScriptedTransport)(nil)
