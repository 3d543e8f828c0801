package model

import (
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// sdkStreamErrorPrefix is how the vendor SDK decoders report a provider
// error event they consumed themselves.
const sdkStreamErrorPrefix = "received error while streaming: "

// SDKStream is the iterator shape shared by the vendor SDK stream types.
type SDKStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// SDKErrorPayload recovers the JSON payload of a provider error event from
// an SDK stream error. It reports false for any other error.
func SDKErrorPayload(err error) ([]byte, bool) {
	if err == nil {
		return nil, false
	}

	payload, ok := strings.CutPrefix(err.Error(), sdkStreamErrorPrefix)
	if !ok {
		return nil, false
	}

	return []byte(payload), true
}

// StreamSource adapts an SDK stream to EventSource. Decoded items are
// converted by toEvent. When onError turns a stream error back into an
// event, that event is delivered once and the source then reports io.EOF,
// so the normalizer sees the provider error instead of a transport error.
type StreamSource[T any] struct {
	stream  SDKStream[T]
	toEvent func(T) RawEvent
	onError func(payload []byte) RawEvent
	done    bool
}

// NewStreamSource wraps stream. onError may be nil.
func NewStreamSource[T any](stream SDKStream[T], toEvent func(T) RawEvent, onError func(payload []byte) RawEvent) *StreamSource[T] {
	return &StreamSource[T]{stream: stream, toEvent: toEvent, onError: onError}
}

// Next implements EventSource.
func (s *StreamSource[T]) Next() (RawEvent, error) {
	if s.done {
		return RawEvent{}, io.EOF
	}

	if s.stream.Next() {
		return s.toEvent(s.stream.Current()), nil
	}

	err := s.stream.Err()
	if err == nil {
		s.done = true
		return RawEvent{}, io.EOF
	}

	if payload, ok := SDKErrorPayload(err); ok && s.onError != nil {
		s.done = true
		return s.onError(payload), nil
	}

	return RawEvent{}, err
}

// Close implements EventSource.
func (s *StreamSource[T]) Close() error { return s.stream.Close() }

// IsJSONObject reports whether payload is a JSON object.
func IsJSONObject(payload []byte) bool {
	return gjson.ValidBytes(payload) && gjson.ParseBytes(payload).IsObject()
}

var _ EventSource = (*StreamSource[struct{}])(nil)
