package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentloop/model"
)

// EventTypeException is the RawEvent type used for event-stream exceptions.
// The payload carries the exception name under "__type".
const EventTypeException = "exception"

// eventStreamSource decodes the AWS binary event-stream framing used by
// Bedrock ConverseStream.
type eventStreamSource struct {
	body io.ReadCloser
	dec  *eventstream.Decoder
	buf  []byte
}

func newEventStreamSource(body io.ReadCloser) *eventStreamSource {
	return &eventStreamSource{body: body, dec: eventstream.NewDecoder()}
}

func (s *eventStreamSource) Next() (model.RawEvent, error) {
	msg, err := s.dec.Decode(s.body, s.buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RawEvent{}, io.EOF
		}
		return model.RawEvent{}, fmt.Errorf("decode event-stream message: %w", err)
	}
	s.buf = msg.Payload[:0]

	payload := append([]byte(nil), msg.Payload...)

	switch headerString(msg.Headers, ":message-type") {
	case "exception", "error":
		name := headerString(msg.Headers, ":exception-type")
		if name == "" {
			name = headerString(msg.Headers, ":error-code")
		}
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		payload, _ = sjson.SetBytes(payload, "__type", name)
		return model.RawEvent{Type: EventTypeException, Data: payload}, nil
	default:
		return model.RawEvent{Type: headerString(msg.Headers, ":event-type"), Data: payload}, nil
	}
}

func (s *eventStreamSource) Close() error {
	return s.body.Close()
}

func headerString(h eventstream.Headers, name string) string {
	v := h.Get(name)
	if v == nil {
		return ""
	}
	return v.String()
}
