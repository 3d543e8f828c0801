package transport

import (
	"bytes"
	"io"
	"net/http"

	"github.com/openai/openai-go/packages/ssestream"

	"github.com/hupe1980/agentloop/model"
)

var sseDone = []byte("[DONE]")

// sseSource adapts an SSE decoder to model.EventSource. The OpenAI style
// "[DONE]" sentinel ends the stream.
type sseSource struct {
	dec ssestream.Decoder
}

func newSSESource(resp *http.Response) *sseSource {
	return &sseSource{dec: ssestream.NewDecoder(resp)}
}

func (s *sseSource) Next() (model.RawEvent, error) {
	for s.dec.Next() {
		ev := s.dec.Event()
		data := bytes.TrimSpace(ev.Data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, sseDone) {
			return model.RawEvent{}, io.EOF
		}
		return model.RawEvent{Type: ev.Type, Data: data}, nil
	}

	if err := s.dec.Err(); err != nil {
		return model.RawEvent{}, err
	}

	return model.RawEvent{}, io.EOF
}

func (s *sseSource) Close() error {
	return s.dec.Close()
}
