// Package transport issues provider HTTP calls for payloads produced by the
// model adapters and frames streaming responses into raw events. Retries,
// backoff and credential loading are left to the supplied *http.Client.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// Framing selects how a streaming response body is split into events.
type Framing int

const (
	// FramingSSE reads Server-Sent Events.
	FramingSSE Framing = iota
	// FramingEventStream reads the AWS binary event-stream encoding.
	FramingEventStream
)

// Options configures an HTTP transport.
type Options struct {
	// Endpoint receives non-streaming calls.
	Endpoint string
	// StreamEndpoint receives streaming calls; defaults to Endpoint.
	StreamEndpoint string
	// Headers are added to every request (auth, API versions).
	Headers map[string]string
	// StreamFlag injects "stream": true into the payload of streaming calls.
	StreamFlag bool
	Framing    Framing
	HTTPClient *http.Client
	Logger     logging.Logger
}

// HTTP is a model.Transport over net/http.
type HTTP struct {
	opts Options
}

// NewHTTP creates an HTTP transport.
func NewHTTP(endpoint string, optFns ...func(o *Options)) *HTTP {
	opts := Options{
		Endpoint:   endpoint,
		Headers:    map[string]string{},
		Framing:    FramingSSE,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.StreamEndpoint == "" {
		opts.StreamEndpoint = opts.Endpoint
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &HTTP{opts: opts}
}

// ProviderError is returned when the provider API responds with a non-2xx status.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true if the error is a rate limit response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// Send implements model.Transport.
func (t *HTTP) Send(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := t.do(ctx, t.opts.Endpoint, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return data, nil
}

// Stream implements model.Transport.
func (t *HTTP) Stream(ctx context.Context, payload any) (model.EventSource, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	if t.opts.StreamFlag {
		body, err = sjson.SetBytes(body, "stream", true)
		if err != nil {
			return nil, fmt.Errorf("set stream flag: %w", err)
		}
	}

	resp, err := t.do(ctx, t.opts.StreamEndpoint, body, true)
	if err != nil {
		return nil, err
	}

	if t.opts.Framing == FramingEventStream {
		return newEventStreamSource(resp.Body), nil
	}

	return newSSESource(resp), nil
}

func (t *HTTP) do(ctx context.Context, endpoint string, body []byte, streaming bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if streaming && t.opts.Framing == FramingSSE {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}

	t.opts.Logger.Debug("transport.request", "endpoint", endpoint, "stream", streaming, "bytes", len(body))

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readProviderError(resp)
	}

	return resp, nil
}

// readProviderError extracts the error type and message from the common
// provider error envelopes ({"error":{"type","message"}}, {"message"}).
func readProviderError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	pe := &ProviderError{StatusCode: resp.StatusCode}

	res := gjson.ParseBytes(data)
	switch {
	case res.Get("error.message").Exists():
		pe.Message = res.Get("error.message").String()
		pe.Type = res.Get("error.type").String()
		if pe.Type == "" {
			pe.Type = res.Get("error.status").String()
		}
	case res.Get("message").Exists():
		pe.Message = res.Get("message").String()
		pe.Type = res.Get("__type").String()
	default:
		pe.Message = string(data)
	}

	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}

	return pe
}

var _ model.Transport = (*HTTP)(nil)
