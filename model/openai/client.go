package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// CompletionsAPI defines the subset of the chat completions service used by
// SDKTransport. It allows swapping in a fake for tests.
type CompletionsAPI interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// SDKTransport sends chat completion payloads through the official client.
type SDKTransport struct {
	completions CompletionsAPI
}

// NewSDKTransport wraps a completions service.
func NewSDKTransport(completions CompletionsAPI) *SDKTransport {
	return &SDKTransport{completions: completions}
}

// Send implements model.Transport.
func (t *SDKTransport) Send(ctx context.Context, payload any) ([]byte, error) {
	params, ok := payload.(openai.ChatCompletionNewParams)
	if !ok {
		return nil, fmt.Errorf("openai: unexpected payload type %T", payload)
	}

	resp, err := t.completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	return []byte(resp.RawJSON()), nil
}

// Stream implements model.Transport.
func (t *SDKTransport) Stream(ctx context.Context, payload any) (model.EventSource, error) {
	params, ok := payload.(openai.ChatCompletionNewParams)
	if !ok {
		return nil, fmt.Errorf("openai: unexpected payload type %T", payload)
	}

	stream := t.completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	return model.NewStreamSource[openai.ChatCompletionChunk](stream, chunkEvent, errorChunk), nil
}

func chunkEvent(ck openai.ChatCompletionChunk) model.RawEvent {
	return model.RawEvent{Data: []byte(ck.RawJSON())}
}

// errorChunk rebuilds the {"error": ...} chunk the SDK decoder swallowed.
func errorChunk(payload []byte) model.RawEvent {
	var data []byte
	if model.IsJSONObject(payload) {
		data, _ = sjson.SetRawBytes([]byte(`{}`), "error", payload)
	} else {
		data, _ = sjson.SetBytes([]byte(`{}`), "error.message", string(payload))
	}
	return model.RawEvent{Data: data}
}

// ResponsesAPI is the subset of the SDK responses service used by
// ResponsesTransport.
type ResponsesAPI interface {
	New(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) (*responses.Response, error)
	NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) *ssestream.Stream[responses.ResponseStreamEventUnion]
}

// ResponsesTransport sends Responses API payloads through the official client.
type ResponsesTransport struct {
	responses ResponsesAPI
}

// NewResponsesTransport wraps a responses service.
func NewResponsesTransport(svc ResponsesAPI) *ResponsesTransport {
	return &ResponsesTransport{responses: svc}
}

// Send implements model.Transport.
func (t *ResponsesTransport) Send(ctx context.Context, payload any) ([]byte, error) {
	params, ok := payload.(responses.ResponseNewParams)
	if !ok {
		return nil, fmt.Errorf("openai responses: unexpected payload type %T", payload)
	}

	resp, err := t.responses.New(ctx, params)
	if err != nil {
		return nil, err
	}

	return []byte(resp.RawJSON()), nil
}

// Stream implements model.Transport. Responses error events carry no
// top-level "error" key, so the SDK hands them through like any other event.
func (t *ResponsesTransport) Stream(ctx context.Context, payload any) (model.EventSource, error) {
	params, ok := payload.(responses.ResponseNewParams)
	if !ok {
		return nil, fmt.Errorf("openai responses: unexpected payload type %T", payload)
	}

	stream := t.responses.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	return model.NewStreamSource[responses.ResponseStreamEventUnion](stream, responsesEvent, responsesErrorEvent), nil
}

func responsesEvent(ev responses.ResponseStreamEventUnion) model.RawEvent {
	return model.RawEvent{Type: ev.Type, Data: []byte(ev.RawJSON())}
}

// responsesErrorEvent rebuilds an "error" event from a payload the SDK
// rejected because it carried a top-level "error" object.
func responsesErrorEvent(payload []byte) model.RawEvent {
	data := []byte(`{"type":"error"}`)
	if model.IsJSONObject(payload) {
		errObj := gjson.ParseBytes(payload)
		code := errObj.Get("code").String()
		if code == "" {
			code = errObj.Get("type").String()
		}
		data, _ = sjson.SetBytes(data, "code", code)
		data, _ = sjson.SetBytes(data, "message", errObj.Get("message").String())
	} else {
		data, _ = sjson.SetBytes(data, "message", string(payload))
	}
	return model.RawEvent{Type: "error", Data: data}
}

// Options configures NewClient and NewResponsesClient.
type Options struct {
	APIKey    string
	BaseURL   string
	ChunkSize int
	Logger    logging.Logger
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		ChunkSize: model.DefaultChunkSize,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

func (o Options) clientOptions(co *model.ClientOptions) {
	co.ChunkSize = o.ChunkSize
	if o.Logger != nil {
		co.Logger = o.Logger
	}
}

func (o Options) sdkClient() openai.Client {
	var reqOpts []option.RequestOption
	if o.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(o.APIKey))
	}

	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}

	return openai.NewClient(reqOpts...)
}

// NewClient creates a Chat Completions model.Client using the official client.
func NewClient(optFns ...func(o *Options)) *model.Client {
	client := defaultOptions(optFns).sdkClient()

	return NewClientFromService(&client.Chat.Completions, optFns...)
}

// NewClientFromService creates a Chat Completions model.Client over an existing service.
func NewClientFromService(completions CompletionsAPI, optFns ...func(o *Options)) *model.Client {
	opts := defaultOptions(optFns)
	return model.NewClient(NewAdapter(), NewSDKTransport(completions), opts.clientOptions)
}

// NewResponsesClient creates a Responses API model.Client using the official client.
func NewResponsesClient(optFns ...func(o *Options)) *model.Client {
	opts := defaultOptions(optFns)
	client := opts.sdkClient()

	return model.NewClient(NewResponsesAdapter(), NewResponsesTransport(&client.Responses), opts.clientOptions)
}

var (
	_ model.Transport = (*SDKTransport)(nil)
	_ model.Transport = (*ResponsesTransport)(nil)
)
