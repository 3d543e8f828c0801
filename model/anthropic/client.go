package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// MessagesAPI is the subset of the SDK message service used by SDKTransport.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	NewStreaming(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// SDKTransport sends formatted payloads through the official Anthropic client.
// Events are handed to the normalizer as their raw JSON.
type SDKTransport struct {
	messages MessagesAPI
}

// NewSDKTransport wraps a message service.
func NewSDKTransport(messages MessagesAPI) *SDKTransport {
	return &SDKTransport{messages: messages}
}

// Send implements model.Transport.
func (t *SDKTransport) Send(ctx context.Context, payload any) ([]byte, error) {
	params, err := asParams(payload)
	if err != nil {
		return nil, err
	}

	msg, err := t.messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	return []byte(msg.RawJSON()), nil
}

// Stream implements model.Transport.
func (t *SDKTransport) Stream(ctx context.Context, payload any) (model.EventSource, error) {
	params, err := asParams(payload)
	if err != nil {
		return nil, err
	}

	stream := t.messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	return model.NewStreamSource[anthropic.MessageStreamEventUnion](stream, toRawEvent, errorEvent), nil
}

func asParams(payload any) (anthropic.MessageNewParams, error) {
	switch p := payload.(type) {
	case anthropic.MessageNewParams:
		return p, nil
	case *anthropic.MessageNewParams:
		return *p, nil
	default:
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: unexpected payload type %T", payload)
	}
}

func toRawEvent(ev anthropic.MessageStreamEventUnion) model.RawEvent {
	return model.RawEvent{Type: ev.Type, Data: []byte(ev.RawJSON())}
}

// errorEvent rebuilds the "error" event the SDK decoder swallowed.
func errorEvent(payload []byte) model.RawEvent {
	if !model.IsJSONObject(payload) {
		payload, _ = sjson.SetBytes([]byte(`{"type":"error"}`), "error.message", string(payload))
	}
	return model.RawEvent{Type: "error", Data: payload}
}

// Options configures NewClient.
type Options struct {
	APIKey    string
	BaseURL   string
	ChunkSize int
	Logger    logging.Logger
}

// NewClient creates a model.Client backed by the official Anthropic SDK.
func NewClient(optFns ...func(o *Options)) *model.Client {
	opts := Options{
		ChunkSize: model.DefaultChunkSize,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return model.NewClient(NewAdapter(), NewSDKTransport(&client.Messages), func(o *model.ClientOptions) {
		o.ChunkSize = opts.ChunkSize
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	})
}

var _ model.Transport = (*SDKTransport)(nil)
