package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
	"github.com/hupe1980/agentloop/model"
)

func chunkStream() *testutil.StreamBuilder {
	return testutil.NewStreamBuilder().
		Data(map[string]any{"id": "chatcmpl-1", "model": "gpt-4o", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"role": "assistant", "content": ""}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"content": "Sure, "}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"content": "adding."}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"tool_calls": []any{
				map[string]any{"index": 0, "id": "call_abc", "type": "function", "function": map[string]any{"name": "sum", "arguments": ""}},
			}}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"tool_calls": []any{
				map[string]any{"index": 0, "function": map[string]any{"arguments": `{"a":1,`}},
			}}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{"tool_calls": []any{
				map[string]any{"index": 0, "function": map[string]any{"arguments": `"b":2}`}},
			}}},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{}, "finish_reason": "tool_calls"},
		}}).
		Data(map[string]any{"id": "chatcmpl-1", "choices": []any{}, "usage": map[string]any{
			"prompt_tokens": 20, "completion_tokens": 9, "total_tokens": 29,
		}})
}

func TestChunkNormalizer(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	deltas, err := testutil.Drive(n, chunkStream().Events())
	require.NoError(t, err)

	assert.Equal(t, []string{"Sure, ", "adding."}, deltas)
	assert.Equal(t, model.StateTerminal, n.State())
	assert.Equal(t, model.FinishToolCalls, n.FinishReason())

	snap := n.Snapshot()
	assert.Equal(t, "chatcmpl-1", snap.ID)
	assert.Equal(t, "gpt-4o", snap.Model)
	assert.Equal(t, int64(29), snap.Usage["total_tokens"], "usage after the finish chunk is still merged")
	assert.Equal(t, []model.ToolCall{{ID: "call_abc", Name: "sum", Arguments: map[string]any{"a": 1.0, "b": 2.0}}}, snap.ToolCalls())
}

func TestChunkNormalizer_ParallelToolCalls(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	_, err := testutil.Drive(n, testutil.NewStreamBuilder().
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_2","function":{"name":"b","arguments":"{}"}}]}}]}`).
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"a","arguments":"{\"x\":"}}]}}]}`).
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"true}"}}]}}]}`).
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`).
		Events())
	require.NoError(t, err)

	calls := n.Snapshot().ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.Equal(t, map[string]any{"x": true}, calls[0].Arguments)
	assert.Equal(t, "b", calls[1].Name)
}

func TestChunkNormalizer_ErrorEvent(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	_, err := testutil.Drive(n, testutil.NewStreamBuilder().
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{"content":"x"}}]}`).
		Raw("", `{"error":{"type":"server_error","message":"upstream failed"}}`).
		Events())

	var se *core.StreamingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "server_error", se.Type)
	assert.Equal(t, model.FinishError, n.FinishReason())
}

func TestChunkNormalizer_LengthFinish(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	_, err := testutil.Drive(n, testutil.NewStreamBuilder().
		Raw("", `{"id":"c","choices":[{"index":0,"delta":{"content":"trunc"},"finish_reason":"length"}]}`).
		Events())
	require.NoError(t, err)

	assert.Equal(t, model.FinishLength, n.FinishReason())
	assert.Equal(t, "length", n.Snapshot().StopReason)
}

func TestFormatOutbound(t *testing.T) {
	req := model.Request{
		Model:  "gpt-4o",
		System: "be brief",
		Messages: []core.Message{
			core.UserText{Content: "add 1 and 2"},
			core.ToolCall{ProviderCallID: "call_abc", Name: "sum", Arguments: map[string]any{"a": 1, "b": 2}, AssistantMessage: "Adding."},
			core.ToolCallResult{ProviderCallID: "call_abc", Result: 3},
			core.AssistantText{Content: "It is 3."},
		},
		Tools:      []model.ToolDefinition{{Name: "sum", Description: "Add", Parameters: map[string]any{"type": "object"}}},
		ToolChoice: model.ForceTool("sum"),
		MaxTokens:  256,
		Stream:     true,
	}

	payload, err := NewAdapter().FormatOutbound(req)
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)

	msgs := doc.Get("messages").Array()
	require.Len(t, msgs, 5)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "user", msgs[1].Get("role").String())
	assert.Equal(t, "assistant", msgs[2].Get("role").String())
	assert.Equal(t, "Adding.", msgs[2].Get("content").String())
	assert.Equal(t, "call_abc", msgs[2].Get("tool_calls.0.id").String())
	assert.JSONEq(t, `{"a":1,"b":2}`, msgs[2].Get("tool_calls.0.function.arguments").String())
	assert.Equal(t, "tool", msgs[3].Get("role").String())
	assert.Equal(t, "call_abc", msgs[3].Get("tool_call_id").String())
	assert.Equal(t, "3", msgs[3].Get("content").String())

	assert.Equal(t, int64(256), doc.Get("max_completion_tokens").Int())
	assert.True(t, doc.Get("stream_options.include_usage").Bool())
	assert.Equal(t, "sum", doc.Get("tools.0.function.name").String())
	assert.Equal(t, "sum", doc.Get("tool_choice.function.name").String())
}

func TestFormatOutbound_RequiredAndNone(t *testing.T) {
	a := NewAdapter()
	base := model.Request{
		Messages: []core.Message{core.UserText{Content: "q"}},
		Tools:    []model.ToolDefinition{{Name: "sum"}},
	}

	req := base
	req.ToolChoice = model.ToolChoice{Mode: model.ToolChoiceRequired}
	payload, err := a.FormatOutbound(req)
	require.NoError(t, err)
	raw, _ := json.Marshal(payload)
	assert.Equal(t, "required", gjson.GetBytes(raw, "tool_choice").String())

	req = base
	req.ToolChoice = model.ToolChoice{Mode: model.ToolChoiceNone}
	payload, err = a.FormatOutbound(req)
	require.NoError(t, err)
	raw, _ = json.Marshal(payload)
	assert.False(t, gjson.GetBytes(raw, "tools").Exists())
}

func TestFormatOutbound_Attachments(t *testing.T) {
	a := NewAdapter()

	payload, err := a.FormatOutbound(model.Request{Messages: []core.Message{core.UserText{
		Content: "what is this?",
		Attachments: []core.Attachment{
			{Kind: core.AttachmentImage, MediaType: "image/png", Data: "iVBORw=="},
			{Kind: core.AttachmentFile, MediaType: "application/pdf", Data: "JVBERi0=", Filename: "doc.pdf"},
		},
	}}})
	require.NoError(t, err)

	raw, _ := json.Marshal(payload)
	parts := gjson.GetBytes(raw, "messages.0.content").Array()
	require.Len(t, parts, 3)
	assert.Equal(t, "what is this?", parts[0].Get("text").String())
	assert.Equal(t, "data:image/png;base64,iVBORw==", parts[1].Get("image_url.url").String())
	assert.Equal(t, "doc.pdf", parts[2].Get("file.filename").String())

	_, err = a.FormatOutbound(model.Request{Messages: []core.Message{core.UserText{
		Attachments: []core.Attachment{{Kind: core.AttachmentFile, URL: "https://example.com/a.pdf"}},
	}}})
	assert.ErrorIs(t, err, core.ErrUnsupportedFeature)

	_, err = a.FormatOutbound(model.Request{
		Messages: []core.Message{core.UserText{Content: "q"}},
		Tools:    []model.ToolDefinition{{Name: model.ToolWebSearch, ProviderManaged: true}},
	})
	assert.ErrorIs(t, err, core.ErrUnsupportedFeature)
}

func TestParseResponse(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-2",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": null,
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "sum", "arguments": "{\"a\":1"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
	}`)

	a := NewAdapter()

	snap, err := a.ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, model.FinishToolCalls, snap.FinishReason)
	assert.Equal(t, int64(7), snap.Usage["total_tokens"])

	calls, err := a.ExtractToolCalls(body)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, `{"a":1`, calls[0].Arguments, "invalid arguments are kept as the raw string")

	_, err = a.ParseResponse([]byte(`{"id":"x","choices":[]}`))
	assert.Error(t, err)
}

func TestNewClient_OverHTTP(t *testing.T) {
	var sse strings.Builder
	for _, ev := range chunkStream().Events() {
		fmt.Fprintf(&sse, "data: %s\n\n", ev.Data)
	}
	sse.WriteString("data: [DONE]\n\n")

	var includeUsage atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if so, ok := body["stream_options"].(map[string]any); ok {
			v, _ := so["include_usage"].(bool)
			includeUsage.Store(v)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse.String()))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.APIKey = "sk-test"
		o.BaseURL = srv.URL
	})

	var flushes int
	snap, err := c.Complete(context.Background(), model.Request{
		Model:    "gpt-4o",
		Messages: []core.Message{core.UserText{Content: "add"}},
		Stream:   true,
	}, func(string, *model.Snapshot) error {
		flushes++
		return nil
	})
	require.NoError(t, err)

	assert.True(t, includeUsage.Load())
	assert.Equal(t, 1, flushes, "short text is flushed once at the terminal event")
	assert.Equal(t, "Sure, adding.", snap.Text())
	assert.Equal(t, int64(29), snap.Usage["total_tokens"])
}

func TestNewClient_StreamingErrorEvent(t *testing.T) {
	sse := `data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"par"}}]}` + "\n\n" +
		`data: {"error":{"type":"server_error","message":"upstream failed"}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.APIKey = "sk-test"
		o.BaseURL = srv.URL
	})

	snap, err := c.Complete(context.Background(), model.Request{
		Model:    "gpt-4o",
		Messages: []core.Message{core.UserText{Content: "hi"}},
		Stream:   true,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStreaming)

	var se *core.StreamingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "openai", se.Provider)
	assert.Equal(t, "server_error", se.Type)
	assert.Equal(t, "upstream failed", se.Message)
	assert.Equal(t, "par", snap.Text())
}
