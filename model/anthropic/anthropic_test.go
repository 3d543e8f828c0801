package anthropic

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

func toolUseStream() *testutil.StreamBuilder {
	return testutil.NewStreamBuilder().
		Raw("message_start", `{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4","usage":{"input_tokens":12,"output_tokens":1}}}`).
		Raw("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`).
		Raw("ping", `{"type":"ping"}`).
		Raw("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`).
		Raw("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`).
		Raw("content_block_stop", `{"type":"content_block_stop","index":0}`).
		Raw("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`).
		Raw("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\": "}}`).
		Raw("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Paris\"}"}}`).
		Raw("content_block_stop", `{"type":"content_block_stop","index":1}`).
		Raw("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":31}}`).
		Raw("message_stop", `{"type":"message_stop"}`)
}

func TestNormalizer_ToolUse(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	deltas, err := testutil.Drive(n, toolUseStream().Events())
	require.NoError(t, err)

	assert.Equal(t, []string{"Let me ", "check."}, deltas)
	assert.Equal(t, model.StateTerminal, n.State())
	assert.Equal(t, model.FinishToolCalls, n.FinishReason())

	snap := n.Snapshot()
	assert.Equal(t, "msg_1", snap.ID)
	assert.Equal(t, "claude-sonnet-4", snap.Model)
	assert.Equal(t, "tool_use", snap.StopReason)
	assert.Equal(t, int64(12), snap.Usage["input_tokens"])
	assert.Equal(t, int64(31), snap.Usage["output_tokens"])
	assert.Equal(t, "Let me check.", snap.Text())
	assert.Equal(t, []model.ToolCall{{ID: "toolu_1", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}}}, snap.ToolCalls())
}

func TestNormalizer_EventTypeFromSSEName(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	_, err := testutil.Drive(n, testutil.NewStreamBuilder().
		Raw("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"hi"}}`).
		Raw("message_delta", `{"delta":{"stop_reason":"max_tokens"}}`).
		Raw("message_stop", `{}`).
		Events())
	require.NoError(t, err)

	assert.Equal(t, "hi", n.Snapshot().Text())
	assert.Equal(t, model.FinishLength, n.FinishReason())
}

func TestNormalizer_ErrorEvent(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	events := testutil.NewStreamBuilder().
		Raw("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"par"}}`).
		Raw("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`).
		Raw("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"tial"}}`).
		Events()

	_, err := testutil.Drive(n, events)
	require.Error(t, err)

	var se *core.StreamingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "anthropic", se.Provider)
	assert.Equal(t, "overloaded_error", se.Type)
	assert.Equal(t, "Overloaded", se.Message)

	// the trailing delta arrives after the terminal state
	_, err = n.Handle(events[2])
	assert.NoError(t, err)
	assert.Equal(t, "par", n.Snapshot().Text())
	assert.Equal(t, model.FinishError, n.FinishReason())
}

func TestNormalizer_ServerToolIsNotALocalCall(t *testing.T) {
	n := NewAdapter().NewNormalizer()

	_, err := testutil.Drive(n, testutil.NewStreamBuilder().
		Raw("", `{"type":"content_block_start","index":0,"content_block":{"type":"server_tool_use","id":"srvtoolu_1","name":"web_search"}}`).
		Raw("", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\":\"go\"}"}}`).
		Raw("", `{"type":"content_block_stop","index":0}`).
		Raw("", `{"type":"content_block_start","index":1,"content_block":{"type":"web_search_tool_result","tool_use_id":"srvtoolu_1","content":[]}}`).
		Raw("", `{"type":"content_block_stop","index":1}`).
		Raw("", `{"type":"content_block_start","index":2,"content_block":{"type":"text","text":"Found it."}}`).
		Raw("", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`).
		Raw("", `{"type":"message_stop"}`).
		Events())
	require.NoError(t, err)

	snap := n.Snapshot()
	assert.Empty(t, snap.ToolCalls())
	assert.Equal(t, "Found it.", snap.Text())
	assert.Equal(t, model.BlockProviderTool, snap.Blocks[0].Kind)
	assert.Equal(t, map[string]any{"query": "go"}, snap.Blocks[0].Input)
}

func TestClient_StreamingDeterministicAcrossChunkSizes(t *testing.T) {
	var reference *model.Snapshot

	for _, size := range []int{1, 4, 25, 4096} {
		t.Run(fmt.Sprintf("chunk_%d", size), func(t *testing.T) {
			tr := &testutil.ScriptedTransport{Events: toolUseStream().Events()}
			c := model.NewClient(NewAdapter(), tr, func(o *model.ClientOptions) { o.ChunkSize = size })

			var flushed []string
			snap, err := c.Complete(context.Background(), model.Request{
				Model:    "claude-sonnet-4",
				Messages: []core.Message{core.UserText{Content: "weather?"}},
				Stream:   true,
			}, func(delta string, _ *model.Snapshot) error {
				flushed = append(flushed, delta)
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, "Let me check.", testutil.Joined(flushed))
			assert.True(t, tr.AllClosed())

			if reference == nil {
				reference = snap
			}
			assert.Equal(t, reference, snap)
		})
	}
}

func TestFormatOutbound(t *testing.T) {
	temp := 0.2
	req := model.Request{
		Model:       "claude-sonnet-4",
		System:      "be brief",
		Temperature: &temp,
		Messages: []core.Message{
			core.UserText{Content: "weather in Paris?"},
			core.ToolCall{ProviderCallID: "toolu_1", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}, AssistantMessage: "Checking."},
			core.ToolCallResult{ProviderCallID: "toolu_1", Result: map[string]any{"error": "service down"}},
			core.UserText{Content: "try again"},
		},
		Tools: []model.ToolDefinition{
			{Name: "get_weather", Description: "Weather", Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
				"required":   []any{"city"},
			}},
			{Name: model.ToolWebSearch, ProviderManaged: true},
		},
		ToolChoice: model.ForceTool("get_weather"),
	}

	payload, err := NewAdapter().FormatOutbound(req)
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	doc := gjson.ParseBytes(raw)

	assert.Equal(t, int64(4096), doc.Get("max_tokens").Int())
	assert.Equal(t, 0.2, doc.Get("temperature").Float())
	assert.Equal(t, "be brief", doc.Get("system.0.text").String())

	msgs := doc.Get("messages").Array()
	require.Len(t, msgs, 3, "the tool result merges with the following user turn")
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "Checking.", msgs[1].Get("content.0.text").String())
	assert.Equal(t, "tool_use", msgs[1].Get("content.1.type").String())
	assert.Equal(t, "Paris", msgs[1].Get("content.1.input.city").String())
	assert.Equal(t, "tool_result", msgs[2].Get("content.0.type").String())
	assert.Equal(t, "toolu_1", msgs[2].Get("content.0.tool_use_id").String())
	assert.True(t, msgs[2].Get("content.0.is_error").Bool())
	assert.Equal(t, "try again", msgs[2].Get("content.1.text").String())

	assert.Equal(t, "tool", doc.Get("tool_choice.type").String())
	assert.Equal(t, "get_weather", doc.Get("tool_choice.name").String())
	assert.Equal(t, "city", doc.Get("tools.0.input_schema.required.0").String())
	assert.Equal(t, "web_search", doc.Get("tools.1.name").String())
}

func TestFormatOutbound_UnpairedCallGetsSyntheticResult(t *testing.T) {
	payload, err := NewAdapter().FormatOutbound(model.Request{
		Messages: []core.Message{
			core.UserText{Content: "q"},
			core.ToolCall{Name: "nope", Arguments: `{"a":`},
			core.UserText{Content: "Unknown tool."},
		},
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(payload)
	msgs := gjson.GetBytes(raw, "messages").Array()
	require.Len(t, msgs, 3)

	callID := msgs[1].Get("content.0.id").String()
	assert.NotEmpty(t, callID)
	assert.Equal(t, callID, msgs[2].Get("content.0.tool_use_id").String())
	assert.True(t, msgs[2].Get("content.0.is_error").Bool())
}

func TestFormatOutbound_Attachments(t *testing.T) {
	a := NewAdapter()

	payload, err := a.FormatOutbound(model.Request{Messages: []core.Message{core.UserText{
		Content: "describe",
		Attachments: []core.Attachment{
			{Kind: core.AttachmentImage, URL: "https://example.com/cat.png"},
			{Kind: core.AttachmentFile, MediaType: "application/pdf", Data: "JVBERi0="},
			{Kind: core.AttachmentFile, MediaType: "text/plain", Data: "aGVsbG8="},
		},
	}}})
	require.NoError(t, err)

	raw, _ := json.Marshal(payload)
	content := gjson.GetBytes(raw, "messages.0.content").Array()
	require.Len(t, content, 4)
	assert.Equal(t, "image", content[0].Get("type").String())
	assert.Equal(t, "https://example.com/cat.png", content[0].Get("source.url").String())
	assert.Equal(t, "document", content[1].Get("type").String())
	assert.Equal(t, "hello", content[2].Get("source.data").String())
	assert.Equal(t, "describe", content[3].Get("text").String())

	_, err = a.FormatOutbound(model.Request{Messages: []core.Message{core.UserText{
		Attachments: []core.Attachment{{Kind: core.AttachmentFile, MediaType: "application/zip", Data: "UEs="}},
	}}})
	assert.ErrorIs(t, err, core.ErrUnsupportedFeature)

	_, err = a.FormatOutbound(model.Request{
		Messages: []core.Message{core.UserText{Content: "x"}},
		Tools:    []model.ToolDefinition{{Name: model.ToolCodeExecution, ProviderManaged: true}},
	})
	assert.ErrorIs(t, err, core.ErrUnsupportedFeature)
}

func TestParseResponse(t *testing.T) {
	body := []byte(`{
		"id": "msg_2",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4",
		"content": [
			{"type": "text", "text": "Adding."},
			{"type": "tool_use", "id": "toolu_9", "name": "sum", "input": {"a": 1, "b": 2}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 5, "output_tokens": 7}
	}`)

	a := NewAdapter()

	snap, err := a.ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "Adding.", snap.Text())
	assert.Equal(t, model.FinishToolCalls, snap.FinishReason)
	assert.Equal(t, int64(7), snap.Usage["output_tokens"])

	calls, err := a.ExtractToolCalls(body)
	require.NoError(t, err)
	assert.Equal(t, []model.ToolCall{{ID: "toolu_9", Name: "sum", Arguments: map[string]any{"a": 1.0, "b": 2.0}}}, calls)

	calls, err = a.ExtractToolCalls([]byte(`{"id":"m","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn"}`))
	require.NoError(t, err)
	assert.Nil(t, calls)
}

func TestNewClient_OverHTTP(t *testing.T) {
	var sse strings.Builder
	for _, ev := range toolUseStream().Events() {
		fmt.Fprintf(&sse, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
	}

	var streamed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make(map[string]any)
		_ = json.NewDecoder(r.Body).Decode(&body)
		if v, ok := body["stream"].(bool); ok {
			streamed.Store(v)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse.String()))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
		o.ChunkSize = 1
	})

	snap, err := c.Complete(context.Background(), model.Request{
		Model:    "claude-sonnet-4",
		Messages: []core.Message{core.UserText{Content: "weather?"}},
		Stream:   true,
	}, nil)
	require.NoError(t, err)

	assert.True(t, streamed.Load())
	assert.Equal(t, model.FinishToolCalls, snap.FinishReason)
	assert.Equal(t, "get_weather", snap.ToolCalls()[0].Name)
}

func TestNewClient_StreamingErrorEvent(t *testing.T) {
	sse := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4","usage":{"input_tokens":3,"output_tokens":1}}}` + "\n\n" +
		"event: error\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})

	_, err := c.Complete(context.Background(), model.Request{
		Model:    "claude-sonnet-4",
		Messages: []core.Message{core.UserText{Content: "hi"}},
		Stream:   true,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStreaming)

	var se *core.StreamingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "anthropic", se.Provider)
	assert.Equal(t, "overloaded_error", se.Type)
	assert.Equal(t, "Overloaded", se.Message)
}
