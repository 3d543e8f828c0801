package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessages() []Message {
	return []Message{
		UserText{Content: "hello"},
		UserText{Content: "look", Attachments: []Attachment{
			{Kind: AttachmentImage, URL: "https://example.com/cat.png"},
			{Kind: AttachmentFile, Data: "JVBERi0=", MediaType: "application/pdf", Filename: "doc.pdf"},
		}},
		AssistantText{Content: "hi"},
		ToolCall{Name: "sum", Arguments: map[string]any{"a": 1.0, "b": 2.0}},
		ToolCall{ProviderCallID: "call_1", Name: "sum", Arguments: "{broken", AssistantMessage: "Let me add."},
		ToolCallResult{Result: 3.0},
		ToolCallResult{ProviderCallID: "call_1", Result: map[string]any{"error": "boom"}},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, m := range sampleMessages() {
		got, err := Decode(Encode(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestMarshalMessages_RoundTrip(t *testing.T) {
	data, err := MarshalMessages(sampleMessages())
	require.NoError(t, err)

	got, err := UnmarshalMessages(data)
	require.NoError(t, err)
	assert.Equal(t, sampleMessages(), got)
}

func TestEncode_OmitsEmptyOptionalFields(t *testing.T) {
	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, Encode(UserText{Content: "hello"}))
	assert.Equal(t, map[string]any{"type": "tool_call", "name": "sum", "arguments": nil}, Encode(ToolCall{Name: "sum"}))
	assert.Equal(t, map[string]any{"type": "tool_call_result", "result": "ok"}, Encode(ToolCallResult{Result: "ok"}))

	data, err := json.Marshal(Encode(ToolCallResult{Result: "ok"}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "provider_tool_call_id")
}

func TestUserText_EmptyAttachmentsNormalizeToNil(t *testing.T) {
	m := UserText{Content: "hello", Attachments: []Attachment{}}

	assert.Equal(t, map[string]any{"role": "user", "content": "hello"}, Encode(m))

	got, err := Decode(Encode(m))
	require.NoError(t, err)
	assert.Equal(t, UserText{Content: "hello"}, got)

	got, err = Decode(map[string]any{"role": "user", "content": "hello", "attachments": []any{}})
	require.NoError(t, err)
	assert.Nil(t, got.(UserText).Attachments)

	msgs, err := UnmarshalMessages([]byte(`[{"role":"user","content":"hello","attachments":[]}]`))
	require.NoError(t, err)
	assert.Equal(t, []Message{UserText{Content: "hello"}}, msgs)
}

func TestDecode_UnknownMessageType(t *testing.T) {
	_, err := Decode(map[string]any{"foo": "bar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	var typed *UnknownMessageTypeError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, []string{"foo"}, typed.Keys)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown role", map[string]any{"role": "system", "content": "x"}},
		{"non-string content", map[string]any{"role": "user", "content": 42}},
		{"tool call without name", map[string]any{"type": "tool_call", "arguments": map[string]any{}}},
		{"result without result", map[string]any{"type": "tool_call_result"}},
		{"unknown type", map[string]any{"type": "thought"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.ErrorIs(t, err, ErrUnknownMessageType)
		})
	}
}

func TestDecodeHistory_ReportsPosition(t *testing.T) {
	_, err := DecodeHistory([]map[string]any{
		{"role": "user", "content": "ok"},
		{"foo": "bar"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message 1")
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDecode_BadAttachments(t *testing.T) {
	_, err := Decode(map[string]any{"role": "user", "content": "x", "attachments": "nope"})
	assert.Error(t, err)
}
