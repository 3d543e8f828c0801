package core

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Role and type discriminators of the canonical encoded form.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	TypeToolCall       = "tool_call"
	TypeToolCallResult = "tool_call_result"
)

// Message is one conversation turn. The set of variants is closed:
// UserText, AssistantText, ToolCall and ToolCallResult.
type Message interface {
	isMessage()
}

// AttachmentKind distinguishes image inputs from generic file inputs.
type AttachmentKind string

const (
	// AttachmentImage is an image input (png, jpeg, gif, webp).
	AttachmentImage AttachmentKind = "image"
	// AttachmentFile is a document input (pdf, text).
	AttachmentFile AttachmentKind = "file"
)

// Attachment is a non-text input carried on a user turn. Exactly one of URL
// or Data (base64 encoded bytes) is set.
type Attachment struct {
	Kind      AttachmentKind
	URL       string
	Data      string
	MediaType string
	Filename  string
}

// IsURL reports whether the attachment references remote content.
func (a Attachment) IsURL() bool { return a.URL != "" }

// UserText is a turn authored by the user. A nil and an empty Attachments
// slice are the same message: both encode without an attachments key and
// decode back to nil.
type UserText struct {
	Content     string
	Attachments []Attachment
}

// AssistantText is free text produced by the model.
type AssistantText struct {
	Content string
}

// ToolCall records the model requesting a tool. Arguments is an opaque JSON
// value; it may be a raw string when the model emitted malformed JSON.
type ToolCall struct {
	ProviderCallID   string
	Name             string
	Arguments        any
	AssistantMessage string
}

// ToolCallResult carries the outcome of a tool invocation back to the model.
type ToolCallResult struct {
	ProviderCallID string
	Result         any
}

func (UserText) isMessage()       {}
func (AssistantText) isMessage()  {}
func (ToolCall) isMessage()       {}
func (ToolCallResult) isMessage() {}

// Encode maps a message to its canonical provider-agnostic form. Optional
// fields are omitted when empty.
func Encode(m Message) map[string]any {
	switch v := m.(type) {
	case UserText:
		out := map[string]any{"role": RoleUser, "content": v.Content}
		if len(v.Attachments) > 0 {
			atts := make([]any, len(v.Attachments))
			for i, a := range v.Attachments {
				atts[i] = encodeAttachment(a)
			}
			out["attachments"] = atts
		}
		return out
	case AssistantText:
		return map[string]any{"role": RoleAssistant, "content": v.Content}
	case ToolCall:
		out := map[string]any{"type": TypeToolCall, "name": v.Name, "arguments": v.Arguments}
		if v.ProviderCallID != "" {
			out["provider_tool_call_id"] = v.ProviderCallID
		}
		if v.AssistantMessage != "" {
			out["assistant_message"] = v.AssistantMessage
		}
		return out
	case ToolCallResult:
		out := map[string]any{"type": TypeToolCallResult, "result": v.Result}
		if v.ProviderCallID != "" {
			out["provider_tool_call_id"] = v.ProviderCallID
		}
		return out
	default:
		panic(fmt.Sprintf("core: unknown message variant %T", m))
	}
}

// Decode maps a canonical form back to a message. It fails with
// ErrUnknownMessageType when the map matches none of the variant shapes.
func Decode(raw map[string]any) (Message, error) {
	if role, ok := raw["role"].(string); ok {
		content, isString := raw["content"].(string)
		switch {
		case role == RoleUser && isString:
			atts, err := decodeAttachments(raw["attachments"])
			if err != nil {
				return nil, err
			}
			return UserText{Content: content, Attachments: atts}, nil
		case role == RoleAssistant && isString:
			return AssistantText{Content: content}, nil
		}
	}

	if typ, ok := raw["type"].(string); ok {
		switch typ {
		case TypeToolCall:
			name, ok := raw["name"].(string)
			if !ok {
				break
			}
			return ToolCall{
				ProviderCallID:   stringField(raw, "provider_tool_call_id"),
				Name:             name,
				Arguments:        raw["arguments"],
				AssistantMessage: stringField(raw, "assistant_message"),
			}, nil
		case TypeToolCallResult:
			result, ok := raw["result"]
			if !ok {
				break
			}
			return ToolCallResult{
				ProviderCallID: stringField(raw, "provider_tool_call_id"),
				Result:         result,
			}, nil
		}
	}

	return nil, &UnknownMessageTypeError{Keys: sortedKeys(raw)}
}

// EncodeHistory encodes a conversation in order.
func EncodeHistory(msgs []Message) []map[string]any {
	out := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		out[i] = Encode(m)
	}
	return out
}

// DecodeHistory decodes a conversation, failing on the first undecodable entry.
func DecodeHistory(raw []map[string]any) ([]Message, error) {
	out := make([]Message, 0, len(raw))
	for i, r := range raw {
		m, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// MarshalMessages serializes a conversation to JSON using the canonical form.
func MarshalMessages(msgs []Message) ([]byte, error) {
	return json.Marshal(EncodeHistory(msgs))
}

// UnmarshalMessages parses JSON produced by MarshalMessages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return DecodeHistory(raw)
}

func encodeAttachment(a Attachment) map[string]any {
	out := map[string]any{"kind": string(a.Kind)}
	if a.URL != "" {
		out["url"] = a.URL
	}
	if a.Data != "" {
		out["data"] = a.Data
	}
	if a.MediaType != "" {
		out["media_type"] = a.MediaType
	}
	if a.Filename != "" {
		out["filename"] = a.Filename
	}
	return out
}

func decodeAttachments(v any) ([]Attachment, error) {
	if v == nil {
		return nil, nil
	}

	var items []map[string]any
	switch t := v.(type) {
	case []map[string]any:
		items = t
	case []any:
		for _, it := range t {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("attachment: expected object, got %T", it)
			}
			items = append(items, m)
		}
	default:
		return nil, fmt.Errorf("attachments: expected array, got %T", v)
	}

	if len(items) == 0 {
		return nil, nil
	}

	out := make([]Attachment, 0, len(items))
	for _, m := range items {
		out = append(out, Attachment{
			Kind:      AttachmentKind(stringField(m, "kind")),
			URL:       stringField(m, "url"),
			Data:      stringField(m, "data"),
			MediaType: stringField(m, "media_type"),
			Filename:  stringField(m, "filename"),
		})
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
