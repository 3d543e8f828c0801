// Package bedrock adapts the Amazon Bedrock Converse API to model.Adapter.
// Streaming responses arrive as AWS event-stream frames, which the transport
// package decodes into one raw event per frame.
package bedrock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/transport"
)

const providerName = "bedrock"

var finishReasons = map[string]string{
	"end_turn":             model.FinishStop,
	"stop_sequence":        model.FinishStop,
	"tool_use":             model.FinishToolCalls,
	"max_tokens":           model.FinishLength,
	"guardrail_intervened": model.FinishContentFilter,
	"content_filtered":     model.FinishContentFilter,
}

// ConverseRequest is the Converse / ConverseStream request body.
type ConverseRequest struct {
	Messages        []Message        `json:"messages"`
	System          []SystemBlock    `json:"system,omitempty"`
	InferenceConfig *InferenceConfig `json:"inferenceConfig,omitempty"`
	ToolConfig      *ToolConfig      `json:"toolConfig,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemBlock is a system prompt entry.
type SystemBlock struct {
	Text string `json:"text"`
}

// InferenceConfig holds sampling parameters.
type InferenceConfig struct {
	MaxTokens   int64    `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ContentBlock is a union; exactly one field is set.
type ContentBlock struct {
	Text       string         `json:"text,omitempty"`
	Image      *ImageBlock    `json:"image,omitempty"`
	Document   *DocumentBlock `json:"document,omitempty"`
	ToolUse    *ToolUseBlock  `json:"toolUse,omitempty"`
	ToolResult *ToolResult    `json:"toolResult,omitempty"`
}

// ImageBlock carries inline image bytes.
type ImageBlock struct {
	Format string      `json:"format"`
	Source BytesSource `json:"source"`
}

// DocumentBlock carries inline document bytes.
type DocumentBlock struct {
	Format string      `json:"format"`
	Name   string      `json:"name"`
	Source BytesSource `json:"source"`
}

// BytesSource is raw content; encoding/json renders it as base64.
type BytesSource struct {
	Bytes []byte `json:"bytes"`
}

// ToolUseBlock is a tool invocation by the assistant.
type ToolUseBlock struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     any    `json:"input"`
}

// ToolResult answers a ToolUseBlock.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"`
}

// ToolResultContent is text or JSON.
type ToolResultContent struct {
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

// ToolConfig declares tools and the tool choice.
type ToolConfig struct {
	Tools      []Tool         `json:"tools"`
	ToolChoice map[string]any `json:"toolChoice,omitempty"`
}

// Tool wraps one toolSpec declaration.
type Tool struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

// ToolSpec describes one function tool.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps the JSON schema of a tool's input.
type InputSchema struct {
	JSON map[string]any `json:"json"`
}

// Adapter implements model.Adapter for the Converse API.
type Adapter struct{}

// NewAdapter creates the Bedrock adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Provider implements model.Adapter.
func (a *Adapter) Provider() model.Provider { return model.ProviderBedrock }

// SupportsNativeToolUse implements model.Adapter.
func (a *Adapter) SupportsNativeToolUse() bool { return true }

// NewNormalizer implements model.Adapter.
func (a *Adapter) NewNormalizer() model.Normalizer { return newNormalizer() }

// ExtractToolCalls implements model.Adapter.
func (a *Adapter) ExtractToolCalls(body []byte) ([]model.ToolCall, error) {
	return model.ExtractFromResponse(a, body)
}

// ProviderManagedTool implements model.Adapter. Converse has no hosted tools.
func (a *Adapter) ProviderManagedTool(def model.ToolDefinition) (any, error) {
	return nil, core.NewUnsupportedFeatureError(providerName, "provider-managed tool "+def.Name)
}

// FormatOutbound builds a *ConverseRequest.
func (a *Adapter) FormatOutbound(req model.Request) (any, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	body := &ConverseRequest{
		Messages: messages,
		InferenceConfig: &InferenceConfig{
			MaxTokens:   req.EffectiveMaxTokens(),
			Temperature: req.Temperature,
		},
	}

	if req.System != "" {
		body.System = []SystemBlock{{Text: req.System}}
	}

	if len(req.Tools) == 0 || req.ToolChoice.Mode == model.ToolChoiceNone {
		return body, nil
	}

	cfg := &ToolConfig{}
	for _, def := range req.Tools {
		if def.ProviderManaged {
			if _, err := a.ProviderManagedTool(def); err != nil {
				return nil, err
			}
		}

		schema := def.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		cfg.Tools = append(cfg.Tools, Tool{ToolSpec: ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: InputSchema{JSON: schema},
		}})
	}

	switch {
	case req.ToolChoice.IsForced():
		cfg.ToolChoice = map[string]any{"tool": map[string]any{"name": req.ToolChoice.Name}}
	case req.ToolChoice.Mode == model.ToolChoiceRequired:
		cfg.ToolChoice = map[string]any{"any": map[string]any{}}
	}
	body.ToolConfig = cfg

	return body, nil
}

// ParseResponse decodes a non-streaming Converse response.
func (a *Adapter) ParseResponse(body []byte) (*model.Snapshot, error) {
	var resp struct {
		Output struct {
			Message struct {
				Content []struct {
					Text    *string `json:"text"`
					ToolUse *struct {
						ToolUseID string          `json:"toolUseId"`
						Name      string          `json:"name"`
						Input     json.RawMessage `json:"input"`
					} `json:"toolUse"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
		StopReason string           `json:"stopReason"`
		Usage      map[string]int64 `json:"usage"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	snap := model.NewSnapshot(model.ProviderBedrock)

	for i, c := range resp.Output.Message.Content {
		switch {
		case c.ToolUse != nil:
			b := snap.EnsureBlock(i)
			b.Kind = model.BlockToolUse
			b.ToolCallID = c.ToolUse.ToolUseID
			b.Name = c.ToolUse.Name
			b.PartialJSON = string(c.ToolUse.Input)
			b.Input = util.ParseArguments(b.PartialJSON)
			b.Complete = true
		case c.Text != nil:
			snap.EnsureBlock(i).Text = *c.Text
		}
	}

	snap.MergeUsage(resp.Usage)
	snap.StopReason = resp.StopReason
	snap.FinishReason = model.CanonicalFinish(finishReasons, resp.StopReason)

	return snap, nil
}

// buildMessages converts the conversation. Consecutive same-role turns are
// merged since Converse requires alternation.
func buildMessages(history []core.Message) ([]Message, error) {
	var messages []Message

	push := func(role string, blocks ...ContentBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, Message{Role: role, Content: blocks})
	}

	for _, m := range model.PairToolCalls(history) {
		switch v := m.(type) {
		case core.UserText:
			blocks, err := buildUserContent(v)
			if err != nil {
				return nil, err
			}
			push(core.RoleUser, blocks...)
		case core.AssistantText:
			if v.Content != "" {
				push(core.RoleAssistant, ContentBlock{Text: v.Content})
			}
		case core.ToolCall:
			var blocks []ContentBlock
			if v.AssistantMessage != "" {
				blocks = append(blocks, ContentBlock{Text: v.AssistantMessage})
			}
			blocks = append(blocks, ContentBlock{ToolUse: &ToolUseBlock{
				ToolUseID: v.ProviderCallID,
				Name:      v.Name,
				Input:     util.ArgumentsObject(v.Arguments),
			}})
			push(core.RoleAssistant, blocks...)
		case core.ToolCallResult:
			push(core.RoleUser, ContentBlock{ToolResult: buildToolResult(v)})
		}
	}

	return messages, nil
}

func buildToolResult(r core.ToolCallResult) *ToolResult {
	res := &ToolResult{ToolUseID: r.ProviderCallID, Status: "success"}
	if model.IsErrorResult(r.Result) {
		res.Status = "error"
	}

	if obj, ok := r.Result.(map[string]any); ok {
		res.Content = []ToolResultContent{{JSON: obj}}
	} else {
		res.Content = []ToolResultContent{{Text: util.ResultText(r.Result)}}
	}

	return res
}

func buildUserContent(u core.UserText) ([]ContentBlock, error) {
	var blocks []ContentBlock

	for i, att := range u.Attachments {
		if att.IsURL() {
			return nil, core.NewUnsupportedFeatureError(providerName, "attachments by URL")
		}

		raw, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %d: %w", i, err)
		}

		switch att.Kind {
		case core.AttachmentImage:
			format := strings.TrimPrefix(att.MediaType, "image/")
			if format == "jpg" {
				format = "jpeg"
			}
			blocks = append(blocks, ContentBlock{Image: &ImageBlock{Format: format, Source: BytesSource{Bytes: raw}}})
		case core.AttachmentFile:
			format := documentFormat(att.MediaType)
			if format == "" {
				return nil, core.NewUnsupportedFeatureError(providerName, "file attachments of type "+att.MediaType)
			}
			name := att.Filename
			if name == "" {
				name = fmt.Sprintf("document-%d", i)
			}
			blocks = append(blocks, ContentBlock{Document: &DocumentBlock{Format: format, Name: documentName(name), Source: BytesSource{Bytes: raw}}})
		default:
			return nil, core.NewUnsupportedFeatureError(providerName, "attachment kind "+string(att.Kind))
		}
	}

	if u.Content != "" {
		blocks = append(blocks, ContentBlock{Text: u.Content})
	}

	return blocks, nil
}

func documentFormat(mediaType string) string {
	switch mediaType {
	case "application/pdf":
		return "pdf"
	case "text/csv":
		return "csv"
	case "application/msword":
		return "doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/vnd.ms-excel":
		return "xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case "text/html":
		return "html"
	case "text/plain":
		return "txt"
	case "text/markdown":
		return "md"
	}
	return ""
}

// documentName strips the extension; Converse rejects dots in document names.
func documentName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, ".", "-")
}

// normalizer folds ConverseStream events. The metadata event carrying usage
// follows messageStop, so usage is merged after terminal too.
type normalizer struct {
	*model.Accumulator
}

func newNormalizer() *normalizer {
	return &normalizer{Accumulator: model.NewAccumulator(model.ProviderBedrock)}
}

// Handle implements model.Normalizer.
func (n *normalizer) Handle(ev model.RawEvent) (string, error) {
	data := gjson.ParseBytes(ev.Data)

	if ev.Type == "metadata" {
		n.MergeUsage(usageOf(data.Get("usage")))
		return "", nil
	}

	if n.Terminal() {
		return "", nil
	}

	index := int(data.Get("contentBlockIndex").Int())

	switch ev.Type {
	case "messageStart":
		n.Start("", "")
	case "contentBlockStart":
		if tu := data.Get("start.toolUse"); tu.Exists() {
			n.StartBlock(index, model.BlockToolUse, tu.Get("toolUseId").String(), tu.Get("name").String())
		}
	case "contentBlockDelta":
		delta := data.Get("delta")
		if text := delta.Get("text"); text.Exists() {
			return n.AppendText(index, text.String()), nil
		}
		if input := delta.Get("toolUse.input"); input.Exists() {
			n.AppendToolInput(index, input.String())
		}
	case "contentBlockStop":
		n.StopBlock(index)
	case "messageStop":
		reason := data.Get("stopReason").String()
		n.Finish(reason, model.CanonicalFinish(finishReasons, reason))
	case transport.EventTypeException:
		return "", n.Fail(model.ProviderBedrock, data.Get("__type").String(), data.Get("message").String(), ev.Data)
	}

	return "", nil
}

func usageOf(u gjson.Result) map[string]int64 {
	if !u.IsObject() {
		return nil
	}

	out := map[string]int64{}
	u.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Int()
		return true
	})

	return out
}

var (
	_ model.Adapter    = (*Adapter)(nil)
	_ model.Normalizer = (*normalizer)(nil)
)
