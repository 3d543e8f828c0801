// Package anthropic adapts the Anthropic Messages API to the model.Adapter
// capability set: outbound formatting with the official SDK parameter types,
// non-streaming response parsing and a streaming normalizer for the
// message_start / content_block_* / message_delta / message_stop event family.
package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

const providerName = "anthropic"

var finishReasons = map[string]string{
	"end_turn":      model.FinishStop,
	"stop_sequence": model.FinishStop,
	"pause_turn":    model.FinishStop,
	"tool_use":      model.FinishToolCalls,
	"max_tokens":    model.FinishLength,
	"refusal":       model.FinishContentFilter,
}

// Adapter implements model.Adapter for Anthropic.
type Adapter struct{}

// NewAdapter creates the Anthropic adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Provider implements model.Adapter.
func (a *Adapter) Provider() model.Provider { return model.ProviderAnthropic }

// SupportsNativeToolUse implements model.Adapter.
func (a *Adapter) SupportsNativeToolUse() bool { return true }

// NewNormalizer implements model.Adapter.
func (a *Adapter) NewNormalizer() model.Normalizer { return newNormalizer() }

// ExtractToolCalls implements model.Adapter.
func (a *Adapter) ExtractToolCalls(body []byte) ([]model.ToolCall, error) {
	return model.ExtractFromResponse(a, body)
}

// FormatOutbound builds anthropic.MessageNewParams.
func (a *Adapter) FormatOutbound(req model.Request) (any, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.EffectiveMaxTokens(),
		Messages:  messages,
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 && req.ToolChoice.Mode != model.ToolChoiceNone {
		tools, err := a.buildTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools

		switch {
		case req.ToolChoice.IsForced():
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice.Name}}
		case req.ToolChoice.Mode == model.ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}

	return params, nil
}

// ProviderManagedTool maps web_search onto the hosted web search tool.
func (a *Adapter) ProviderManagedTool(def model.ToolDefinition) (any, error) {
	switch def.Name {
	case model.ToolWebSearch:
		return anthropic.ToolUnionParam{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{}}, nil
	default:
		return nil, core.NewUnsupportedFeatureError(providerName, "provider-managed tool "+def.Name)
	}
}

// ParseResponse decodes a non-streaming anthropic.Message.
func (a *Adapter) ParseResponse(body []byte) (*model.Snapshot, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}

	snap := model.NewSnapshot(model.ProviderAnthropic)
	snap.ID = msg.ID
	snap.Model = string(msg.Model)

	for i, block := range msg.Content {
		switch block.Type {
		case "text":
			snap.EnsureBlock(i).Text = block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			b := snap.EnsureBlock(i)
			b.Kind = model.BlockToolUse
			b.ToolCallID = toolBlock.ID
			b.Name = toolBlock.Name
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					b.PartialJSON = string(argsBytes)
				}
			}
			b.Input = util.ParseArguments(b.PartialJSON)
			b.Complete = true
		case "server_tool_use", "web_search_tool_result":
			b := snap.EnsureBlock(i)
			b.Kind = model.BlockProviderTool
			b.Complete = true
		}
	}

	snap.MergeUsage(map[string]int64{
		"input_tokens":  msg.Usage.InputTokens,
		"output_tokens": msg.Usage.OutputTokens,
	})
	snap.StopReason = string(msg.StopReason)
	snap.FinishReason = model.CanonicalFinish(finishReasons, snap.StopReason)

	return snap, nil
}

// buildMessages converts the conversation to Anthropic messages. Consecutive
// turns of the same role are merged since the API requires alternation.
func buildMessages(history []core.Message) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam

	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		if role == anthropic.MessageParamRoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	for _, m := range model.PairToolCalls(history) {
		switch v := m.(type) {
		case core.UserText:
			blocks, err := buildUserContent(v)
			if err != nil {
				return nil, err
			}
			push(anthropic.MessageParamRoleUser, blocks...)
		case core.AssistantText:
			if v.Content != "" {
				push(anthropic.MessageParamRoleAssistant, anthropic.NewTextBlock(v.Content))
			}
		case core.ToolCall:
			var blocks []anthropic.ContentBlockParamUnion
			if v.AssistantMessage != "" {
				blocks = append(blocks, anthropic.NewTextBlock(v.AssistantMessage))
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(v.ProviderCallID, util.ArgumentsObject(v.Arguments), v.Name))
			push(anthropic.MessageParamRoleAssistant, blocks...)
		case core.ToolCallResult:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(v.ProviderCallID, util.ResultText(v.Result), model.IsErrorResult(v.Result)))
		}
	}

	return messages, nil
}

// buildUserContent builds content for user messages including attachments.
func buildUserContent(u core.UserText) ([]anthropic.ContentBlockParamUnion, error) {
	var content []anthropic.ContentBlockParamUnion

	for _, att := range u.Attachments {
		switch att.Kind {
		case core.AttachmentImage:
			if att.IsURL() {
				content = append(content, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: att.URL}))
			} else {
				content = append(content, anthropic.NewImageBlockBase64(att.MediaType, att.Data))
			}
		case core.AttachmentFile:
			switch {
			case att.IsURL():
				content = append(content, anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: att.URL}))
			case att.MediaType == "application/pdf":
				content = append(content, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: att.Data}))
			case att.MediaType == "text/plain":
				raw, err := base64.StdEncoding.DecodeString(att.Data)
				if err != nil {
					return nil, fmt.Errorf("decode text attachment: %w", err)
				}
				content = append(content, anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(raw)}))
			default:
				return nil, core.NewUnsupportedFeatureError(providerName, "file attachments of type "+att.MediaType)
			}
		default:
			return nil, core.NewUnsupportedFeatureError(providerName, "attachment kind "+string(att.Kind))
		}
	}

	if u.Content != "" {
		content = append(content, anthropic.NewTextBlock(u.Content))
	}

	return content, nil
}

// buildTools converts tool definitions to Anthropic tool params.
func (a *Adapter) buildTools(defs []model.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		if def.ProviderManaged {
			t, err := a.ProviderManagedTool(def)
			if err != nil {
				return nil, err
			}
			tools = append(tools, t.(anthropic.ToolUnionParam))
			continue
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if def.Parameters != nil {
			if properties, exists := def.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(def.Parameters["required"])
		}

		t := anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if def.Description != "" {
			t.OfTool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, t)
	}

	return tools, nil
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ model.Adapter = (*Adapter)(nil)
