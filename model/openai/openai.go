// Package openai adapts the two OpenAI wire protocols to model.Adapter: the
// Chat Completions API (Adapter) and the Responses API (ResponsesAdapter).
// Completions payloads are built with the official openai-go parameter types.
package openai

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

const providerName = "openai"

var finishReasons = map[string]string{
	"stop":           model.FinishStop,
	"tool_calls":     model.FinishToolCalls,
	"function_call":  model.FinishToolCalls,
	"length":         model.FinishLength,
	"content_filter": model.FinishContentFilter,
}

// Adapter implements model.Adapter for the Chat Completions API.
type Adapter struct{}

// NewAdapter creates the Chat Completions adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Provider implements model.Adapter.
func (a *Adapter) Provider() model.Provider { return model.ProviderOpenAI }

// SupportsNativeToolUse implements model.Adapter.
func (a *Adapter) SupportsNativeToolUse() bool { return true }

// NewNormalizer implements model.Adapter.
func (a *Adapter) NewNormalizer() model.Normalizer { return newChunkNormalizer() }

// ExtractToolCalls implements model.Adapter.
func (a *Adapter) ExtractToolCalls(body []byte) ([]model.ToolCall, error) {
	return model.ExtractFromResponse(a, body)
}

// ProviderManagedTool implements model.Adapter. Chat Completions has no hosted tools.
func (a *Adapter) ProviderManagedTool(def model.ToolDefinition) (any, error) {
	return nil, core.NewUnsupportedFeatureError(providerName, "provider-managed tool "+def.Name)
}

// FormatOutbound builds openai.ChatCompletionNewParams.
func (a *Adapter) FormatOutbound(req model.Request) (any, error) {
	messages, err := buildMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.Model,
		MaxCompletionTokens: openai.Int(req.EffectiveMaxTokens()),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if req.Stream {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	}

	if len(req.Tools) == 0 || req.ToolChoice.Mode == model.ToolChoiceNone {
		return params, nil
	}

	tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
	for _, tdef := range req.Tools {
		if tdef.ProviderManaged {
			if _, err := a.ProviderManagedTool(tdef); err != nil {
				return nil, err
			}
		}

		fn := openai.FunctionDefinitionParam{
			Name:       tdef.Name,
			Parameters: tdef.Parameters,
		}
		if tdef.Description != "" {
			fn.Description = openai.String(tdef.Description)
		}
		tools = append(tools, openai.ChatCompletionToolParam{Function: fn})
	}
	params.Tools = tools

	switch {
	case req.ToolChoice.IsForced():
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.Name},
			},
		}
	case req.ToolChoice.Mode == model.ToolChoiceRequired:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	}

	return params, nil
}

// ParseResponse decodes a non-streaming openai.ChatCompletion. Text lands in
// block 0 and tool call i in block i+1.
func (a *Adapter) ParseResponse(body []byte) (*model.Snapshot, error) {
	var resp openai.ChatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	snap := model.NewSnapshot(model.ProviderOpenAI)
	snap.ID = resp.ID
	snap.Model = resp.Model

	ch0 := resp.Choices[0]
	if ch0.Message.Content != "" {
		snap.EnsureBlock(0).Text = ch0.Message.Content
	}

	for i, tc := range ch0.Message.ToolCalls {
		b := snap.EnsureBlock(i + 1)
		b.Kind = model.BlockToolUse
		b.ToolCallID = tc.ID
		b.Name = tc.Function.Name
		b.PartialJSON = tc.Function.Arguments
		b.Input = util.ParseArguments(tc.Function.Arguments)
		b.Complete = true
	}

	snap.MergeUsage(map[string]int64{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	})
	snap.StopReason = ch0.FinishReason
	snap.FinishReason = model.CanonicalFinish(finishReasons, ch0.FinishReason)

	return snap, nil
}

// buildMessages converts the conversation into chat messages. Each tool call
// becomes an assistant message immediately followed by its tool message.
func buildMessages(system string, history []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, m := range model.PairToolCalls(history) {
		switch v := m.(type) {
		case core.UserText:
			if len(v.Attachments) == 0 {
				messages = append(messages, openai.UserMessage(v.Content))
				continue
			}

			parts, err := buildUserParts(v)
			if err != nil {
				return nil, err
			}
			messages = append(messages, openai.UserMessage(parts))
		case core.AssistantText:
			messages = append(messages, openai.AssistantMessage(v.Content))
		case core.ToolCall:
			assistant := &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
					ID: v.ProviderCallID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      v.Name,
						Arguments: util.ArgumentsJSON(v.Arguments),
					},
				}},
			}
			if v.AssistantMessage != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(v.AssistantMessage)}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.ToolCallResult:
			messages = append(messages, openai.ToolMessage(util.ResultText(v.Result), v.ProviderCallID))
		}
	}

	return messages, nil
}

func buildUserParts(u core.UserText) ([]openai.ChatCompletionContentPartUnionParam, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(u.Attachments)+1)

	if u.Content != "" {
		parts = append(parts, openai.TextContentPart(u.Content))
	}

	for _, att := range u.Attachments {
		switch att.Kind {
		case core.AttachmentImage:
			imageURL := att.URL
			if !att.IsURL() {
				imageURL = dataURL(att.MediaType, att.Data)
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}))
		case core.AttachmentFile:
			if att.IsURL() {
				return nil, core.NewUnsupportedFeatureError(providerName, "file attachments by URL")
			}
			file := openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(dataURL(att.MediaType, att.Data)),
			}
			if att.Filename != "" {
				file.Filename = openai.String(att.Filename)
			}
			parts = append(parts, openai.FileContentPart(file))
		default:
			return nil, core.NewUnsupportedFeatureError(providerName, "attachment kind "+string(att.Kind))
		}
	}

	return parts, nil
}

func dataURL(mediaType, data string) string {
	return "data:" + mediaType + ";base64," + data
}

var _ model.Adapter = (*Adapter)(nil)
