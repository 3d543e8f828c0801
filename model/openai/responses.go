package openai

import (
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

const responsesProviderName = "openai_responses"

var errInvalidBody = errors.New("invalid response body")

var incompleteReasons = map[string]string{
	"max_output_tokens": model.FinishLength,
	"content_filter":    model.FinishContentFilter,
}

// ResponsesAdapter implements model.Adapter for the Responses API.
type ResponsesAdapter struct{}

// NewResponsesAdapter creates the Responses adapter.
func NewResponsesAdapter() *ResponsesAdapter { return &ResponsesAdapter{} }

// Provider implements model.Adapter.
func (a *ResponsesAdapter) Provider() model.Provider { return model.ProviderOpenAIResponses }

// SupportsNativeToolUse implements model.Adapter.
func (a *ResponsesAdapter) SupportsNativeToolUse() bool { return true }

// NewNormalizer implements model.Adapter.
func (a *ResponsesAdapter) NewNormalizer() model.Normalizer { return newResponsesNormalizer() }

// ExtractToolCalls implements model.Adapter.
func (a *ResponsesAdapter) ExtractToolCalls(body []byte) ([]model.ToolCall, error) {
	return model.ExtractFromResponse(a, body)
}

// ProviderManagedTool maps web_search and code_execution onto hosted tools.
func (a *ResponsesAdapter) ProviderManagedTool(def model.ToolDefinition) (any, error) {
	switch def.Name {
	case model.ToolWebSearch:
		return responses.ToolUnionParam{
			OfWebSearchPreview: &responses.WebSearchToolParam{Type: responses.WebSearchToolTypeWebSearchPreview},
		}, nil
	case model.ToolCodeExecution:
		return responses.ToolUnionParam{
			OfCodeInterpreter: &responses.ToolCodeInterpreterParam{
				Container: responses.ToolCodeInterpreterContainerUnionParam{
					OfCodeInterpreterContainerAuto: &responses.ToolCodeInterpreterContainerCodeInterpreterContainerAutoParam{},
				},
			},
		}, nil
	default:
		return responses.ToolUnionParam{}, core.NewUnsupportedFeatureError(responsesProviderName, "provider-managed tool "+def.Name)
	}
}

// FormatOutbound builds a responses.ResponseNewParams. Streaming is chosen by
// the transport, so req.Stream is not part of the body.
func (a *ResponsesAdapter) FormatOutbound(req model.Request) (any, error) {
	input, err := buildResponsesInput(req.Messages)
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}

	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if limit := req.EffectiveMaxTokens(); limit > 0 {
		params.MaxOutputTokens = openai.Int(limit)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if len(req.Tools) == 0 || req.ToolChoice.Mode == model.ToolChoiceNone {
		return params, nil
	}

	for _, def := range req.Tools {
		if def.ProviderManaged {
			t, err := a.ProviderManagedTool(def)
			if err != nil {
				return nil, err
			}
			params.Tools = append(params.Tools, t.(responses.ToolUnionParam))
			continue
		}

		fn := &responses.FunctionToolParam{
			Name:       def.Name,
			Parameters: def.Parameters,
			Strict:     openai.Bool(false),
		}
		if fn.Parameters == nil {
			fn.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		params.Tools = append(params.Tools, responses.ToolUnionParam{OfFunction: fn})
	}

	switch {
	case req.ToolChoice.IsForced():
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfFunctionTool: &responses.ToolChoiceFunctionParam{Name: req.ToolChoice.Name},
		}
	case req.ToolChoice.Mode == model.ToolChoiceRequired:
		params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsRequired),
		}
	}

	return params, nil
}

// ParseResponse decodes a non-streaming response object. Output item i lands in block i.
func (a *ResponsesAdapter) ParseResponse(body []byte) (*model.Snapshot, error) {
	if !json.Valid(body) {
		return nil, errInvalidBody
	}

	data := gjson.ParseBytes(body)

	snap := model.NewSnapshot(model.ProviderOpenAIResponses)
	snap.ID = data.Get("id").String()
	snap.Model = data.Get("model").String()

	for i, item := range data.Get("output").Array() {
		switch item.Get("type").String() {
		case "message":
			var text string
			for _, c := range item.Get("content").Array() {
				if c.Get("type").String() == "output_text" {
					text += c.Get("text").String()
				}
			}
			if text != "" {
				snap.EnsureBlock(i).Text = text
			}
		case "function_call":
			b := snap.EnsureBlock(i)
			b.Kind = model.BlockToolUse
			b.ToolCallID = item.Get("call_id").String()
			b.Name = item.Get("name").String()
			b.PartialJSON = item.Get("arguments").String()
			b.Input = util.ParseArguments(b.PartialJSON)
			b.Complete = true
		case "web_search_call", "code_interpreter_call":
			b := snap.EnsureBlock(i)
			b.Kind = model.BlockProviderTool
			b.ToolCallID = item.Get("id").String()
			b.Name = item.Get("type").String()
			b.Complete = true
		}
	}

	snap.MergeUsage(responsesUsage(data.Get("usage")))
	snap.StopReason = data.Get("status").String()
	snap.FinishReason = responsesFinish(snap, data)

	return snap, nil
}

func buildResponsesInput(history []core.Message) (responses.ResponseInputParam, error) {
	var items responses.ResponseInputParam

	for _, m := range model.PairToolCalls(history) {
		switch v := m.(type) {
		case core.UserText:
			content, err := buildResponsesUserContent(v)
			if err != nil {
				return nil, err
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))
		case core.AssistantText:
			items = append(items, responses.ResponseInputItemParamOfMessage(v.Content, responses.EasyInputMessageRoleAssistant))
		case core.ToolCall:
			if v.AssistantMessage != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(v.AssistantMessage, responses.EasyInputMessageRoleAssistant))
			}
			items = append(items, responses.ResponseInputItemUnionParam{
				OfFunctionCall: &responses.ResponseFunctionToolCallParam{
					CallID:    v.ProviderCallID,
					Name:      v.Name,
					Arguments: util.ArgumentsJSON(v.Arguments),
				},
			})
		case core.ToolCallResult:
			items = append(items, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: v.ProviderCallID,
					Output: util.ResultText(v.Result),
				},
			})
		}
	}

	return items, nil
}

func buildResponsesUserContent(u core.UserText) (responses.ResponseInputMessageContentListParam, error) {
	content := make(responses.ResponseInputMessageContentListParam, 0, len(u.Attachments)+1)

	if u.Content != "" {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputText: &responses.ResponseInputTextParam{Text: u.Content},
		})
	}

	for _, att := range u.Attachments {
		switch att.Kind {
		case core.AttachmentImage:
			imageURL := att.URL
			if !att.IsURL() {
				imageURL = dataURL(att.MediaType, att.Data)
			}
			content = append(content, responses.ResponseInputContentUnionParam{
				OfInputImage: &responses.ResponseInputImageParam{
					ImageURL: openai.String(imageURL),
					Detail:   responses.ResponseInputImageDetailAuto,
				},
			})
		case core.AttachmentFile:
			file := &responses.ResponseInputFileParam{}
			if att.IsURL() {
				file.FileURL = openai.String(att.URL)
			} else {
				file.FileData = openai.String(dataURL(att.MediaType, att.Data))
				if att.Filename != "" {
					file.Filename = openai.String(att.Filename)
				}
			}
			content = append(content, responses.ResponseInputContentUnionParam{OfInputFile: file})
		default:
			return nil, core.NewUnsupportedFeatureError(responsesProviderName, "attachment kind "+string(att.Kind))
		}
	}

	return content, nil
}

func responsesUsage(u gjson.Result) map[string]int64 {
	if !u.IsObject() {
		return nil
	}

	return map[string]int64{
		"input_tokens":  u.Get("input_tokens").Int(),
		"output_tokens": u.Get("output_tokens").Int(),
		"total_tokens":  u.Get("total_tokens").Int(),
	}
}

// responsesFinish derives the canonical reason. The API reports a status
// rather than a stop reason, so tool calls are detected from the output.
func responsesFinish(snap *model.Snapshot, resp gjson.Result) string {
	if reason := resp.Get("incomplete_details.reason").String(); reason != "" {
		return model.CanonicalFinish(incompleteReasons, reason)
	}

	if len(snap.ToolCalls()) > 0 {
		return model.FinishToolCalls
	}

	return model.FinishStop
}

// responsesNormalizer folds Responses API stream events into a snapshot.
type responsesNormalizer struct {
	*model.Accumulator
}

func newResponsesNormalizer() *responsesNormalizer {
	return &responsesNormalizer{Accumulator: model.NewAccumulator(model.ProviderOpenAIResponses)}
}

// Handle implements model.Normalizer.
func (n *responsesNormalizer) Handle(ev model.RawEvent) (string, error) {
	if n.Terminal() {
		return "", nil
	}

	data := gjson.ParseBytes(ev.Data)

	typ := data.Get("type").String()
	if typ == "" {
		typ = ev.Type
	}

	index := int(data.Get("output_index").Int())

	switch typ {
	case "response.created":
		n.Start(data.Get("response.id").String(), data.Get("response.model").String())
	case "response.output_item.added":
		item := data.Get("item")
		switch item.Get("type").String() {
		case "function_call":
			n.StartBlock(index, model.BlockToolUse, item.Get("call_id").String(), item.Get("name").String())
		case "message":
			n.StartBlock(index, model.BlockText, "", "")
		default:
			n.StartBlock(index, model.BlockProviderTool, item.Get("id").String(), item.Get("type").String())
		}
	case "response.output_text.delta":
		return n.AppendText(index, data.Get("delta").String()), nil
	case "response.function_call_arguments.delta":
		n.AppendToolInput(index, data.Get("delta").String())
	case "response.output_item.done":
		item := data.Get("item")
		if b, ok := n.Snapshot().Block(index); ok && b.Kind == model.BlockToolUse && b.PartialJSON == "" {
			b.PartialJSON = item.Get("arguments").String()
		}
		n.StopBlock(index)
	case "response.completed", "response.incomplete":
		resp := data.Get("response")
		n.MergeUsage(responsesUsage(resp.Get("usage")))
		n.StopAll()
		status := resp.Get("status").String()
		n.Finish(status, responsesFinish(n.Snapshot(), resp))
	case "response.failed":
		return "", n.Fail(model.ProviderOpenAIResponses, data.Get("response.error.code").String(), data.Get("response.error.message").String(), ev.Data)
	case "error":
		return "", n.Fail(model.ProviderOpenAIResponses, data.Get("code").String(), data.Get("message").String(), ev.Data)
	}

	return "", nil
}

var (
	_ model.Adapter    = (*ResponsesAdapter)(nil)
	_ model.Normalizer = (*responsesNormalizer)(nil)
)
