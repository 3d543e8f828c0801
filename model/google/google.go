// Package google adapts the Gemini generateContent API to model.Adapter using
// the google.golang.org/genai wire types.
//
// Gemini stream chunks carry candidate content rather than block events. The
// normalizer diffs each part against the block stored at the same index: a
// text part that extends the stored text contributes only its suffix, any
// other text is treated as an increment, and function calls are stored
// wholesale. Gemini does not assign call IDs, so "call_<uuid>" IDs are
// synthesized.
package google

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

const (
	providerName = "google"
	roleModel    = "model"
)

var finishReasons = map[string]string{
	"STOP":                    model.FinishStop,
	"MAX_TOKENS":              model.FinishLength,
	"SAFETY":                  model.FinishContentFilter,
	"RECITATION":              model.FinishContentFilter,
	"BLOCKLIST":               model.FinishContentFilter,
	"PROHIBITED_CONTENT":      model.FinishContentFilter,
	"SPII":                    model.FinishContentFilter,
	"MALFORMED_FUNCTION_CALL": model.FinishError,
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool           `json:"tools,omitempty"`
	ToolConfig        *genai.ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

// Adapter implements model.Adapter for Gemini.
type Adapter struct{}

// NewAdapter creates the Gemini adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Provider implements model.Adapter.
func (a *Adapter) Provider() model.Provider { return model.ProviderGoogle }

// SupportsNativeToolUse implements model.Adapter.
func (a *Adapter) SupportsNativeToolUse() bool { return true }

// NewNormalizer implements model.Adapter.
func (a *Adapter) NewNormalizer() model.Normalizer { return newNormalizer() }

// ExtractToolCalls implements model.Adapter.
func (a *Adapter) ExtractToolCalls(body []byte) ([]model.ToolCall, error) {
	return model.ExtractFromResponse(a, body)
}

// ProviderManagedTool maps web_search and code_execution onto Gemini's built-in tools.
func (a *Adapter) ProviderManagedTool(def model.ToolDefinition) (any, error) {
	switch def.Name {
	case model.ToolWebSearch:
		return &genai.Tool{GoogleSearch: &genai.GoogleSearch{}}, nil
	case model.ToolCodeExecution:
		return &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}}, nil
	default:
		return nil, core.NewUnsupportedFeatureError(providerName, "provider-managed tool "+def.Name)
	}
}

// FormatOutbound builds a *GenerateRequest.
func (a *Adapter) FormatOutbound(req model.Request) (any, error) {
	contents, err := buildContents(req.Messages)
	if err != nil {
		return nil, err
	}

	body := &GenerateRequest{
		Contents: contents,
		GenerationConfig: &genai.GenerationConfig{
			MaxOutputTokens: int32(req.EffectiveMaxTokens()),
		},
	}

	if req.Temperature != nil {
		body.GenerationConfig.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	if req.System != "" {
		body.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	if len(req.Tools) == 0 || req.ToolChoice.Mode == model.ToolChoiceNone {
		return body, nil
	}

	local, managed := model.SplitTools(req.Tools)

	if len(local) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(local))
		for _, def := range local {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.Parameters,
			})
		}
		body.Tools = append(body.Tools, &genai.Tool{FunctionDeclarations: decls})
	}

	for _, def := range managed {
		t, err := a.ProviderManagedTool(def)
		if err != nil {
			return nil, err
		}
		body.Tools = append(body.Tools, t.(*genai.Tool))
	}

	switch {
	case req.ToolChoice.IsForced():
		body.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{req.ToolChoice.Name},
		}}
	case req.ToolChoice.Mode == model.ToolChoiceRequired:
		body.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode: genai.FunctionCallingConfigModeAny,
		}}
	}

	return body, nil
}

// ParseResponse decodes a non-streaming genai.GenerateContentResponse.
func (a *Adapter) ParseResponse(body []byte) (*model.Snapshot, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	n := newNormalizer()
	n.apply(&resp)

	snap := n.Snapshot()
	if n.State() != model.StateTerminal {
		snap.StopReason = ""
		snap.FinishReason = model.FinishStop
	}

	return snap, nil
}

// buildContents converts the conversation. Function responses carry the
// name of the call they answer, tracked by call ID.
func buildContents(history []core.Message) ([]*genai.Content, error) {
	var contents []*genai.Content

	push := func(role string, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	names := map[string]string{}

	for _, m := range model.PairToolCalls(history) {
		switch v := m.(type) {
		case core.UserText:
			parts, err := buildUserParts(v)
			if err != nil {
				return nil, err
			}
			push(core.RoleUser, parts...)
		case core.AssistantText:
			if v.Content != "" {
				push(roleModel, &genai.Part{Text: v.Content})
			}
		case core.ToolCall:
			names[v.ProviderCallID] = v.Name
			var parts []*genai.Part
			if v.AssistantMessage != "" {
				parts = append(parts, &genai.Part{Text: v.AssistantMessage})
			}
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				Name: v.Name,
				Args: util.ArgumentsObject(v.Arguments),
			}})
			push(roleModel, parts...)
		case core.ToolCallResult:
			push(core.RoleUser, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				Name:     names[v.ProviderCallID],
				Response: resultObject(v.Result),
			}})
		}
	}

	return contents, nil
}

// resultObject wraps non-object results; functionResponse.response must be an object.
func resultObject(result any) map[string]any {
	if obj, ok := result.(map[string]any); ok {
		return obj
	}
	return map[string]any{"result": result}
}

func buildUserParts(u core.UserText) ([]*genai.Part, error) {
	var parts []*genai.Part

	for i, att := range u.Attachments {
		if att.Kind != core.AttachmentImage && att.Kind != core.AttachmentFile {
			return nil, core.NewUnsupportedFeatureError(providerName, "attachment kind "+string(att.Kind))
		}

		if att.IsURL() {
			parts = append(parts, &genai.Part{FileData: &genai.FileData{
				FileURI:     att.URL,
				MIMEType:    att.MediaType,
				DisplayName: att.Filename,
			}})
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %d: %w", i, err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: raw, MIMEType: att.MediaType}})
	}

	if u.Content != "" {
		parts = append(parts, &genai.Part{Text: u.Content})
	}

	return parts, nil
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

// normalizer diffs streamed candidates against the stored blocks.
type normalizer struct {
	*model.Accumulator
}

func newNormalizer() *normalizer {
	return &normalizer{Accumulator: model.NewAccumulator(model.ProviderGoogle)}
}

// Handle implements model.Normalizer.
func (n *normalizer) Handle(ev model.RawEvent) (string, error) {
	if n.Terminal() {
		return "", nil
	}

	var errEnvelope struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(ev.Data, &errEnvelope); err == nil && errEnvelope.Error != nil {
		return "", n.Fail(model.ProviderGoogle, errEnvelope.Error.Status, errEnvelope.Error.Message, ev.Data)
	}

	var chunk genai.GenerateContentResponse
	if err := json.Unmarshal(ev.Data, &chunk); err != nil {
		return "", n.Fail(model.ProviderGoogle, "invalid_chunk", err.Error(), ev.Data)
	}

	return n.apply(&chunk), nil
}

// apply folds one candidate chunk into the snapshot and returns the text delta.
func (n *normalizer) apply(resp *genai.GenerateContentResponse) string {
	if n.State() == model.StateIdle {
		n.Start(resp.ResponseID, resp.ModelVersion)
	}

	if resp.UsageMetadata != nil {
		n.MergeUsage(map[string]int64{
			"prompt_token_count":     int64(resp.UsageMetadata.PromptTokenCount),
			"candidates_token_count": int64(resp.UsageMetadata.CandidatesTokenCount),
			"total_token_count":      int64(resp.UsageMetadata.TotalTokenCount),
		})
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}

	cand := resp.Candidates[0]

	var delta strings.Builder
	if cand.Content != nil {
		for i, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				n.storeCall(i, part.FunctionCall)
			case part.Text != "" && !part.Thought:
				delta.WriteString(n.diffText(i, part.Text))
			}
		}
	}

	if cand.FinishReason != "" {
		reason := string(cand.FinishReason)
		finish := model.CanonicalFinish(finishReasons, reason)
		if finish == model.FinishStop && len(n.Snapshot().ToolCalls()) > 0 {
			finish = model.FinishToolCalls
		}
		n.Finish(reason, finish)
	}

	return delta.String()
}

// diffText appends the part's contribution at index. A part that extends the
// stored text contributes its suffix; anything else is an increment.
func (n *normalizer) diffText(index int, text string) string {
	if b, ok := n.Snapshot().Block(index); ok && b.Kind != model.BlockText {
		index = n.nextIndex()
	}

	stored := ""
	if b, ok := n.Snapshot().Block(index); ok {
		stored = b.Text
	}

	if len(text) > len(stored) && strings.HasPrefix(text, stored) {
		return n.AppendText(index, text[len(stored):])
	}

	return n.AppendText(index, text)
}

// storeCall stores a function call wholesale. A call replaces the block at
// index only when that block holds the same call.
func (n *normalizer) storeCall(index int, fc *genai.FunctionCall) {
	id := fc.ID

	if b, ok := n.Snapshot().Block(index); ok {
		switch {
		case b.Kind == model.BlockToolUse && b.Name == fc.Name:
			if id == "" {
				id = b.ToolCallID
			}
		default:
			index = n.nextIndex()
		}
	}

	if id == "" {
		id = newCallID()
	}

	args := map[string]any{}
	for k, v := range fc.Args {
		args[k] = v
	}

	n.SetToolInput(index, id, fc.Name, args)
	if b, ok := n.Snapshot().Block(index); ok {
		b.PartialJSON = util.ArgumentsJSON(args)
	}
}

func (n *normalizer) nextIndex() int {
	return len(n.Snapshot().Blocks)
}

var (
	_ model.Adapter    = (*Adapter)(nil)
	_ model.Normalizer = (*normalizer)(nil)
)
