package openai

import (
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentloop/model"
)

// chunkNormalizer folds chat.completion.chunk events into a snapshot. The
// usage chunk requested via stream_options arrives after the finish_reason
// chunk, so usage is still merged once terminal.
type chunkNormalizer struct {
	*model.Accumulator
}

func newChunkNormalizer() *chunkNormalizer {
	return &chunkNormalizer{Accumulator: model.NewAccumulator(model.ProviderOpenAI)}
}

// Handle implements model.Normalizer.
func (n *chunkNormalizer) Handle(ev model.RawEvent) (string, error) {
	data := gjson.ParseBytes(ev.Data)

	if errObj := data.Get("error"); errObj.Exists() && !n.Terminal() {
		return "", n.Fail(model.ProviderOpenAI, errObj.Get("type").String(), errObj.Get("message").String(), ev.Data)
	}

	if usage := data.Get("usage"); usage.IsObject() {
		n.MergeUsage(map[string]int64{
			"prompt_tokens":     usage.Get("prompt_tokens").Int(),
			"completion_tokens": usage.Get("completion_tokens").Int(),
			"total_tokens":      usage.Get("total_tokens").Int(),
		})
	}

	if n.Terminal() {
		return "", nil
	}

	if n.State() == model.StateIdle {
		n.Start(data.Get("id").String(), data.Get("model").String())
	}

	choice := data.Get("choices.0")
	if !choice.Exists() {
		return "", nil
	}

	for _, tc := range choice.Get("delta.tool_calls").Array() {
		index := int(tc.Get("index").Int()) + 1
		id := tc.Get("id").String()
		name := tc.Get("function.name").String()

		if b, ok := n.Snapshot().Block(index); ok && b.Kind == model.BlockToolUse {
			if id != "" {
				b.ToolCallID = id
			}
			if name != "" {
				b.Name = name
			}
		} else {
			n.StartBlock(index, model.BlockToolUse, id, name)
		}

		if args := tc.Get("function.arguments").String(); args != "" {
			n.AppendToolInput(index, args)
		}
	}

	var delta string
	if content := choice.Get("delta.content").String(); content != "" {
		delta = n.AppendText(0, content)
	}

	if reason := choice.Get("finish_reason").String(); reason != "" {
		n.Finish(reason, model.CanonicalFinish(finishReasons, reason))
	}

	return delta, nil
}

var _ model.Normalizer = (*chunkNormalizer)(nil)
