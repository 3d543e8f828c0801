package anthropic

import (
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentloop/model"
)

// normalizer folds Anthropic stream events into a snapshot.
type normalizer struct {
	*model.Accumulator
	pendingStop string
}

func newNormalizer() *normalizer {
	return &normalizer{Accumulator: model.NewAccumulator(model.ProviderAnthropic)}
}

// Handle implements model.Normalizer.
func (n *normalizer) Handle(ev model.RawEvent) (string, error) {
	if n.Terminal() {
		return "", nil
	}

	data := gjson.ParseBytes(ev.Data)

	typ := data.Get("type").String()
	if typ == "" {
		typ = ev.Type
	}

	switch typ {
	case "message_start":
		msg := data.Get("message")
		n.Start(msg.Get("id").String(), msg.Get("model").String())
		n.MergeUsage(usageOf(msg.Get("usage")))
	case "content_block_start":
		index := int(data.Get("index").Int())
		block := data.Get("content_block")
		switch block.Get("type").String() {
		case "tool_use":
			n.StartBlock(index, model.BlockToolUse, block.Get("id").String(), block.Get("name").String())
		case "server_tool_use":
			n.StartBlock(index, model.BlockProviderTool, block.Get("id").String(), block.Get("name").String())
		case "text":
			n.StartBlock(index, model.BlockText, "", "")
			if text := block.Get("text").String(); text != "" {
				return n.AppendText(index, text), nil
			}
		default:
			// Result blocks of hosted tools carry no local semantics.
			n.StartBlock(index, model.BlockProviderTool, block.Get("tool_use_id").String(), block.Get("type").String())
		}
	case "content_block_delta":
		index := int(data.Get("index").Int())
		delta := data.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			return n.AppendText(index, delta.Get("text").String()), nil
		case "input_json_delta":
			n.AppendToolInput(index, delta.Get("partial_json").String())
		}
	case "content_block_stop":
		n.StopBlock(int(data.Get("index").Int()))
	case "message_delta":
		if reason := data.Get("delta.stop_reason").String(); reason != "" {
			n.pendingStop = reason
		}
		n.MergeUsage(usageOf(data.Get("usage")))
	case "message_stop":
		n.Finish(n.pendingStop, model.CanonicalFinish(finishReasons, n.pendingStop))
	case "error":
		return "", n.Fail(model.ProviderAnthropic, data.Get("error.type").String(), data.Get("error.message").String(), ev.Data)
	}

	return "", nil
}

func usageOf(u gjson.Result) map[string]int64 {
	if !u.Exists() {
		return nil
	}

	out := map[string]int64{}
	u.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			out[key.String()] = value.Int()
		}
		return true
	})

	return out
}

var _ model.Normalizer = (*normalizer)(nil)
