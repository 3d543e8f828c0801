package model

import (
	"strings"

	"github.com/hupe1980/agentloop/internal/util"
)

// BlockKind is the type of a content block.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockToolUse BlockKind = "tool_use"

	// BlockProviderTool records a provider-managed tool invocation (e.g. a
	// hosted web search). It is never surfaced as a local tool call.
	BlockProviderTool BlockKind = "provider_tool"
)

// Block is one index-addressed unit of a response. Text is append-only; a
// tool_use block accumulates PartialJSON until it is stopped, at which point
// Input holds the parsed value (or the raw string when parsing failed).
type Block struct {
	Index       int       `json:"index" cbor:"index"`
	Kind        BlockKind `json:"kind" cbor:"kind"`
	Text        string    `json:"text,omitempty" cbor:"text,omitempty"`
	ToolCallID  string    `json:"tool_call_id,omitempty" cbor:"tool_call_id,omitempty"`
	Name        string    `json:"name,omitempty" cbor:"name,omitempty"`
	PartialJSON string    `json:"partial_json,omitempty" cbor:"partial_json,omitempty"`
	Input       any       `json:"input,omitempty" cbor:"input,omitempty"`
	Complete    bool      `json:"complete,omitempty" cbor:"complete,omitempty"`
}

// Snapshot is the accumulated response of one model call. Blocks is sparse:
// positions never written hold nil.
type Snapshot struct {
	ID           string           `json:"id,omitempty" cbor:"id,omitempty"`
	Model        string           `json:"model,omitempty" cbor:"model,omitempty"`
	Provider     Provider         `json:"provider" cbor:"provider"`
	Blocks       []*Block         `json:"blocks" cbor:"blocks"`
	Usage        map[string]int64 `json:"usage,omitempty" cbor:"usage,omitempty"`
	StopReason   string           `json:"stop_reason,omitempty" cbor:"stop_reason,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty" cbor:"finish_reason,omitempty"`
}

// NewSnapshot returns an empty snapshot for a provider.
func NewSnapshot(p Provider) *Snapshot {
	return &Snapshot{Provider: p, Usage: map[string]int64{}}
}

// EnsureBlock returns the block at index, growing the list as needed.
// A first write to any index succeeds regardless of arrival order.
func (s *Snapshot) EnsureBlock(index int) *Block {
	if index < 0 {
		index = 0
	}
	if index >= len(s.Blocks) {
		grown := make([]*Block, index+1)
		copy(grown, s.Blocks)
		s.Blocks = grown
	}
	if s.Blocks[index] == nil {
		s.Blocks[index] = &Block{Index: index, Kind: BlockText}
	}
	return s.Blocks[index]
}

// Block returns the block at index if it has been written.
func (s *Snapshot) Block(index int) (*Block, bool) {
	if index < 0 || index >= len(s.Blocks) || s.Blocks[index] == nil {
		return nil, false
	}
	return s.Blocks[index], true
}

// MergeUsage overwrites usage counters with later values.
func (s *Snapshot) MergeUsage(u map[string]int64) {
	if len(u) == 0 {
		return
	}
	if s.Usage == nil {
		s.Usage = map[string]int64{}
	}
	for k, v := range u {
		s.Usage[k] = v
	}
}

// Text concatenates all text blocks in index order.
func (s *Snapshot) Text() string {
	var sb strings.Builder
	for _, b := range s.Blocks {
		if b != nil && b.Kind == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool_use blocks in index order. Blocks that were
// never stopped have their buffer parsed on the fly.
func (s *Snapshot) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range s.Blocks {
		if b == nil || b.Kind != BlockToolUse {
			continue
		}
		args := b.Input
		if !b.Complete {
			args = util.ParseArguments(b.PartialJSON)
		}
		calls = append(calls, ToolCall{ID: b.ToolCallID, Name: b.Name, Arguments: args})
	}
	return calls
}

// Clone returns a deep copy safe to hand to consumers while streaming continues.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Blocks = make([]*Block, len(s.Blocks))
	for i, b := range s.Blocks {
		if b == nil {
			continue
		}
		nb := *b
		nb.Input = util.DeepCopy(b.Input)
		out.Blocks[i] = &nb
	}
	out.Usage = make(map[string]int64, len(s.Usage))
	for k, v := range s.Usage {
		out.Usage[k] = v
	}
	return &out
}

// Reset clears the snapshot to an empty shell keeping the provider.
func (s *Snapshot) Reset() {
	*s = Snapshot{Provider: s.Provider, Usage: map[string]int64{}}
}
